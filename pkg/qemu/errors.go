/*

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package qemu

import (
	"fmt"

	"github.com/pkg/errors"
)

// UnsupportedError means the requested feature or syntax variant has no
// valid expression on the target binary. It is final: the caller gets it
// verbatim, nothing retries.
type UnsupportedError struct {
	Device  string
	Feature string
}

func (e *UnsupportedError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("configuration unsupported: %s", e.Feature)
	}
	return fmt.Sprintf("configuration unsupported for device %q: %s", e.Device, e.Feature)
}

func unsupportedf(device, format string, args ...interface{}) error {
	return &UnsupportedError{Device: device, Feature: fmt.Sprintf(format, args...)}
}

// InternalError means an invariant the validation and allocation phases
// were supposed to guarantee does not hold. It signals a defect upstream
// and is never patched over.
type InternalError struct {
	Detail string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %s", e.Detail)
}

func internalf(format string, args ...interface{}) error {
	return &InternalError{Detail: fmt.Sprintf(format, args...)}
}

// ResourceError is a local OS failure acquiring a descriptor or socket. The
// underlying error is attached; already acquired resources of the same pass
// are rolled back by the assembler.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

func resourceErr(op, path string, err error) error {
	return &ResourceError{Op: op, Path: path, Err: err}
}

// EnumRangeError marks a tagged-union variant missing from a dispatch. It
// is a programming contract violation and should be unreachable.
type EnumRangeError struct {
	What  string
	Value string
}

func (e *EnumRangeError) Error() string {
	return fmt.Sprintf("unexpected %s %q", e.What, e.Value)
}

func enumErr(what string, value interface{}) error {
	return &EnumRangeError{What: what, Value: fmt.Sprintf("%v", value)}
}

// IsUnsupported reports whether err is (or wraps) an UnsupportedError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}

// IsInternal reports whether err is (or wraps) an InternalError.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

// IsResource reports whether err is (or wraps) a ResourceError.
func IsResource(err error) bool {
	var re *ResourceError
	return errors.As(err, &re)
}

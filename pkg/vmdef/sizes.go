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
package vmdef

import (
	"fmt"

	humanize "github.com/dustin/go-humanize"
)

// KiB is the canonical size unit of the definition model. Fragment
// rendering converts per field: backend objects expect bytes (multiply by
// 1024), video memory fields expect MiB (divide by 1024).
const KiB uint64 = 1024

// ParseSizeKiB converts a human readable size string ("4GiB", "512m",
// "2097152") to KiB. Bare integers are taken as KiB already. Values that do
// not round to a whole KiB are rejected rather than silently truncated.
func ParseSizeKiB(strVal string) (uint64, error) {
	ut, err := humanize.ParseBytes(strVal)
	if err != nil {
		return 0, fmt.Errorf("Failed parsing size %q: %s", strVal, err)
	}
	// humanize treats a bare integer as bytes; keep those as KiB since
	// that is the unit definition files use.
	if isBareNumber(strVal) {
		return ut, nil
	}
	if ut%KiB != 0 {
		return 0, fmt.Errorf("Size %q is not a whole KiB multiple", strVal)
	}
	return ut / KiB, nil
}

func isBareNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// SizeKiB is a size in KiB accepting either a bare integer or a humanized
// string ("2GiB", "512m") in definition files.
type SizeKiB uint64

func (s *SizeKiB) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var intVal uint64
	if err := unmarshal(&intVal); err == nil {
		*s = SizeKiB(intVal)
		return nil
	}
	var strVal string
	if err := unmarshal(&strVal); err != nil {
		return err
	}
	kib, err := ParseSizeKiB(strVal)
	if err != nil {
		return err
	}
	*s = SizeKiB(kib)
	return nil
}

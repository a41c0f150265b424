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
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// FDPolicy says what the parent does with a passed descriptor once the
// child process has been spawned.
type FDPolicy int

const (
	// FDCloseAfterLaunch closes the parent copy after spawn.
	FDCloseAfterLaunch FDPolicy = iota
	// FDKeepOpen keeps the parent copy (e.g. to write to a log pipe).
	FDKeepOpen
)

// PassedFD is one descriptor the child inherits. ChildFD is the number the
// descriptor will have in the child, following the exec convention that
// extra file i becomes descriptor 3+i.
type PassedFD struct {
	File    *os.File
	Policy  FDPolicy
	ChildFD int
}

// Labeler is the security-labeling seam. The default implementation does
// nothing; callers running under an MAC policy plug in their own.
type Labeler interface {
	SetLabel(path string) error
	ClearLabel(path string) error
}

type nullLabeler struct{}

func (nullLabeler) SetLabel(string) error   { return nil }
func (nullLabeler) ClearLabel(string) error { return nil }

// Broker opens files and sockets on behalf of fragment builders and owns
// every descriptor it hands out until the command is launched or the pass
// is aborted. On abort CloseAll releases everything, so no handle leaks
// into a process that never ran.
type Broker struct {
	labeler Labeler
	passed  []PassedFD
	// fdsetNext numbers /dev/fdset/N groups.
	fdsetNext int
	fdsets    []FDSetEntry
	// created unix socket paths, unlinked on rollback.
	socketPaths []string
}

// FDSetEntry pairs an inherited descriptor with the fdset it belongs to.
// Every /dev/fdset/N path embedded in argument text needs a matching
// -add-fd fd=<ChildFD>,set=<Set> argument or the emulator cannot resolve it.
type FDSetEntry struct {
	Set     int
	ChildFD int
}

// NewBroker returns a broker with no security labeler.
func NewBroker() *Broker {
	return &Broker{labeler: nullLabeler{}, fdsetNext: 1}
}

// NewBrokerWithLabeler returns a broker applying the given labeler to every
// path it opens.
func NewBrokerWithLabeler(l Labeler) *Broker {
	if l == nil {
		l = nullLabeler{}
	}
	return &Broker{labeler: l, fdsetNext: 1}
}

// PassFD registers an already open file for inheritance and returns the
// descriptor number the child will see.
func (br *Broker) PassFD(f *os.File, policy FDPolicy) int {
	childFD := 3 + len(br.passed)
	br.passed = append(br.passed, PassedFD{File: f, Policy: policy, ChildFD: childFD})
	return childFD
}

// PassFDSet registers a file under a fresh fdset and returns the
// /dev/fdset/N path builders embed in argument text.
func (br *Broker) PassFDSet(f *os.File, policy FDPolicy) string {
	childFD := br.PassFD(f, policy)
	set := br.fdsetNext
	br.fdsetNext++
	br.fdsets = append(br.fdsets, FDSetEntry{Set: set, ChildFD: childFD})
	return fmt.Sprintf("/dev/fdset/%d", set)
}

// OpenLogFile opens (creating, appending) a chardev log file, registers it
// under an fdset and returns the /dev/fdset/N path for the logfile option.
func (br *Broker) OpenLogFile(path string) (string, error) {
	if err := br.labeler.SetLabel(path); err != nil {
		return "", resourceErr("label", path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
	if err != nil {
		return "", resourceErr("open log file", path, err)
	}
	return br.PassFDSet(f, FDCloseAfterLaunch), nil
}

// OpenDeviceNode opens a host device node read-write, registers it under an
// fdset and returns the /dev/fdset/N path. Any option the emulator feeds
// through its own open path accepts the fdset form.
func (br *Broker) OpenDeviceNode(path string) (string, error) {
	if err := br.labeler.SetLabel(path); err != nil {
		return "", resourceErr("label", path, err)
	}
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return "", resourceErr("open device node", path, err)
	}
	f := os.NewFile(uintptr(fd), path)
	return br.PassFDSet(f, FDCloseAfterLaunch), nil
}

// OpenVhostDevice opens a vhost device node and registers it as a plain
// inherited descriptor, for options that take a raw fd number.
func (br *Broker) OpenVhostDevice(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return -1, resourceErr("open vhost device", path, err)
	}
	f := os.NewFile(uintptr(fd), path)
	return br.PassFD(f, FDCloseAfterLaunch), nil
}

// ListenUnixSocket creates a listening unix socket at path, removes any
// stale one first, and registers the descriptor for inheritance.
func (br *Broker) ListenUnixSocket(path string) (int, error) {
	if len(path) >= 108 {
		return -1, resourceErr("bind unix socket", path, fmt.Errorf("path too long"))
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return -1, resourceErr("remove stale socket", path, err)
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, resourceErr("create unix socket", path, err)
	}
	sa := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, resourceErr("bind unix socket", path, err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		os.Remove(path)
		return -1, resourceErr("listen unix socket", path, err)
	}
	if err := br.labeler.SetLabel(path); err != nil {
		unix.Close(fd)
		os.Remove(path)
		return -1, resourceErr("label", path, err)
	}
	br.socketPaths = append(br.socketPaths, path)
	f := os.NewFile(uintptr(fd), path)
	return br.PassFD(f, FDCloseAfterLaunch), nil
}

// FDSets returns the fdset memberships in registration order.
func (br *Broker) FDSets() []FDSetEntry {
	out := make([]FDSetEntry, len(br.fdsets))
	copy(out, br.fdsets)
	return out
}

// Passed returns the registered descriptors in child order.
func (br *Broker) Passed() []PassedFD {
	out := make([]PassedFD, len(br.passed))
	copy(out, br.passed)
	return out
}

// CloseAll rolls back every acquired resource: descriptors are closed and
// created socket paths unlinked. Safe to call more than once.
func (br *Broker) CloseAll() {
	for _, p := range br.passed {
		if p.File != nil {
			if err := p.File.Close(); err != nil {
				log.Debugf("closing passed fd %d: %s", p.ChildFD, err)
			}
		}
	}
	br.passed = nil
	br.fdsets = nil
	for _, path := range br.socketPaths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Debugf("removing socket %s: %s", path, err)
		}
		if err := br.labeler.ClearLabel(path); err != nil {
			log.Debugf("clearing label on %s: %s", path, err)
		}
	}
	br.socketPaths = nil
}

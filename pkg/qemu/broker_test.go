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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBrokerPassFDNumbering(t *testing.T) {
	br := NewBroker()
	defer br.CloseAll()

	for i := 0; i < 3; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatalf("pipe: %v", err)
		}
		defer w.Close()
		if got := br.PassFD(r, FDCloseAfterLaunch); got != 3+i {
			t.Fatalf("Expected child fd %d, got %d", 3+i, got)
		}
	}

	passed := br.Passed()
	if len(passed) != 3 {
		t.Fatalf("Expected 3 passed fds, got %d", len(passed))
	}
	for i, p := range passed {
		if p.ChildFD != 3+i {
			t.Fatalf("Passed entry %d has child fd %d", i, p.ChildFD)
		}
	}
}

func TestBrokerPassFDSetPaths(t *testing.T) {
	br := NewBroker()
	defer br.CloseAll()

	r1, w1, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer w1.Close()
	r2, w2, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer w2.Close()

	if got := br.PassFDSet(r1, FDCloseAfterLaunch); got != "/dev/fdset/1" {
		t.Fatalf("Expected /dev/fdset/1, got %q", got)
	}
	if got := br.PassFDSet(r2, FDCloseAfterLaunch); got != "/dev/fdset/2" {
		t.Fatalf("Expected /dev/fdset/2, got %q", got)
	}

	sets := br.FDSets()
	if len(sets) != 2 {
		t.Fatalf("Expected 2 fdset entries, got %d", len(sets))
	}
	for i, e := range sets {
		if e.Set != 1+i || e.ChildFD != 3+i {
			t.Fatalf("Entry %d is set=%d fd=%d", i, e.Set, e.ChildFD)
		}
	}
}

func TestBrokerOpenLogFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "qargs_broker_test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	br := NewBroker()
	path := filepath.Join(dir, "serial0.log")
	fdPath, err := br.OpenLogFile(path)
	if err != nil {
		t.Fatalf("OpenLogFile: %v", err)
	}
	if !strings.HasPrefix(fdPath, "/dev/fdset/") {
		t.Fatalf("Expected an fdset path, got %q", fdPath)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Log file was not created: %v", err)
	}

	br.CloseAll()
	if got := br.Passed(); len(got) != 0 {
		t.Fatalf("Expected no passed fds after rollback, got %d", len(got))
	}
	if got := br.FDSets(); len(got) != 0 {
		t.Fatalf("Expected no fdset entries after rollback, got %d", len(got))
	}
}

func TestBrokerListenUnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "qargs_broker_test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	br := NewBroker()
	path := filepath.Join(dir, "chan0.sock")
	childFD, err := br.ListenUnixSocket(path)
	if err != nil {
		t.Fatalf("ListenUnixSocket: %v", err)
	}
	if childFD != 3 {
		t.Fatalf("Expected child fd 3, got %d", childFD)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Socket was not created: %v", err)
	}

	// Rollback closes the descriptor and unlinks the socket; a second
	// call must be a no-op.
	br.CloseAll()
	br.CloseAll()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Socket was not unlinked on rollback")
	}
}

func TestBrokerSocketPathTooLong(t *testing.T) {
	br := NewBroker()
	defer br.CloseAll()

	long := "/tmp/" + strings.Repeat("x", 120) + ".sock"
	_, err := br.ListenUnixSocket(long)
	if err == nil || !IsResource(err) {
		t.Fatalf("Expected resource error, got %v", err)
	}
}

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
package caps

import (
	"sort"
	"testing"
)

func TestNewAndHas(t *testing.T) {
	c := New(Blockdev, ObjectQAPI)
	if !c.Has(Blockdev) || !c.Has(ObjectQAPI) {
		t.Fatalf("Expected granted flags to be present")
	}
	if c.Has(VirtioTransitional) {
		t.Fatalf("Unexpected flag present")
	}
}

func TestFromNamesIgnoresUnknown(t *testing.T) {
	c := FromNames([]string{"blockdev", "not-a-real-flag", "vnc"})
	if !c.Has(Blockdev) || !c.Has(VNCDisplay) {
		t.Fatalf("Expected known names to be granted")
	}
	if len(c.Names()) != 2 {
		t.Fatalf("Expected 2 flags, got %v", c.Names())
	}
}

func TestNamesSorted(t *testing.T) {
	names := New(VNCDisplay, Audiodev, Blockdev).Names()
	if !sort.StringsAreSorted(names) {
		t.Fatalf("Names not sorted: %v", names)
	}
}

func TestKnownFlag(t *testing.T) {
	if !KnownFlag("blockdev") {
		t.Fatalf("blockdev should be known")
	}
	if KnownFlag("warp-drive") {
		t.Fatalf("warp-drive should not be known")
	}
}

func TestModernHasEverything(t *testing.T) {
	m := Modern()
	for _, f := range AllFlags() {
		if !m.Has(f) {
			t.Fatalf("Modern set missing %q", f)
		}
	}
}

func TestDefaultRAMID(t *testing.T) {
	tests := []struct {
		machineType string
		want        string
	}{
		{"pc-i440fx-7.2", "pc.ram"},
		{"pc-q35-8.2", "pc.ram"},
		{"q35", "pc.ram"},
		{"s390-ccw-virtio", "s390.ram"},
		{"virt-8.2", "mach-virt.ram"},
		{"pseries-7.1", "ppc_spapr.ram"},
		{"unknown-machine", "pc.ram"},
	}
	c := New()
	for _, tc := range tests {
		if got := c.DefaultRAMID(tc.machineType); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.machineType, tc.want, got)
		}
	}
}

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
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func validDef() *VMDef {
	return &VMDef{
		Name:        "testvm",
		MachineType: "pc-q35-8.2",
		Memory:      MemoryDef{SizeKiB: 2097152},
		CPU:         CPUDef{VCPUs: 2},
		Controllers: []ControllerDef{
			{Info: DeviceInfo{Alias: "pcie.0"}, Type: ControllerPCIERoot, Index: 0},
		},
		Disks: []DiskDef{
			{
				Info:       DeviceInfo{Alias: "virtio-disk0", Addr: NewPCIAddress(0, 5)},
				Bus:        DiskBusVirtio,
				DriveAlias: "drive0",
				Source:     &StorageSource{Protocol: ProtocolFile, Path: "/vm/a.qcow2", Format: "qcow2"},
			},
		},
	}
}

func TestParseSizeKiB(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"2GiB", 2097152},
		{"2097152", 2097152},
		{"512MiB", 524288},
		{"1KiB", 1},
	}
	for _, tc := range tests {
		got, err := ParseSizeKiB(tc.in)
		if err != nil {
			t.Fatalf("ParseSizeKiB(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseSizeKiB(%q) = %d, expected %d", tc.in, got, tc.want)
		}
	}

	if _, err := ParseSizeKiB("100B"); err == nil {
		t.Fatalf("Expected sub-KiB size to be rejected")
	}
	if _, err := ParseSizeKiB("lots"); err == nil {
		t.Fatalf("Expected unparseable size to be rejected")
	}
}

func TestValidate(t *testing.T) {
	if err := validDef().Validate(); err != nil {
		t.Fatalf("Valid definition rejected: %v", err)
	}

	noName := validDef()
	noName.Name = ""
	if err := noName.Validate(); err == nil {
		t.Fatalf("Expected missing name to be rejected")
	}

	noMemory := validDef()
	noMemory.Memory.SizeKiB = 0
	if err := noMemory.Validate(); err == nil {
		t.Fatalf("Expected missing memory size to be rejected")
	}

	noSource := validDef()
	noSource.Disks[0].Source = nil
	if err := noSource.Validate(); err == nil {
		t.Fatalf("Expected disk without source to be rejected")
	}

	// A virtio disk is placed on PCI/CCW, never on a drive address.
	badAddr := validDef()
	badAddr.Disks[0].Info.Addr = Address{Kind: AddrDrive, Drive: &DriveAddress{}}
	if err := badAddr.Validate(); err == nil {
		t.Fatalf("Expected virtio disk with drive address to be rejected")
	}

	// Omitting the address entirely leaves bus placement to QEMU.
	if err := (Address{}).Validate(); err != nil {
		t.Fatalf("Zero-value address rejected: %v", err)
	}

	badVsock := validDef()
	badVsock.Vsock = &VsockDef{CID: 2}
	if err := badVsock.Validate(); err == nil {
		t.Fatalf("Expected reserved vsock CID to be rejected")
	}
}

func TestEnsureUUID(t *testing.T) {
	def := validDef()
	if err := def.EnsureUUID(); err != nil {
		t.Fatalf("EnsureUUID: %v", err)
	}
	if _, err := uuid.Parse(def.UUID); err != nil {
		t.Fatalf("Generated UUID %q does not parse: %v", def.UUID, err)
	}

	keep := def.UUID
	if err := def.EnsureUUID(); err != nil {
		t.Fatalf("EnsureUUID on existing UUID: %v", err)
	}
	if def.UUID != keep {
		t.Fatalf("Existing UUID was replaced")
	}

	def.UUID = "not-a-uuid"
	if err := def.EnsureUUID(); err == nil {
		t.Fatalf("Expected malformed UUID to be rejected")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "qargs_vmdef_test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	def := validDef()
	if err := def.EnsureUUID(); err != nil {
		t.Fatalf("EnsureUUID: %v", err)
	}
	path := filepath.Join(dir, "testvm.yaml")
	if err := def.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadDef(path)
	if err != nil {
		t.Fatalf("LoadDef: %v", err)
	}
	if loaded.Name != def.Name || loaded.UUID != def.UUID {
		t.Fatalf("Loaded definition differs: %+v", loaded)
	}
	if loaded.Memory.SizeKiB != def.Memory.SizeKiB {
		t.Fatalf("Memory size did not round trip: %d", loaded.Memory.SizeKiB)
	}
	if len(loaded.Disks) != 1 || loaded.Disks[0].Source.Path != "/vm/a.qcow2" {
		t.Fatalf("Disks did not round trip: %+v", loaded.Disks)
	}
}

func TestLoadDefHumanizedSizes(t *testing.T) {
	dir, err := os.MkdirTemp("", "qargs_vmdef_test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	doc := `name: testvm
machinetype: pc-q35-8.2
memory:
  size: 2GiB
cpu:
  vcpus: 2
videos:
  - info:
      alias: video0
    model: vga
    vram: 16MiB
`
	path := filepath.Join(dir, "testvm.yaml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	def, err := LoadDef(path)
	if err != nil {
		t.Fatalf("LoadDef: %v", err)
	}
	if def.Memory.SizeKiB != 2097152 {
		t.Fatalf("Expected 2GiB to load as 2097152 KiB, got %d", def.Memory.SizeKiB)
	}
	if len(def.Videos) != 1 || def.Videos[0].VRAMKiB != 16384 {
		t.Fatalf("Expected 16MiB vram to load as 16384 KiB, got %+v", def.Videos)
	}
}

func TestLoadDefRejectsInvalid(t *testing.T) {
	dir, err := os.MkdirTemp("", "qargs_vmdef_test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("machinetype: pc-q35-8.2\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadDef(path); err == nil {
		t.Fatalf("Expected nameless definition to be rejected")
	}
}

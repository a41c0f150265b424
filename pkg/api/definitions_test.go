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
package api

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/qemu"
	"github.com/virtforge/qargs/pkg/vmdef"
)

func testController(t *testing.T) (*Controller, func()) {
	dir, err := os.MkdirTemp("", "qargs_api_test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	cfg := &DaemonConfig{
		ConfigDirectory: dir,
		DataDirectory:   dir,
		StateDirectory:  dir,
		DefaultBinary:   "qemu-system-x86_64",
	}
	return NewController(cfg), func() { os.RemoveAll(dir) }
}

func testDefinition(name string) *vmdef.VMDef {
	return &vmdef.VMDef{
		Name:        name,
		MachineType: "pc-q35-8.2",
		Memory:      vmdef.MemoryDef{SizeKiB: 2097152},
		CPU:         vmdef.CPUDef{VCPUs: 2},
		Controllers: []vmdef.ControllerDef{
			{Info: vmdef.DeviceInfo{Alias: "pcie.0"}, Type: vmdef.ControllerPCIERoot, Index: 0},
		},
		Disks: []vmdef.DiskDef{
			{
				Info:       vmdef.DeviceInfo{Alias: "virtio-disk0", Addr: vmdef.NewPCIAddress(0, 5)},
				Bus:        vmdef.DiskBusVirtio,
				DriveAlias: "drive0",
				Source:     &vmdef.StorageSource{Protocol: vmdef.ProtocolFile, Path: "/vm/a.qcow2", Format: "qcow2"},
			},
		},
	}
}

func TestDefinitionLifecycle(t *testing.T) {
	c, cleanup := testController(t)
	defer cleanup()

	if err := c.AddDefinition(testDefinition("vm-b"), false); err != nil {
		t.Fatalf("AddDefinition: %v", err)
	}
	if err := c.AddDefinition(testDefinition("vm-a"), false); err != nil {
		t.Fatalf("AddDefinition: %v", err)
	}

	if err := c.AddDefinition(testDefinition("vm-a"), false); err == nil {
		t.Fatalf("Expected duplicate definition to be rejected")
	}
	if err := c.AddDefinition(testDefinition("vm-a"), true); err != nil {
		t.Fatalf("Update of existing definition failed: %v", err)
	}

	defs := c.GetDefinitions()
	if len(defs) != 2 || defs[0].Name != "vm-a" || defs[1].Name != "vm-b" {
		t.Fatalf("Expected sorted [vm-a vm-b], got %+v", defs)
	}

	def, err := c.GetDefinition("vm-b")
	if err != nil {
		t.Fatalf("GetDefinition: %v", err)
	}
	if def.UUID == "" {
		t.Fatalf("Stored definition has no UUID")
	}

	if err := c.DeleteDefinition("vm-b"); err != nil {
		t.Fatalf("DeleteDefinition: %v", err)
	}
	if _, err := c.GetDefinition("vm-b"); err == nil {
		t.Fatalf("Expected deleted definition to be gone")
	}
	if err := c.DeleteDefinition("vm-b"); err == nil {
		t.Fatalf("Expected double delete to fail")
	}
}

func TestDefinitionsPersist(t *testing.T) {
	c, cleanup := testController(t)
	defer cleanup()

	if err := c.AddDefinition(testDefinition("persisted"), false); err != nil {
		t.Fatalf("AddDefinition: %v", err)
	}

	// A fresh controller over the same directory sees the saved file.
	reloaded := NewController(c.Config)
	if err := reloaded.loadDefinitions(); err != nil {
		t.Fatalf("loadDefinitions: %v", err)
	}
	def, err := reloaded.GetDefinition("persisted")
	if err != nil {
		t.Fatalf("GetDefinition after reload: %v", err)
	}
	if def.Memory.SizeKiB != 2097152 {
		t.Fatalf("Reloaded definition differs: %+v", def)
	}
}

func TestSynthesizeDryRun(t *testing.T) {
	c, cleanup := testController(t)
	defer cleanup()

	// An explicit capability list skips binary probing.
	req := &SynthesizeRequest{
		Definition:   *testDefinition("synthvm"),
		Capabilities: caps.Modern().Names(),
	}

	resp, err := c.synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(resp.Argv) == 0 {
		t.Fatalf("Empty argv")
	}
	if resp.PassedFDs != 0 {
		t.Fatalf("Expected no descriptors for a plain file disk, got %d", resp.PassedFDs)
	}
}

func TestSynthesizeInvalidDefinition(t *testing.T) {
	c, cleanup := testController(t)
	defer cleanup()

	def := testDefinition("badvm")
	def.Memory.SizeKiB = 0
	req := &SynthesizeRequest{Definition: *def, Capabilities: caps.Modern().Names()}

	if _, err := c.synthesize(context.Background(), req); err == nil {
		t.Fatalf("Expected invalid definition to be rejected")
	}
}

func TestSynthStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&qemu.UnsupportedError{Feature: "x"}, http.StatusUnprocessableEntity},
		{&qemu.ResourceError{Op: "open", Path: "/x", Err: os.ErrPermission}, http.StatusBadGateway},
		{&qemu.InternalError{Detail: "x"}, http.StatusInternalServerError},
		{os.ErrInvalid, http.StatusBadRequest},
	}
	for _, tc := range tests {
		if got := synthStatus(tc.err); got != tc.want {
			t.Fatalf("synthStatus(%T) = %d, expected %d", tc.err, got, tc.want)
		}
	}
}

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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/vmdef"
)

// minimalVM is a resolved definition with one virtio disk on the root PCI
// bus, the smallest shape that exercises the storage path end to end.
func minimalVM() *vmdef.VMDef {
	return &vmdef.VMDef{
		Name:        "testvm",
		MachineType: "pc-i440fx-7.2",
		Memory:      vmdef.MemoryDef{SizeKiB: 2097152},
		CPU:         vmdef.CPUDef{VCPUs: 2},
		Controllers: []vmdef.ControllerDef{
			{Info: vmdef.DeviceInfo{Alias: "pci.0"}, Type: vmdef.ControllerPCIRoot, Index: 0},
		},
		Disks: []vmdef.DiskDef{
			{
				Info: vmdef.DeviceInfo{
					Alias: "virtio-disk0",
					Addr:  vmdef.NewPCIAddress(0, 5),
				},
				Bus:        vmdef.DiskBusVirtio,
				DriveAlias: "drive0",
				Source: &vmdef.StorageSource{
					Protocol: vmdef.ProtocolFile,
					Path:     "/tmp/disk.qcow2",
					Format:   "qcow2",
				},
			},
		},
	}
}

// flagValues collects the value tokens following every occurrence of flag.
func flagValues(args []string, flag string) []string {
	var vals []string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			vals = append(vals, args[i+1])
		}
	}
	return vals
}

func hasToken(args []string, token string) bool {
	for _, a := range args {
		if a == token {
			return true
		}
	}
	return false
}

func TestBuildCommandMinimalDisk(t *testing.T) {
	cmd, err := BuildCommand(context.Background(), minimalVM(), caps.New(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"guest=testvm,debug-threads=on"}, flagValues(cmd.Args, "-name"))
	assert.True(t, hasToken(cmd.Args, "-no-user-config"))
	assert.True(t, hasToken(cmd.Args, "-nodefaults"))
	assert.True(t, hasToken(cmd.Args, "-no-shutdown"))
	assert.Equal(t, []string{"pc-i440fx-7.2,accel=kvm,usb=off,dump-guest-core=off"}, flagValues(cmd.Args, "-machine"))
	assert.Equal(t, []string{"2048"}, flagValues(cmd.Args, "-m"))
	assert.Equal(t, []string{"2"}, flagValues(cmd.Args, "-smp"))
	assert.Equal(t, []string{"base=utc"}, flagValues(cmd.Args, "-rtc"))

	// The root bus controller is provided by the machine type and emits
	// no device of its own.
	assert.Equal(t,
		[]string{"virtio-blk-pci,bus=pci.0,addr=0x5,drive=drive0,id=virtio-disk0"},
		flagValues(cmd.Args, "-device"))
	assert.Equal(t,
		[]string{"file=/tmp/disk.qcow2,format=qcow2,if=none,id=drive0"},
		flagValues(cmd.Args, "-drive"))

	assert.Empty(t, cmd.FDs)
	assert.Empty(t, cmd.Env)
	assert.Zero(t, cmd.ClockBasisSec)
}

func TestBuildCommandAddFDPairsFDSets(t *testing.T) {
	dir, err := os.MkdirTemp("", "qargs_command_test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	vm := minimalVM()
	vm.Serials = []vmdef.ChardevDef{
		{
			Info:         vmdef.DeviceInfo{Alias: "serial0"},
			Backend:      vmdef.ChardevPTY,
			Target:       vmdef.TargetISASerial,
			ChardevAlias: "charserial0",
			LogFile:      filepath.Join(dir, "serial0.log"),
		},
	}

	br := NewBroker()
	cmd, err := BuildCommand(context.Background(), vm, caps.New(), br)
	require.NoError(t, err)
	defer br.CloseAll()

	assert.Contains(t, flagValues(cmd.Args, "-chardev"),
		"pty,id=charserial0,logfile=/dev/fdset/1,logappend=off")
	// The fdset reference is useless without the descriptor attached to it.
	assert.Equal(t, []string{"fd=3,set=1"}, flagValues(cmd.Args, "-add-fd"))
	require.Len(t, cmd.FDs, 1)
	assert.Equal(t, 3, cmd.FDs[0].ChildFD)
}

func TestBuildCommandDeterministic(t *testing.T) {
	first, err := BuildCommand(context.Background(), minimalVM(), caps.New(), nil)
	require.NoError(t, err)
	second, err := BuildCommand(context.Background(), minimalVM(), caps.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, first.Args, second.Args)
}

func TestBuildCommandMissingController(t *testing.T) {
	vm := minimalVM()
	vm.Controllers = nil

	_, err := BuildCommand(context.Background(), vm, caps.New(), nil)
	require.Error(t, err)
	assert.True(t, IsInternal(err))
	assert.Contains(t, err.Error(), "no controller provides PCI bus 0")
}

func TestBuildCommandNonTransitionalUnsupported(t *testing.T) {
	vm := minimalVM()
	vm.Disks[0].Variant = vmdef.VirtioNonTransitional

	_, err := BuildCommand(context.Background(), vm, caps.New(), nil)
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
	assert.Contains(t, err.Error(), "virtio non-transitional model not supported")
}

func TestBuildCommandSharedMemoryBackend(t *testing.T) {
	vm := minimalVM()
	vm.Memory.Shared = true

	cmd, err := BuildCommand(context.Background(), vm, caps.Modern(), nil)
	require.NoError(t, err)

	// 2097152 KiB must appear as bytes in the backend object, bound to
	// the machine type's implicit RAM id.
	objs := flagValues(cmd.Args, "-object")
	require.NotEmpty(t, objs)
	assert.Contains(t, objs,
		`{"qom-type":"memory-backend-memfd","id":"pc.ram","size":2147483648,"share":true}`)
	assert.Contains(t, flagValues(cmd.Args, "-machine")[0], "memory-backend=pc.ram")
}

func TestBuildCommandLegacyFileMemory(t *testing.T) {
	vm := minimalVM()
	vm.Memory.Source = vmdef.MemSourceFile
	vm.Memory.HugepagePath = "/dev/hugepages"
	vm.Memory.Prealloc = true

	// A binary that knows file backends but cannot bind one to the
	// machine falls back to the legacy flags.
	cmd, err := BuildCommand(context.Background(), vm, caps.New(caps.MemoryBackendFile), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"/dev/hugepages"}, flagValues(cmd.Args, "-mem-path"))
	assert.True(t, hasToken(cmd.Args, "-mem-prealloc"))
	assert.Empty(t, flagValues(cmd.Args, "-object"))
}

func TestBuildCommandVGAMemory(t *testing.T) {
	vm := minimalVM()
	vm.Videos = []vmdef.VideoDef{
		{
			Info:    vmdef.DeviceInfo{Alias: "video0", Addr: vmdef.NewPCIAddress(0, 2)},
			Model:   "vga",
			VRAMKiB: 65536,
		},
	}

	cmd, err := BuildCommand(context.Background(), vm, caps.New(), nil)
	require.NoError(t, err)
	assert.Contains(t, flagValues(cmd.Args, "-device"),
		"VGA,vgamem_mb=64,id=video0,bus=pci.0,addr=0x2")
}

func TestBuildCommandVariableClock(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return fixed }
	defer func() { timeNow = time.Now }()

	vm := minimalVM()
	vm.Clock = vmdef.ClockDef{Offset: vmdef.ClockVariable, AdjustmentSec: 3600}

	cmd, err := BuildCommand(context.Background(), vm, caps.New(), nil)
	require.NoError(t, err)

	assert.Equal(t, fixed.Unix()+3600, cmd.ClockBasisSec)
	assert.Equal(t, []string{"base=2024-03-01T13:00:00"}, flagValues(cmd.Args, "-rtc"))
}

func TestBuildCommandCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildCommand(ctx, minimalVM(), caps.New(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildCommandAudioEnv(t *testing.T) {
	vm := minimalVM()
	vm.Audio = &vmdef.AudioDef{Backend: vmdef.AudioPulse, ServerName: "/run/user/1000/pulse/native"}

	// Without -audiodev support the driver choice travels in the
	// environment instead of the argument list.
	cmd, err := BuildCommand(context.Background(), vm, caps.New(), nil)
	require.NoError(t, err)
	assert.Empty(t, flagValues(cmd.Args, "-audiodev"))
	assert.Contains(t, cmd.Env, EnvVar{Name: "QEMU_AUDIO_DRV", Value: "pa"})
	assert.Contains(t, cmd.Env, EnvVar{Name: "QEMU_PA_SERVER", Value: "/run/user/1000/pulse/native"})

	modern, err := BuildCommand(context.Background(), vm, caps.Modern(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pa,id=audio0,server=/run/user/1000/pulse/native"},
		flagValues(modern.Args, "-audiodev"))
	assert.Empty(t, modern.Env)
}

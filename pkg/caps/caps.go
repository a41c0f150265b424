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

// Package caps models what a particular emulator binary can do. Command
// generation never inspects the binary itself; it is handed an immutable
// Caps value and keys every syntax alternation off it.
package caps

import (
	"sort"
	"strings"
)

// Flag names one boolean capability of the target binary.
type Flag string

const (
	// Blockdev selects the modern per-node -blockdev storage attachment
	// over the legacy single -drive locator.
	Blockdev Flag = "blockdev"

	// ObjectQAPI selects structured JSON arguments for -object.
	ObjectQAPI Flag = "object-qapi"

	// VirtioTransitional means the binary ships the explicit
	// -transitional / -non-transitional device model names.
	VirtioTransitional Flag = "virtio-transitional"

	// VirtioDisableLegacy means virtio devices accept the
	// disable-legacy/disable-modern sub-options.
	VirtioDisableLegacy Flag = "virtio-disable-legacy"

	// MemoryBackendFile / MemoryBackendMemfd gate the memory backend
	// object types; MemfdHugetlb gates hugetlb=on for memfd.
	MemoryBackendFile  Flag = "memory-backend-file"
	MemoryBackendMemfd Flag = "memory-backend-memfd"
	MemfdHugetlb       Flag = "memfd-hugetlb"

	// MachineMemoryBackend allows binding the default RAM backend via
	// -machine memory-backend= instead of a NUMA node memdev.
	MachineMemoryBackend Flag = "machine-memory-backend"

	// Audiodev selects -audiodev fragments over the QEMU_AUDIO_DRV
	// environment variable.
	Audiodev Flag = "audiodev"

	// SecretMasterKey enables the AES master-key secret object.
	SecretMasterKey Flag = "secret-masterkey"

	// TLSCredsX509, SecretObject and PRManagerHelper gate the backend
	// objects of the storage attachment chain.
	TLSCredsX509    Flag = "tls-creds-x509"
	SecretObject    Flag = "secret-object"
	PRManagerHelper Flag = "pr-manager-helper"

	// BootStrict enables -boot strict=on.
	BootStrict Flag = "boot-strict"

	// BootindexDevice means devices accept bootindex= directly.
	BootindexDevice Flag = "bootindex-device"

	// FWCfgFile enables -fw_cfg name=,file= injection.
	FWCfgFile Flag = "fw-cfg-file"

	// SMBiosType1 enables -smbios type=1 system strings.
	SMBiosType1 Flag = "smbios-type1"

	// IOThreads enables -object iothread and iothread= bindings.
	IOThreads Flag = "iothreads"

	// NUMAMemdev requires NUMA nodes to use memdev= backends instead of
	// the removed mem= shorthand.
	NUMAMemdev Flag = "numa-memdev"

	// VhostUser gates vhost-user netdev/fs backends.
	VhostUser Flag = "vhost-user"

	// VhostUserFS gates the vhost-user-fs device.
	VhostUserFS Flag = "vhost-user-fs"

	// TPMEmulator / TPMPassthrough gate the TPM backend flavors.
	TPMEmulator    Flag = "tpm-emulator"
	TPMPassthrough Flag = "tpm-passthrough"

	// Sandbox enables the -sandbox seccomp argument.
	Sandbox Flag = "sandbox"

	// PVPanic/PVPanicPCI gate the panic notifier device models.
	PVPanic    Flag = "pvpanic"
	PVPanicPCI Flag = "pvpanic-pci"

	// VMCoreInfo enables the -device vmcoreinfo fragment.
	VMCoreInfo Flag = "vmcoreinfo"

	// SEVGuest enables sev-guest launch security objects.
	SEVGuest Flag = "sev-guest"

	// VhostVsock enables the vhost-vsock device.
	VhostVsock Flag = "vhost-vsock"

	// EventIdx means virtio devices accept event_idx=.
	EventIdx Flag = "event-idx"

	// DiskThrottling gates the throttling.* -device sub-options.
	DiskThrottling Flag = "disk-throttling"

	// RotationRate gates the rotation_rate= scsi/ide sub-option.
	RotationRate Flag = "rotation-rate"

	// NoHPET gates the -no-hpet shorthand (x86 only historically).
	NoHPET Flag = "no-hpet"

	// OvercommitMemLock selects -overcommit mem-lock over -realtime.
	OvercommitMemLock Flag = "overcommit-mem-lock"

	// NetdevUser means the binary was built with slirp support.
	NetdevUser Flag = "netdev-user"

	// DisplayEGLHeadless, SpiceDisplay and VNCDisplay gate graphics
	// frontends.
	DisplayEGLHeadless Flag = "display-egl-headless"
	SpiceDisplay       Flag = "spice"
	VNCDisplay         Flag = "vnc"
)

// allFlags is the closed set of known flags, rendered by the CLI and the
// REST service. Keep sorted by name for deterministic listings.
var allFlags = []Flag{
	Audiodev,
	Blockdev,
	BootStrict,
	BootindexDevice,
	DiskThrottling,
	DisplayEGLHeadless,
	EventIdx,
	FWCfgFile,
	IOThreads,
	MachineMemoryBackend,
	MemfdHugetlb,
	MemoryBackendFile,
	MemoryBackendMemfd,
	NUMAMemdev,
	NetdevUser,
	NoHPET,
	ObjectQAPI,
	OvercommitMemLock,
	PRManagerHelper,
	PVPanic,
	PVPanicPCI,
	RotationRate,
	SEVGuest,
	SMBiosType1,
	Sandbox,
	SecretMasterKey,
	SecretObject,
	SpiceDisplay,
	TLSCredsX509,
	TPMEmulator,
	TPMPassthrough,
	VMCoreInfo,
	VNCDisplay,
	VhostUser,
	VhostUserFS,
	VhostVsock,
	VirtioDisableLegacy,
	VirtioTransitional,
}

// AllFlags returns the closed set of known capability flags, sorted.
func AllFlags() []Flag {
	out := make([]Flag, len(allFlags))
	copy(out, allFlags)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// KnownFlag reports whether name is a defined capability flag.
func KnownFlag(name string) bool {
	for _, f := range allFlags {
		if string(f) == name {
			return true
		}
	}
	return false
}

// Caps is an immutable set of capability flags.
type Caps struct {
	flags map[Flag]bool
}

// New builds a capability set from the given flags.
func New(flags ...Flag) Caps {
	m := make(map[Flag]bool, len(flags))
	for _, f := range flags {
		m[f] = true
	}
	return Caps{flags: m}
}

// FromNames builds a capability set from flag name strings, ignoring
// unknown names.
func FromNames(names []string) Caps {
	var flags []Flag
	for _, n := range names {
		if KnownFlag(n) {
			flags = append(flags, Flag(n))
		}
	}
	return New(flags...)
}

// Has reports whether the binary supports the flag.
func (c Caps) Has(f Flag) bool {
	return c.flags[f]
}

// Names returns the set's flag names, sorted.
func (c Caps) Names() []string {
	names := make([]string, 0, len(c.flags))
	for f := range c.flags {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// Modern returns a capability set representing a current binary; useful as
// a default for tooling and tests.
func Modern() Caps {
	return New(allFlags...)
}

// DefaultRAMID answers the machine type's implicit RAM object id, needed
// when the main guest memory is replaced by an explicit backend object.
func (c Caps) DefaultRAMID(machineType string) string {
	switch {
	case strings.HasPrefix(machineType, "pc-q35"), strings.HasPrefix(machineType, "q35"):
		return "pc.ram"
	case strings.HasPrefix(machineType, "pc"):
		return "pc.ram"
	case strings.HasPrefix(machineType, "s390"):
		return "s390.ram"
	case strings.HasPrefix(machineType, "virt"):
		return "mach-virt.ram"
	case strings.HasPrefix(machineType, "pseries"):
		return "ppc_spapr.ram"
	}
	return "pc.ram"
}

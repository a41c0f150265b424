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

// Package vmdef holds the virtual machine definition model consumed by
// command generation. A definition arrives fully resolved: validation,
// address allocation and alias assignment have already run, so every device
// carries its bus address and unique alias.
package vmdef

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// MemorySource selects how guest RAM is backed on the host.
type MemorySource string

const (
	// MemSourceAuto lets command generation pick the backend from the
	// requested features and the binary's capabilities.
	MemSourceAuto      MemorySource = ""
	MemSourceAnonymous MemorySource = "anonymous"
	MemSourceFile      MemorySource = "file"
	MemSourceMemfd     MemorySource = "memfd"
)

// MemoryDef is the memory topology. All sizes are KiB; definition files may
// also spell them as humanized strings ("2GiB").
type MemoryDef struct {
	SizeKiB SizeKiB `yaml:"size"`
	MaxKiB  SizeKiB `yaml:"max,omitempty"`
	Slots   uint    `yaml:"slots,omitempty"`

	Source          MemorySource `yaml:"source,omitempty"`
	HugepageSizeKiB SizeKiB      `yaml:"hugepagesize,omitempty"`
	HugepagePath    string       `yaml:"hugepagepath,omitempty"`
	Shared          bool         `yaml:"shared,omitempty"`
	Prealloc        bool         `yaml:"prealloc,omitempty"`
	Discard         bool         `yaml:"discard,omitempty"`
	Locked          bool         `yaml:"locked,omitempty"`
	NosharePages    bool         `yaml:"nosharepages,omitempty"`
}

// CPUFlagPolicy is the per-feature-flag policy for the cpu model.
type CPUFlagPolicy string

const (
	FlagRequire CPUFlagPolicy = "require"
	FlagDisable CPUFlagPolicy = "disable"
)

// CPUFlag is one named cpu feature with its policy.
type CPUFlag struct {
	Name   string        `yaml:"name"`
	Policy CPUFlagPolicy `yaml:"policy"`
}

// CPUDef is the virtual cpu model and topology.
type CPUDef struct {
	Model   string    `yaml:"model,omitempty"` // empty means hypervisor default
	Flags   []CPUFlag `yaml:"flags,omitempty"`
	Sockets uint      `yaml:"sockets,omitempty"`
	Dies    uint      `yaml:"dies,omitempty"`
	Cores   uint      `yaml:"cores,omitempty"`
	Threads uint      `yaml:"threads,omitempty"`
	VCPUs   uint      `yaml:"vcpus"`
	MaxCPUs uint      `yaml:"maxcpus,omitempty"`
}

// NUMACell is one guest NUMA node. CPUSet uses the usual list syntax
// ("0-3,8").
type NUMACell struct {
	ID        uint    `yaml:"id"`
	CPUSet    string  `yaml:"cpuset"`
	MemKiB    SizeKiB `yaml:"mem"`
	MemAccess string  `yaml:"memaccess,omitempty"` // shared, private
	Discard   *bool   `yaml:"discard,omitempty"`
}

// IOThreadDef names one I/O thread devices can bind to.
type IOThreadDef struct {
	ID string `yaml:"id"`
}

// FirmwareDef points at pflash code/vars images.
type FirmwareDef struct {
	CodePath string `yaml:"code,omitempty"`
	VarsPath string `yaml:"vars,omitempty"`
	Secure   bool   `yaml:"secure,omitempty"`
}

// BootDef is boot ordering and direct kernel boot configuration.
type BootDef struct {
	// Devices is the legacy -boot order string (e.g. "cdn"); per-device
	// bootindex attributes are preferred when the definition carries them.
	Devices  string       `yaml:"devices,omitempty"`
	Menu     *bool        `yaml:"menu,omitempty"`
	Strict   bool         `yaml:"strict,omitempty"`
	Kernel   string       `yaml:"kernel,omitempty"`
	Initrd   string       `yaml:"initrd,omitempty"`
	Cmdline  string       `yaml:"cmdline,omitempty"`
	Firmware *FirmwareDef `yaml:"firmware,omitempty"`
}

// ClockOffset is the guest RTC time basis.
type ClockOffset string

const (
	ClockUTC       ClockOffset = "utc"
	ClockLocaltime ClockOffset = "localtime"
	ClockVariable  ClockOffset = "variable"
)

// TimerDef tunes one platform timer.
type TimerDef struct {
	Name       string `yaml:"name"` // rtc, pit, hpet, kvmclock
	Present    *bool  `yaml:"present,omitempty"`
	TickPolicy string `yaml:"tickpolicy,omitempty"` // delay, catchup, discard
}

// ClockDef is guest time configuration. For the variable offset the
// adjustment is relative to UTC; command generation converts it to an
// absolute basis and reports the value alongside the command rather than
// rewriting the definition.
type ClockDef struct {
	Offset        ClockOffset `yaml:"offset,omitempty"`
	AdjustmentSec int64       `yaml:"adjustment,omitempty"`
	Timers        []TimerDef  `yaml:"timers,omitempty"`
}

// FeaturesDef is the grab bag of platform feature toggles.
type FeaturesDef struct {
	ACPI          bool  `yaml:"acpi,omitempty"`
	APIC          bool  `yaml:"apic,omitempty"`
	HPET          bool  `yaml:"hpet,omitempty"`
	PMSuspendMem  bool  `yaml:"suspendmem,omitempty"`
	PMSuspendDisk bool  `yaml:"suspenddisk,omitempty"`
	VMPort        *bool `yaml:"vmport,omitempty"`
}

// SandboxDef is the seccomp sandbox policy for the emulator process.
type SandboxDef struct {
	Enable             bool   `yaml:"enable"`
	ElevatedPrivileges *bool  `yaml:"elevatedprivileges,omitempty"`
	SpawnDeny          bool   `yaml:"spawndeny,omitempty"`
	ResourceControl    string `yaml:"resourcecontrol,omitempty"`
}

// IncomingDef marks a definition being restored via migration.
type IncomingDef struct {
	Defer bool   `yaml:"defer,omitempty"`
	URI   string `yaml:"uri,omitempty"`
}

// VMDef is the root of a fully resolved machine definition. Command
// generation treats the whole structure as read-only.
type VMDef struct {
	Name string `yaml:"name"`
	UUID string `yaml:"uuid,omitempty"`
	Arch string `yaml:"arch,omitempty"` // x86_64, aarch64, s390x, ppc64

	MachineType    string `yaml:"machinetype"` // pc-q35-8.2, s390-ccw-virtio, ...
	MachineOptions string `yaml:"machineoptions,omitempty"`

	Memory    MemoryDef     `yaml:"memory"`
	CPU       CPUDef        `yaml:"cpu"`
	NUMA      []NUMACell    `yaml:"numa,omitempty"`
	IOThreads []IOThreadDef `yaml:"iothreads,omitempty"`

	Boot     BootDef      `yaml:"boot,omitempty"`
	Clock    ClockDef     `yaml:"clock,omitempty"`
	Features FeaturesDef  `yaml:"features,omitempty"`
	SMBIOS   *SmbiosDef   `yaml:"smbios,omitempty"`
	FWCfgs   []FWCfgDef   `yaml:"fwcfg,omitempty"`
	Sandbox  *SandboxDef  `yaml:"sandbox,omitempty"`
	Incoming *IncomingDef `yaml:"incoming,omitempty"`

	Controllers []ControllerDef `yaml:"controllers,omitempty"`
	Disks       []DiskDef       `yaml:"disks,omitempty"`
	Filesystems []FilesystemDef `yaml:"filesystems,omitempty"`
	Nics        []NicDef        `yaml:"nics,omitempty"`
	Serials     []ChardevDef    `yaml:"serials,omitempty"`
	Parallels   []ChardevDef    `yaml:"parallels,omitempty"`
	Channels    []ChardevDef    `yaml:"channels,omitempty"`
	Consoles    []ChardevDef    `yaml:"consoles,omitempty"`
	TPMs        []TPMDef        `yaml:"tpms,omitempty"`
	Inputs      []InputDef      `yaml:"inputs,omitempty"`
	Graphics    []GraphicsDef   `yaml:"graphics,omitempty"`
	Videos      []VideoDef      `yaml:"videos,omitempty"`
	Sounds      []SoundDef      `yaml:"sounds,omitempty"`
	Audio       *AudioDef       `yaml:"audio,omitempty"`
	Watchdogs   []WatchdogDef   `yaml:"watchdogs,omitempty"`
	Redirdevs   []RedirdevDef   `yaml:"redirdevs,omitempty"`
	Hostdevs    []HostdevDef    `yaml:"hostdevs,omitempty"`
	Balloon     *BalloonDef     `yaml:"balloon,omitempty"`
	RNGs        []RNGDef        `yaml:"rngs,omitempty"`
	NVRAM       *NVRAMDef       `yaml:"nvram,omitempty"`
	Panics      []PanicDef      `yaml:"panics,omitempty"`
	Shmems      []ShmemDef      `yaml:"shmems,omitempty"`
	Vsock       *VsockDef       `yaml:"vsock,omitempty"`

	LaunchSecurity *LaunchSecurityDef `yaml:"launchsecurity,omitempty"`
	VMCoreInfo     bool               `yaml:"vmcoreinfo,omitempty"`

	// FreezeOnStart requests -S so the vcpus stay paused until resumed
	// over the control monitor.
	FreezeOnStart bool `yaml:"freezeonstart,omitempty"`

	// MasterKeyFile is the AES master-key secret file prepared by the
	// launcher; inline secrets are wrapped under it when the binary
	// supports the master-key object.
	MasterKeyFile string `yaml:"masterkeyfile,omitempty"`
}

// LoadDef reads a definition from a YAML file.
func LoadDef(path string) (*VMDef, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed reading VM definition %q", path)
	}
	var v VMDef
	if err := yaml.Unmarshal(contents, &v); err != nil {
		return nil, errors.Wrapf(err, "Failed parsing VM definition %q", path)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

// Save writes the definition to a YAML file.
func (v *VMDef) Save(path string) error {
	contents, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "Failed marshalling VM definition %q", v.Name)
	}
	if err := os.WriteFile(path, contents, 0644); err != nil {
		return errors.Wrapf(err, "Failed writing VM definition to %q", path)
	}
	return nil
}

// EnsureUUID fills in a random UUID when the definition has none and
// rejects malformed ones.
func (v *VMDef) EnsureUUID() error {
	if v.UUID == "" {
		v.UUID = uuid.New().String()
		return nil
	}
	if _, err := uuid.Parse(v.UUID); err != nil {
		return errors.Wrapf(err, "Invalid UUID %q for machine %q", v.UUID, v.Name)
	}
	return nil
}

// PCIControllerByIndex returns the controller providing PCI bus index. This
// is the lookup device address formatting uses to resolve bus= aliases.
func (v *VMDef) PCIControllerByIndex(index uint) *ControllerDef {
	for i := range v.Controllers {
		c := &v.Controllers[i]
		switch c.Type {
		case ControllerPCIRoot, ControllerPCIERoot, ControllerPCIBridge, ControllerPCIERootPort:
			if c.Index == index {
				return c
			}
		}
	}
	return nil
}

// ControllerByTypeIndex returns the controller of the given family with the
// given index, or nil.
func (v *VMDef) ControllerByTypeIndex(ctype ControllerType, index uint) *ControllerDef {
	for i := range v.Controllers {
		c := &v.Controllers[i]
		if c.Type == ctype && c.Index == index {
			return c
		}
	}
	return nil
}

// addressKindAllowed lists the address kinds each disk bus accepts; other
// device kinds validate in Validate directly.
var diskBusAddressKinds = map[DiskBus][]AddressKind{
	DiskBusVirtio: {AddrPCI, AddrCCW, AddrVirtioMMIO, AddrNone},
	DiskBusSCSI:   {AddrDrive, AddrNone},
	DiskBusSATA:   {AddrDrive, AddrNone},
	DiskBusIDE:    {AddrDrive, AddrNone},
	DiskBusUSB:    {AddrUSB, AddrNone},
	DiskBusFDC:    {AddrDrive, AddrNone},
}

func kindAllowed(kind AddressKind, allowed []AddressKind) bool {
	for _, k := range allowed {
		if k == kind {
			return true
		}
	}
	return false
}

// Validate checks structural consistency of the definition: address
// payloads match their kind and device kinds carry compatible address
// kinds. Mismatches are construction-time errors.
func (v *VMDef) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("VM definition has no name")
	}
	if v.Memory.SizeKiB == 0 {
		return fmt.Errorf("VM %q has no memory size", v.Name)
	}
	for i := range v.Disks {
		d := &v.Disks[i]
		if err := d.Info.Addr.Validate(); err != nil {
			return errors.Wrapf(err, "disk %q", d.Info.Alias)
		}
		allowed, ok := diskBusAddressKinds[d.Bus]
		if !ok {
			return fmt.Errorf("disk %q has unknown bus %q", d.Info.Alias, d.Bus)
		}
		if !kindAllowed(d.Info.Addr.Kind, allowed) {
			return fmt.Errorf("disk %q: address kind %q not usable with bus %q",
				d.Info.Alias, d.Info.Addr.Kind, d.Bus)
		}
		if d.Source == nil {
			return fmt.Errorf("disk %q has no source", d.Info.Alias)
		}
	}
	for i := range v.Controllers {
		c := &v.Controllers[i]
		if err := c.Info.Addr.Validate(); err != nil {
			return errors.Wrapf(err, "controller %q", c.Info.Alias)
		}
	}
	for i := range v.Nics {
		n := &v.Nics[i]
		if err := n.Info.Addr.Validate(); err != nil {
			return errors.Wrapf(err, "nic %q", n.Info.Alias)
		}
	}
	if v.Vsock != nil {
		if v.Vsock.CID < 3 {
			return fmt.Errorf("vsock guest CID %d is reserved", v.Vsock.CID)
		}
	}
	return nil
}

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

// VirtioVariant selects between the plain, transitional and
// non-transitional flavors of a virtio device model.
type VirtioVariant string

const (
	VirtioDefault         VirtioVariant = ""
	VirtioTransitional    VirtioVariant = "transitional"
	VirtioNonTransitional VirtioVariant = "non-transitional"
)

// ControllerType is the controller family.
type ControllerType string

const (
	ControllerPCIRoot      ControllerType = "pci-root"
	ControllerPCIERoot     ControllerType = "pcie-root"
	ControllerPCIBridge    ControllerType = "pci-bridge"
	ControllerPCIERootPort ControllerType = "pcie-root-port"
	ControllerSATA         ControllerType = "sata"
	ControllerSCSI         ControllerType = "scsi"
	ControllerIDE          ControllerType = "ide"
	ControllerUSB          ControllerType = "usb"
	ControllerVirtioSerial ControllerType = "virtio-serial"
)

// ControllerDef describes a bus controller. Index is the bus number devices
// reference from their addresses; devices attached to bus N resolve the
// alias of the controller whose Index is N.
type ControllerDef struct {
	Info    DeviceInfo     `yaml:"info,omitempty"`
	Type    ControllerType `yaml:"type"`
	Index   uint           `yaml:"index"`
	Model   string         `yaml:"model,omitempty"`
	Variant VirtioVariant  `yaml:"variant,omitempty"`

	// Queues, IOThread and Ports apply to scsi/virtio-serial models only.
	Queues   uint   `yaml:"queues,omitempty"`
	IOThread string `yaml:"iothread,omitempty"`
	Ports    uint   `yaml:"ports,omitempty"`

	// Chassis and Port apply to pcie-root-port.
	Chassis uint `yaml:"chassis,omitempty"`
	Port    uint `yaml:"port,omitempty"`
}

// DiskBus is the bus family a disk device attaches to.
type DiskBus string

const (
	DiskBusVirtio DiskBus = "virtio"
	DiskBusSCSI   DiskBus = "scsi"
	DiskBusSATA   DiskBus = "sata"
	DiskBusIDE    DiskBus = "ide"
	DiskBusUSB    DiskBus = "usb"
	DiskBusFDC    DiskBus = "fdc"
)

// DiskDevice distinguishes disks, cdroms and raw LUN passthrough.
type DiskDevice string

const (
	DiskDeviceDisk  DiskDevice = "disk"
	DiskDeviceCDROM DiskDevice = "cdrom"
	DiskDeviceLUN   DiskDevice = "lun"
)

// CacheMode is the host-side caching policy for a disk.
type CacheMode string

const (
	CacheDefault      CacheMode = ""
	CacheNone         CacheMode = "none"
	CacheWriteThrough CacheMode = "writethrough"
	CacheWriteBack    CacheMode = "writeback"
	CacheDirectSync   CacheMode = "directsync"
	CacheUnsafe       CacheMode = "unsafe"
)

// StorageProtocol identifies how a disk source is reached.
type StorageProtocol string

const (
	ProtocolFile  StorageProtocol = "file"
	ProtocolBlock StorageProtocol = "block"
	ProtocolNBD   StorageProtocol = "nbd"
	ProtocolRBD   StorageProtocol = "rbd"
	ProtocolISCSI StorageProtocol = "iscsi"
	ProtocolHTTP  StorageProtocol = "http"
	ProtocolHTTPS StorageProtocol = "https"
	ProtocolSSH   StorageProtocol = "ssh"
)

// HostPort is a remote storage server endpoint.
type HostPort struct {
	Host string `yaml:"host"`
	Port uint   `yaml:"port,omitempty"`
}

// SecretRef names a secret held by the external secret store, to be
// materialized as a secret object on the command line.
type SecretRef struct {
	Alias string `yaml:"alias"`
	// Data is the base64 payload handed to the secret object; production
	// callers keep it AES-wrapped under the master key, with the
	// initialization vector in IV.
	Data string `yaml:"data,omitempty"`
	IV   string `yaml:"iv,omitempty"`
	// Path points at a file-backed secret instead of inline data.
	Path string `yaml:"path,omitempty"`
}

// EncryptionSpec describes LUKS encryption of a storage source.
type EncryptionSpec struct {
	Format string    `yaml:"format"` // "luks"
	Secret SecretRef `yaml:"secret"`
}

// TLSSpec describes the x509 credentials protecting a remote source
// connection.
type TLSSpec struct {
	CredsDir  string     `yaml:"credsdir"`
	Hostname  string     `yaml:"hostname,omitempty"`
	KeySecret *SecretRef `yaml:"keysecret,omitempty"`
}

// StorageSource locates one layer of a disk image chain. BackingStore links
// to the next layer down; the chain is attached innermost first.
type StorageSource struct {
	Protocol StorageProtocol `yaml:"protocol"`
	Path     string          `yaml:"path,omitempty"`
	Format   string          `yaml:"format,omitempty"` // raw, qcow2, luks
	NodeName string          `yaml:"nodename,omitempty"`
	ReadOnly bool            `yaml:"readonly,omitempty"`

	// Remote protocol attributes.
	Hosts        []HostPort `yaml:"hosts,omitempty"`
	ExportName   string     `yaml:"export,omitempty"` // nbd export, rbd image
	Pool         string     `yaml:"pool,omitempty"`
	URL          string     `yaml:"url,omitempty"`
	SSHUser      string     `yaml:"sshuser,omitempty"`
	Auth         *SecretRef `yaml:"auth,omitempty"`
	CookieSecret *SecretRef `yaml:"cookiesecret,omitempty"`
	TLS          *TLSSpec   `yaml:"tls,omitempty"`

	Encryption *EncryptionSpec `yaml:"encryption,omitempty"`

	// PRManagerPath is the unix socket of a persistent-reservation helper.
	PRManagerPath string `yaml:"prmanager,omitempty"`

	BackingStore *StorageSource `yaml:"backing,omitempty"`
}

// ThrottleLimits is the per-disk I/O throttling configuration. All values
// are optional; zero means unlimited.
type ThrottleLimits struct {
	TotalBytesSec uint64 `yaml:"total_bytes_sec,omitempty"`
	ReadBytesSec  uint64 `yaml:"read_bytes_sec,omitempty"`
	WriteBytesSec uint64 `yaml:"write_bytes_sec,omitempty"`
	TotalIopsSec  uint64 `yaml:"total_iops_sec,omitempty"`
	ReadIopsSec   uint64 `yaml:"read_iops_sec,omitempty"`
	WriteIopsSec  uint64 `yaml:"write_iops_sec,omitempty"`
}

// DiskDef describes one guest disk.
type DiskDef struct {
	Info   DeviceInfo `yaml:"info,omitempty"`
	Bus    DiskBus    `yaml:"bus"`
	Device DiskDevice `yaml:"device,omitempty"`

	// DriveAlias names the backend (-drive id= or -blockdev node-name=)
	// the device fragment references. Assigned by the alias assigner.
	DriveAlias string `yaml:"drivealias,omitempty"`

	Source *StorageSource `yaml:"source"`

	Variant      VirtioVariant   `yaml:"variant,omitempty"`
	Cache        CacheMode       `yaml:"cache,omitempty"`
	Discard      string          `yaml:"discard,omitempty"`       // unmap, ignore
	DetectZeroes string          `yaml:"detectzeroes,omitempty"`  // on, off, unmap
	ErrorPolicy  string          `yaml:"errorpolicy,omitempty"`   // stop, report, ignore, enospace
	Serial       string          `yaml:"serial,omitempty"`
	WWN          string          `yaml:"wwn,omitempty"`
	ReadOnly     bool            `yaml:"readonly,omitempty"`
	Shareable    bool            `yaml:"shareable,omitempty"`
	RotationRate uint            `yaml:"rotationrate,omitempty"`
	IOThread     string          `yaml:"iothread,omitempty"`
	Queues       uint            `yaml:"queues,omitempty"`
	EventIDX     *bool           `yaml:"eventidx,omitempty"`
	Throttle     *ThrottleLimits `yaml:"throttle,omitempty"`
}

// NetBackend is the host side of a network interface.
type NetBackend string

const (
	NetBackendUser      NetBackend = "user"
	NetBackendTap       NetBackend = "tap"
	NetBackendBridge    NetBackend = "bridge"
	NetBackendVhostUser NetBackend = "vhostuser"
)

// NicDef describes one guest network interface.
type NicDef struct {
	Info    DeviceInfo `yaml:"info,omitempty"`
	Backend NetBackend `yaml:"backend"`

	// Model is the guest device model: virtio, e1000e, rtl8139, ...
	Model   string        `yaml:"model"`
	Variant VirtioVariant `yaml:"variant,omitempty"`
	MAC     string        `yaml:"mac,omitempty"`

	// NetdevAlias names the -netdev the device fragment references.
	NetdevAlias string `yaml:"netdevalias,omitempty"`

	IFName     string `yaml:"ifname,omitempty"`
	Bridge     string `yaml:"bridge,omitempty"`
	Script     string `yaml:"script,omitempty"`
	DownScript string `yaml:"downscript,omitempty"`
	// SocketPath is the vhost-user control socket.
	SocketPath string `yaml:"socketpath,omitempty"`
	Queues     uint   `yaml:"queues,omitempty"`
	MTU        uint   `yaml:"mtu,omitempty"`
	Vhost      bool   `yaml:"vhost,omitempty"`
}

// FSDriver selects the shared filesystem transport.
type FSDriver string

const (
	FSDriver9p       FSDriver = "9p"
	FSDriverVirtiofs FSDriver = "virtiofs"
)

// FilesystemDef describes a host directory exported to the guest.
type FilesystemDef struct {
	Info          DeviceInfo `yaml:"info,omitempty"`
	Driver        FSDriver   `yaml:"driver"`
	Path          string     `yaml:"path"`
	MountTag      string     `yaml:"mounttag"`
	SecurityModel string     `yaml:"securitymodel,omitempty"` // 9p only
	SocketPath    string     `yaml:"socketpath,omitempty"`    // virtiofs vhost-user socket
	ReadOnly      bool       `yaml:"readonly,omitempty"`
}

// ChardevBackend is the host side of a character device.
type ChardevBackend string

const (
	ChardevNull   ChardevBackend = "null"
	ChardevPTY    ChardevBackend = "pty"
	ChardevDev    ChardevBackend = "dev"
	ChardevFile   ChardevBackend = "file"
	ChardevPipe   ChardevBackend = "pipe"
	ChardevStdio  ChardevBackend = "stdio"
	ChardevUnix   ChardevBackend = "unix"
	ChardevTCP    ChardevBackend = "tcp"
	ChardevSpice  ChardevBackend = "spicevmc"
)

// ChardevTarget is the guest-visible device a character backend feeds.
type ChardevTarget string

const (
	TargetISASerial      ChardevTarget = "isa-serial"
	TargetUSBSerial      ChardevTarget = "usb-serial"
	TargetPCISerial      ChardevTarget = "pci-serial"
	TargetSclpConsole    ChardevTarget = "sclpconsole"
	TargetVirtconsole    ChardevTarget = "virtconsole"
	TargetVirtserialport ChardevTarget = "virtserialport"
	TargetParallel       ChardevTarget = "isa-parallel"
)

// ChardevDef describes a serial port, parallel port, console or channel.
type ChardevDef struct {
	Info    DeviceInfo     `yaml:"info,omitempty"`
	Backend ChardevBackend `yaml:"backend"`
	Target  ChardevTarget  `yaml:"target"`

	// ChardevAlias names the -chardev the device fragment references.
	ChardevAlias string `yaml:"chardevalias,omitempty"`

	Path    string `yaml:"path,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    uint   `yaml:"port,omitempty"`
	Server  bool   `yaml:"server,omitempty"`
	Wait    bool   `yaml:"wait,omitempty"`
	LogFile string `yaml:"logfile,omitempty"`
	Append  bool   `yaml:"append,omitempty"`
	// Name is the channel name for virtserialport targets.
	Name string `yaml:"name,omitempty"`
}

// TPMModel is the guest-visible TPM device model.
type TPMModel string

const (
	TPMModelTIS   TPMModel = "tpm-tis"
	TPMModelCRB   TPMModel = "tpm-crb"
	TPMModelSpapr TPMModel = "tpm-spapr"
)

// TPMBackendType selects TPM host backing.
type TPMBackendType string

const (
	TPMPassthrough TPMBackendType = "passthrough"
	TPMEmulator    TPMBackendType = "emulator"
)

// TPMDef describes a guest TPM.
type TPMDef struct {
	Info    DeviceInfo     `yaml:"info,omitempty"`
	Model   TPMModel       `yaml:"model"`
	Backend TPMBackendType `yaml:"backend"`
	// DevicePath is the host TPM node for passthrough.
	DevicePath string `yaml:"devicepath,omitempty"`
	// SocketPath is the swtpm control socket for the emulator backend.
	SocketPath string `yaml:"socketpath,omitempty"`
	Version    string `yaml:"version,omitempty"` // 1.2, 2.0
}

// InputDef describes a pointer/keyboard device.
type InputDef struct {
	Info    DeviceInfo    `yaml:"info,omitempty"`
	Type    string        `yaml:"type"` // mouse, tablet, keyboard, passthrough
	Bus     string        `yaml:"bus"`  // usb, virtio, ps2
	Variant VirtioVariant `yaml:"variant,omitempty"`
	// EvdevPath backs a virtio passthrough input device.
	EvdevPath string `yaml:"evdev,omitempty"`
}

// GraphicsDef describes a remote or local display frontend.
type GraphicsDef struct {
	Type       string `yaml:"type"` // vnc, spice, sdl, egl-headless
	Listen     string `yaml:"listen,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	TLSPort    int    `yaml:"tlsport,omitempty"`
	Socket     string `yaml:"socket,omitempty"`
	AutoPort   bool   `yaml:"autoport,omitempty"`
	Password   bool   `yaml:"password,omitempty"`
	RenderNode string `yaml:"rendernode,omitempty"`
}

// VideoDef describes a guest video adapter. Memory sizes are KiB as
// everywhere else in the definition.
type VideoDef struct {
	Info      DeviceInfo    `yaml:"info,omitempty"`
	Model     string        `yaml:"model"` // virtio, qxl, vga, cirrus, bochs, none
	Variant   VirtioVariant `yaml:"variant,omitempty"`
	VRAMKiB   SizeKiB       `yaml:"vram,omitempty"`
	RAMKiB    SizeKiB       `yaml:"ram,omitempty"`
	VGAMemKiB SizeKiB       `yaml:"vgamem,omitempty"`
	Heads     uint          `yaml:"heads,omitempty"`
	Primary   bool          `yaml:"primary,omitempty"`
}

// SoundDef describes a guest sound adapter.
type SoundDef struct {
	Info  DeviceInfo `yaml:"info,omitempty"`
	Model string     `yaml:"model"` // ich9, ich6, ac97, usb
	Codec string     `yaml:"codec,omitempty"`
}

// AudioBackend selects the host audio driver for the whole machine.
type AudioBackend string

const (
	AudioNone  AudioBackend = "none"
	AudioALSA  AudioBackend = "alsa"
	AudioPulse AudioBackend = "pa"
	AudioOSS   AudioBackend = "oss"
	AudioSDL   AudioBackend = "sdl"
	AudioSpice AudioBackend = "spice"
)

// AudioDef describes the host audio backend shared by all sound devices.
type AudioDef struct {
	Backend AudioBackend `yaml:"backend"`
	Alias   string       `yaml:"alias,omitempty"`
	// ServerName is the pulse server address, Path the OSS dsp device.
	ServerName string `yaml:"servername,omitempty"`
	Path       string `yaml:"path,omitempty"`
}

// WatchdogDef describes a guest watchdog device.
type WatchdogDef struct {
	Info   DeviceInfo `yaml:"info,omitempty"`
	Model  string     `yaml:"model"`  // i6300esb, ib700, diag288
	Action string     `yaml:"action"` // reset, poweroff, pause, none
}

// RedirdevDef describes a redirected USB character stream.
type RedirdevDef struct {
	Info         DeviceInfo     `yaml:"info,omitempty"`
	Backend      ChardevBackend `yaml:"backend"`
	ChardevAlias string         `yaml:"chardevalias,omitempty"`
	Path         string         `yaml:"path,omitempty"`
	Host         string         `yaml:"host,omitempty"`
	Port         uint           `yaml:"port,omitempty"`
}

// HostdevSubsys is the host device passthrough flavor.
type HostdevSubsys string

const (
	HostdevPCI  HostdevSubsys = "pci"
	HostdevUSB  HostdevSubsys = "usb"
	HostdevMdev HostdevSubsys = "mdev"
	HostdevSCSI HostdevSubsys = "scsi"
)

// HostdevDef describes a host device assigned to the guest.
type HostdevDef struct {
	Info   DeviceInfo    `yaml:"info,omitempty"`
	Subsys HostdevSubsys `yaml:"subsys"`

	// HostBDF is the host PCI address (0000:03:00.1) for pci subsys.
	HostBDF string `yaml:"hostbdf,omitempty"`
	// Vendor/Product or HostBus/HostPort select a USB host device.
	Vendor   uint   `yaml:"vendor,omitempty"`
	Product  uint   `yaml:"product,omitempty"`
	HostBus  uint   `yaml:"hostbus,omitempty"`
	HostAddr uint   `yaml:"hostaddr,omitempty"`
	MdevUUID string `yaml:"mdevuuid,omitempty"`
	Display  bool   `yaml:"display,omitempty"`
}

// BalloonDef describes the memory balloon device.
type BalloonDef struct {
	Info              DeviceInfo    `yaml:"info,omitempty"`
	Variant           VirtioVariant `yaml:"variant,omitempty"`
	Period            uint          `yaml:"period,omitempty"`
	DeflateOnOOM      *bool         `yaml:"deflateonoom,omitempty"`
	FreePageReporting *bool         `yaml:"freepagereporting,omitempty"`
}

// RNGBackendType selects the entropy source for a virtio-rng device.
type RNGBackendType string

const (
	RNGRandom  RNGBackendType = "random"
	RNGBuiltin RNGBackendType = "builtin"
	RNGEGD     RNGBackendType = "egd"
)

// RNGDef describes a guest RNG device.
type RNGDef struct {
	Info    DeviceInfo     `yaml:"info,omitempty"`
	Backend RNGBackendType `yaml:"backend"`
	Variant VirtioVariant  `yaml:"variant,omitempty"`
	// Device is the host entropy node for the random backend.
	Device string `yaml:"device,omitempty"`
	// SocketPath connects an egd backend.
	SocketPath string `yaml:"socketpath,omitempty"`
	// RateBytes per RatePeriod ms limits entropy consumption.
	RateBytes  uint64 `yaml:"ratebytes,omitempty"`
	RatePeriod uint64 `yaml:"rateperiod,omitempty"`
}

// NVRAMDef describes a spapr NVRAM backing file.
type NVRAMDef struct {
	Info DeviceInfo `yaml:"info,omitempty"`
	Path string     `yaml:"path"`
}

// PanicModel is the guest panic notifier flavor.
type PanicModel string

const (
	PanicISA     PanicModel = "isa"
	PanicPVPanic PanicModel = "pvpanic"
	PanicHyperv  PanicModel = "hyperv"
	PanicS390    PanicModel = "s390"
)

// PanicDef describes one guest panic notifier device.
type PanicDef struct {
	Info  DeviceInfo `yaml:"info,omitempty"`
	Model PanicModel `yaml:"model"`
}

// ShmemRole selects plain shared memory vs the doorbell protocol.
type ShmemRole string

const (
	ShmemPlain    ShmemRole = "ivshmem-plain"
	ShmemDoorbell ShmemRole = "ivshmem-doorbell"
)

// ShmemDef describes a shared-memory device.
type ShmemDef struct {
	Info       DeviceInfo `yaml:"info,omitempty"`
	Role       ShmemRole  `yaml:"role"`
	Name       string     `yaml:"name"`
	SizeKiB    SizeKiB    `yaml:"size,omitempty"`
	ServerPath string     `yaml:"serverpath,omitempty"`
	MSIVectors uint       `yaml:"msivectors,omitempty"`
}

// VsockDef describes a vhost-vsock device.
type VsockDef struct {
	Info    DeviceInfo    `yaml:"info,omitempty"`
	CID     uint32        `yaml:"cid"`
	Variant VirtioVariant `yaml:"variant,omitempty"`
}

// LaunchSecurityDef configures SEV guest memory encryption.
type LaunchSecurityDef struct {
	Type            string `yaml:"type"` // sev
	CBitPos         uint   `yaml:"cbitpos"`
	ReducedPhysBits uint   `yaml:"reducedphysbits"`
	Policy          uint   `yaml:"policy,omitempty"`
	DHCert          string `yaml:"dhcert,omitempty"`
	Session         string `yaml:"session,omitempty"`
}

// SmbiosDef carries type-1 system identification strings.
type SmbiosDef struct {
	Manufacturer string `yaml:"manufacturer,omitempty"`
	Product      string `yaml:"product,omitempty"`
	Version      string `yaml:"version,omitempty"`
	Serial       string `yaml:"serial,omitempty"`
	Family       string `yaml:"family,omitempty"`
	SKU          string `yaml:"sku,omitempty"`
}

// FWCfgDef injects one fw_cfg entry, either inline or file backed.
type FWCfgDef struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value,omitempty"`
	File  string `yaml:"file,omitempty"`
}

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
)

// AddressKind identifies the bus family a device is attached to. The kind
// selects the formatting branch used when the device is rendered, so a kind
// that does not match the device type is rejected at validation time rather
// than silently skipped.
type AddressKind string

const (
	// AddrNone is the zero value; a definition that omits the address
	// kind means the device has no explicit bus placement.
	AddrNone       AddressKind = ""
	AddrPCI        AddressKind = "pci"
	AddrUSB        AddressKind = "usb"
	AddrCCW        AddressKind = "ccw"
	AddrISA        AddressKind = "isa"
	AddrDrive      AddressKind = "drive"
	AddrVirtioMMIO AddressKind = "virtio-mmio"
)

// PCIAddress is a fully qualified PCI address. Bus is an index into the
// definition's controller list, not a bus name; the owning controller's
// alias is resolved at render time.
type PCIAddress struct {
	Domain        uint  `yaml:"domain"`
	Bus           uint  `yaml:"bus"`
	Slot          uint  `yaml:"slot"`
	Function      uint  `yaml:"function"`
	Multifunction *bool `yaml:"multifunction,omitempty"`
}

// USBAddress locates a device on a USB controller by bus index and port path.
type USBAddress struct {
	Bus  uint   `yaml:"bus"`
	Port string `yaml:"port"`
}

// CCWAddress is an s390 channel subsystem address.
type CCWAddress struct {
	CSSID uint `yaml:"cssid"`
	SSID  uint `yaml:"ssid"`
	DevNo uint `yaml:"devno"`
}

// ISAAddress is a legacy ISA io-port/irq pair.
type ISAAddress struct {
	IOBase uint `yaml:"iobase"`
	IRQ    uint `yaml:"irq"`
}

// DriveAddress locates a disk on a storage controller.
type DriveAddress struct {
	Controller uint `yaml:"controller"`
	Bus        uint `yaml:"bus"`
	Target     uint `yaml:"target"`
	Unit       uint `yaml:"unit"`
}

// Address is a closed tagged union over the supported bus families. Exactly
// the payload matching Kind may be set; Validate enforces this.
type Address struct {
	Kind  AddressKind   `yaml:"kind,omitempty"`
	PCI   *PCIAddress   `yaml:"pci,omitempty"`
	USB   *USBAddress   `yaml:"usb,omitempty"`
	CCW   *CCWAddress   `yaml:"ccw,omitempty"`
	ISA   *ISAAddress   `yaml:"isa,omitempty"`
	Drive *DriveAddress `yaml:"drive,omitempty"`
}

// NewPCIAddress is a convenience constructor for the common case of a
// device on PCI bus index bus, slot slot, function 0.
func NewPCIAddress(bus, slot uint) Address {
	return Address{Kind: AddrPCI, PCI: &PCIAddress{Bus: bus, Slot: slot}}
}

// NewCCWAddress returns a channel address in the default subchannel set.
func NewCCWAddress(devno uint) Address {
	return Address{Kind: AddrCCW, CCW: &CCWAddress{CSSID: 0xfe, DevNo: devno}}
}

func (a Address) Validate() error {
	switch a.Kind {
	case AddrNone, AddrVirtioMMIO:
		return nil
	case AddrPCI:
		if a.PCI == nil {
			return fmt.Errorf("Address kind %q has no pci payload", a.Kind)
		}
		if a.PCI.Slot > 0x1f {
			return fmt.Errorf("PCI slot 0x%x out of range", a.PCI.Slot)
		}
		if a.PCI.Function > 7 {
			return fmt.Errorf("PCI function %d out of range", a.PCI.Function)
		}
		return nil
	case AddrUSB:
		if a.USB == nil {
			return fmt.Errorf("Address kind %q has no usb payload", a.Kind)
		}
		return nil
	case AddrCCW:
		if a.CCW == nil {
			return fmt.Errorf("Address kind %q has no ccw payload", a.Kind)
		}
		if a.CCW.DevNo > 0xffff {
			return fmt.Errorf("CCW devno 0x%x out of range", a.CCW.DevNo)
		}
		return nil
	case AddrISA:
		if a.ISA == nil {
			return fmt.Errorf("Address kind %q has no isa payload", a.Kind)
		}
		return nil
	case AddrDrive:
		if a.Drive == nil {
			return fmt.Errorf("Address kind %q has no drive payload", a.Kind)
		}
		return nil
	}
	return fmt.Errorf("Unknown address kind %q", a.Kind)
}

// DeviceInfo carries the attributes common to every device definition. The
// address and alias are populated by the address allocator and alias
// assigner before the definition is handed to command generation, which
// only reads them.
type DeviceInfo struct {
	Alias     string  `yaml:"alias,omitempty"`
	Addr      Address `yaml:"addr,omitempty"`
	BootIndex uint    `yaml:"bootindex,omitempty"`
	ROMBar    string  `yaml:"rombar,omitempty"`
	ROMFile   string  `yaml:"romfile,omitempty"`
}

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
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/vmdef"
)

// Fragment is one emitted unit of the command line: a flag and its
// argument text. A flag with empty Value renders as a bare token.
type Fragment struct {
	Flag  string
	Value string
}

// Tokens renders the fragment as argv tokens.
func (f Fragment) Tokens() []string {
	if f.Value == "" {
		return []string{f.Flag}
	}
	return []string{f.Flag, f.Value}
}

// EscapeCommas doubles embedded commas so free text survives the flat
// comma-separated argument grammar. Every builder interpolating free text
// into a flat argument goes through here.
func EscapeCommas(s string) string {
	return strings.ReplaceAll(s, ",", ",,")
}

// UnescapeCommas reverses EscapeCommas; exported for consumers splitting
// emitted arguments back apart.
func UnescapeCommas(s string) string {
	return strings.ReplaceAll(s, ",,", ",")
}

// argBuf accumulates one flat comma-separated argument. It owns the comma
// placement and the free-text escaping so individual builders cannot get
// either wrong.
type argBuf struct {
	parts []string
}

func newArgBuf(lead string) *argBuf {
	return &argBuf{parts: []string{lead}}
}

// add appends key=value, escaping commas in value.
func (b *argBuf) add(key, value string) *argBuf {
	b.parts = append(b.parts, fmt.Sprintf("%s=%s", key, EscapeCommas(value)))
	return b
}

// addRaw appends key=value without escaping, for values already rendered
// by a serializer that handled escaping itself.
func (b *argBuf) addRaw(key, value string) *argBuf {
	b.parts = append(b.parts, fmt.Sprintf("%s=%s", key, value))
	return b
}

func (b *argBuf) addUint(key string, value uint64) *argBuf {
	b.parts = append(b.parts, fmt.Sprintf("%s=%d", key, value))
	return b
}

func (b *argBuf) addOnOff(key string, value bool) *argBuf {
	b.parts = append(b.parts, fmt.Sprintf("%s=%s", key, onOff(value)))
	return b
}

// addToken appends a bare token with no key.
func (b *argBuf) addToken(token string) *argBuf {
	b.parts = append(b.parts, token)
	return b
}

func (b *argBuf) String() string {
	return strings.Join(b.parts, ",")
}

// virtioBusSuffix maps the address kind of a virtio-capable device to the
// implementation name suffix.
func virtioBusSuffix(kind vmdef.AddressKind) (string, error) {
	switch kind {
	case vmdef.AddrPCI, vmdef.AddrNone:
		return "-pci", nil
	case vmdef.AddrCCW:
		return "-ccw", nil
	case vmdef.AddrVirtioMMIO:
		return "-device", nil
	default:
		return "", enumErr("virtio bus address kind", kind)
	}
}

// virtioDeviceName resolves the device model name for a virtio-capable
// device, applying the bus family suffix and the transitional policy:
//
//   - a non-transitional request needs either the explicit model name or
//     the disable-legacy sub-options; lacking both is a hard failure;
//   - a transitional request without the explicit model falls back to the
//     plain name, which is semantically equivalent on PCI.
//
// The returned extra options (if any) belong on the -device argument.
func virtioDeviceName(alias, base string, addrKind vmdef.AddressKind, variant vmdef.VirtioVariant, c caps.Caps) (string, [][2]string, error) {
	suffix, err := virtioBusSuffix(addrKind)
	if err != nil {
		return "", nil, err
	}
	name := base + suffix

	if addrKind != vmdef.AddrPCI && addrKind != vmdef.AddrNone {
		// ccw and mmio transports are virtio 1.0 only; the plain name
		// already is non-transitional and a transitional request makes
		// no sense there.
		if variant == vmdef.VirtioTransitional {
			return "", nil, unsupportedf(alias, "virtio transitional model not usable with %s address", addrKind)
		}
		return name, nil, nil
	}

	switch variant {
	case vmdef.VirtioDefault:
		return name, nil, nil
	case vmdef.VirtioTransitional:
		if c.Has(caps.VirtioTransitional) {
			return base + "-pci-transitional", nil, nil
		}
		// The plain -pci model is transitional by definition.
		log.Debugf("device %s: no transitional model name, using plain %s", alias, name)
		return name, nil, nil
	case vmdef.VirtioNonTransitional:
		if c.Has(caps.VirtioTransitional) {
			return base + "-pci-non-transitional", nil, nil
		}
		if c.Has(caps.VirtioDisableLegacy) {
			opts := [][2]string{{"disable-legacy", "on"}, {"disable-modern", "off"}}
			return name, opts, nil
		}
		return "", nil, unsupportedf(alias, "virtio non-transitional model not supported")
	}
	return "", nil, enumErr("virtio variant", variant)
}

// pciAddr renders a PCI slot/function in the 0x5 / 0x5.0x1 form.
func pciAddr(a *vmdef.PCIAddress) string {
	if a.Function != 0 {
		return fmt.Sprintf("0x%x.0x%x", a.Slot, a.Function)
	}
	return fmt.Sprintf("0x%x", a.Slot)
}

// ccwAddr renders a channel address in the fe.0.0001 form.
func ccwAddr(a *vmdef.CCWAddress) string {
	return fmt.Sprintf("%x.%x.%04x", a.CSSID, a.SSID, a.DevNo)
}

// appendDeviceAddress appends the bus placement options implied by the
// device's address. A PCI address whose owning controller (or controller
// alias) is missing indicates a broken allocation upstream and is an
// internal error, not a skip.
func appendDeviceAddress(b *argBuf, vm *vmdef.VMDef, alias string, addr vmdef.Address) error {
	switch addr.Kind {
	case vmdef.AddrNone, vmdef.AddrVirtioMMIO:
		return nil
	case vmdef.AddrPCI:
		ctrl := vm.PCIControllerByIndex(addr.PCI.Bus)
		if ctrl == nil {
			return internalf("device %q: no controller provides PCI bus %d", alias, addr.PCI.Bus)
		}
		if ctrl.Info.Alias == "" {
			return internalf("device %q: controller for PCI bus %d has no alias", alias, addr.PCI.Bus)
		}
		b.add("bus", ctrl.Info.Alias)
		b.addRaw("addr", pciAddr(addr.PCI))
		if addr.PCI.Multifunction != nil {
			b.addOnOff("multifunction", *addr.PCI.Multifunction)
		}
		return nil
	case vmdef.AddrCCW:
		b.addRaw("devno", ccwAddr(addr.CCW))
		return nil
	case vmdef.AddrUSB:
		ctrl := vm.ControllerByTypeIndex(vmdef.ControllerUSB, addr.USB.Bus)
		if ctrl == nil {
			return internalf("device %q: no controller provides USB bus %d", alias, addr.USB.Bus)
		}
		if ctrl.Info.Alias == "" {
			return internalf("device %q: controller for USB bus %d has no alias", alias, addr.USB.Bus)
		}
		b.addRaw("bus", ctrl.Info.Alias+".0")
		if addr.USB.Port != "" {
			b.add("port", addr.USB.Port)
		}
		return nil
	case vmdef.AddrISA:
		if addr.ISA.IOBase != 0 {
			b.parts = append(b.parts, fmt.Sprintf("iobase=0x%x", addr.ISA.IOBase))
		}
		if addr.ISA.IRQ != 0 {
			b.addUint("irq", uint64(addr.ISA.IRQ))
		}
		return nil
	case vmdef.AddrDrive:
		// Handled by the disk builder, which knows the controller type.
		return internalf("device %q: drive address reached generic formatting", alias)
	}
	return enumErr("address kind", addr.Kind)
}

// appendDeviceCommon appends the id and the shared Device Info trailers
// (bootindex, ROM tuning).
func appendDeviceCommon(b *argBuf, info *vmdef.DeviceInfo, c caps.Caps) {
	b.add("id", info.Alias)
	if info.BootIndex > 0 && c.Has(caps.BootindexDevice) {
		b.addUint("bootindex", uint64(info.BootIndex))
	}
	if info.ROMBar != "" {
		b.add("rombar", info.ROMBar)
	}
	if info.ROMFile != "" {
		b.add("romfile", info.ROMFile)
	}
}

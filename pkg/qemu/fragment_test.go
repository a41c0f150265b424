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
	"reflect"
	"testing"

	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/vmdef"
)

func TestFragmentTokens(t *testing.T) {
	f := Fragment{Flag: "-device", Value: "virtio-balloon-pci,id=balloon0"}
	if got := f.Tokens(); !reflect.DeepEqual(got, []string{"-device", "virtio-balloon-pci,id=balloon0"}) {
		t.Fatalf("Unexpected tokens %v", got)
	}

	bare := Fragment{Flag: "-no-shutdown"}
	if got := bare.Tokens(); !reflect.DeepEqual(got, []string{"-no-shutdown"}) {
		t.Fatalf("Unexpected bare tokens %v", got)
	}
}

func TestEscapeCommasRoundTrip(t *testing.T) {
	for _, s := range []string{"", "plain", "a,b", "a,,b", ",start", "end,", ",,"} {
		escaped := EscapeCommas(s)
		if got := UnescapeCommas(escaped); got != s {
			t.Fatalf("Round trip of %q gave %q (escaped %q)", s, got, escaped)
		}
	}

	if got := EscapeCommas("guest=vm,debug"); got != "guest=vm,,debug" {
		t.Fatalf("Unexpected escape %q", got)
	}
}

func TestArgBufEscaping(t *testing.T) {
	buf := newArgBuf("secret")
	buf.add("file", "/tmp/a,b")
	buf.addRaw("format", "raw")
	buf.addUint("size", 42)
	buf.addOnOff("share", true)
	buf.addToken("readonly")

	want := "secret,file=/tmp/a,,b,format=raw,size=42,share=on,readonly"
	if got := buf.String(); got != want {
		t.Fatalf("Expected %q, got %q", want, got)
	}
}

func TestVirtioDeviceName(t *testing.T) {
	full := caps.New(caps.VirtioTransitional, caps.VirtioDisableLegacy)
	legacyOnly := caps.New(caps.VirtioDisableLegacy)
	none := caps.New()

	tests := []struct {
		name      string
		addrKind  vmdef.AddressKind
		variant   vmdef.VirtioVariant
		caps      caps.Caps
		wantName  string
		wantExtra [][2]string
	}{
		{"default pci", vmdef.AddrPCI, vmdef.VirtioDefault, none, "virtio-blk-pci", nil},
		{"default ccw", vmdef.AddrCCW, vmdef.VirtioDefault, none, "virtio-blk-ccw", nil},
		{"default mmio", vmdef.AddrVirtioMMIO, vmdef.VirtioDefault, none, "virtio-blk-device", nil},
		{"transitional named", vmdef.AddrPCI, vmdef.VirtioTransitional, full, "virtio-blk-pci-transitional", nil},
		{"transitional fallback", vmdef.AddrPCI, vmdef.VirtioTransitional, none, "virtio-blk-pci", nil},
		{"non-transitional named", vmdef.AddrPCI, vmdef.VirtioNonTransitional, full, "virtio-blk-pci-non-transitional", nil},
		{
			"non-transitional options", vmdef.AddrPCI, vmdef.VirtioNonTransitional, legacyOnly,
			"virtio-blk-pci", [][2]string{{"disable-legacy", "on"}, {"disable-modern", "off"}},
		},
	}

	for _, tc := range tests {
		name, extra, err := virtioDeviceName("dev0", "virtio-blk", tc.addrKind, tc.variant, tc.caps)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if name != tc.wantName {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.wantName, name)
		}
		if !reflect.DeepEqual(extra, tc.wantExtra) {
			t.Fatalf("%s: expected extra %v, got %v", tc.name, tc.wantExtra, extra)
		}
	}
}

func TestVirtioDeviceNameUnsupported(t *testing.T) {
	_, _, err := virtioDeviceName("disk0", "virtio-blk", vmdef.AddrPCI, vmdef.VirtioNonTransitional, caps.New())
	if err == nil || !IsUnsupported(err) {
		t.Fatalf("Expected unsupported error, got %v", err)
	}
	want := `configuration unsupported for device "disk0": virtio non-transitional model not supported`
	if err.Error() != want {
		t.Fatalf("Expected %q, got %q", want, err.Error())
	}

	_, _, err = virtioDeviceName("disk0", "virtio-blk", vmdef.AddrCCW, vmdef.VirtioTransitional, caps.Modern())
	if err == nil || !IsUnsupported(err) {
		t.Fatalf("Expected unsupported error for ccw transitional, got %v", err)
	}
}

func TestPCIAddrFormat(t *testing.T) {
	if got := pciAddr(&vmdef.PCIAddress{Slot: 5}); got != "0x5" {
		t.Fatalf("Expected 0x5, got %q", got)
	}
	if got := pciAddr(&vmdef.PCIAddress{Slot: 0x1a, Function: 2}); got != "0x1a.0x2" {
		t.Fatalf("Expected 0x1a.0x2, got %q", got)
	}
}

func TestCCWAddrFormat(t *testing.T) {
	if got := ccwAddr(&vmdef.CCWAddress{CSSID: 0xfe, SSID: 0, DevNo: 1}); got != "fe.0.0001" {
		t.Fatalf("Expected fe.0.0001, got %q", got)
	}
	if got := ccwAddr(&vmdef.CCWAddress{CSSID: 0xfe, SSID: 1, DevNo: 0x20f1}); got != "fe.1.20f1" {
		t.Fatalf("Expected fe.1.20f1, got %q", got)
	}
}

func TestAppendDeviceAddressUnaddressed(t *testing.T) {
	vm := &vmdef.VMDef{Name: "testvm"}
	buf := newArgBuf("usb-tablet")
	if err := appendDeviceAddress(buf, vm, "input0", vmdef.Address{}); err != nil {
		t.Fatalf("Unaddressed device rejected: %v", err)
	}
	if got := buf.String(); got != "usb-tablet" {
		t.Fatalf("Expected no placement options, got %q", got)
	}
}

func TestAppendDeviceAddressMissingController(t *testing.T) {
	vm := &vmdef.VMDef{Name: "testvm"}
	buf := newArgBuf("virtio-net-pci")
	err := appendDeviceAddress(buf, vm, "net0", vmdef.NewPCIAddress(0, 3))
	if err == nil || !IsInternal(err) {
		t.Fatalf("Expected internal error, got %v", err)
	}
}

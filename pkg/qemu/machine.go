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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/vmdef"
)

func (b *builder) buildName() ([]Fragment, error) {
	buf := newArgBuf("guest=" + EscapeCommas(b.vm.Name))
	buf.addToken("debug-threads=on")
	return []Fragment{{Flag: "-name", Value: buf.String()}}, nil
}

// buildCompat pins down process behavior independent of host-side user
// configuration: no config file loading, no implicit default devices, and
// no process exit on guest shutdown so the supervisor observes the event.
func (b *builder) buildCompat() ([]Fragment, error) {
	return []Fragment{
		{Flag: "-no-user-config"},
		{Flag: "-nodefaults"},
		{Flag: "-no-shutdown"},
	}, nil
}

// buildMasterKey emits the AES master-key secret every other inline secret
// is wrapped under. The feature is optional by design: a binary without the
// capability simply launches without wrapped secrets.
func (b *builder) buildMasterKey() ([]Fragment, error) {
	if b.vm.MasterKeyFile == "" {
		return nil, nil
	}
	if !b.caps.Has(caps.SecretMasterKey) {
		log.Infof("machine %q: binary lacks master-key secret support, proceeding without", b.vm.Name)
		return nil, nil
	}
	p := NewProps("secret", "masterKey0")
	p.SetString("format", "raw")
	p.SetString("file", b.vm.MasterKeyFile)
	rendered, err := p.Render(b.caps)
	if err != nil {
		return nil, err
	}
	return []Fragment{{Flag: "-object", Value: rendered}}, nil
}

func (b *builder) buildFirmware() ([]Fragment, error) {
	fw := b.vm.Boot.Firmware
	if fw == nil {
		return nil, nil
	}
	if fw.CodePath == "" {
		return nil, internalf("machine %q: firmware stanza without code image", b.vm.Name)
	}
	var frags []Fragment
	code := newArgBuf("file=" + EscapeCommas(fw.CodePath))
	code.add("if", "pflash")
	code.add("format", "raw")
	code.addUint("unit", 0)
	code.addOnOff("readonly", true)
	frags = append(frags, Fragment{Flag: "-drive", Value: code.String()})
	if fw.VarsPath != "" {
		vars := newArgBuf("file=" + EscapeCommas(fw.VarsPath))
		vars.add("if", "pflash")
		vars.add("format", "raw")
		vars.addUint("unit", 1)
		frags = append(frags, Fragment{Flag: "-drive", Value: vars.String()})
	}
	return frags, nil
}

func (b *builder) buildMachine() ([]Fragment, error) {
	if b.vm.MachineType == "" {
		return nil, internalf("machine %q has no machine type", b.vm.Name)
	}
	buf := newArgBuf(b.vm.MachineType)
	buf.add("accel", "kvm")
	buf.addOnOff("usb", false)
	buf.add("dump-guest-core", "off")
	if b.vm.Features.VMPort != nil {
		buf.addOnOff("vmport", *b.vm.Features.VMPort)
	}
	if b.vm.Memory.NosharePages {
		buf.addOnOff("mem-merge", false)
	}
	if b.vm.Boot.Firmware != nil && b.vm.Boot.Firmware.Secure {
		buf.addOnOff("smm", true)
	}
	// The main-memory backend binds here when the binary prefers the
	// machine property over a NUMA memdev.
	if mode := b.memoryBackendMode(); mode != memBackendNone && b.caps.Has(caps.MachineMemoryBackend) && len(b.vm.NUMA) == 0 {
		buf.add("memory-backend", b.mainMemoryID())
	}
	if b.vm.LaunchSecurity != nil {
		buf.add("memory-encryption", "sev0")
	}
	if b.vm.MachineOptions != "" {
		buf.addToken(b.vm.MachineOptions)
	}
	return []Fragment{{Flag: "-machine", Value: buf.String()}}, nil
}

func (b *builder) buildUUID() ([]Fragment, error) {
	if b.vm.UUID == "" {
		return nil, nil
	}
	return []Fragment{{Flag: "-uuid", Value: b.vm.UUID}}, nil
}

func (b *builder) buildSMBIOS() ([]Fragment, error) {
	s := b.vm.SMBIOS
	if s == nil {
		return nil, nil
	}
	if !b.caps.Has(caps.SMBiosType1) {
		return nil, unsupportedf(b.vm.Name, "smbios system strings not supported")
	}
	buf := newArgBuf("type=1")
	if s.Manufacturer != "" {
		buf.add("manufacturer", s.Manufacturer)
	}
	if s.Product != "" {
		buf.add("product", s.Product)
	}
	if s.Version != "" {
		buf.add("version", s.Version)
	}
	if s.Serial != "" {
		buf.add("serial", s.Serial)
	}
	if b.vm.UUID != "" {
		buf.add("uuid", b.vm.UUID)
	}
	if s.SKU != "" {
		buf.add("sku", s.SKU)
	}
	if s.Family != "" {
		buf.add("family", s.Family)
	}
	return []Fragment{{Flag: "-smbios", Value: buf.String()}}, nil
}

func (b *builder) buildBoot() ([]Fragment, error) {
	var frags []Fragment
	boot := b.vm.Boot

	var parts []string
	if boot.Devices != "" {
		parts = append(parts, "order="+boot.Devices)
	}
	if boot.Menu != nil {
		parts = append(parts, "menu="+onOff(*boot.Menu))
	}
	if boot.Strict {
		if !b.caps.Has(caps.BootStrict) {
			log.Debugf("machine %q: strict boot not supported, ignoring", b.vm.Name)
		} else {
			parts = append(parts, "strict=on")
		}
	}
	if len(parts) > 0 {
		frags = append(frags, Fragment{Flag: "-boot", Value: strings.Join(parts, ",")})
	}

	if boot.Kernel != "" {
		frags = append(frags, Fragment{Flag: "-kernel", Value: boot.Kernel})
		if boot.Initrd != "" {
			frags = append(frags, Fragment{Flag: "-initrd", Value: boot.Initrd})
		}
		if boot.Cmdline != "" {
			frags = append(frags, Fragment{Flag: "-append", Value: boot.Cmdline})
		}
	}
	return frags, nil
}

// clockBasis converts a variable clock offset to an absolute UTC basis.
// The result travels on the Cmd instead of being written back into the
// definition.
func (b *builder) clockBasis() int64 {
	return timeNow().UTC().Unix() + b.vm.Clock.AdjustmentSec
}

func (b *builder) buildClock() ([]Fragment, error) {
	var frags []Fragment
	clk := b.vm.Clock

	rtc := &argBuf{}
	switch clk.Offset {
	case vmdef.ClockUTC, "":
		rtc.parts = append(rtc.parts, "base=utc")
	case vmdef.ClockLocaltime:
		rtc.parts = append(rtc.parts, "base=localtime")
	case vmdef.ClockVariable:
		basis := b.clockBasis()
		b.cmd.ClockBasisSec = basis
		rtc.parts = append(rtc.parts, "base="+time.Unix(basis, 0).UTC().Format("2006-01-02T15:04:05"))
	default:
		return nil, enumErr("clock offset", clk.Offset)
	}

	hpetPresent := b.vm.Features.HPET
	for _, t := range clk.Timers {
		switch t.Name {
		case "rtc":
			if t.TickPolicy == "catchup" {
				rtc.add("driftfix", "slew")
			}
		case "pit":
			switch t.TickPolicy {
			case "discard":
				frags = append(frags, Fragment{Flag: "-global", Value: "kvm-pit.lost_tick_policy=discard"})
			case "delay":
				frags = append(frags, Fragment{Flag: "-global", Value: "kvm-pit.lost_tick_policy=delay"})
			case "":
			default:
				return nil, unsupportedf(b.vm.Name, "pit tick policy %q not supported", t.TickPolicy)
			}
		case "hpet":
			if t.Present != nil {
				hpetPresent = *t.Present
			}
		case "kvmclock":
			// Expressed through the cpu model flags, nothing to emit.
		default:
			return nil, unsupportedf(b.vm.Name, "timer %q not supported", t.Name)
		}
	}

	frags = append([]Fragment{{Flag: "-rtc", Value: rtc.String()}}, frags...)

	if !hpetPresent && b.caps.Has(caps.NoHPET) {
		frags = append(frags, Fragment{Flag: "-no-hpet"})
	}
	return frags, nil
}

// buildPower wires S3/S4 availability through the platform PM device. The
// device name depends on the machine family.
func (b *builder) buildPower() ([]Fragment, error) {
	pmDevice := "PIIX4_PM"
	if strings.Contains(b.vm.MachineType, "q35") {
		pmDevice = "ICH9-LPC"
	}
	s3 := 1
	if b.vm.Features.PMSuspendMem {
		s3 = 0
	}
	s4 := 1
	if b.vm.Features.PMSuspendDisk {
		s4 = 0
	}
	return []Fragment{
		{Flag: "-global", Value: fmt.Sprintf("%s.disable_s3=%d", pmDevice, s3)},
		{Flag: "-global", Value: fmt.Sprintf("%s.disable_s4=%d", pmDevice, s4)},
	}, nil
}

func (b *builder) buildFWCfg() ([]Fragment, error) {
	var frags []Fragment
	for _, fc := range b.vm.FWCfgs {
		buf := newArgBuf("name=" + EscapeCommas(fc.Name))
		switch {
		case fc.File != "":
			if !b.caps.Has(caps.FWCfgFile) {
				return nil, unsupportedf(b.vm.Name, "fw_cfg file injection not supported")
			}
			buf.add("file", fc.File)
		case fc.Value != "":
			buf.add("string", fc.Value)
		default:
			return nil, internalf("fw_cfg entry %q has neither value nor file", fc.Name)
		}
		frags = append(frags, Fragment{Flag: "-fw_cfg", Value: buf.String()})
	}
	return frags, nil
}

// buildFreeze holds the vcpus at startup when the definition asks for it or
// when an incoming migration must complete before the guest may run.
func (b *builder) buildFreeze() ([]Fragment, error) {
	if b.vm.FreezeOnStart || b.vm.Incoming != nil {
		return []Fragment{{Flag: "-S"}}, nil
	}
	return nil, nil
}

func (b *builder) buildSandbox() ([]Fragment, error) {
	sb := b.vm.Sandbox
	if sb == nil || !sb.Enable {
		return nil, nil
	}
	if !b.caps.Has(caps.Sandbox) {
		return nil, unsupportedf(b.vm.Name, "seccomp sandbox not supported")
	}
	buf := newArgBuf("on")
	buf.add("obsolete", "deny")
	if sb.ElevatedPrivileges != nil && !*sb.ElevatedPrivileges {
		buf.add("elevateprivileges", "deny")
	}
	if sb.SpawnDeny {
		buf.add("spawn", "deny")
	}
	if sb.ResourceControl != "" {
		buf.add("resourcecontrol", sb.ResourceControl)
	}
	return []Fragment{{Flag: "-sandbox", Value: buf.String()}}, nil
}

func (b *builder) buildIncoming() ([]Fragment, error) {
	inc := b.vm.Incoming
	if inc == nil {
		return nil, nil
	}
	if inc.Defer || inc.URI == "" {
		return []Fragment{{Flag: "-incoming", Value: "defer"}}, nil
	}
	return []Fragment{{Flag: "-incoming", Value: inc.URI}}, nil
}

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

	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/vmdef"
)

func (b *builder) buildFilesystems() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.Filesystems {
		fs := &b.vm.Filesystems[i]
		if fs.Info.Alias == "" {
			return nil, internalf("machine %q: filesystem %d missing alias assignment", b.vm.Name, i)
		}

		switch fs.Driver {
		case vmdef.FSDriver9p:
			fsdevID := "fsdev-" + fs.Info.Alias
			fsdev := newArgBuf("local")
			model := fs.SecurityModel
			if model == "" {
				model = "mapped"
			}
			fsdev.add("security_model", model)
			fsdev.add("id", fsdevID)
			fsdev.add("path", fs.Path)
			if fs.ReadOnly {
				fsdev.addRaw("readonly", "on")
			}
			frags = append(frags, Fragment{Flag: "-fsdev", Value: fsdev.String()})

			name, extra, err := virtioDeviceName(fs.Info.Alias, "virtio-9p", fs.Info.Addr.Kind, vmdef.VirtioDefault, b.caps)
			if err != nil {
				return nil, err
			}
			buf := newArgBuf(name)
			for _, kv := range extra {
				buf.addRaw(kv[0], kv[1])
			}
			buf.add("fsdev", fsdevID)
			buf.add("mount_tag", fs.MountTag)
			appendDeviceCommon(buf, &fs.Info, b.caps)
			if err := appendDeviceAddress(buf, b.vm, fs.Info.Alias, fs.Info.Addr); err != nil {
				return nil, err
			}
			frags = append(frags, Fragment{Flag: "-device", Value: buf.String()})

		case vmdef.FSDriverVirtiofs:
			if !b.caps.Has(caps.VhostUserFS) {
				return nil, unsupportedf(fs.Info.Alias, "virtiofs not supported")
			}
			if b.memoryBackendMode() == memBackendNone || !b.vm.Memory.Shared {
				return nil, unsupportedf(fs.Info.Alias, "virtiofs needs shared memory backing")
			}
			if fs.SocketPath == "" {
				return nil, internalf("filesystem %q: virtiofs without daemon socket", fs.Info.Alias)
			}
			charAlias := "chr-vu-" + fs.Info.Alias
			char := newArgBuf("socket")
			char.add("id", charAlias)
			char.add("path", fs.SocketPath)
			frags = append(frags, Fragment{Flag: "-chardev", Value: char.String()})

			buf := newArgBuf("vhost-user-fs-pci")
			buf.add("chardev", charAlias)
			buf.add("tag", fs.MountTag)
			appendDeviceCommon(buf, &fs.Info, b.caps)
			if err := appendDeviceAddress(buf, b.vm, fs.Info.Alias, fs.Info.Addr); err != nil {
				return nil, err
			}
			frags = append(frags, Fragment{Flag: "-device", Value: buf.String()})

		default:
			return nil, enumErr("filesystem driver", fs.Driver)
		}
	}
	return frags, nil
}

func (b *builder) buildWatchdogs() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.Watchdogs {
		w := &b.vm.Watchdogs[i]
		switch w.Model {
		case "i6300esb", "ib700", "diag288":
		default:
			return nil, enumErr("watchdog model", w.Model)
		}
		buf := newArgBuf(w.Model)
		appendDeviceCommon(buf, &w.Info, b.caps)
		if err := appendDeviceAddress(buf, b.vm, w.Info.Alias, w.Info.Addr); err != nil {
			return nil, err
		}
		frags = append(frags, Fragment{Flag: "-device", Value: buf.String()})

		if w.Action != "" {
			frags = append(frags, Fragment{Flag: "-watchdog-action", Value: w.Action})
		}
	}
	return frags, nil
}

func (b *builder) buildHostdevs() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.Hostdevs {
		h := &b.vm.Hostdevs[i]
		var buf *argBuf

		switch h.Subsys {
		case vmdef.HostdevPCI:
			if h.HostBDF == "" {
				return nil, internalf("hostdev %q: pci passthrough without host address", h.Info.Alias)
			}
			buf = newArgBuf("vfio-pci")
			buf.addRaw("host", h.HostBDF)
		case vmdef.HostdevMdev:
			if h.MdevUUID == "" {
				return nil, internalf("hostdev %q: mdev passthrough without uuid", h.Info.Alias)
			}
			buf = newArgBuf("vfio-pci")
			buf.addRaw("sysfsdev", "/sys/bus/mdev/devices/"+h.MdevUUID)
			if h.Display {
				buf.addOnOff("display", true)
			}
		case vmdef.HostdevUSB:
			buf = newArgBuf("usb-host")
			if h.Vendor != 0 || h.Product != 0 {
				buf.addRaw("vendorid", fmt.Sprintf("0x%04x", h.Vendor))
				buf.addRaw("productid", fmt.Sprintf("0x%04x", h.Product))
			} else {
				buf.addUint("hostbus", uint64(h.HostBus))
				buf.addUint("hostaddr", uint64(h.HostAddr))
			}
		case vmdef.HostdevSCSI:
			return nil, unsupportedf(h.Info.Alias, "scsi host device passthrough not supported")
		default:
			return nil, enumErr("hostdev subsystem", h.Subsys)
		}

		appendDeviceCommon(buf, &h.Info, b.caps)
		if err := appendDeviceAddress(buf, b.vm, h.Info.Alias, h.Info.Addr); err != nil {
			return nil, err
		}
		frags = append(frags, Fragment{Flag: "-device", Value: buf.String()})
	}
	return frags, nil
}

func (b *builder) buildBalloon() ([]Fragment, error) {
	bl := b.vm.Balloon
	if bl == nil {
		return nil, nil
	}
	name, extra, err := virtioDeviceName(bl.Info.Alias, "virtio-balloon", bl.Info.Addr.Kind, bl.Variant, b.caps)
	if err != nil {
		return nil, err
	}
	buf := newArgBuf(name)
	for _, kv := range extra {
		buf.addRaw(kv[0], kv[1])
	}
	if bl.DeflateOnOOM != nil {
		buf.addOnOff("deflate-on-oom", *bl.DeflateOnOOM)
	}
	if bl.FreePageReporting != nil {
		buf.addOnOff("free-page-reporting", *bl.FreePageReporting)
	}
	appendDeviceCommon(buf, &bl.Info, b.caps)
	if err := appendDeviceAddress(buf, b.vm, bl.Info.Alias, bl.Info.Addr); err != nil {
		return nil, err
	}
	return []Fragment{{Flag: "-device", Value: buf.String()}}, nil
}

func (b *builder) buildRNGs() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.RNGs {
		r := &b.vm.RNGs[i]
		if r.Info.Alias == "" {
			return nil, internalf("machine %q: rng %d missing alias assignment", b.vm.Name, i)
		}
		objID := "obj-" + r.Info.Alias

		var p *Props
		switch r.Backend {
		case vmdef.RNGRandom:
			device := r.Device
			if device == "" {
				device = "/dev/urandom"
			}
			fdPath, err := b.br.OpenDeviceNode(device)
			if err != nil {
				return nil, err
			}
			p = NewProps("rng-random", objID)
			p.SetString("filename", fdPath)
		case vmdef.RNGBuiltin:
			p = NewProps("rng-builtin", objID)
		case vmdef.RNGEGD:
			if r.SocketPath == "" {
				return nil, internalf("rng %q: egd backend without socket", r.Info.Alias)
			}
			charAlias := "chr-" + r.Info.Alias
			char := newArgBuf("socket")
			char.add("id", charAlias)
			char.add("path", r.SocketPath)
			frags = append(frags, Fragment{Flag: "-chardev", Value: char.String()})
			p = NewProps("rng-egd", objID)
			p.SetString("chardev", charAlias)
		default:
			return nil, enumErr("rng backend", r.Backend)
		}

		rendered, err := p.Render(b.caps)
		if err != nil {
			return nil, err
		}
		frags = append(frags, Fragment{Flag: "-object", Value: rendered})

		name, extra, err := virtioDeviceName(r.Info.Alias, "virtio-rng", r.Info.Addr.Kind, r.Variant, b.caps)
		if err != nil {
			return nil, err
		}
		buf := newArgBuf(name)
		for _, kv := range extra {
			buf.addRaw(kv[0], kv[1])
		}
		buf.add("rng", objID)
		if r.RateBytes > 0 {
			buf.addUint("max-bytes", r.RateBytes)
			period := r.RatePeriod
			if period == 0 {
				period = 1000
			}
			buf.addUint("period", period)
		}
		appendDeviceCommon(buf, &r.Info, b.caps)
		if err := appendDeviceAddress(buf, b.vm, r.Info.Alias, r.Info.Addr); err != nil {
			return nil, err
		}
		frags = append(frags, Fragment{Flag: "-device", Value: buf.String()})
	}
	return frags, nil
}

func (b *builder) buildNVRAM() ([]Fragment, error) {
	nv := b.vm.NVRAM
	if nv == nil {
		return nil, nil
	}
	if nv.Info.Alias == "" {
		return nil, internalf("machine %q: nvram missing alias assignment", b.vm.Name)
	}
	drive := newArgBuf("file=" + EscapeCommas(nv.Path))
	drive.add("if", "none")
	drive.add("format", "raw")
	drive.add("id", nv.Info.Alias)
	return []Fragment{
		{Flag: "-drive", Value: drive.String()},
		{Flag: "-global", Value: "spapr-nvram.drive=" + nv.Info.Alias},
	}, nil
}

func (b *builder) buildVMCoreInfo() ([]Fragment, error) {
	if !b.vm.VMCoreInfo {
		return nil, nil
	}
	if !b.caps.Has(caps.VMCoreInfo) {
		return nil, unsupportedf(b.vm.Name, "vmcoreinfo device not supported")
	}
	return []Fragment{{Flag: "-device", Value: "vmcoreinfo"}}, nil
}

func (b *builder) buildLaunchSecurity() ([]Fragment, error) {
	ls := b.vm.LaunchSecurity
	if ls == nil {
		return nil, nil
	}
	if ls.Type != "sev" {
		return nil, enumErr("launch security type", ls.Type)
	}
	if !b.caps.Has(caps.SEVGuest) {
		return nil, unsupportedf(b.vm.Name, "SEV guest memory encryption not supported")
	}
	p := NewProps("sev-guest", "sev0")
	p.SetUint("cbitpos", uint64(ls.CBitPos))
	p.SetUint("reduced-phys-bits", uint64(ls.ReducedPhysBits))
	if ls.Policy > 0 {
		p.SetUint("policy", uint64(ls.Policy))
	}
	if ls.DHCert != "" {
		p.SetString("dh-cert-file", ls.DHCert)
	}
	if ls.Session != "" {
		p.SetString("session-file", ls.Session)
	}
	rendered, err := p.Render(b.caps)
	if err != nil {
		return nil, err
	}
	return []Fragment{{Flag: "-object", Value: rendered}}, nil
}

// buildPanics handles every notifier model explicitly; an unknown model is
// an error, never a silent pass into another model's emission.
func (b *builder) buildPanics() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.Panics {
		p := &b.vm.Panics[i]
		switch p.Model {
		case vmdef.PanicISA:
			if !b.caps.Has(caps.PVPanic) {
				return nil, unsupportedf(p.Info.Alias, "pvpanic ISA device not supported")
			}
			buf := newArgBuf("pvpanic")
			if p.Info.Addr.Kind == vmdef.AddrISA && p.Info.Addr.ISA.IOBase != 0 {
				buf.addRaw("ioport", fmt.Sprintf("0x%x", p.Info.Addr.ISA.IOBase))
			}
			frags = append(frags, Fragment{Flag: "-device", Value: buf.String()})
		case vmdef.PanicPVPanic:
			if !b.caps.Has(caps.PVPanicPCI) {
				return nil, unsupportedf(p.Info.Alias, "pvpanic PCI device not supported")
			}
			buf := newArgBuf("pvpanic-pci")
			appendDeviceCommon(buf, &p.Info, b.caps)
			if err := appendDeviceAddress(buf, b.vm, p.Info.Alias, p.Info.Addr); err != nil {
				return nil, err
			}
			frags = append(frags, Fragment{Flag: "-device", Value: buf.String()})
		case vmdef.PanicHyperv, vmdef.PanicS390:
			// Hyper-V rides on the cpu enlightenments, s390 on the machine
			// type. Nothing to emit.
		default:
			return nil, enumErr("panic model", p.Model)
		}
	}
	return frags, nil
}

func (b *builder) buildShmems() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.Shmems {
		s := &b.vm.Shmems[i]
		if s.Info.Alias == "" {
			return nil, internalf("machine %q: shmem %d missing alias assignment", b.vm.Name, i)
		}

		switch s.Role {
		case vmdef.ShmemPlain:
			memID := "shmmem-" + s.Info.Alias
			p := NewProps("memory-backend-file", memID)
			p.SetString("mem-path", "/dev/shm/"+s.Name)
			p.SetUint("size", uint64(s.SizeKiB)*1024)
			p.SetBool("share", true)
			rendered, err := p.Render(b.caps)
			if err != nil {
				return nil, err
			}
			frags = append(frags, Fragment{Flag: "-object", Value: rendered})

			buf := newArgBuf("ivshmem-plain")
			buf.add("memdev", memID)
			appendDeviceCommon(buf, &s.Info, b.caps)
			if err := appendDeviceAddress(buf, b.vm, s.Info.Alias, s.Info.Addr); err != nil {
				return nil, err
			}
			frags = append(frags, Fragment{Flag: "-device", Value: buf.String()})

		case vmdef.ShmemDoorbell:
			if s.ServerPath == "" {
				return nil, internalf("shmem %q: doorbell without server socket", s.Info.Alias)
			}
			charAlias := "chr-shm-" + s.Info.Alias
			char := newArgBuf("socket")
			char.add("id", charAlias)
			char.add("path", s.ServerPath)
			frags = append(frags, Fragment{Flag: "-chardev", Value: char.String()})

			buf := newArgBuf("ivshmem-doorbell")
			buf.add("chardev", charAlias)
			if s.MSIVectors > 0 {
				buf.addUint("vectors", uint64(s.MSIVectors))
			}
			appendDeviceCommon(buf, &s.Info, b.caps)
			if err := appendDeviceAddress(buf, b.vm, s.Info.Alias, s.Info.Addr); err != nil {
				return nil, err
			}
			frags = append(frags, Fragment{Flag: "-device", Value: buf.String()})

		default:
			return nil, enumErr("shmem role", s.Role)
		}
	}
	return frags, nil
}

func (b *builder) buildVsock() ([]Fragment, error) {
	v := b.vm.Vsock
	if v == nil {
		return nil, nil
	}
	if !b.caps.Has(caps.VhostVsock) {
		return nil, unsupportedf(v.Info.Alias, "vhost-vsock not supported")
	}
	fd, err := b.br.OpenVhostDevice("/dev/vhost-vsock")
	if err != nil {
		return nil, err
	}
	name, extra, err := virtioDeviceName(v.Info.Alias, "vhost-vsock", v.Info.Addr.Kind, v.Variant, b.caps)
	if err != nil {
		return nil, err
	}
	buf := newArgBuf(name)
	for _, kv := range extra {
		buf.addRaw(kv[0], kv[1])
	}
	buf.addUint("guest-cid", uint64(v.CID))
	buf.addUint("vhostfd", uint64(fd))
	appendDeviceCommon(buf, &v.Info, b.caps)
	if err := appendDeviceAddress(buf, b.vm, v.Info.Alias, v.Info.Addr); err != nil {
		return nil, err
	}
	return []Fragment{{Flag: "-device", Value: buf.String()}}, nil
}

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

// cacheFlags is the host cache mode split into the three knobs the backend
// and frontend actually take.
type cacheFlags struct {
	writeCache bool
	direct     bool
	noFlush    bool
}

// cacheModeFlags maps the definition cache mode onto the knobs:
//
//	mode          write-cache  direct  no-flush
//	writeback     on           off     off
//	none          on           on      off
//	writethrough  off          off     off
//	directsync    off          on      off
//	unsafe        on           off     on
func cacheModeFlags(mode vmdef.CacheMode) (*cacheFlags, error) {
	switch mode {
	case vmdef.CacheDefault:
		return nil, nil
	case vmdef.CacheWriteBack:
		return &cacheFlags{writeCache: true}, nil
	case vmdef.CacheNone:
		return &cacheFlags{writeCache: true, direct: true}, nil
	case vmdef.CacheWriteThrough:
		return &cacheFlags{}, nil
	case vmdef.CacheDirectSync:
		return &cacheFlags{direct: true}, nil
	case vmdef.CacheUnsafe:
		return &cacheFlags{writeCache: true, noFlush: true}, nil
	}
	return nil, enumErr("cache mode", mode)
}

// legacyFileSpec renders the -drive file= spec for one source. Remote
// protocols use their URI forms; commas are escaped by the caller.
func legacyFileSpec(alias string, src *vmdef.StorageSource) (string, error) {
	switch src.Protocol {
	case vmdef.ProtocolFile, vmdef.ProtocolBlock:
		return src.Path, nil
	case vmdef.ProtocolNBD:
		if len(src.Hosts) == 0 {
			return "", internalf("disk %q: nbd source without a host", alias)
		}
		h := src.Hosts[0]
		if h.Port == 0 {
			return fmt.Sprintf("nbd:unix:%s:exportname=%s", h.Host, src.ExportName), nil
		}
		return fmt.Sprintf("nbd:%s:%d:exportname=%s", h.Host, h.Port, src.ExportName), nil
	case vmdef.ProtocolRBD:
		return fmt.Sprintf("rbd:%s/%s", src.Pool, src.ExportName), nil
	case vmdef.ProtocolISCSI:
		if len(src.Hosts) == 0 {
			return "", internalf("disk %q: iscsi source without a portal", alias)
		}
		return fmt.Sprintf("iscsi://%s:%d/%s", src.Hosts[0].Host, src.Hosts[0].Port, src.ExportName), nil
	case vmdef.ProtocolHTTP, vmdef.ProtocolHTTPS:
		return src.URL, nil
	case vmdef.ProtocolSSH:
		if len(src.Hosts) == 0 {
			return "", internalf("disk %q: ssh source without a host", alias)
		}
		user := ""
		if src.SSHUser != "" {
			user = src.SSHUser + "@"
		}
		return fmt.Sprintf("ssh://%s%s:%d%s", user, src.Hosts[0].Host, src.Hosts[0].Port, src.Path), nil
	}
	return "", enumErr("storage protocol", src.Protocol)
}

// legacyDriveFragment renders the -drive backend. Only the top chain layer
// is described; deeper layers ride in the image metadata.
func (b *builder) legacyDriveFragment(d *vmdef.DiskDef, objs *sourceObjects, cache *cacheFlags) (Fragment, error) {
	src := d.Source
	fileSpec, err := legacyFileSpec(d.DriveAlias, src)
	if err != nil {
		return Fragment{}, err
	}

	buf := newArgBuf("file=" + EscapeCommas(fileSpec))
	format := src.Format
	if src.Encryption != nil && format != "qcow2" {
		format = "luks"
	}
	if format != "" {
		buf.add("format", format)
	}
	buf.add("if", "none")
	buf.add("id", d.DriveAlias)

	if objs.authSecretID != "" {
		buf.add("password-secret", objs.authSecretID)
	}
	if objs.encSecretID != "" {
		if format == "qcow2" {
			buf.add("encrypt.format", "luks")
			buf.add("encrypt.key-secret", objs.encSecretID)
		} else {
			buf.add("key-secret", objs.encSecretID)
		}
	}
	if cache != nil {
		buf.addOnOff("cache.direct", cache.direct)
		buf.addOnOff("cache.no-flush", cache.noFlush)
	}
	if d.ReadOnly || src.ReadOnly {
		buf.addOnOff("readonly", true)
	}
	if d.Discard != "" {
		buf.add("discard", d.Discard)
	}
	if d.DetectZeroes != "" {
		buf.add("detect-zeroes", d.DetectZeroes)
	}
	if d.Throttle != nil {
		if !b.caps.Has(caps.DiskThrottling) {
			return Fragment{}, unsupportedf(d.Info.Alias, "disk I/O throttling not supported")
		}
		t := d.Throttle
		limits := []struct {
			key   string
			value uint64
		}{
			{"throttling.bps-total", t.TotalBytesSec},
			{"throttling.bps-read", t.ReadBytesSec},
			{"throttling.bps-write", t.WriteBytesSec},
			{"throttling.iops-total", t.TotalIopsSec},
			{"throttling.iops-read", t.ReadIopsSec},
			{"throttling.iops-write", t.WriteIopsSec},
		}
		for _, l := range limits {
			if l.value > 0 {
				buf.addUint(l.key, l.value)
			}
		}
	}
	return Fragment{Flag: "-drive", Value: buf.String()}, nil
}

// diskDeviceModel picks the frontend model for a non-virtio disk.
func diskDeviceModel(d *vmdef.DiskDef) (string, error) {
	switch d.Bus {
	case vmdef.DiskBusSCSI:
		switch d.Device {
		case vmdef.DiskDeviceCDROM:
			return "scsi-cd", nil
		case vmdef.DiskDeviceLUN:
			return "scsi-block", nil
		default:
			return "scsi-hd", nil
		}
	case vmdef.DiskBusSATA, vmdef.DiskBusIDE:
		if d.Device == vmdef.DiskDeviceCDROM {
			return "ide-cd", nil
		}
		return "ide-hd", nil
	case vmdef.DiskBusUSB:
		return "usb-storage", nil
	case vmdef.DiskBusFDC:
		return "floppy", nil
	}
	return "", enumErr("disk bus", d.Bus)
}

// appendDriveBusAddress appends the controller-relative placement of a
// drive-addressed disk. The formatting differs per controller family.
func (b *builder) appendDriveBusAddress(buf *argBuf, d *vmdef.DiskDef) error {
	addr := d.Info.Addr.Drive
	if addr == nil {
		return nil
	}
	var ctype vmdef.ControllerType
	switch d.Bus {
	case vmdef.DiskBusSCSI:
		ctype = vmdef.ControllerSCSI
	case vmdef.DiskBusSATA:
		ctype = vmdef.ControllerSATA
	case vmdef.DiskBusIDE:
		ctype = vmdef.ControllerIDE
	case vmdef.DiskBusFDC:
		buf.addUint("unit", uint64(addr.Unit))
		return nil
	default:
		return internalf("disk %q: drive address on bus %q", d.Info.Alias, d.Bus)
	}

	ctrl := b.vm.ControllerByTypeIndex(ctype, addr.Controller)
	if ctrl == nil {
		return internalf("disk %q: no %s controller with index %d", d.Info.Alias, ctype, addr.Controller)
	}
	if ctrl.Info.Alias == "" {
		return internalf("disk %q: %s controller %d has no alias", d.Info.Alias, ctype, addr.Controller)
	}

	switch d.Bus {
	case vmdef.DiskBusSCSI:
		buf.addRaw("bus", fmt.Sprintf("%s.0", ctrl.Info.Alias))
		buf.addUint("channel", uint64(addr.Bus))
		buf.addUint("scsi-id", uint64(addr.Target))
		buf.addUint("lun", uint64(addr.Unit))
	case vmdef.DiskBusSATA:
		// Each AHCI port is its own one-device bus.
		buf.addRaw("bus", fmt.Sprintf("%s.%d", ctrl.Info.Alias, addr.Unit))
	case vmdef.DiskBusIDE:
		buf.addRaw("bus", fmt.Sprintf("%s.%d", ctrl.Info.Alias, addr.Bus))
		buf.addUint("unit", uint64(addr.Unit))
	}
	return nil
}

// diskDeviceFragment renders the frontend -device. The backend reference
// and the device id come last so the argument reads driver, placement,
// tuning, backend, identity.
func (b *builder) diskDeviceFragment(d *vmdef.DiskDef, backendRef string, cache *cacheFlags) (Fragment, error) {
	var buf *argBuf

	if d.Bus == vmdef.DiskBusVirtio {
		name, extra, err := virtioDeviceName(d.Info.Alias, "virtio-blk", d.Info.Addr.Kind, d.Variant, b.caps)
		if err != nil {
			return Fragment{}, err
		}
		buf = newArgBuf(name)
		for _, kv := range extra {
			buf.addRaw(kv[0], kv[1])
		}
		if err := appendDeviceAddress(buf, b.vm, d.Info.Alias, d.Info.Addr); err != nil {
			return Fragment{}, err
		}
		if d.IOThread != "" {
			buf.add("iothread", d.IOThread)
		}
		if d.Queues > 0 {
			buf.addUint("num-queues", uint64(d.Queues))
		}
		if d.EventIDX != nil {
			if !b.caps.Has(caps.EventIdx) {
				return Fragment{}, unsupportedf(d.Info.Alias, "virtio event index control not supported")
			}
			buf.addOnOff("event_idx", *d.EventIDX)
		}
	} else {
		model, err := diskDeviceModel(d)
		if err != nil {
			return Fragment{}, err
		}
		buf = newArgBuf(model)
		switch d.Info.Addr.Kind {
		case vmdef.AddrDrive:
			if err := b.appendDriveBusAddress(buf, d); err != nil {
				return Fragment{}, err
			}
		default:
			if err := appendDeviceAddress(buf, b.vm, d.Info.Alias, d.Info.Addr); err != nil {
				return Fragment{}, err
			}
		}
	}

	if d.RotationRate > 0 {
		if !b.caps.Has(caps.RotationRate) {
			return Fragment{}, unsupportedf(d.Info.Alias, "rotation rate hint not supported")
		}
		buf.addUint("rotation_rate", uint64(d.RotationRate))
	}
	if d.Serial != "" {
		buf.add("serial", d.Serial)
	}
	if d.WWN != "" {
		buf.addRaw("wwn", d.WWN)
	}
	if d.Shareable {
		buf.addOnOff("share-rw", true)
	}
	if cache != nil && d.Device != vmdef.DiskDeviceLUN {
		buf.addOnOff("write-cache", cache.writeCache)
	}
	switch d.ErrorPolicy {
	case "":
	case "stop":
		buf.add("werror", "stop")
		buf.add("rerror", "stop")
	case "report":
		buf.add("werror", "report")
		buf.add("rerror", "report")
	case "ignore":
		buf.add("werror", "ignore")
		buf.add("rerror", "ignore")
	case "enospace":
		buf.add("werror", "enospc")
		buf.add("rerror", "report")
	default:
		return Fragment{}, enumErr("disk error policy", d.ErrorPolicy)
	}

	buf.add("drive", backendRef)
	buf.add("id", d.Info.Alias)
	if d.Info.BootIndex > 0 && b.caps.Has(caps.BootindexDevice) {
		buf.addUint("bootindex", uint64(d.Info.BootIndex))
	}
	return Fragment{Flag: "-device", Value: buf.String()}, nil
}

// buildStorage resolves every disk: support objects, then the backend in
// the syntax the decision table picked, then the frontend device.
func (b *builder) buildStorage() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.Disks {
		d := &b.vm.Disks[i]
		if d.Info.Alias == "" || d.DriveAlias == "" {
			return nil, internalf("machine %q: disk %d missing alias assignment", b.vm.Name, i)
		}
		cache, err := cacheModeFlags(d.Cache)
		if err != nil {
			return nil, err
		}

		switch b.storageSyntaxFor(d) {
		case syntaxBlockdev:
			chainFrags, topNode, err := b.resolveBlockdevChain(d, cache)
			if err != nil {
				return nil, err
			}
			frags = append(frags, chainFrags...)
			dev, err := b.diskDeviceFragment(d, topNode, cache)
			if err != nil {
				return nil, err
			}
			frags = append(frags, dev)

		case syntaxDrive:
			objFrags, objs, err := b.resolveSourceObjects(d.DriveAlias, d.Source, 0)
			if err != nil {
				return nil, err
			}
			frags = append(frags, objFrags...)
			drive, err := b.legacyDriveFragment(d, objs, cache)
			if err != nil {
				return nil, err
			}
			frags = append(frags, drive)
			dev, err := b.diskDeviceFragment(d, d.DriveAlias, cache)
			if err != nil {
				return nil, err
			}
			frags = append(frags, dev)
		}
	}
	return frags, nil
}

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

	"github.com/virtforge/qargs/pkg/vmdef"
)

// implicitController reports whether the machine type itself provides the
// bus, so no -device is emitted. The controller still has to exist in the
// definition: devices resolve bus= through its alias.
func implicitController(c *vmdef.ControllerDef) bool {
	switch c.Type {
	case vmdef.ControllerPCIRoot, vmdef.ControllerPCIERoot, vmdef.ControllerIDE:
		return true
	}
	return false
}

func (b *builder) controllerFragment(c *vmdef.ControllerDef) (Fragment, error) {
	var buf *argBuf

	switch c.Type {
	case vmdef.ControllerPCIBridge:
		buf = newArgBuf("pci-bridge")
		buf.addUint("chassis_nr", uint64(c.Index))

	case vmdef.ControllerPCIERootPort:
		model := c.Model
		if model == "" {
			model = "pcie-root-port"
		}
		buf = newArgBuf(model)
		buf.addRaw("port", fmt.Sprintf("0x%x", c.Port))
		buf.addUint("chassis", uint64(c.Chassis))

	case vmdef.ControllerSATA:
		model := c.Model
		if model == "" {
			model = "ahci"
		}
		buf = newArgBuf(model)

	case vmdef.ControllerSCSI:
		model := c.Model
		if model == "" || model == "virtio-scsi" {
			name, extra, err := virtioDeviceName(c.Info.Alias, "virtio-scsi", c.Info.Addr.Kind, c.Variant, b.caps)
			if err != nil {
				return Fragment{}, err
			}
			buf = newArgBuf(name)
			for _, kv := range extra {
				buf.addRaw(kv[0], kv[1])
			}
			if c.IOThread != "" {
				buf.add("iothread", c.IOThread)
			}
			if c.Queues > 0 {
				buf.addUint("num_queues", uint64(c.Queues))
			}
		} else {
			buf = newArgBuf(model)
		}

	case vmdef.ControllerUSB:
		model := c.Model
		if model == "" {
			model = "qemu-xhci"
		}
		buf = newArgBuf(model)
		if c.Ports > 0 {
			buf.addUint("p2", uint64(c.Ports))
			buf.addUint("p3", uint64(c.Ports))
		}

	case vmdef.ControllerVirtioSerial:
		name, extra, err := virtioDeviceName(c.Info.Alias, "virtio-serial", c.Info.Addr.Kind, c.Variant, b.caps)
		if err != nil {
			return Fragment{}, err
		}
		buf = newArgBuf(name)
		for _, kv := range extra {
			buf.addRaw(kv[0], kv[1])
		}
		if c.Ports > 0 {
			buf.addUint("max_ports", uint64(c.Ports))
		}

	default:
		return Fragment{}, enumErr("controller type", c.Type)
	}

	appendDeviceCommon(buf, &c.Info, b.caps)
	if err := appendDeviceAddress(buf, b.vm, c.Info.Alias, c.Info.Addr); err != nil {
		return Fragment{}, err
	}
	return Fragment{Flag: "-device", Value: buf.String()}, nil
}

func (b *builder) buildControllers() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.Controllers {
		c := &b.vm.Controllers[i]
		if implicitController(c) {
			continue
		}
		if c.Info.Alias == "" {
			return nil, internalf("machine %q: controller %s/%d has no alias", b.vm.Name, c.Type, c.Index)
		}
		frag, err := b.controllerFragment(c)
		if err != nil {
			return nil, err
		}
		frags = append(frags, frag)
	}
	return frags, nil
}

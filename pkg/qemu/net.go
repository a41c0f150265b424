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
	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/vmdef"
)

func vhostUserCharAlias(netdevAlias string) string {
	return "char" + netdevAlias
}

// netdevFragments renders the host backend of one interface. vhost-user
// needs an extra chardev carrying the control socket.
func (b *builder) netdevFragments(n *vmdef.NicDef) ([]Fragment, error) {
	var frags []Fragment
	var buf *argBuf

	switch n.Backend {
	case vmdef.NetBackendUser:
		if !b.caps.Has(caps.NetdevUser) {
			return nil, unsupportedf(n.Info.Alias, "user-mode networking not supported")
		}
		buf = newArgBuf("user")

	case vmdef.NetBackendTap:
		buf = newArgBuf("tap")
		if n.IFName == "" {
			return nil, internalf("nic %q: tap backend without ifname", n.Info.Alias)
		}
		buf.add("ifname", n.IFName)
		if n.Script != "" {
			buf.add("script", n.Script)
		} else {
			buf.add("script", "no")
		}
		if n.DownScript != "" {
			buf.add("downscript", n.DownScript)
		} else {
			buf.add("downscript", "no")
		}
		if n.Vhost {
			buf.addOnOff("vhost", true)
		}
		if n.Queues > 1 {
			buf.addUint("queues", uint64(n.Queues))
		}

	case vmdef.NetBackendBridge:
		buf = newArgBuf("bridge")
		if n.Bridge == "" {
			return nil, internalf("nic %q: bridge backend without bridge name", n.Info.Alias)
		}
		buf.add("br", n.Bridge)

	case vmdef.NetBackendVhostUser:
		if !b.caps.Has(caps.VhostUser) {
			return nil, unsupportedf(n.Info.Alias, "vhost-user networking not supported")
		}
		if b.memoryBackendMode() == memBackendNone || !b.vm.Memory.Shared {
			return nil, unsupportedf(n.Info.Alias, "vhost-user networking needs shared memory backing")
		}
		if n.SocketPath == "" {
			return nil, internalf("nic %q: vhost-user backend without socket path", n.Info.Alias)
		}
		charAlias := vhostUserCharAlias(n.NetdevAlias)
		char := newArgBuf("socket")
		char.add("id", charAlias)
		char.add("path", n.SocketPath)
		frags = append(frags, Fragment{Flag: "-chardev", Value: char.String()})

		buf = newArgBuf("vhost-user")
		buf.add("chardev", charAlias)
		if n.Queues > 1 {
			buf.addUint("queues", uint64(n.Queues))
		}

	default:
		return nil, enumErr("net backend", n.Backend)
	}

	buf.add("id", n.NetdevAlias)
	frags = append(frags, Fragment{Flag: "-netdev", Value: buf.String()})
	return frags, nil
}

// nicDeviceFragment renders the guest-side device.
func (b *builder) nicDeviceFragment(n *vmdef.NicDef) (Fragment, error) {
	var buf *argBuf

	if n.Model == "virtio" {
		name, extra, err := virtioDeviceName(n.Info.Alias, "virtio-net", n.Info.Addr.Kind, n.Variant, b.caps)
		if err != nil {
			return Fragment{}, err
		}
		buf = newArgBuf(name)
		for _, kv := range extra {
			buf.addRaw(kv[0], kv[1])
		}
		if n.Queues > 1 {
			// One vector per queue pair plus config and control.
			buf.addOnOff("mq", true)
			buf.addUint("vectors", uint64(2*n.Queues+2))
		}
		if n.MTU > 0 {
			buf.addUint("host_mtu", uint64(n.MTU))
		}
	} else {
		if n.Model == "" {
			return Fragment{}, internalf("nic %q has no model", n.Info.Alias)
		}
		buf = newArgBuf(n.Model)
	}

	buf.add("netdev", n.NetdevAlias)
	if n.MAC != "" {
		buf.addRaw("mac", n.MAC)
	}
	appendDeviceCommon(buf, &n.Info, b.caps)
	if err := appendDeviceAddress(buf, b.vm, n.Info.Alias, n.Info.Addr); err != nil {
		return Fragment{}, err
	}
	return Fragment{Flag: "-device", Value: buf.String()}, nil
}

func (b *builder) buildNetwork() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.Nics {
		n := &b.vm.Nics[i]
		if n.Info.Alias == "" || n.NetdevAlias == "" {
			return nil, internalf("machine %q: nic %d missing alias assignment", b.vm.Name, i)
		}
		back, err := b.netdevFragments(n)
		if err != nil {
			return nil, err
		}
		frags = append(frags, back...)
		dev, err := b.nicDeviceFragment(n)
		if err != nil {
			return nil, err
		}
		frags = append(frags, dev)
	}
	return frags, nil
}

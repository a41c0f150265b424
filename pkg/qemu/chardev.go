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
	"github.com/virtforge/qargs/pkg/vmdef"
)

// chardevFragment renders the host side of one character device. Server
// unix sockets are created here and passed as descriptors so the guest
// never races a slow listener setup.
func (b *builder) chardevFragment(c *vmdef.ChardevDef) (Fragment, error) {
	var buf *argBuf

	switch c.Backend {
	case vmdef.ChardevNull:
		buf = newArgBuf("null")
	case vmdef.ChardevPTY:
		buf = newArgBuf("pty")
	case vmdef.ChardevStdio:
		buf = newArgBuf("stdio")
	case vmdef.ChardevDev:
		if c.Target == vmdef.TargetParallel {
			buf = newArgBuf("parallel")
		} else {
			buf = newArgBuf("serial")
		}
		buf.add("path", c.Path)
	case vmdef.ChardevFile:
		buf = newArgBuf("file")
		buf.add("path", c.Path)
		if c.Append {
			buf.addOnOff("append", true)
		}
	case vmdef.ChardevPipe:
		buf = newArgBuf("pipe")
		buf.add("path", c.Path)
	case vmdef.ChardevUnix:
		buf = newArgBuf("socket")
		if c.Server {
			fd, err := b.br.ListenUnixSocket(c.Path)
			if err != nil {
				return Fragment{}, err
			}
			buf.addUint("fd", uint64(fd))
			buf.addOnOff("server", true)
			buf.addOnOff("wait", c.Wait)
		} else {
			buf.add("path", c.Path)
		}
	case vmdef.ChardevTCP:
		buf = newArgBuf("socket")
		buf.add("host", c.Host)
		buf.addUint("port", uint64(c.Port))
		if c.Server {
			buf.addOnOff("server", true)
			buf.addOnOff("wait", c.Wait)
		}
	case vmdef.ChardevSpice:
		buf = newArgBuf("spicevmc")
		name := c.Name
		if name == "" {
			name = "vdagent"
		}
		buf.add("name", name)
	default:
		return Fragment{}, enumErr("chardev backend", c.Backend)
	}

	buf.add("id", c.ChardevAlias)
	if c.LogFile != "" {
		logPath, err := b.br.OpenLogFile(c.LogFile)
		if err != nil {
			return Fragment{}, err
		}
		buf.addRaw("logfile", logPath)
		buf.addOnOff("logappend", c.Append)
	}
	return Fragment{Flag: "-chardev", Value: buf.String()}, nil
}

// chardevTargetFragment renders the guest-side device fed by the chardev.
func (b *builder) chardevTargetFragment(c *vmdef.ChardevDef) (Fragment, error) {
	var buf *argBuf

	switch c.Target {
	case vmdef.TargetISASerial, vmdef.TargetUSBSerial, vmdef.TargetPCISerial,
		vmdef.TargetSclpConsole, vmdef.TargetParallel:
		buf = newArgBuf(string(c.Target))
	case vmdef.TargetVirtconsole, vmdef.TargetVirtserialport:
		buf = newArgBuf(string(c.Target))
		if c.Target == vmdef.TargetVirtserialport && c.Name != "" {
			buf.add("name", c.Name)
		}
	default:
		return Fragment{}, enumErr("chardev target", c.Target)
	}

	buf.add("chardev", c.ChardevAlias)
	appendDeviceCommon(buf, &c.Info, b.caps)
	if err := appendDeviceAddress(buf, b.vm, c.Info.Alias, c.Info.Addr); err != nil {
		return Fragment{}, err
	}
	return Fragment{Flag: "-device", Value: buf.String()}, nil
}

func (b *builder) buildChardevSet(kind string, defs []vmdef.ChardevDef) ([]Fragment, error) {
	var frags []Fragment
	for i := range defs {
		c := &defs[i]
		if c.Info.Alias == "" || c.ChardevAlias == "" {
			return nil, internalf("machine %q: %s %d missing alias assignment", b.vm.Name, kind, i)
		}
		back, err := b.chardevFragment(c)
		if err != nil {
			return nil, err
		}
		dev, err := b.chardevTargetFragment(c)
		if err != nil {
			return nil, err
		}
		frags = append(frags, back, dev)
	}
	return frags, nil
}

func (b *builder) buildSerials() ([]Fragment, error) {
	return b.buildChardevSet("serial", b.vm.Serials)
}

func (b *builder) buildParallels() ([]Fragment, error) {
	return b.buildChardevSet("parallel", b.vm.Parallels)
}

func (b *builder) buildChannels() ([]Fragment, error) {
	return b.buildChardevSet("channel", b.vm.Channels)
}

func (b *builder) buildConsoles() ([]Fragment, error) {
	return b.buildChardevSet("console", b.vm.Consoles)
}

// redirdevFragments reuses the chardev backends for USB redirection.
func (b *builder) buildRedirdevs() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.Redirdevs {
		r := &b.vm.Redirdevs[i]
		if r.Info.Alias == "" || r.ChardevAlias == "" {
			return nil, internalf("machine %q: redirdev %d missing alias assignment", b.vm.Name, i)
		}
		cd := vmdef.ChardevDef{
			Backend:      r.Backend,
			ChardevAlias: r.ChardevAlias,
			Path:         r.Path,
			Host:         r.Host,
			Port:         r.Port,
		}
		if r.Backend == vmdef.ChardevSpice {
			cd.Name = "usbredir"
		}
		back, err := b.chardevFragment(&cd)
		if err != nil {
			return nil, err
		}
		buf := newArgBuf("usb-redir")
		buf.add("chardev", r.ChardevAlias)
		appendDeviceCommon(buf, &r.Info, b.caps)
		if err := appendDeviceAddress(buf, b.vm, r.Info.Alias, r.Info.Addr); err != nil {
			return nil, err
		}
		frags = append(frags, back, Fragment{Flag: "-device", Value: buf.String()})
	}
	return frags, nil
}

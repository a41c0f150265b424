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

func (b *builder) buildInputs() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.Inputs {
		in := &b.vm.Inputs[i]
		var buf *argBuf

		switch in.Bus {
		case "ps2":
			// Provided by the machine type.
			continue
		case "usb":
			switch in.Type {
			case "mouse":
				buf = newArgBuf("usb-mouse")
			case "tablet":
				buf = newArgBuf("usb-tablet")
			case "keyboard":
				buf = newArgBuf("usb-kbd")
			default:
				return nil, enumErr("usb input type", in.Type)
			}
		case "virtio":
			var base string
			switch in.Type {
			case "mouse":
				base = "virtio-mouse"
			case "tablet":
				base = "virtio-tablet"
			case "keyboard":
				base = "virtio-keyboard"
			case "passthrough":
				base = "virtio-input-host"
			default:
				return nil, enumErr("virtio input type", in.Type)
			}
			name, extra, err := virtioDeviceName(in.Info.Alias, base, in.Info.Addr.Kind, in.Variant, b.caps)
			if err != nil {
				return nil, err
			}
			buf = newArgBuf(name)
			for _, kv := range extra {
				buf.addRaw(kv[0], kv[1])
			}
			if in.Type == "passthrough" {
				if in.EvdevPath == "" {
					return nil, internalf("input %q: passthrough without evdev path", in.Info.Alias)
				}
				fdPath, err := b.br.OpenDeviceNode(in.EvdevPath)
				if err != nil {
					return nil, err
				}
				buf.addRaw("evdev", fdPath)
			}
		default:
			return nil, enumErr("input bus", in.Bus)
		}

		appendDeviceCommon(buf, &in.Info, b.caps)
		if err := appendDeviceAddress(buf, b.vm, in.Info.Alias, in.Info.Addr); err != nil {
			return nil, err
		}
		frags = append(frags, Fragment{Flag: "-device", Value: buf.String()})
	}
	return frags, nil
}

func (b *builder) buildGraphics() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.Graphics {
		g := &b.vm.Graphics[i]
		switch g.Type {
		case "vnc":
			if !b.caps.Has(caps.VNCDisplay) {
				return nil, unsupportedf(b.vm.Name, "VNC display not supported")
			}
			var spec string
			if g.Socket != "" {
				spec = "unix:" + g.Socket
			} else {
				// The -vnc display number is port minus the base.
				spec = fmt.Sprintf("%s:%d", g.Listen, g.Port-5900)
			}
			buf := newArgBuf(spec)
			if g.Password {
				buf.addOnOff("password", true)
			}
			frags = append(frags, Fragment{Flag: "-vnc", Value: buf.String()})

		case "spice":
			if !b.caps.Has(caps.SpiceDisplay) {
				return nil, unsupportedf(b.vm.Name, "SPICE display not supported")
			}
			buf := &argBuf{}
			if g.Port > 0 {
				buf.addUint("port", uint64(g.Port))
			}
			if g.TLSPort > 0 {
				buf.addUint("tls-port", uint64(g.TLSPort))
			}
			if g.Listen != "" {
				buf.add("addr", g.Listen)
			}
			if !g.Password {
				buf.addRaw("disable-ticketing", "on")
			}
			if g.RenderNode != "" {
				buf.add("rendernode", g.RenderNode)
			}
			frags = append(frags, Fragment{Flag: "-spice", Value: buf.String()})

		case "egl-headless":
			if !b.caps.Has(caps.DisplayEGLHeadless) {
				return nil, unsupportedf(b.vm.Name, "EGL headless display not supported")
			}
			buf := newArgBuf("egl-headless")
			if g.RenderNode != "" {
				buf.add("rendernode", g.RenderNode)
			}
			frags = append(frags, Fragment{Flag: "-display", Value: buf.String()})

		case "sdl":
			frags = append(frags, Fragment{Flag: "-display", Value: "sdl"})

		default:
			return nil, enumErr("graphics type", g.Type)
		}
	}
	return frags, nil
}

func (b *builder) buildVideos() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.Videos {
		v := &b.vm.Videos[i]
		var buf *argBuf

		switch v.Model {
		case "none":
			continue
		case "virtio":
			if v.Primary && v.Info.Addr.Kind == vmdef.AddrPCI {
				buf = newArgBuf("virtio-vga")
			} else {
				name, extra, err := virtioDeviceName(v.Info.Alias, "virtio-gpu", v.Info.Addr.Kind, v.Variant, b.caps)
				if err != nil {
					return nil, err
				}
				buf = newArgBuf(name)
				for _, kv := range extra {
					buf.addRaw(kv[0], kv[1])
				}
			}
			if v.Heads > 0 {
				buf.addUint("max_outputs", uint64(v.Heads))
			}
		case "qxl":
			if v.Primary {
				buf = newArgBuf("qxl-vga")
			} else {
				buf = newArgBuf("qxl")
			}
			if v.RAMKiB > 0 {
				buf.addUint("ram_size", uint64(v.RAMKiB)*1024)
			}
			if v.VRAMKiB > 0 {
				buf.addUint("vram_size", uint64(v.VRAMKiB)*1024)
			}
			if v.VGAMemKiB > 0 {
				buf.addUint("vgamem_mb", uint64(v.VGAMemKiB/1024))
			}
			if v.Heads > 0 {
				buf.addUint("max_outputs", uint64(v.Heads))
			}
		case "vga":
			buf = newArgBuf("VGA")
			if v.VRAMKiB > 0 {
				// The property takes whole MiB.
				buf.addUint("vgamem_mb", uint64(v.VRAMKiB/1024))
			}
		case "cirrus":
			buf = newArgBuf("cirrus-vga")
		case "bochs":
			buf = newArgBuf("bochs-display")
			if v.VRAMKiB > 0 {
				buf.addUint("vgamem", uint64(v.VRAMKiB)*1024)
			}
		default:
			return nil, enumErr("video model", v.Model)
		}

		appendDeviceCommon(buf, &v.Info, b.caps)
		if err := appendDeviceAddress(buf, b.vm, v.Info.Alias, v.Info.Addr); err != nil {
			return nil, err
		}
		frags = append(frags, Fragment{Flag: "-device", Value: buf.String()})
	}
	return frags, nil
}

// audioAlias names the -audiodev the sound codecs bind to.
func (b *builder) audioAlias() string {
	if b.vm.Audio != nil && b.vm.Audio.Alias != "" {
		return b.vm.Audio.Alias
	}
	return "audio0"
}

// buildAudio expresses the host audio driver either as a first-class
// -audiodev or through the legacy environment variables, depending on what
// the binary understands. Exactly one of the two forms is emitted.
func (b *builder) buildAudio() ([]Fragment, error) {
	a := b.vm.Audio
	if a == nil {
		return nil, nil
	}

	if b.caps.Has(caps.Audiodev) {
		buf := newArgBuf(string(a.Backend))
		buf.add("id", b.audioAlias())
		switch a.Backend {
		case vmdef.AudioPulse:
			if a.ServerName != "" {
				buf.add("server", a.ServerName)
			}
		case vmdef.AudioOSS:
			if a.Path != "" {
				buf.add("dev", a.Path)
			}
		}
		return []Fragment{{Flag: "-audiodev", Value: buf.String()}}, nil
	}

	b.cmd.Env = append(b.cmd.Env, EnvVar{Name: "QEMU_AUDIO_DRV", Value: string(a.Backend)})
	switch a.Backend {
	case vmdef.AudioPulse:
		if a.ServerName != "" {
			b.cmd.Env = append(b.cmd.Env, EnvVar{Name: "QEMU_PA_SERVER", Value: a.ServerName})
		}
	case vmdef.AudioOSS:
		if a.Path != "" {
			b.cmd.Env = append(b.cmd.Env, EnvVar{Name: "QEMU_OSS_DAC_DEV", Value: a.Path})
		}
	}
	return nil, nil
}

func (b *builder) buildSounds() ([]Fragment, error) {
	var frags []Fragment
	linkAudio := b.vm.Audio != nil && b.caps.Has(caps.Audiodev)

	for i := range b.vm.Sounds {
		s := &b.vm.Sounds[i]
		var hda bool
		var buf *argBuf

		switch s.Model {
		case "ich9":
			buf = newArgBuf("ich9-intel-hda")
			hda = true
		case "ich6":
			buf = newArgBuf("intel-hda")
			hda = true
		case "ac97":
			buf = newArgBuf("AC97")
		case "usb":
			buf = newArgBuf("usb-audio")
		default:
			return nil, enumErr("sound model", s.Model)
		}

		appendDeviceCommon(buf, &s.Info, b.caps)
		if err := appendDeviceAddress(buf, b.vm, s.Info.Alias, s.Info.Addr); err != nil {
			return nil, err
		}
		if !hda && linkAudio {
			buf.add("audiodev", b.audioAlias())
		}
		frags = append(frags, Fragment{Flag: "-device", Value: buf.String()})

		if hda {
			codecModel := s.Codec
			if codecModel == "" {
				codecModel = "hda-duplex"
			}
			codec := newArgBuf(codecModel)
			codec.add("id", s.Info.Alias+"-codec0")
			codec.addRaw("bus", s.Info.Alias+".0")
			codec.addUint("cad", 0)
			if linkAudio {
				codec.add("audiodev", b.audioAlias())
			}
			frags = append(frags, Fragment{Flag: "-device", Value: codec.String()})
		}
	}
	return frags, nil
}

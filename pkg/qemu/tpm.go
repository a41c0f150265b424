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

func (b *builder) buildTPMs() ([]Fragment, error) {
	var frags []Fragment
	for i := range b.vm.TPMs {
		t := &b.vm.TPMs[i]
		if t.Info.Alias == "" {
			return nil, internalf("machine %q: tpm %d missing alias assignment", b.vm.Name, i)
		}
		tpmdevID := "tpm-" + t.Info.Alias

		switch t.Backend {
		case vmdef.TPMEmulator:
			if !b.caps.Has(caps.TPMEmulator) {
				return nil, unsupportedf(t.Info.Alias, "tpm emulator backend not supported")
			}
			if t.SocketPath == "" {
				return nil, internalf("tpm %q: emulator backend without control socket", t.Info.Alias)
			}
			charAlias := "chrtpm-" + t.Info.Alias
			char := newArgBuf("socket")
			char.add("id", charAlias)
			char.add("path", t.SocketPath)
			frags = append(frags, Fragment{Flag: "-chardev", Value: char.String()})

			dev := newArgBuf("emulator")
			dev.add("id", tpmdevID)
			dev.add("chardev", charAlias)
			frags = append(frags, Fragment{Flag: "-tpmdev", Value: dev.String()})

		case vmdef.TPMPassthrough:
			if !b.caps.Has(caps.TPMPassthrough) {
				return nil, unsupportedf(t.Info.Alias, "tpm passthrough backend not supported")
			}
			if t.DevicePath == "" {
				return nil, internalf("tpm %q: passthrough backend without device path", t.Info.Alias)
			}
			fdPath, err := b.br.OpenDeviceNode(t.DevicePath)
			if err != nil {
				return nil, err
			}
			dev := newArgBuf("passthrough")
			dev.add("id", tpmdevID)
			dev.addRaw("path", fdPath)
			frags = append(frags, Fragment{Flag: "-tpmdev", Value: dev.String()})

		default:
			return nil, enumErr("tpm backend", t.Backend)
		}

		buf := newArgBuf(string(t.Model))
		buf.add("tpmdev", tpmdevID)
		appendDeviceCommon(buf, &t.Info, b.caps)
		if err := appendDeviceAddress(buf, b.vm, t.Info.Alias, t.Info.Addr); err != nil {
			return nil, err
		}
		frags = append(frags, Fragment{Flag: "-device", Value: buf.String()})
	}
	return frags, nil
}

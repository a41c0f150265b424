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

	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/vmdef"
)

func (b *builder) buildCPU() ([]Fragment, error) {
	cpu := b.vm.CPU
	if cpu.Model == "" && len(cpu.Flags) == 0 {
		return nil, nil
	}
	model := cpu.Model
	if model == "" {
		model = "qemu64"
	}
	buf := newArgBuf(model)
	for _, f := range cpu.Flags {
		switch f.Policy {
		case vmdef.FlagRequire:
			buf.addOnOff(f.Name, true)
		case vmdef.FlagDisable:
			buf.addOnOff(f.Name, false)
		default:
			return nil, enumErr("cpu flag policy", f.Policy)
		}
	}
	return []Fragment{{Flag: "-cpu", Value: buf.String()}}, nil
}

func (b *builder) buildSMP() ([]Fragment, error) {
	cpu := b.vm.CPU
	vcpus := cpu.VCPUs
	if vcpus == 0 {
		vcpus = 1
	}
	buf := newArgBuf(fmt.Sprintf("%d", vcpus))
	if cpu.Sockets > 0 {
		buf.addUint("sockets", uint64(cpu.Sockets))
	}
	if cpu.Dies > 0 {
		buf.addUint("dies", uint64(cpu.Dies))
	}
	if cpu.Cores > 0 {
		buf.addUint("cores", uint64(cpu.Cores))
	}
	if cpu.Threads > 0 {
		buf.addUint("threads", uint64(cpu.Threads))
	}
	if cpu.MaxCPUs > 0 {
		if cpu.MaxCPUs < vcpus {
			return nil, internalf("machine %q: maxcpus %d below vcpu count %d", b.vm.Name, cpu.MaxCPUs, vcpus)
		}
		buf.addUint("maxcpus", uint64(cpu.MaxCPUs))
	}
	return []Fragment{{Flag: "-smp", Value: buf.String()}}, nil
}

func (b *builder) buildIOThreads() ([]Fragment, error) {
	if len(b.vm.IOThreads) == 0 {
		return nil, nil
	}
	if !b.caps.Has(caps.IOThreads) {
		return nil, unsupportedf(b.vm.Name, "iothreads not supported")
	}
	var frags []Fragment
	for _, iot := range b.vm.IOThreads {
		if iot.ID == "" {
			return nil, internalf("machine %q: iothread without id", b.vm.Name)
		}
		p := NewProps("iothread", iot.ID)
		rendered, err := p.Render(b.caps)
		if err != nil {
			return nil, err
		}
		frags = append(frags, Fragment{Flag: "-object", Value: rendered})
	}
	return frags, nil
}

// numaCellBackendID names the memory backend of one NUMA cell.
func numaCellBackendID(id uint) string {
	return fmt.Sprintf("ram-node%d", id)
}

func (b *builder) buildNUMA() ([]Fragment, error) {
	if len(b.vm.NUMA) == 0 {
		return nil, nil
	}
	var frags []Fragment
	useMemdev := b.caps.Has(caps.NUMAMemdev)
	for _, cell := range b.vm.NUMA {
		if useMemdev {
			backendID := numaCellBackendID(cell.ID)
			p, err := b.memoryBackendProps(backendID, uint64(cell.MemKiB), cellBackendTuning(&cell))
			if err != nil {
				return nil, err
			}
			rendered, err := p.Render(b.caps)
			if err != nil {
				return nil, err
			}
			frags = append(frags, Fragment{Flag: "-object", Value: rendered})
		}

		buf := newArgBuf("node")
		buf.addUint("nodeid", uint64(cell.ID))
		for _, cpus := range strings.Split(cell.CPUSet, ",") {
			if cpus != "" {
				buf.addRaw("cpus", cpus)
			}
		}
		if useMemdev {
			buf.addRaw("memdev", numaCellBackendID(cell.ID))
		} else {
			buf.addUint("mem", uint64(cell.MemKiB/1024))
		}
		frags = append(frags, Fragment{Flag: "-numa", Value: buf.String()})
	}
	return frags, nil
}

// cellBackendTuning narrows the machine-wide memory tuning to one cell.
func cellBackendTuning(cell *vmdef.NUMACell) backendTuning {
	t := backendTuning{}
	switch cell.MemAccess {
	case "shared":
		shared := true
		t.shared = &shared
	case "private":
		shared := false
		t.shared = &shared
	}
	if cell.Discard != nil {
		t.discard = cell.Discard
	}
	return t
}

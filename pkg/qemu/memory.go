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

	log "github.com/sirupsen/logrus"

	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/vmdef"
)

// memBackendMode is the resolved main-memory backend choice. The choice is
// made once, in memoryBackendMode, and every phase that cares consults the
// same answer; the machine phase and the memory phase must never disagree.
type memBackendMode int

const (
	// memBackendNone keeps guest RAM implicit: plain -m, no object.
	memBackendNone memBackendMode = iota
	memBackendRAM
	memBackendFile
	memBackendMemfd
)

func (m memBackendMode) qomType() string {
	switch m {
	case memBackendRAM:
		return "memory-backend-ram"
	case memBackendFile:
		return "memory-backend-file"
	case memBackendMemfd:
		return "memory-backend-memfd"
	}
	return ""
}

// mainMemoryID is the backend object id replacing the machine's default RAM.
// The id must match what the machine type would have named its RAM so that
// migration between the implicit and explicit layouts stays possible.
func (b *builder) mainMemoryID() string {
	return b.caps.DefaultRAMID(b.vm.MachineType)
}

// memoryBackendMode decides how guest RAM is backed. Decision order:
//
//	explicit source "file"       -> file
//	explicit source "memfd"      -> memfd
//	explicit source "anonymous"  -> ram when tuning needs an object, else none
//	hugepages, no path pinned    -> memfd when the binary can, else file
//	hugepages with pinned path   -> file
//	shared plain pages           -> memfd when the binary can, else file
//	NUMA cells with memdev       -> ram
//	discard-data requested       -> ram
//	otherwise                    -> none
func (b *builder) memoryBackendMode() memBackendMode {
	m := &b.vm.Memory
	hugepages := m.HugepageSizeKiB > 0 || m.HugepagePath != ""

	switch m.Source {
	case vmdef.MemSourceFile:
		return memBackendFile
	case vmdef.MemSourceMemfd:
		return memBackendMemfd
	case vmdef.MemSourceAnonymous:
		if m.Shared || m.Discard || (len(b.vm.NUMA) > 0 && b.caps.Has(caps.NUMAMemdev)) {
			return memBackendRAM
		}
		return memBackendNone
	}

	switch {
	case hugepages && m.HugepagePath == "" &&
		b.caps.Has(caps.MemoryBackendMemfd) && b.caps.Has(caps.MemfdHugetlb):
		return memBackendMemfd
	case hugepages:
		return memBackendFile
	case m.Shared && b.caps.Has(caps.MemoryBackendMemfd):
		return memBackendMemfd
	case m.Shared:
		return memBackendFile
	case len(b.vm.NUMA) > 0 && b.caps.Has(caps.NUMAMemdev):
		return memBackendRAM
	case m.Discard:
		return memBackendRAM
	}
	return memBackendNone
}

// backendTuning carries the per-object knobs of one memory backend. The
// machine-wide tuning seeds it; NUMA cells may override access and discard.
type backendTuning struct {
	path            string
	hugepageSizeKiB uint64
	shared          *bool
	prealloc        bool
	discard         *bool
}

func (b *builder) machineTuning() backendTuning {
	m := &b.vm.Memory
	t := backendTuning{
		path:            m.HugepagePath,
		hugepageSizeKiB: uint64(m.HugepageSizeKiB),
		prealloc:        m.Prealloc,
	}
	if m.Shared {
		shared := true
		t.shared = &shared
	}
	if m.Discard {
		discard := true
		t.discard = &discard
	}
	return t
}

// memoryBackendProps builds the -object properties of one memory backend.
// Size is rendered in bytes; the definition carries KiB.
func (b *builder) memoryBackendProps(id string, sizeKiB uint64, cell backendTuning) (*Props, error) {
	mode := b.memoryBackendMode()
	if mode == memBackendNone {
		mode = memBackendRAM
	}

	switch mode {
	case memBackendFile:
		if !b.caps.Has(caps.MemoryBackendFile) {
			return nil, unsupportedf("", "file-backed memory not supported by this binary")
		}
	case memBackendMemfd:
		if !b.caps.Has(caps.MemoryBackendMemfd) {
			return nil, unsupportedf("", "memfd-backed memory not supported by this binary")
		}
		if b.vm.Memory.HugepageSizeKiB > 0 && !b.caps.Has(caps.MemfdHugetlb) {
			return nil, unsupportedf("", "hugetlb on memfd memory not supported by this binary")
		}
	}

	machine := b.machineTuning()
	tuning := machine
	if cell.shared != nil {
		tuning.shared = cell.shared
	}
	if cell.discard != nil {
		tuning.discard = cell.discard
	}

	p := NewProps(mode.qomType(), id)
	p.SetUint("size", sizeKiB*1024)

	switch mode {
	case memBackendFile:
		path := tuning.path
		if path == "" {
			return nil, internalf("machine %q: file memory backend %q without a path", b.vm.Name, id)
		}
		p.SetString("mem-path", path)
	case memBackendMemfd:
		if tuning.hugepageSizeKiB > 0 {
			p.SetBool("hugetlb", true)
			p.SetUint("hugetlbsize", tuning.hugepageSizeKiB*1024)
		}
	}
	if tuning.shared != nil {
		p.SetBool("share", *tuning.shared)
	}
	if tuning.prealloc {
		p.SetBool("prealloc", true)
	}
	if tuning.discard != nil && mode != memBackendMemfd {
		p.SetBool("discard-data", *tuning.discard)
	}
	return p, nil
}

func (b *builder) buildMemory() ([]Fragment, error) {
	m := &b.vm.Memory
	var frags []Fragment

	// Hotpluggable layouts keep the size in KiB so slots and maxmem line
	// up exactly; the simple layout uses whole MiB.
	if m.MaxKiB > 0 {
		if m.Slots == 0 {
			return nil, internalf("machine %q: maxmem without memory slots", b.vm.Name)
		}
		buf := newArgBuf(fmt.Sprintf("size=%dk", m.SizeKiB))
		buf.addUint("slots", uint64(m.Slots))
		buf.addRaw("maxmem", fmt.Sprintf("%dk", m.MaxKiB))
		frags = append(frags, Fragment{Flag: "-m", Value: buf.String()})
	} else {
		frags = append(frags, Fragment{Flag: "-m", Value: fmt.Sprintf("%d", m.SizeKiB/1024)})
	}

	if m.Locked {
		if b.caps.Has(caps.OvercommitMemLock) {
			frags = append(frags, Fragment{Flag: "-overcommit", Value: "mem-lock=on"})
		} else {
			frags = append(frags, Fragment{Flag: "-realtime", Value: "mlock=on"})
		}
	}

	mode := b.memoryBackendMode()
	if mode == memBackendNone || len(b.vm.NUMA) > 0 {
		// NUMA cells own their backends; see buildNUMA.
		return frags, nil
	}

	if !b.caps.Has(caps.MachineMemoryBackend) {
		// The machine type cannot take an explicit backend. File memory
		// still works through the legacy flags; anything subtler cannot
		// be expressed.
		if mode == memBackendFile {
			frags = append(frags, Fragment{Flag: "-mem-path", Value: b.machineTuning().path})
			if m.Prealloc {
				frags = append(frags, Fragment{Flag: "-mem-prealloc"})
			}
			return frags, nil
		}
		if mode == memBackendMemfd || m.Shared {
			return nil, unsupportedf("", "shared or memfd memory needs machine memory-backend support")
		}
		log.Debugf("machine %q: binary cannot take explicit memory backend, using implicit RAM", b.vm.Name)
		return frags, nil
	}

	p, err := b.memoryBackendProps(b.mainMemoryID(), uint64(m.SizeKiB), backendTuning{})
	if err != nil {
		return nil, err
	}
	rendered, err := p.Render(b.caps)
	if err != nil {
		return nil, err
	}
	frags = append(frags, Fragment{Flag: "-object", Value: rendered})
	return frags, nil
}

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

// Package qemu turns a fully resolved machine definition plus a capability
// set into the ordered argument list, inherited descriptors and environment
// of an emulator process. Generation is a single synchronous pass; it fails
// fast on the first builder error and never returns a partial command.
package qemu

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/vmdef"
)

// timeNow is stubbed by tests that need a fixed clock basis.
var timeNow = time.Now

// EnvVar is one environment variable for the child process.
type EnvVar struct {
	Name  string
	Value string
}

// Cmd is the terminal artifact of a generation pass: the argv tail for the
// emulator binary, the descriptors the child inherits, extra environment,
// and the absolute clock basis computed from a variable-offset clock (a
// side output; the definition itself is never touched).
type Cmd struct {
	Args []string
	FDs  []PassedFD
	Env  []EnvVar

	// ClockBasisSec is non-zero when the definition uses a variable
	// clock offset; it is the absolute UTC basis the arguments encode.
	ClockBasisSec int64
}

func (c *Cmd) addFragment(f Fragment) {
	c.Args = append(c.Args, f.Tokens()...)
}

func (c *Cmd) addFragments(fs []Fragment) {
	for _, f := range fs {
		c.addFragment(f)
	}
}

// builder carries the per-pass state shared by the subsystem builders.
type builder struct {
	vm   *vmdef.VMDef
	caps caps.Caps
	br   *Broker
	cmd  *Cmd
}

type phase struct {
	name string
	fn   func(*builder) ([]Fragment, error)
}

// phases is the mandated top-level emission order. It is a correctness
// contract: later entries reference aliases earlier entries introduced, so
// the assembler never reorders or skips ahead.
var phases = []phase{
	{"name", (*builder).buildName},
	{"compat", (*builder).buildCompat},
	{"masterkey", (*builder).buildMasterKey},
	{"firmware", (*builder).buildFirmware},
	{"machine", (*builder).buildMachine},
	{"cpu", (*builder).buildCPU},
	{"memory", (*builder).buildMemory},
	{"smp", (*builder).buildSMP},
	{"iothreads", (*builder).buildIOThreads},
	{"numa", (*builder).buildNUMA},
	{"uuid", (*builder).buildUUID},
	{"smbios", (*builder).buildSMBIOS},
	{"boot", (*builder).buildBoot},
	{"clock", (*builder).buildClock},
	{"power", (*builder).buildPower},
	{"fwcfg", (*builder).buildFWCfg},
	{"controllers", (*builder).buildControllers},
	{"storage", (*builder).buildStorage},
	{"filesystems", (*builder).buildFilesystems},
	{"network", (*builder).buildNetwork},
	{"serials", (*builder).buildSerials},
	{"parallels", (*builder).buildParallels},
	{"channels", (*builder).buildChannels},
	{"consoles", (*builder).buildConsoles},
	{"tpm", (*builder).buildTPMs},
	{"input", (*builder).buildInputs},
	{"audio", (*builder).buildAudio},
	{"graphics", (*builder).buildGraphics},
	{"video", (*builder).buildVideos},
	{"sound", (*builder).buildSounds},
	{"watchdog", (*builder).buildWatchdogs},
	{"redirdev", (*builder).buildRedirdevs},
	{"hostdev", (*builder).buildHostdevs},
	{"balloon", (*builder).buildBalloon},
	{"rng", (*builder).buildRNGs},
	{"nvram", (*builder).buildNVRAM},
	{"vmcoreinfo", (*builder).buildVMCoreInfo},
	{"launchsecurity", (*builder).buildLaunchSecurity},
	{"freeze", (*builder).buildFreeze},
	{"sandbox", (*builder).buildSandbox},
	{"panic", (*builder).buildPanics},
	{"shmem", (*builder).buildShmems},
	{"vsock", (*builder).buildVsock},
	{"incoming", (*builder).buildIncoming},
}

// BuildCommand runs one generation pass. The definition is read-only; the
// capability set decides every syntax alternation; the broker owns every
// descriptor acquired along the way. On any error the pass aborts, the
// broker rolls back, and no partial command is returned. The context is
// checked between subsystem phases so a caller-imposed deadline cuts a pass
// short at the next boundary.
func BuildCommand(ctx context.Context, vm *vmdef.VMDef, c caps.Caps, br *Broker) (*Cmd, error) {
	if br == nil {
		br = NewBroker()
	}
	b := &builder{vm: vm, caps: c, br: br, cmd: &Cmd{}}

	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			br.CloseAll()
			return nil, err
		}
		frags, err := ph.fn(b)
		if err != nil {
			log.Debugf("command generation for %q failed in %s phase: %s", vm.Name, ph.name, err)
			br.CloseAll()
			return nil, err
		}
		b.cmd.addFragments(frags)
	}

	// Every /dev/fdset/N reference a phase emitted needs its backing
	// descriptor attached to that set.
	for _, e := range br.FDSets() {
		b.cmd.addFragment(Fragment{Flag: "-add-fd", Value: fmt.Sprintf("fd=%d,set=%d", e.ChildFD, e.Set)})
	}

	b.cmd.FDs = br.Passed()
	return b.cmd, nil
}

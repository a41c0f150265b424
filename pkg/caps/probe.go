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
package caps

import (
	"os/exec"
	"strings"

	"github.com/msoap/byline"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// deviceFlagNames maps device model names reported by `-device help` to the
// flags their presence implies.
var deviceFlagNames = map[string]Flag{
	"virtio-blk-pci-transitional": VirtioTransitional,
	"vhost-vsock-pci":             VhostVsock,
	"vhost-user-fs-pci":           VhostUserFS,
	"vmcoreinfo":                  VMCoreInfo,
	"pvpanic":                     PVPanic,
	"pvpanic-pci":                 PVPanicPCI,
	"tpm-tis":                     TPMEmulator,
}

// helpFlagNames maps top-level option names reported by `-help` to flags.
var helpFlagNames = map[string]Flag{
	"-blockdev":   Blockdev,
	"-audiodev":   Audiodev,
	"-sandbox":    Sandbox,
	"-fw_cfg":     FWCfgFile,
	"-smbios":     SMBiosType1,
	"-overcommit": OvercommitMemLock,
}

// Probe runs the emulator binary's help output through a line scan and
// derives a best-effort capability set. It exists for interactive tooling;
// production callers are expected to supply a Caps value computed by their
// own capability subsystem.
func Probe(binary string) (Caps, error) {
	var flags []Flag

	helpFlags, err := scanOutput(binary, []string{"-help"}, func(line string) (Flag, bool) {
		for opt, f := range helpFlagNames {
			if strings.HasPrefix(line, opt+" ") || strings.HasPrefix(line, opt+"\t") {
				return f, true
			}
		}
		return "", false
	})
	if err != nil {
		return Caps{}, err
	}
	flags = append(flags, helpFlags...)

	devFlags, err := scanOutput(binary, []string{"-device", "help"}, func(line string) (Flag, bool) {
		for dev, f := range deviceFlagNames {
			if strings.Contains(line, `"`+dev+`"`) {
				return f, true
			}
		}
		return "", false
	})
	if err != nil {
		return Caps{}, err
	}
	flags = append(flags, devFlags...)

	log.Debugf("probed %d capability flags from %s", len(flags), binary)
	return New(flags...), nil
}

func scanOutput(binary string, args []string, match func(string) (Flag, bool)) ([]Flag, error) {
	cmd := exec.Command(binary, args...)
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "Failed piping %s %v", binary, args)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "Failed running %s %v", binary, args)
	}

	var flags []Flag
	err = byline.NewReader(stdoutPipe).Each(
		func(line []byte) {
			if f, ok := match(strings.TrimSpace(string(line))); ok {
				flags = append(flags, f)
			}
		}).Discard()
	if err != nil {
		cmd.Wait()
		return nil, errors.Wrapf(err, "Failed reading %s output", binary)
	}
	if err := cmd.Wait(); err != nil {
		return nil, errors.Wrapf(err, "%s %v exited", binary, args)
	}
	return flags, nil
}

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
package api

import (
	"context"

	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/qemu"
	"github.com/virtforge/qargs/pkg/vmdef"
)

// SynthesizeRequest asks for the command line of one definition. The
// capability set comes either from an explicit flag list or from probing
// Binary; naming both is allowed and the explicit list wins.
type SynthesizeRequest struct {
	Definition   vmdef.VMDef `json:"definition"`
	Binary       string      `json:"binary,omitempty"`
	Capabilities []string    `json:"capabilities,omitempty"`
}

// SynthesizeResponse carries the generated command. Descriptor side
// channels cannot cross the API boundary, so the daemon builds in dry-run
// mode and reports how many descriptors a local launch would pass.
type SynthesizeResponse struct {
	Argv          []string      `json:"argv"`
	Env           []qemu.EnvVar `json:"env,omitempty"`
	PassedFDs     int           `json:"passedfds"`
	ClockBasisSec int64         `json:"clockbasis,omitempty"`
}

// CapabilitiesResponse lists the probed flags of one binary.
type CapabilitiesResponse struct {
	Binary string   `json:"binary"`
	Flags  []string `json:"flags"`
}

// synthesize builds the command for a request, releasing every acquired
// descriptor before returning: the daemon answers questions, it does not
// hold launch resources.
func (c *Controller) synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if err := req.Definition.Validate(); err != nil {
		return nil, err
	}

	var capSet caps.Caps
	if len(req.Capabilities) > 0 {
		capSet = caps.FromNames(req.Capabilities)
	} else {
		probed, err := c.capsFor(req.Binary)
		if err != nil {
			return nil, err
		}
		capSet = probed
	}

	br := qemu.NewBroker()
	cmd, err := qemu.BuildCommand(ctx, &req.Definition, capSet, br)
	if err != nil {
		return nil, err
	}
	defer br.CloseAll()

	resp := &SynthesizeResponse{
		Argv:          cmd.Args,
		Env:           cmd.Env,
		PassedFDs:     len(cmd.FDs),
		ClockBasisSec: cmd.ClockBasisSec,
	}
	return resp, nil
}

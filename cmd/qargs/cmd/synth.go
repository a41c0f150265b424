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
package cmd

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/virtforge/qargs/pkg/api"
	"github.com/virtforge/qargs/pkg/client"
	"github.com/virtforge/qargs/pkg/qemu"
	"github.com/virtforge/qargs/pkg/vmdef"
)

// synthCmd represents the synth command
var synthCmd = &cobra.Command{
	Use:   "synth <definition.yaml>",
	Args:  cobra.MinimumNArgs(1),
	Short: "generate the emulator command line for a machine definition",
	Long: `Generate the full emulator argument list for a machine definition.
By default the definition is processed locally; with --remote the daemon
performs the generation instead.`,
	RunE: doSynth,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmd.SilenceUsage = true
	},
}

func doSynth(cmd *cobra.Command, args []string) error {
	fileName := args[0]
	def, err := vmdef.LoadDef(fileName)
	if err != nil {
		return fmt.Errorf("Failed to load definition from %q: %s", fileName, err)
	}

	remote, _ := cmd.Flags().GetBool("remote")
	if remote {
		capNames, _ := cmd.Flags().GetStringSlice("capability")
		request := api.SynthesizeRequest{
			Definition:   *def,
			Binary:       cmd.Flag("binary").Value.String(),
			Capabilities: capNames,
		}
		resp, err := client.Synthesize(request)
		if err != nil {
			return fmt.Errorf("Failed to synthesize '%s' remotely: %s", def.Name, err)
		}
		printCommand(cmd, resp.Argv, resp.Env, resp.ClockBasisSec)
		return nil
	}

	capSet, err := capsFromFlags(cmd)
	if err != nil {
		return err
	}

	br := qemu.NewBroker()
	defer br.CloseAll()
	genCmd, err := qemu.BuildCommand(context.Background(), def, capSet, br)
	if err != nil {
		return fmt.Errorf("Failed to synthesize '%s': %s", def.Name, err)
	}
	if len(genCmd.FDs) > 0 {
		log.Infof("Command expects %d inherited descriptor(s); it must be launched by a process that passes them", len(genCmd.FDs))
	}
	printCommand(cmd, genCmd.Args, genCmd.Env, genCmd.ClockBasisSec)
	return nil
}

func printCommand(cmd *cobra.Command, argv []string, env []qemu.EnvVar, clockBasisSec int64) {
	for _, e := range env {
		fmt.Printf("%s=%s \\\n", e.Name, shellQuote(e.Value))
	}
	binary := cmd.Flag("binary").Value.String()
	oneLine, _ := cmd.Flags().GetBool("oneline")
	if oneLine {
		tokens := make([]string, 0, len(argv)+1)
		tokens = append(tokens, binary)
		for _, a := range argv {
			tokens = append(tokens, shellQuote(a))
		}
		fmt.Println(strings.Join(tokens, " "))
	} else {
		fmt.Printf("%s \\\n", binary)
		for i := 0; i < len(argv); {
			// group each flag with its value on one line
			line := shellQuote(argv[i])
			i++
			if i < len(argv) && !strings.HasPrefix(argv[i], "-") {
				line = line + " " + shellQuote(argv[i])
				i++
			}
			if i < len(argv) {
				line = line + " \\"
			}
			fmt.Printf("    %s\n", line)
		}
	}
	if clockBasisSec != 0 {
		log.Infof("Guest clock basis: %d (seconds since epoch)", clockBasisSec)
	}
}

func init() {
	rootCmd.AddCommand(synthCmd)
	addCapabilityFlags(synthCmd)
	synthCmd.PersistentFlags().BoolP("remote", "r", false, "synthesize via the qargsd daemon")
	synthCmd.PersistentFlags().BoolP("oneline", "1", false, "print the command on a single line")
}

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
	"fmt"

	table "github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/virtforge/qargs/pkg/client"
)

// capsCmd represents the capabilities command
var capsCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "show the capability flags of an emulator binary",
	Long:  `Probe an emulator binary (locally or via the daemon) and list its capability flags.`,
	RunE:  doCaps,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmd.SilenceUsage = true
	},
}

func doCaps(cmd *cobra.Command, args []string) error {
	binary := cmd.Flag("binary").Value.String()
	var names []string

	remote, _ := cmd.Flags().GetBool("remote")
	if remote {
		capResp, err := client.GetCapabilities(binary)
		if err != nil {
			return fmt.Errorf("Failed to get capabilities of '%s' from daemon: %s", binary, err)
		}
		binary = capResp.Binary
		names = capResp.Flags
	} else {
		capSet, err := capsFromFlags(cmd)
		if err != nil {
			return err
		}
		names = capSet.Names()
	}

	fmt.Printf("Capabilities of %s:\n", binary)
	tbl := table.New("Flag")
	tbl.AddRow("----")
	for _, name := range names {
		tbl.AddRow(name)
	}
	tbl.Print()
	return nil
}

func init() {
	rootCmd.AddCommand(capsCmd)
	addCapabilityFlags(capsCmd)
	capsCmd.PersistentFlags().BoolP("remote", "r", false, "query the qargsd daemon instead of probing locally")
}

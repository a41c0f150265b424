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
	"strings"

	table "github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/virtforge/qargs/pkg/client"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list all of the stored machine definitions",
	Long:  `list all of the machine definitions stored by the daemon`,
	Run:   doList,
}

func doList(cmd *cobra.Command, args []string) {
	defs, err := client.GetDefinitions()
	if err != nil {
		panic(err)
	}
	tbl := table.New("Name", "UUID", "Machine", "Memory (KiB)", "VCPUs")
	tbl.AddRow("----", "----", "-------", "------------", "-----")
	for _, def := range defs {
		tbl.AddRow(def.Name, def.UUID, def.MachineType, def.Memory.SizeKiB, def.CPU.VCPUs)
	}
	tbl.Print()
}

func init() {
	rootCmd.AddCommand(listCmd)
	table.DefaultHeaderFormatter = func(format string, vals ...interface{}) string {
		return strings.ToUpper(fmt.Sprintf(format, vals...))
	}
}

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

	"github.com/spf13/cobra"

	"github.com/virtforge/qargs/pkg/client"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:        "delete <definition name>",
	Args:       cobra.MinimumNArgs(1),
	ArgAliases: []string{"defName"},
	Short:      "delete the specified machine definition",
	Long:       `delete the specified machine definition if it exists`,
	Run:        doDelete,
}

func doDelete(cmd *cobra.Command, args []string) {
	defName := args[0]
	if err := client.DeleteDefinition(defName); err != nil {
		fmt.Printf("Failed to delete definition '%s': %s\n", defName, err)
		panic(err)
	}
	fmt.Printf("Deleted definition '%s'\n", defName)
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

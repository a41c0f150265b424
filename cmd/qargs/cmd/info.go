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
	"net/http"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/virtforge/qargs/pkg/client"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <definition name>",
	Args:  cobra.MinimumNArgs(1),
	Short: "show the specified machine definition",
	Long:  `show the specified machine definition`,
	RunE:  doInfo,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmd.SilenceUsage = true
	},
}

func doInfo(cmd *cobra.Command, args []string) error {
	defName := args[0]
	def, status, err := client.GetDefinition(defName)
	if err != nil {
		return fmt.Errorf("Error getting definition '%s': %s", defName, err)
	}
	if status != http.StatusOK {
		if status == http.StatusNotFound {
			return fmt.Errorf("No such definition '%s'", defName)
		}
		return fmt.Errorf("Error: %d %v", status, err)
	}
	defBytes, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("Failed to marshal response: %v", err)
	}
	fmt.Printf("%s", defBytes)
	return nil
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

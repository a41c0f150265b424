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
	"os"

	"github.com/lxc/lxd/shared"
	"github.com/lxc/lxd/shared/termios"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v2"

	"github.com/virtforge/qargs/pkg/client"
	"github.com/virtforge/qargs/pkg/vmdef"
)

// editCmd represents the edit command
var editCmd = &cobra.Command{
	Use:        "edit <definition name>",
	Args:       cobra.MinimumNArgs(1),
	ArgAliases: []string{"defName"},
	Short:      "edit a stored machine definition",
	Long:       `Read the machine definition into an editor for modification`,
	Run:        doEdit,
}

func doEdit(cmd *cobra.Command, args []string) {
	defName := args[0]
	editDef, status, err := client.GetDefinition(defName)
	if err != nil || status != http.StatusOK {
		panic(fmt.Sprintf("Failed to find definition '%s'", defName))
	}

	onTerm := termios.IsTerminal(unix.Stdin)

	defBytes, err := yaml.Marshal(editDef)
	if err != nil {
		panic(fmt.Sprintf("Error marshalling definition '%s'", defName))
	}

	defBytes, err = shared.TextEditor("", defBytes)
	if err != nil {
		panic("Error calling editor")
	}

	newDef := vmdef.VMDef{Name: defName}
	for {
		err = yaml.Unmarshal(defBytes, &newDef)
		if err == nil {
			if vErr := newDef.Validate(); vErr == nil {
				break
			} else {
				err = vErr
			}
		}
		if !onTerm {
			panic(fmt.Sprintf("Error parsing definition: %s", err))
		}
		fmt.Printf("Error parsing yaml: %v\n", err)
		fmt.Println("Press enter to re-open editor, or ctrl-c to abort")
		_, rErr := os.Stdin.Read(make([]byte, 1))
		if rErr != nil {
			panic(fmt.Sprintf("Error reading reply: %s", rErr))
		}
		defBytes, err = shared.TextEditor("", defBytes)
		if err != nil {
			panic(fmt.Sprintf("Error calling editor: %s", err))
		}
	}

	err = client.PutDefinition(newDef)
	if err != nil {
		panic(err.Error())
	}
}

func init() {
	rootCmd.AddCommand(editCmd)
}

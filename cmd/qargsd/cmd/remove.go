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
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/virtforge/qargs/pkg/api"
)

// removeCmd represents the remove command
var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove systemd --user unit files",
	Long:  `Remove systemd unit files for the qargsd service with socket activation.`,
	RunE:  doRemove,
}

func doRemove(cmd *cobra.Command, args []string) error {
	hostMode, _ := cmd.Flags().GetBool("host")
	serviceUnit, socketUnit, err := unitFilesPresent(hostMode)
	if err != nil {
		return err
	}
	removed := false
	if api.PathExists(serviceUnit) {
		log.Infof("Removing unit %s", serviceUnit)
		if err := os.Remove(serviceUnit); err != nil {
			return fmt.Errorf("Failed to remove %q: %s", serviceUnit, err)
		}
		removed = true
		out, err := systemctl(hostMode, "stop", QargsdServiceUnit)
		if err != nil {
			return fmt.Errorf("Failed to stop unit %s: %s: %s", QargsdServiceUnit, string(out), err)
		}
	}
	if api.PathExists(socketUnit) {
		log.Infof("Removing unit %s", socketUnit)
		if err := os.Remove(socketUnit); err != nil {
			return fmt.Errorf("Failed to remove %q: %s", socketUnit, err)
		}
		removed = true
		log.Infof("Stopping unit %s", socketUnit)
		out, err := systemctl(hostMode, "stop", QargsdSocketUnit)
		if err != nil {
			return fmt.Errorf("Failed to stop unit %s: %s: %s", QargsdSocketUnit, string(out), err)
		}
	}
	if removed {
		log.Infof("Reloading systemd units")
		out, err := systemctl(hostMode, "daemon-reload")
		if err != nil {
			return fmt.Errorf("Failed to reload units: %s: %s", string(out), err)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(removeCmd)
	removeCmd.PersistentFlags().BoolP("host", "H", false, "remove systemd units in /etc/systemd/system instead of systemd --user path")
}

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
	"os/exec"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/virtforge/qargs/pkg/api"
)

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install systemd --user unit files",
	Long:  `Install systemd unit files for the qargsd service with socket activation.`,
	RunE:  doInstall,
}

func doInstall(cmd *cobra.Command, args []string) error {
	hostMode, _ := cmd.Flags().GetBool("host")
	serviceUnit, socketUnit, err := unitFilesPresent(hostMode)
	if err != nil {
		return err
	}
	customService := cmd.Flag("service-template").Value.String()
	serviceTemplate := getTemplate(customService, QargsdServiceTemplate)
	customSocket := cmd.Flag("socket-template").Value.String()
	socketTemplate := getTemplate(customSocket, QargsdSocketTemplate)

	// check if files exist and exit asking for --force flag
	overwrite, _ := cmd.Flags().GetBool("force")
	if api.PathExists(serviceUnit) && api.PathExists(socketUnit) {
		log.Infof("qargsd service and socket units already exist: %q, %q", serviceUnit, socketUnit)
		if !overwrite {
			return nil
		}
		log.Infof("--force specified, overwriting files")
	}
	log.Infof("qargsd missing service and/or socket unit(s), installing..")
	if overwrite || !api.PathExists(serviceUnit) {
		if err := installTemplate(serviceTemplate, serviceUnit); err != nil {
			return fmt.Errorf("Failed to render template to %q: %s", serviceUnit, err)
		}
	}
	if overwrite || !api.PathExists(socketUnit) {
		if err := installTemplate(socketTemplate, socketUnit); err != nil {
			return fmt.Errorf("Failed to render template to %q: %s", socketUnit, err)
		}
	}

	out, err := systemctl(hostMode, "daemon-reload")
	if err != nil {
		return fmt.Errorf("Failed to 'daemon-reload' systemd: %s: %s", string(out), err)
	}

	out, err = systemctl(hostMode, "start", QargsdSocketUnit)
	if err != nil {
		return fmt.Errorf("Failed to start unit %s: %s: %s", QargsdSocketUnit, string(out), err)
	}

	log.Infof("Checking qargsd.socket status...")
	statusArgs := []string{"--no-pager", "status", QargsdSocketUnit}
	if !hostMode {
		statusArgs = append([]string{"--user"}, statusArgs...)
	}
	runCmd := exec.Command("systemctl", statusArgs...)
	runCmd.Stdout = os.Stdout
	if err := runCmd.Run(); err != nil {
		return fmt.Errorf("Failed to query unit %s status: %s", QargsdSocketUnit, err)
	}
	log.Infof("Useful systemctl commands:")
	log.Infof("")
	log.Infof("  systemctl --user status %s", QargsdSocketUnit)
	log.Infof("  systemctl --user status %s", QargsdServiceUnit)
	log.Infof("")
	log.Infof("To run an updated qargsd binary, run:")
	log.Infof("")
	log.Infof("  systemctl --user stop %s", QargsdServiceUnit)
	return nil
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.PersistentFlags().BoolP("host", "H", false, "install systemd units to /etc/systemd/system instead of systemd --user path")
	installCmd.PersistentFlags().BoolP("force", "f", false, "allow overwriting existing unit files when installing")
	installCmd.PersistentFlags().StringP("service-template", "s", "", "specify path to custom qargsd service template")
	installCmd.PersistentFlags().StringP("socket-template", "S", "", "specify path to custom qargsd socket template")
}

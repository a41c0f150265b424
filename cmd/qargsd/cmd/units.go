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
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/virtforge/qargs/pkg/api"
)

const (
	QargsdServiceUnit = "qargsd.service"
	QargsdSocketUnit  = "qargsd.socket"
)

const QargsdServiceTemplate = `[Unit]
Description=qargsd command line generation service
After=qargsd.socket
Requires=qargsd.socket

[Service]
Type=simple
ExecStart=BINPATH
Restart=on-failure

[Install]
WantedBy=default.target
`

const QargsdSocketTemplate = `[Unit]
Description=qargsd activation socket

[Socket]
ListenStream=%t/qargs/api.socket
SocketMode=0660

[Install]
WantedBy=sockets.target
`

// getSystemdUnitPath picks the unit directory: the host's system path or
// the user's ~/.config/systemd/user tree.
func getSystemdUnitPath(hostMode bool) (string, error) {
	if hostMode {
		return "/etc/systemd/system", nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("Failed to get user config dir: %s", err)
	}
	return filepath.Join(configDir, "systemd", "user"), nil
}

// getTemplate prefers a custom template file over the built-in one.
func getTemplate(customPath, builtin string) string {
	if customPath == "" {
		return builtin
	}
	content, err := os.ReadFile(customPath)
	if err != nil {
		log.Warnf("Failed to read custom template %q, using built-in: %s", customPath, err)
		return builtin
	}
	return string(content)
}

// installTemplate renders a unit template to its destination, substituting
// the running binary's path for BINPATH.
func installTemplate(template, dest string) error {
	binPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("Failed to get path to running binary: %s", err)
	}
	rendered := strings.ReplaceAll(template, "BINPATH", binPath)
	if err := os.WriteFile(dest, []byte(rendered), 0644); err != nil {
		return fmt.Errorf("Failed to write unit file %q: %s", dest, err)
	}
	log.Infof("Installed unit %s", dest)
	return nil
}

func systemctl(hostMode bool, args ...string) ([]byte, error) {
	if !hostMode {
		args = append([]string{"--user"}, args...)
	}
	runCmd := exec.Command("systemctl", args...)
	return runCmd.CombinedOutput()
}

func unitFilesPresent(hostMode bool) (string, string, error) {
	unitPath, err := getSystemdUnitPath(hostMode)
	if err != nil {
		return "", "", fmt.Errorf("Failed to get Systemd Unit Path: %s", err)
	}
	if !api.PathExists(unitPath) {
		if err := api.EnsureDir(unitPath); err != nil {
			return "", "", fmt.Errorf("Failed to create Systemd Unit path %q: %s", unitPath, err)
		}
	}
	return filepath.Join(unitPath, QargsdServiceUnit), filepath.Join(unitPath, QargsdSocketUnit), nil
}

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
	"fmt"
	"os"
	"path/filepath"
)

type DaemonConfig struct {
	ConfigDirectory string
	DataDirectory   string
	StateDirectory  string
	// DefaultBinary is the emulator probed when a request names none.
	DefaultBinary string
}

func DefaultDaemonConfig() *DaemonConfig {
	cfg := DaemonConfig{}
	udd, err := UserDataDir()
	if err != nil {
		panic(fmt.Sprintf("Error getting user data dir: %s", err))
	}
	ucd, err := UserConfigDir()
	if err != nil {
		panic(fmt.Sprintf("Error getting user config dir: %s", err))
	}
	usd, err := UserStateDir()
	if err != nil {
		panic(fmt.Sprintf("Error getting user state dir: %s", err))
	}
	cfg.ConfigDirectory = filepath.Join(ucd, "qargs")
	cfg.DataDirectory = filepath.Join(udd, "qargs")
	cfg.StateDirectory = filepath.Join(usd, "qargs")
	cfg.DefaultBinary = "qemu-system-x86_64"
	return &cfg
}

// XDG_RUNTIME_DIR
func UserRuntimeDir() (string, error) {
	env := "XDG_RUNTIME_DIR"
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	uid := os.Getuid()
	return fmt.Sprintf("/run/user/%d", uid), nil
}

// XDG_DATA_HOME
func UserDataDir() (string, error) {
	env := "XDG_DATA_HOME"
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	p, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(p, ".local", "share"), nil
}

// XDG_CONFIG_HOME
func UserConfigDir() (string, error) {
	env := "XDG_CONFIG_HOME"
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	p, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(p, ".config"), nil
}

// XDG_STATE_HOME
func UserStateDir() (string, error) {
	env := "XDG_STATE_HOME"
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	p, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(p, ".local", "state"), nil
}

// APISocketPath returns the unix socket the daemon serves on.
func APISocketPath() string {
	rtd, err := UserRuntimeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(rtd, "qargs", "api.socket")
}

// GetAPIURL renders a route into a full URL on the unix-socket transport.
func GetAPIURL(route string) string {
	socket := APISocketPath()
	if len(socket) == 0 {
		return ""
	}
	return filepath.Join(socket, route)
}

func PathExists(d string) bool {
	_, err := os.Stat(d)
	if err != nil && os.IsNotExist(err) {
		return false
	}
	return true
}

func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("couldn't make dirs: %s", err)
	}
	return nil
}

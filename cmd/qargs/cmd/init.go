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
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/lxc/lxd/shared"
	"github.com/lxc/lxd/shared/termios"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v2"

	"github.com/virtforge/qargs/pkg/api"
	"github.com/virtforge/qargs/pkg/client"
	"github.com/virtforge/qargs/pkg/vmdef"
)

const definitionTemplateVersion1 = `
arch: x86_64
machinetype: pc-q35-8.2
memory:
  size: 2097152
cpu:
  model: host
  vcpus: 2
controllers:
  - type: pcie-root
    index: 0
    info:
      alias: pcie.0
  - type: scsi
    index: 0
    info:
      alias: scsi0
      addr:
        kind: pci
        pci: {domain: 0, bus: 0, slot: 4, function: 0}
disks:
  - bus: virtio
    device: disk
    drivealias: drive0
    source:
      protocol: file
      path: rootdisk.qcow2
      format: qcow2
    info:
      alias: virtio-disk0
      bootindex: 1
      addr:
        kind: pci
        pci: {domain: 0, bus: 0, slot: 5, function: 0}
nics:
  - model: virtio
    backend: user
    netdevalias: net0
    info:
      alias: nic0
      addr:
        kind: pci
        pci: {domain: 0, bus: 0, slot: 3, function: 0}
`

const definitionTemplateHeadlessVersion1 = `
arch: x86_64
machinetype: pc-q35-8.2
memory:
  size: 1048576
cpu:
  vcpus: 1
controllers:
  - type: pcie-root
    index: 0
    info:
      alias: pcie.0
disks:
  - bus: virtio
    device: disk
    drivealias: drive0
    source:
      protocol: file
      path: rootdisk.qcow2
      format: qcow2
    info:
      alias: virtio-disk0
      bootindex: 1
      addr:
        kind: pci
        pci: {domain: 0, bus: 0, slot: 5, function: 0}
serials:
  - backend: stdio
    target: isa-serial
    chardevalias: charserial0
    info:
      alias: serial0
videos:
  - model: none
`

const defaultDefinitionType = "1.0"

var definitionTypes = map[string]string{
	defaultDefinitionType: definitionTemplateVersion1,
	"1.0-headless":        definitionTemplateHeadlessVersion1,
}

func getDefinitionTypes() []string {
	var dTypes []string
	for key := range definitionTypes {
		dTypes = append(dTypes, key)
	}
	sort.Strings(dTypes)
	return dTypes
}

func getDefinitionTypeYaml(dType string) (string, error) {
	def, ok := definitionTypes[dType]
	if !ok {
		return "", fmt.Errorf("Unknown definition type '%s'", dType)
	}
	return def, nil
}

func dataOnStdin() bool {
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		return true
	}
	return false
}

func DoCreateDefinition(defName, defType, fileName string, editFile bool) error {
	log.Debugf("DoCreateDefinition Name:%s Type:%s File:%s Edit:%v", defName, defType, fileName, editFile)
	var err error
	onTerm := termios.IsTerminal(unix.Stdin)
	template, err := getDefinitionTypeYaml(defType)
	if err != nil {
		return fmt.Errorf("Failed to get definition type '%s' template: %s", defType, err)
	}
	defBytes := []byte(template)
	newDef := vmdef.VMDef{}

	err = yaml.Unmarshal(defBytes, &newDef)
	if err != nil {
		return fmt.Errorf("Failed to unmarshal default definition config: %s", err)
	}
	newDef.Name = defName
	if err := newDef.EnsureUUID(); err != nil {
		return fmt.Errorf("Failed to generate a UUID: %s", err)
	}

	log.Infof("Creating definition...")

	if editFile && !onTerm {
		return fmt.Errorf("Aborting edit since stdin is not a terminal")
	}

	if fileName == "-" || dataOnStdin() {
		log.Info("Reading definition from stdin...")
		defBytes, err = ioutil.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("Error reading definition from stdin: %s", err)
		}
	} else {
		if len(fileName) > 0 {
			log.Infof("Reading definition from %q", fileName)
			defBytes, err = os.ReadFile(fileName)
			if err != nil {
				return fmt.Errorf("Error reading definition from %s: %s", fileName, err)
			}
		} else {
			log.Infof("No definition specified. Using defaults from definition type '%s' ...\n", defType)
			defBytes, err = yaml.Marshal(newDef)
			if err != nil {
				return fmt.Errorf("Failed rendering empty definition: %s", err)
			}
		}
	}

	if editFile {
		defBytes, err = shared.TextEditor("", defBytes)
		if err != nil {
			return fmt.Errorf("Error calling editor: %s", err)
		}
	}
	log.Debugf("Got definition:\n%s", string(defBytes))

	for {
		if err = yaml.Unmarshal(defBytes, &newDef); err == nil {
			if newDef.Name == "" {
				newDef.Name = defName
			}
			if vErr := newDef.Validate(); vErr == nil {
				break
			} else {
				err = vErr
			}
		}
		if !onTerm {
			return fmt.Errorf("Error parsing definition: %s", err)
		}
		fmt.Printf("Error parsing yaml: %v\n", err)
		fmt.Println("Press enter to re-open editor, or ctrl-c to abort")
		_, rErr := os.Stdin.Read(make([]byte, 1))
		if rErr != nil {
			return fmt.Errorf("Error reading reply: %s", rErr)
		}
		defBytes, err = shared.TextEditor("", defBytes)
		if err != nil {
			return fmt.Errorf("Error calling editor: %s", err)
		}
	}

	if err := checkDefinitionFilePaths(&newDef); err != nil {
		return fmt.Errorf("Error while checking definition file paths: %s", err)
	}

	err = client.PostDefinition(newDef)
	if err != nil {
		return fmt.Errorf("Error while POST'ing new definition: %s", err)
	}
	return nil
}

func verifyPath(base, path string) (string, error) {
	fullPath := path
	if strings.HasPrefix(path, "/") {
		fullPath = path
	} else if strings.HasPrefix(fullPath, "~/") {
		ePath, err := homedir.Expand(fullPath)
		if err != nil {
			return "", fmt.Errorf("Failed to expand '~/' in path string %q: %s", fullPath, err)
		}
		log.Infof("Expanded %s to %q", fullPath, ePath)
		fullPath = ePath
	} else {
		fullPath = filepath.Join(base, path)
	}

	if !api.PathExists(fullPath) {
		return "", fmt.Errorf("Failed to find specified file '%s'", fullPath)
	}

	return fullPath, nil
}

// checkDefinitionFilePaths qualifies the local file paths a definition
// references so the daemon resolves the same files the user meant.
func checkDefinitionFilePaths(newDef *vmdef.VMDef) error {
	log.Infof("Checking definition for local file paths...")
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("Failed to get current working dir: %s", err)
	}
	for idx := range newDef.Disks {
		disk := newDef.Disks[idx]
		if disk.Source == nil || disk.Source.Protocol != vmdef.ProtocolFile || disk.Source.Path == "" {
			continue
		}
		newPath, err := verifyPath(cwd, disk.Source.Path)
		if err != nil {
			return fmt.Errorf("Failed to verify path to disk %q", disk.Source.Path)
		}
		if newPath != disk.Source.Path {
			log.Infof("Fully qualified disk path %s", newPath)
			disk.Source.Path = newPath
			newDef.Disks[idx] = disk
		}
	}
	if newDef.Boot.Firmware != nil {
		fw := newDef.Boot.Firmware
		if fw.CodePath != "" {
			newPath, err := verifyPath(cwd, fw.CodePath)
			if err != nil {
				return fmt.Errorf("Failed to verify path to firmware code %q: %s", fw.CodePath, err)
			}
			fw.CodePath = newPath
		}
		if fw.VarsPath != "" {
			newPath, err := verifyPath(cwd, fw.VarsPath)
			if err != nil {
				return fmt.Errorf("Failed to verify path to firmware vars %q: %s", fw.VarsPath, err)
			}
			fw.VarsPath = newPath
		}
	}
	if newDef.Boot.Kernel != "" {
		newPath, err := verifyPath(cwd, newDef.Boot.Kernel)
		if err != nil {
			return fmt.Errorf("Failed to verify path to kernel %q: %s", newDef.Boot.Kernel, err)
		}
		newDef.Boot.Kernel = newPath
	}
	if newDef.Boot.Initrd != "" {
		newPath, err := verifyPath(cwd, newDef.Boot.Initrd)
		if err != nil {
			return fmt.Errorf("Failed to verify path to initrd %q: %s", newDef.Boot.Initrd, err)
		}
		newDef.Boot.Initrd = newPath
	}
	return nil
}

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:               "init <definition name>",
	Short:             "Initialize a new machine definition from yaml",
	Long:              `Initialize a new machine definition by specifying a definition yaml.`,
	RunE:              doInit,
	PersistentPreRunE: doInitArgsValidate,
}

func doInit(cmd *cobra.Command, args []string) error {
	fileName := cmd.Flag("file").Value.String()
	editFile, _ := cmd.Flags().GetBool("edit")
	var defName string
	if len(args) > 0 {
		defName = args[0]
	} else {
		defName = petname.Generate(petNameWords, petNameSep)
	}
	defType := cmd.Flag("definition-type").Value.String()

	if err := DoCreateDefinition(defName, defType, fileName, editFile); err != nil {
		return fmt.Errorf("Failed to create definition with type '%s': %s", defType, err)
	}
	return nil
}

func doInitArgsValidate(cmd *cobra.Command, args []string) error {
	dType := cmd.Flag("definition-type").Value.String()
	if _, ok := definitionTypes[dType]; !ok {
		dTypes := getDefinitionTypes()
		cmd.SilenceUsage = true
		return fmt.Errorf("Invalid definition-type '%s', must be one of: %s", dType, strings.Join(dTypes, ", "))
	}
	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

func init() {
	dTypes := getDefinitionTypes()
	rootCmd.AddCommand(initCmd)
	initCmd.PersistentFlags().StringP("file", "f", "", "yaml file to import.  If unspecified, use stdin")
	initCmd.PersistentFlags().BoolP("edit", "e", false, "edit the yaml file inline")
	initCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug logging")
	initCmd.PersistentFlags().StringP("definition-type", "t", defaultDefinitionType, fmt.Sprintf("specify the definition type, one of [%s]", strings.Join(dTypes, ", ")))
}

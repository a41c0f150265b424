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
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/virtforge/qargs/pkg/caps"
)

var cfgFile string

const (
	petNameWords = 2
	petNameSep   = "-"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "qargs",
	Short: "The qargs client generates emulator command lines from machine definitions",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.qargs.yaml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".qargs" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".qargs")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// capsFromFlags builds the capability set the subcommands share: an
// explicit flag list wins, --modern selects the full set, otherwise the
// binary is probed.
func capsFromFlags(cmd *cobra.Command) (caps.Caps, error) {
	capNames, _ := cmd.Flags().GetStringSlice("capability")
	if len(capNames) > 0 {
		return caps.FromNames(capNames), nil
	}
	modern, _ := cmd.Flags().GetBool("modern")
	if modern {
		return caps.Modern(), nil
	}
	binary := cmd.Flag("binary").Value.String()
	capSet, err := caps.Probe(binary)
	if err != nil {
		return caps.Caps{}, fmt.Errorf("Failed to probe binary '%s': %s", binary, err)
	}
	return capSet, nil
}

func addCapabilityFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("binary", "b", "qemu-system-x86_64", "emulator binary to probe for capabilities")
	cmd.PersistentFlags().BoolP("modern", "m", false, "assume a current binary instead of probing")
	cmd.PersistentFlags().StringSliceP("capability", "c", nil, "explicit capability flag names (skips probing)")
}

// shellQuote renders one argv token for copy-paste into a shell.
func shellQuote(token string) string {
	if token == "" {
		return "''"
	}
	if !strings.ContainsAny(token, " \t\n\"'\\$&|;<>(){}*?[]~#") {
		return token
	}
	return "'" + strings.ReplaceAll(token, "'", `'\''`) + "'"
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var debugShowConfigFormatFlag string

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugShowConfigCmd)

	debugShowConfigCmd.Flags().StringVar(&debugShowConfigFormatFlag, "format", "json", "Output format (json, toml)")
}

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Inspect updater internals",
}

var debugShowConfigCmd = &cobra.Command{
	Use:   "show-config",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after defaults, the config file, VERSION_UPDATER_*
environment variables and command line flags have been merged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch debugShowConfigFormatFlag {
		case "toml":
			return toml.NewEncoder(os.Stdout).Encode(globalConfig)
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(globalConfig)
		}
		return fmt.Errorf("unknown format '%s' (expected json or toml)", debugShowConfigFormatFlag)
	},
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-version-updater/internal/config"
)

var configInitForceFlag bool

// configCmd groups configuration file helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

// configInitCmd writes a configuration file with the default values
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	Long: `Writes every setting with its default value to the path given by --config
(config.toml by default). An existing file is only replaced with --force.`,
	Args: cobra.NoArgs,
	// The file being written may not be valid yet.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVarP(&configInitForceFlag, "force", "f", false, "Overwrite an existing configuration file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigFilePath
	}
	if _, err := os.Stat(path); err == nil && !configInitForceFlag {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config.DefaultConfig()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	log.Infof("Wrote default configuration to %s", path)
	return nil
}

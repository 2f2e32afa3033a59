package cmd

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-version-updater/internal/catalog"
	"go-version-updater/internal/database"
	"go-version-updater/internal/index"
	"go-version-updater/internal/paths"
)

// uninstallCmd removes an installed version
var uninstallCmd = &cobra.Command{
	Use:   "uninstall [VERSION_ID]",
	Short: "Remove an installed version",
	Long: `Deletes versions/<id>/ from the base directory, drops the version from the
local version list and the install ledger, and removes it from the search
index when one is configured. Shared libraries and resources are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	id := args[0]
	m, err := newManager()
	if err != nil {
		return err
	}
	local := m.Local()
	if err := local.Refresh(cmd.Context()); err != nil {
		log.WithError(err).Warn("[Uninstall] Local version list is incomplete")
	}

	removed := false
	if v := local.Version(id); v != nil {
		if err := local.RemoveVersion(v); err != nil && !errors.Is(err, catalog.ErrVersionNotFound) {
			return err
		}
		removed = true
	}

	dir, err := paths.SafeJoin(paths.VersionsDir(globalConfig.BaseDir), id)
	if err != nil {
		return fmt.Errorf("invalid version id '%s': %w", id, err)
	}
	if _, statErr := os.Stat(dir); statErr == nil {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
		log.Infof("[Uninstall] Removed %s", dir)
		removed = true
	}

	if lc, ok := local.(*catalog.LocalCatalog); ok && removed {
		if err := lc.SaveVersionList(); err != nil {
			log.WithError(err).Warn("[Uninstall] Failed to update the local version list")
		}
	}

	db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.DeleteVersion(id); err == nil {
		removed = true
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	if globalConfig.BleveIndexPath != "" {
		idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
		if err != nil {
			log.WithError(err).Warn("[Index] Failed to open search index")
		} else {
			if err := index.RemoveVersion(idx, id); err != nil {
				log.WithError(err).Warn("[Index] Failed to remove version from search index")
			}
			idx.Close()
		}
	}

	if !removed {
		return fmt.Errorf("version '%s' is not installed", id)
	}
	fmt.Printf("Uninstalled %s.\n", id)
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-version-updater/internal/helpers"
	"go-version-updater/internal/models"
	"go-version-updater/internal/paths"
	"go-version-updater/internal/updater"
)

// Package-level variables for versions flags
var (
	versionsTypesFlag     []string
	versionsMaxFlag       int
	versionsInstalledFlag bool
)

// versionsCmd lists versions from both catalogs
var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List available and installed versions",
	Long: `Refreshes the local and remote version lists and prints one row per
version id, newest first. Remote entries are capped per release type by --max.`,
	RunE: runVersions,
}

// versionsShowCmd prints one resolved descriptor
var versionsShowCmd = &cobra.Command{
	Use:   "show [VERSION_ID]",
	Short: "Show the resolved descriptor of a version",
	Long: `Resolves the newest copy of a version and prints its libraries, class path,
native archives and launch arguments for the current platform.`,
	Args: cobra.ExactArgs(1),
	RunE: runVersionsShow,
}

func init() {
	rootCmd.AddCommand(versionsCmd)
	versionsCmd.AddCommand(versionsShowCmd)

	versionsCmd.Flags().StringSliceVarP(&versionsTypesFlag, "type", "t", nil, "Release types to list (release, snapshot, old_beta, old_alpha or all)")
	versionsCmd.Flags().IntVarP(&versionsMaxFlag, "max", "m", 0, "Maximum remote versions per release type")
	versionsCmd.Flags().BoolVar(&versionsInstalledFlag, "installed", false, "Only list versions found in the base directory")
}

// buildVersionFilter turns the configured release types into a filter.
// "all" anywhere in the list allows every type.
func buildVersionFilter(cfg models.VersionsConfig) (*updater.VersionFilter, error) {
	filter := updater.NewVersionFilter().SetMaxCount(cfg.MaxCount)
	if len(cfg.Types) == 0 || helpers.StringSliceContains(cfg.Types, "all") {
		return filter, nil
	}
	types := make([]models.ReleaseType, 0, len(cfg.Types))
	for _, raw := range cfg.Types {
		t, err := models.ParseReleaseType(raw)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return filter.OnlyFor(types...), nil
}

// refreshVersions refreshes both catalogs on the command's executor and
// waits for the result. A failed refresh is logged and the command carries
// on with whatever loaded.
func refreshVersions(ctx context.Context, m *updater.Manager) {
	summary := &refreshSummary{started: time.Now()}
	m.AddRefreshedListener(summary)
	defer m.RemoveRefreshedListener(summary)

	result, err := m.SubmitRefresh(globalExecutor)
	if err == nil {
		select {
		case err = <-result:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		log.WithError(err).Warn("[Refresh] Version lists are incomplete, results may be missing entries")
	}
}

type refreshSummary struct {
	started time.Time
}

func (s *refreshSummary) OnVersionsRefreshed(m *updater.Manager) {
	log.Infof("[Refresh] %d local and %d remote versions loaded in %s",
		len(m.Local().Versions()), len(m.Remote().Versions()), time.Since(s.started).Round(time.Millisecond))
}

func formatDate(v models.Version) string {
	if v == nil || v.GetReleaseTime().IsZero() {
		return "-"
	}
	return v.GetReleaseTime().Format("2006-01-02")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func runVersions(cmd *cobra.Command, args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}
	refreshVersions(cmd.Context(), m)

	var infos []updater.VersionSyncInfo
	if versionsInstalledFlag {
		infos = m.InstalledVersions()
	} else {
		filter, err := buildVersionFilter(globalConfig.Versions)
		if err != nil {
			return err
		}
		infos = m.Versions(filter)
	}

	if len(infos) == 0 {
		fmt.Println("No versions found.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Version\tType\tReleased\tInstalled\tUp To Date\tSource")
	fmt.Fprintln(tw, "-------\t----\t--------\t---------\t----------\t------")
	for _, info := range infos {
		latest := info.LatestVersion()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			info.ID(), latest.GetType(), formatDate(latest), yesNo(info.Installed), yesNo(info.UpToDate), info.LatestSource())
	}
	return tw.Flush()
}

func runVersionsShow(cmd *cobra.Command, args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}
	refreshVersions(cmd.Context(), m)

	info := m.SyncInfo(args[0])
	version, err := m.LatestCompleteVersion(cmd.Context(), info)
	if err != nil {
		if errors.Is(err, updater.ErrNoVersion) {
			return fmt.Errorf("version '%s' not found locally or on the server", args[0])
		}
		return err
	}

	platform := m.Platform()
	base := globalConfig.BaseDir
	fmt.Printf("Version:      %s (%s)\n", version.ID, version.Type)
	fmt.Printf("Released:     %s\n", formatDate(version))
	fmt.Printf("Main class:   %s\n", version.MainClass)
	fmt.Printf("Installed:    %s (up to date: %s, source: %s)\n", yesNo(info.Installed), yesNo(info.UpToDate), info.LatestSource())
	fmt.Printf("Compatible:   %s\n", yesNo(version.AppliesToCurrentEnvironment(platform)))
	if warning := version.Type.Warning(); warning != "" {
		fmt.Printf("Warning:      %s\n", warning)
	}

	nativesDir, err := nativesDirFor(version.ID, platform)
	if err != nil {
		return err
	}
	fmt.Printf("Arguments:    %s\n", paths.ExpandArguments(version.Arguments(), map[string]string{
		"version_name":      version.ID,
		"game_directory":    base,
		"game_assets":       filepath.Join(base, "assets"),
		"natives_directory": nativesDir,
	}))

	classPath, err := version.ClassPath(platform, base)
	if err != nil {
		return err
	}
	fmt.Println("Class path:")
	for _, entry := range classPath {
		fmt.Printf("  %s\n", entry)
	}

	natives, err := version.ExtractFiles(platform)
	if err != nil {
		return err
	}
	if len(natives) > 0 {
		fmt.Println("Native archives:")
		fmt.Printf("  %s\n", strings.Join(natives, "\n  "))
	}
	return nil
}

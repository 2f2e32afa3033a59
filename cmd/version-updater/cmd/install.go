package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-version-updater/internal/database"
	"go-version-updater/internal/downloader"
	"go-version-updater/internal/helpers"
	"go-version-updater/internal/models"
	"go-version-updater/internal/natives"
	"go-version-updater/internal/paths"
	"go-version-updater/internal/updater"
)

// Package-level variables for install flags
var (
	installForceFlag         bool
	installUnpackFlag        bool
	installSkipResourcesFlag bool
	installNativesDirFlag    string
	installSnapshotFlag      bool
)

// installCmd downloads a version and everything it needs
var installCmd = &cobra.Command{
	Use:   "install [VERSION_ID]",
	Short: "Install or update a version",
	Long: `Downloads the descriptor, libraries and game archive of a version into the
base directory, unpacks its native libraries and fetches changed resources.
Without an argument the latest release (or snapshot with --snapshot) is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)

	installCmd.Flags().BoolVarP(&installForceFlag, "force", "f", false, "Download every file even when the local copy looks current")
	installCmd.Flags().BoolVar(&installUnpackFlag, "unpack", true, "Unpack native libraries after downloading")
	installCmd.Flags().BoolVar(&installSkipResourcesFlag, "skip-resources", false, "Do not fetch the shared resource files")
	installCmd.Flags().StringVar(&installNativesDirFlag, "natives-dir", "", "Natives directory pattern relative to the base dir (tags: {versionId}, {os}, {arch})")
	installCmd.Flags().BoolVar(&installSnapshotFlag, "snapshot", false, "Without VERSION_ID, install the latest snapshot instead of the latest release")
}

// nativesDirFor resolves the configured natives pattern for a version.
func nativesDirFor(versionID string, p models.Platform) (string, error) {
	rel, err := paths.GeneratePath(globalConfig.Install.NativesDir, map[string]string{
		"versionId": versionID,
		"os":        string(p.OS),
		"arch":      p.Arch,
	})
	if err != nil {
		return "", fmt.Errorf("invalid natives directory pattern: %w", err)
	}
	if filepath.IsAbs(rel) {
		return rel, nil
	}
	return filepath.Join(globalConfig.BaseDir, rel), nil
}

// resolveTarget picks the sync record to install from the argument list.
func resolveTarget(m *updater.Manager, args []string) (updater.VersionSyncInfo, error) {
	if len(args) == 1 {
		info := m.SyncInfo(args[0])
		if info.LatestVersion() == nil {
			return info, fmt.Errorf("%w: '%s' not found locally or on the server", updater.ErrNoVersion, args[0])
		}
		return info, nil
	}

	releaseType := models.ReleaseTypeRelease
	if installSnapshotFlag {
		releaseType = models.ReleaseTypeSnapshot
	}
	latest := m.Remote().LatestVersion(releaseType)
	if latest == nil {
		latest = m.Local().LatestVersion(releaseType)
	}
	if latest == nil {
		return updater.VersionSyncInfo{}, fmt.Errorf("%w: no %s is known", updater.ErrNoVersion, releaseType)
	}
	log.Infof("[Install] Latest %s is %s", releaseType, latest.GetID())
	return m.SyncInfo(latest.GetID()), nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := globalConfig

	m, err := newManager()
	if err != nil {
		return err
	}
	refreshVersions(ctx, m)

	info, err := resolveTarget(m, args)
	if err != nil {
		return err
	}
	if info.UpToDate && !cfg.Install.Force {
		log.Infof("[Install] %s is already up to date, checking files (use --force to download everything again)", info.ID())
	}

	version, err := m.InstallVersion(ctx, info)
	if err != nil {
		return err
	}
	if warning := version.Type.Warning(); warning != "" {
		log.Warnf("[Install] %s", warning)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening install ledger: %w", err)
	}
	defer db.Close()

	record := models.InstalledVersion{
		ID:          version.ID,
		Type:        version.Type,
		ReleaseTime: version.GetReleaseTime(),
		UpdatedTime: version.GetUpdatedTime(),
		Status:      models.StatusPending,
	}
	if err := db.RecordVersion(record); err != nil {
		return err
	}

	printer := newProgressPrinter()
	defer printer.Stop()

	versionJob := downloader.NewJob("Version & Libraries", false, printer)
	printer.track(versionJob.Name())
	if err := m.DownloadCompleteVersion(version, versionJob, cfg.Install.Force); err != nil {
		return err
	}

	jobs := []*downloader.Job{versionJob}
	if !cfg.Install.SkipResources {
		resourceJob := downloader.NewJob("Resources", true, printer)
		if err := m.DownloadResources(ctx, resourceJob); err != nil {
			log.WithError(err).Warn("[Resources] Couldn't list resource files, skipping them")
		} else {
			printer.track(resourceJob.Name())
			jobs = append(jobs, resourceJob)
		}
	}

	if err := runJobs(ctx, jobs...); err != nil {
		return err
	}
	printer.Stop()

	recordInstalledFiles(db, version.ID, versionJob.SuccessfulItems())
	record.Failures = versionJob.Failures()
	record.Status = models.StatusInstalled

	if record.Failures > 0 {
		record.Status = models.StatusIncomplete
		for _, target := range sortedTargets(versionJob.FailedItems()) {
			log.Errorf("[Install] Failed to download %s", target)
		}
	} else if cfg.Install.UnpackNatives {
		if err := unpackNatives(ctx, version, m.Platform()); err != nil {
			record.Status = models.StatusIncomplete
			log.WithError(err).Error("[Natives] Unpacking failed")
		}
	}

	if err := db.RecordVersion(record); err != nil {
		return err
	}
	if record.Status != models.StatusInstalled {
		return fmt.Errorf("installation of %s is incomplete (%d files failed)", version.ID, record.Failures)
	}
	log.Infof("[Install] %s installed into %s", version.ID, cfg.BaseDir)
	return nil
}

func unpackNatives(ctx context.Context, version *models.CompleteVersion, p models.Platform) error {
	target, err := nativesDirFor(version.ID, p)
	if err != nil {
		return err
	}
	// Stale natives from an older build must not linger.
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("clearing %s: %w", target, err)
	}
	result, err := natives.Unpack(ctx, version, p, globalConfig.BaseDir, target)
	if err != nil {
		return err
	}
	log.Infof("[Natives] Unpacked %d files (%s) from %d archives into %s",
		result.Files, helpers.BytesToSize(uint64(result.Bytes)), result.Archives, target)
	return nil
}

// recordInstalledFiles stores size and BLAKE3 digest of every downloaded
// file so 'verify' can detect corruption later.
func recordInstalledFiles(db *database.DB, versionID string, items []*downloader.Downloadable) {
	for _, d := range items {
		file, err := installedFileFor(versionID, d)
		if err != nil {
			log.WithError(err).Warnf("[Install] Couldn't fingerprint %s", d.Target)
			continue
		}
		if err := db.RecordFile(file); err != nil {
			log.WithError(err).Warnf("[Install] Couldn't record %s", file.Path)
		}
	}
}

func installedFileFor(versionID string, d *downloader.Downloadable) (models.InstalledFile, error) {
	rel, err := filepath.Rel(globalConfig.BaseDir, d.Target)
	if err != nil {
		return models.InstalledFile{}, err
	}
	stat, err := os.Stat(d.Target)
	if err != nil {
		return models.InstalledFile{}, err
	}
	hash, err := helpers.Blake3File(d.Target)
	if err != nil {
		return models.InstalledFile{}, err
	}
	return models.InstalledFile{
		VersionID: versionID,
		Path:      filepath.ToSlash(rel),
		URL:       d.URL,
		Size:      stat.Size(),
		Blake3:    hash,
	}, nil
}

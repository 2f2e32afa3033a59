package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-version-updater/internal/database"
	"go-version-updater/internal/downloader"
	"go-version-updater/internal/helpers"
	"go-version-updater/internal/models"
)

// Package-level variables for db verify flags
var (
	verifyCheckHashFlag bool
	verifyYesFlag       bool
)

// dbCmd represents the base command for install ledger operations
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the install ledger",
	Long:  `Perform operations like viewing or verifying the versions and files recorded by 'install'.`,
}

// dbViewCmd represents the command to view ledger entries
var dbViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View versions stored in the install ledger",
	Long:  `Lists the installed versions with their status and the number of recorded files.`,
	RunE:  runDbView,
}

// verifyCmd checks ledger entries against the filesystem
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify recorded files against the filesystem and optionally redownload",
	Long: `Checks that every file recorded in the install ledger exists with the recorded
size, optionally re-hashes it with BLAKE3, and offers to redownload missing or
mismatched files.`,
	RunE: runDbVerify,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbViewCmd)
	dbCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().BoolVar(&verifyCheckHashFlag, "check-hash", true, "Perform hash check for existing files")
	verifyCmd.Flags().BoolVarP(&verifyYesFlag, "yes", "y", false, "Automatically redownload missing/mismatched files without prompting")
}

func openLedger() (*database.DB, error) {
	if globalConfig.DatabasePath == "" {
		return nil, errors.New("database path is not set in the configuration")
	}
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", globalConfig.DatabasePath, err)
	}
	return db, nil
}

func runDbView(cmd *cobra.Command, args []string) error {
	db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Version\tType\tStatus\tFiles\tSize\tFailures\tInstalled At")
	fmt.Fprintln(tw, "-------\t----\t------\t-----\t----\t--------\t------------")

	count := 0
	errFold := db.Fold(func(v models.InstalledVersion) error {
		var size int64
		for _, f := range v.Files {
			size += f.Size
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			v.ID, v.Type, v.Status, len(v.Files), helpers.BytesToSize(uint64(size)), v.Failures, v.InstalledAt.Format("2006-01-02 15:04"))
		count++
		return nil
	})
	if errFold != nil {
		return fmt.Errorf("reading install ledger: %w", errFold)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d version(s) recorded.\n", count)
	return nil
}

// VerificationStats counts the outcome of a ledger scan.
type VerificationStats struct {
	TotalFiles        int
	FoundOk           int
	FoundHashMismatch int
	Missing           int
}

type verificationProblem struct {
	Reason string
	File   models.InstalledFile
}

// RedownloadStats counts the outcome of the redownload phase.
type RedownloadStats struct {
	Attempts int
	Success  int
	Fail     int
}

const (
	problemMissing      = "Missing"
	problemSizeMismatch = "Size Mismatch"
	problemHashMismatch = "Hash Mismatch"
)

func runDbVerify(cmd *cobra.Command, args []string) error {
	log.Info("Verifying install ledger against filesystem...")

	db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, problems, err := scanLedger(db, globalConfig.BaseDir, globalConfig.Verify.CheckHash)
	if err != nil {
		return err
	}
	logInitialScanSummary(stats)
	if len(problems) == 0 {
		log.Info("All recorded files are present.")
		return nil
	}
	log.Infof("Found %d file(s) that are missing or damaged.", len(problems))

	var reader *bufio.Reader
	if !globalConfig.Verify.AutoRedownload {
		reader = bufio.NewReader(os.Stdin)
	}
	var selected []verificationProblem
	for _, p := range problems {
		if shouldRedownload(p, reader, globalConfig.Verify.AutoRedownload) {
			selected = append(selected, p)
		}
	}

	redownloadStats, err := redownload(cmd, db, selected)
	if err != nil {
		return err
	}
	logRedownloadSummary(redownloadStats)
	if redownloadStats.Fail > 0 {
		return fmt.Errorf("%d file(s) could not be restored", redownloadStats.Fail)
	}
	return nil
}

// scanLedger checks every recorded file and marks versions with problems
// as incomplete.
func scanLedger(db *database.DB, baseDir string, checkHash bool) (VerificationStats, []verificationProblem, error) {
	var stats VerificationStats
	var problems []verificationProblem

	errFold := db.Fold(func(v models.InstalledVersion) error {
		before := len(problems)
		for _, f := range v.Files {
			stats.TotalFiles++
			reason := verifyFile(filepath.Join(baseDir, helpers.SanitizePath(filepath.FromSlash(f.Path))), f, checkHash)
			switch reason {
			case "":
				stats.FoundOk++
				continue
			case problemMissing:
				stats.Missing++
			default:
				stats.FoundHashMismatch++
			}
			problems = append(problems, verificationProblem{Reason: reason, File: f})
		}

		if len(problems) > before && v.Status == models.StatusInstalled {
			v.Status = models.StatusIncomplete
			if err := db.RecordVersion(v); err != nil {
				log.WithError(err).Warnf("Failed to mark %s as incomplete", v.ID)
			}
		}
		return nil
	})
	if errFold != nil {
		return stats, problems, fmt.Errorf("scanning install ledger: %w", errFold)
	}
	return stats, problems, nil
}

// verifyFile returns the problem with path, or "" when it matches f.
func verifyFile(path string, f models.InstalledFile, checkHash bool) string {
	fields := log.Fields{"version": f.VersionID, "path": f.Path}
	stat, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithFields(fields).Error("[ERROR] Could not check file status")
		}
		log.WithFields(fields).Error("[MISSING] File not found.")
		return problemMissing
	}
	if stat.Size() != f.Size {
		log.WithFields(fields).Warnf("[MISMATCH] File size %d, recorded %d.", stat.Size(), f.Size)
		return problemSizeMismatch
	}
	if !checkHash {
		log.WithFields(fields).Debug("[FOUND] File exists (hash check skipped).")
		return ""
	}
	if !helpers.CheckHash(path, f.Blake3) {
		log.WithFields(fields).Warn("[MISMATCH] File exists but hash mismatch.")
		return problemHashMismatch
	}
	log.WithFields(fields).Debug("[OK] File exists and hash matches.")
	return ""
}

func logInitialScanSummary(stats VerificationStats) {
	log.Infof("Initial Scan Summary: Total Files=%d, OK=%d, Missing=%d, Mismatch=%d",
		stats.TotalFiles, stats.FoundOk, stats.Missing, stats.FoundHashMismatch)
}

func shouldRedownload(problem verificationProblem, reader *bufio.Reader, autoRedownload bool) bool {
	if autoRedownload {
		log.Infof("Auto-attempting redownload for %s (%s) due to --yes flag.", problem.File.Path, problem.File.VersionID)
		return true
	}

	fmt.Printf("File '%s' (%s) - %s. Redownload? (y/N): ", problem.File.Path, problem.File.VersionID, problem.Reason)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(strings.ToLower(input)) == "y"
}

// redownload fetches the selected files in one job and refreshes their
// ledger rows. Versions whose files all came back are marked installed.
func redownload(cmd *cobra.Command, db *database.DB, problems []verificationProblem) (RedownloadStats, error) {
	var stats RedownloadStats
	if len(problems) == 0 {
		return stats, nil
	}

	job := downloader.NewJob("Redownload", false, nil)
	byTarget := make(map[string]models.InstalledFile, len(problems))
	for _, p := range problems {
		target := filepath.Join(globalConfig.BaseDir, helpers.SanitizePath(filepath.FromSlash(p.File.Path)))
		byTarget[target] = p.File
		if err := job.AddDownloadables(downloader.NewDownloadable(models.DownloadSpec{
			URL:          p.File.URL,
			Target:       target,
			ExpectedSize: p.File.Size,
			Force:        true,
		})); err != nil {
			return stats, err
		}
	}
	stats.Attempts = len(problems)

	if err := runJobs(cmd.Context(), job); err != nil {
		return stats, err
	}

	failedVersions := make(map[string]bool)
	for _, d := range job.FailedItems() {
		failedVersions[byTarget[d.Target].VersionID] = true
		log.Errorf("Redownload failed for %s", d.Target)
	}
	for _, d := range job.SuccessfulItems() {
		versionID := byTarget[d.Target].VersionID
		recordInstalledFiles(db, versionID, []*downloader.Downloadable{d})
		if _, seen := failedVersions[versionID]; !seen {
			failedVersions[versionID] = false
		}
	}
	for versionID, failed := range failedVersions {
		if failed {
			continue
		}
		v, err := db.Version(versionID)
		if err != nil {
			log.WithError(err).Warnf("Failed to reload ledger row for %s", versionID)
			continue
		}
		v.Status = models.StatusInstalled
		if err := db.RecordVersion(v); err != nil {
			log.WithError(err).Warnf("Failed to mark %s as installed", versionID)
		}
	}

	stats.Success = job.Successful()
	stats.Fail = job.Failures()
	return stats, nil
}

func logRedownloadSummary(stats RedownloadStats) {
	if stats.Attempts > 0 {
		log.Infof("Redownload Phase Summary: Attempts=%d, Success=%d, Failed=%d",
			stats.Attempts, stats.Success, stats.Fail)
	}
}

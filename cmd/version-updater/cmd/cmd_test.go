package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-version-updater/internal/database"
	"go-version-updater/internal/downloader"
	"go-version-updater/internal/helpers"
	"go-version-updater/internal/models"
)

func withConfig(t *testing.T, cfg models.Config) {
	t.Helper()
	saved := globalConfig
	globalConfig = cfg
	t.Cleanup(func() { globalConfig = saved })
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildVersionFilter(t *testing.T) {
	t.Run("Selected Types", func(t *testing.T) {
		filter, err := buildVersionFilter(models.VersionsConfig{Types: []string{"release", "OLD_BETA"}, MaxCount: 3})
		require.NoError(t, err)
		assert.True(t, filter.Allows(models.ReleaseTypeRelease))
		assert.True(t, filter.Allows(models.ReleaseTypeOldBeta))
		assert.False(t, filter.Allows(models.ReleaseTypeSnapshot))
		assert.Equal(t, 3, filter.MaxCount())
	})

	t.Run("All", func(t *testing.T) {
		filter, err := buildVersionFilter(models.VersionsConfig{Types: []string{"release", "All"}, MaxCount: 5})
		require.NoError(t, err)
		for _, rt := range models.AllReleaseTypes {
			assert.True(t, filter.Allows(rt), "type %s should be allowed", rt)
		}
	})

	t.Run("Unknown Type", func(t *testing.T) {
		_, err := buildVersionFilter(models.VersionsConfig{Types: []string{"nightly"}})
		assert.Error(t, err)
	})
}

func TestBuildCliFlags(t *testing.T) {
	require.NoError(t, versionsCmd.ParseFlags([]string{"--max", "7", "--type", "snapshot,release"}))

	flags := buildCliFlags(versionsCmd)
	require.NotNil(t, flags.Versions)
	require.NotNil(t, flags.Versions.MaxCount)
	assert.Equal(t, 7, *flags.Versions.MaxCount)
	require.NotNil(t, flags.Versions.Types)
	assert.Equal(t, []string{"snapshot", "release"}, *flags.Versions.Types)
	assert.Nil(t, flags.BaseDir, "Unset persistent flags must not override the config")
	assert.Nil(t, flags.Workers)
	assert.Nil(t, flags.Install)

	flags = buildCliFlags(installCmd)
	require.NotNil(t, flags.Install)
	assert.Nil(t, flags.Install.Force)
	assert.Nil(t, flags.Install.UnpackNatives)
	assert.Nil(t, flags.Versions)
}

func TestNativesDirFor(t *testing.T) {
	base := t.TempDir()
	withConfig(t, models.Config{BaseDir: base, Install: models.InstallConfig{NativesDir: "versions/{versionId}/natives-{os}-{arch}"}})

	dir, err := nativesDirFor("1.5.2", models.Platform{OS: models.OSLinux, Arch: "64"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "versions", "1.5.2", "natives-linux-64"), dir)

	globalConfig.Install.NativesDir = "natives/{channel}"
	_, err = nativesDirFor("1.5.2", models.Platform{OS: models.OSLinux, Arch: "64"})
	assert.Error(t, err, "Unknown tags must be rejected")
}

func TestInstalledFileFor(t *testing.T) {
	base := t.TempDir()
	withConfig(t, models.Config{BaseDir: base})

	target := filepath.Join(base, "libraries", "net", "sf", "jopt-simple-4.5.jar")
	writeFile(t, target, "jopt")
	d := downloader.NewDownloadable(models.DownloadSpec{URL: "http://example.invalid/jopt-simple-4.5.jar", Target: target})

	file, err := installedFileFor("1.5.2", d)
	require.NoError(t, err)
	expectedHash, err := helpers.Blake3File(target)
	require.NoError(t, err)

	assert.Equal(t, "1.5.2", file.VersionID)
	assert.Equal(t, "libraries/net/sf/jopt-simple-4.5.jar", file.Path)
	assert.Equal(t, d.URL, file.URL)
	assert.Equal(t, int64(4), file.Size)
	assert.Equal(t, expectedHash, file.Blake3)

	_, err = installedFileFor("1.5.2", downloader.NewDownloadable(models.DownloadSpec{Target: filepath.Join(base, "missing.jar")}))
	assert.Error(t, err)
}

func TestScanLedger(t *testing.T) {
	base := t.TempDir()
	db, err := database.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer db.Close()

	files := map[string]string{
		"versions/1.5.2/1.5.2.jar":   "game",
		"libraries/ok.jar":           "fine",
		"libraries/damaged.jar":      "good",
		"libraries/wrong-size.jar":   "short",
		"libraries/missing-file.jar": "gone",
	}
	require.NoError(t, db.RecordVersion(models.InstalledVersion{
		ID:          "1.5.2",
		Type:        models.ReleaseTypeRelease,
		ReleaseTime: time.Date(2013, 4, 25, 0, 0, 0, 0, time.UTC),
		Status:      models.StatusInstalled,
	}))
	for rel, content := range files {
		full := filepath.Join(base, filepath.FromSlash(rel))
		writeFile(t, full, content)
		hash, err := helpers.Blake3File(full)
		require.NoError(t, err)
		require.NoError(t, db.RecordFile(models.InstalledFile{
			VersionID: "1.5.2",
			Path:      rel,
			URL:       "http://example.invalid/" + rel,
			Size:      int64(len(content)),
			Blake3:    hash,
		}))
	}

	writeFile(t, filepath.Join(base, "libraries", "damaged.jar"), "evil")
	writeFile(t, filepath.Join(base, "libraries", "wrong-size.jar"), "much longer")
	require.NoError(t, os.Remove(filepath.Join(base, "libraries", "missing-file.jar")))

	t.Run("With Hash Check", func(t *testing.T) {
		stats, problems, err := scanLedger(db, base, true)
		require.NoError(t, err)
		assert.Equal(t, VerificationStats{TotalFiles: 5, FoundOk: 2, FoundHashMismatch: 2, Missing: 1}, stats)

		reasons := make(map[string]string)
		for _, p := range problems {
			reasons[p.File.Path] = p.Reason
		}
		assert.Equal(t, map[string]string{
			"libraries/damaged.jar":      problemHashMismatch,
			"libraries/wrong-size.jar":   problemSizeMismatch,
			"libraries/missing-file.jar": problemMissing,
		}, reasons)

		v, err := db.Version("1.5.2")
		require.NoError(t, err)
		assert.Equal(t, models.StatusIncomplete, v.Status, "Version with problems should be marked incomplete")
	})

	t.Run("Without Hash Check", func(t *testing.T) {
		stats, problems, err := scanLedger(db, base, false)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.FoundOk, "Same-size corruption is only caught by hashing")
		assert.Len(t, problems, 2)
	})
}

func TestProgressPrinter(t *testing.T) {
	printer := newProgressPrinter()
	defer printer.Stop()

	job := downloader.NewJob("Version & Libraries", false, printer)
	printer.track(job.Name())
	printer.track(job.Name())
	assert.Equal(t, []string{"Version & Libraries"}, printer.order, "Tracking twice must not duplicate the line")

	printer.OnProgressChanged(job, 0.42)
	assert.Equal(t, 42, printer.percent[job.Name()])
	printer.OnProgressChanged(job, -1)
	assert.Equal(t, -1, printer.percent[job.Name()])

	printer.OnJobFinished(job, 2)
	assert.Equal(t, 100, printer.percent[job.Name()])
	assert.Equal(t, "2 failed", printer.status[job.Name()])

	printer.Stop()
	printer.Stop()
}

package config

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"go-version-updater/internal/api"
)

func missingConfigFile(t *testing.T) *string {
	path := filepath.Join(t.TempDir(), "absent.toml")
	return &path
}

// TestConfigInitialization tests basic configuration initialization
func TestConfigInitialization(t *testing.T) {
	cfg, transport, err := Initialize(CliFlags{ConfigFilePath: missingConfigFile(t)})
	if err != nil {
		t.Fatalf("Failed to initialize config: %v", err)
	}

	if cfg.BaseDir == "" {
		t.Error("Expected base dir to be set to default")
	}
	if cfg.DatabasePath != filepath.Join(cfg.BaseDir, DefaultDatabaseFile) {
		t.Errorf("Expected database path under base dir, got %s", cfg.DatabasePath)
	}
	if cfg.Workers != DefaultWorkers {
		t.Errorf("Expected %d workers, got %d", DefaultWorkers, cfg.Workers)
	}
	if cfg.Versions.MaxCount != DefaultVersionsMaxCount {
		t.Errorf("Expected max count %d, got %d", DefaultVersionsMaxCount, cfg.Versions.MaxCount)
	}
	if len(cfg.Versions.Types) != 2 {
		t.Errorf("Expected default version types, got %v", cfg.Versions.Types)
	}
	if !cfg.Install.UnpackNatives || !cfg.Verify.CheckHash {
		t.Error("Expected natives unpacking and hash checks on by default")
	}
	if cfg.DownloadBaseURL != DefaultDownloadBaseURL {
		t.Errorf("Unexpected download URL %s", cfg.DownloadBaseURL)
	}
	if _, ok := transport.(*http.Transport); !ok {
		t.Errorf("Expected a plain *http.Transport, got %T", transport)
	}
}

// TestFlagOverrides tests that CLI flags override default values
func TestFlagOverrides(t *testing.T) {
	baseDir := t.TempDir()
	workers := 3
	maxCount := 12
	types := []string{"old_beta"}
	force := true
	flags := CliFlags{
		ConfigFilePath: missingConfigFile(t),
		BaseDir:        &baseDir,
		Workers:        &workers,
		Versions:       &CliVersionsFlags{Types: &types, MaxCount: &maxCount},
		Install:        &CliInstallFlags{Force: &force},
	}

	cfg, _, err := Initialize(flags)
	if err != nil {
		t.Fatalf("Failed to initialize config: %v", err)
	}

	if cfg.BaseDir != baseDir {
		t.Errorf("Expected base dir %s, got %s", baseDir, cfg.BaseDir)
	}
	if cfg.DatabasePath != filepath.Join(baseDir, DefaultDatabaseFile) {
		t.Errorf("Expected database path to follow the overridden base dir, got %s", cfg.DatabasePath)
	}
	if cfg.Workers != 3 {
		t.Errorf("Expected 3 workers (from flags), got %d", cfg.Workers)
	}
	if cfg.Versions.MaxCount != 12 || len(cfg.Versions.Types) != 1 || cfg.Versions.Types[0] != "old_beta" {
		t.Errorf("Unexpected versions config %+v", cfg.Versions)
	}
	if !cfg.Install.Force {
		t.Error("Expected Install.Force from flags")
	}
}

// TestConfigFile tests reading a TOML file and flag precedence over it
func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
BaseDir = "` + filepath.ToSlash(dir) + `"
Workers = 2
LogLevel = "debug"

[Versions]
MaxCount = 9
Types = ["release"]

[Install]
SkipResources = true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Initialize(CliFlags{ConfigFilePath: &path})
	if err != nil {
		t.Fatalf("Failed to initialize config: %v", err)
	}
	if cfg.Workers != 2 || cfg.LogLevel != "debug" {
		t.Errorf("File values not applied: workers=%d level=%s", cfg.Workers, cfg.LogLevel)
	}
	if cfg.Versions.MaxCount != 9 || !cfg.Install.SkipResources {
		t.Errorf("Nested file values not applied: %+v %+v", cfg.Versions, cfg.Install)
	}
	if !cfg.Install.UnpackNatives {
		t.Error("Defaults should fill keys missing from the file")
	}

	workers := 6
	cfg, _, err = Initialize(CliFlags{ConfigFilePath: &path, Workers: &workers})
	if err != nil {
		t.Fatalf("Failed to initialize config: %v", err)
	}
	if cfg.Workers != 6 {
		t.Errorf("Expected flag to win over file, got %d", cfg.Workers)
	}
}

// TestEnvironmentOverrides tests VERSION_UPDATER_* variables
func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("VERSION_UPDATER_WORKERS", "12")
	t.Setenv("VERSION_UPDATER_VERSIONS_MAXCOUNT", "7")

	cfg, _, err := Initialize(CliFlags{ConfigFilePath: missingConfigFile(t)})
	if err != nil {
		t.Fatalf("Failed to initialize config: %v", err)
	}
	if cfg.Workers != 12 {
		t.Errorf("Expected 12 workers from environment, got %d", cfg.Workers)
	}
	if cfg.Versions.MaxCount != 7 {
		t.Errorf("Expected max count 7 from environment, got %d", cfg.Versions.MaxCount)
	}
}

// TestConfigValidation tests rejection and correction of bad values
func TestConfigValidation(t *testing.T) {
	proxy := "://nope"
	_, _, err := Initialize(CliFlags{ConfigFilePath: missingConfigFile(t), Proxy: &proxy})
	if !errors.Is(err, api.ErrInvalidProxy) {
		t.Errorf("Expected ErrInvalidProxy, got %v", err)
	}

	types := []string{"nightly"}
	_, _, err = Initialize(CliFlags{ConfigFilePath: missingConfigFile(t), Versions: &CliVersionsFlags{Types: &types}})
	if err == nil {
		t.Error("Expected unknown release type to be rejected")
	}

	empty := ""
	_, _, err = Initialize(CliFlags{ConfigFilePath: missingConfigFile(t), BaseDir: &empty})
	if err == nil {
		t.Error("Expected empty base dir to be rejected")
	}

	zero := 0
	cfg, _, err := Initialize(CliFlags{ConfigFilePath: missingConfigFile(t), Workers: &zero})
	if err != nil {
		t.Fatalf("Failed to initialize config: %v", err)
	}
	if cfg.Workers != DefaultWorkers {
		t.Errorf("Expected non-positive workers to fall back to %d, got %d", DefaultWorkers, cfg.Workers)
	}
}

// TestHTTPTransportCreation tests the API logging transport wiring
func TestHTTPTransportCreation(t *testing.T) {
	baseDir := t.TempDir()
	logAPI := true
	_, transport, err := Initialize(CliFlags{ConfigFilePath: missingConfigFile(t), BaseDir: &baseDir, LogApiRequests: &logAPI})
	if err != nil {
		t.Fatalf("Failed to initialize config: %v", err)
	}
	defer api.CloseAllLoggingTransports()

	if _, ok := transport.(*api.LoggingTransport); !ok {
		t.Fatalf("Expected *api.LoggingTransport, got %T", transport)
	}
	if _, err := os.Stat(filepath.Join(baseDir, "api.log")); err != nil {
		t.Errorf("Expected api.log in base dir: %v", err)
	}
}

// TestDefaultConfig tests the values written by 'config init'
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BaseDir != DefaultBaseDir() {
		t.Errorf("Unexpected base dir %s", cfg.BaseDir)
	}
	if cfg.Workers != DefaultWorkers || cfg.Versions.MaxCount != DefaultVersionsMaxCount {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	cfg.Versions.Types[0] = "changed"
	if DefaultVersionTypes[0] == "changed" {
		t.Error("DefaultConfig must not share the default types slice")
	}
}

package config

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go-version-updater/internal/api"
	"go-version-updater/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultDatabaseFile      = "updater.db" // Relative to BaseDir
	DefaultLogApiRequests    = false
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultConfigFilePath    = "config.toml"
	DefaultDownloadBaseURL   = "https://s3.amazonaws.com/Minecraft.Download/"
	DefaultResourcesBaseURL  = "https://s3.amazonaws.com/MinecraftResources/"
	DefaultLibraryBaseURL    = models.DefaultLibraryBaseURL
	DefaultWorkers           = 8
	DefaultConnectTimeoutSec = 15
	DefaultReadTimeoutSec    = 60

	DefaultVersionsMaxCount       = 5
	DefaultInstallNativesDir      = "versions/{versionId}/natives"
	DefaultInstallUnpackNatives   = true
	DefaultVerifyCheckHash        = true
	DefaultVerifyAutoRedownload   = false
	DefaultInstallSkipResources   = false
	DefaultInstallForce           = false
	defaultWorkingDirectoryFolder = "minecraft"
)

// DefaultVersionTypes are listed when no type filter is configured.
var DefaultVersionTypes = []string{string(models.ReleaseTypeRelease), string(models.ReleaseTypeSnapshot)}

// DefaultBaseDir returns the per-OS game folder: ~/.minecraft on Linux,
// %APPDATA%\.minecraft on Windows and ~/Library/Application Support/minecraft
// on macOS.
func DefaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	switch models.ParseOperatingSystem(runtime.GOOS) {
	case models.OSWindows:
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "."+defaultWorkingDirectoryFolder)
		}
		return filepath.Join(home, "."+defaultWorkingDirectoryFolder)
	case models.OSX:
		return filepath.Join(home, "Library", "Application Support", defaultWorkingDirectoryFolder)
	case models.OSLinux:
		return filepath.Join(home, "."+defaultWorkingDirectoryFolder)
	}
	return filepath.Join(home, defaultWorkingDirectoryFolder)
}

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("basedir", DefaultBaseDir())
	v.SetDefault("databasepath", "")
	v.SetDefault("bleveindexpath", "")
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)
	v.SetDefault("logapirequests", DefaultLogApiRequests)
	v.SetDefault("downloadbaseurl", DefaultDownloadBaseURL)
	v.SetDefault("resourcesbaseurl", DefaultResourcesBaseURL)
	v.SetDefault("librarybaseurl", DefaultLibraryBaseURL)
	v.SetDefault("proxy", "")
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("connecttimeoutsec", DefaultConnectTimeoutSec)
	v.SetDefault("readtimeoutsec", DefaultReadTimeoutSec)

	v.SetDefault("versions.types", DefaultVersionTypes)
	v.SetDefault("versions.maxcount", DefaultVersionsMaxCount)

	v.SetDefault("install.nativesdir", DefaultInstallNativesDir)
	v.SetDefault("install.force", DefaultInstallForce)
	v.SetDefault("install.unpacknatives", DefaultInstallUnpackNatives)
	v.SetDefault("install.skipresources", DefaultInstallSkipResources)

	v.SetDefault("verify.checkhash", DefaultVerifyCheckHash)
	v.SetDefault("verify.autoredownload", DefaultVerifyAutoRedownload)
}

// CliFlags holds pointers to values received from command-line flags.
// Nil fields indicate the flag was not provided by the user.
type CliFlags struct {
	// Global/Persistent Flags
	ConfigFilePath   *string
	LogLevel         *string // --log-level
	LogFormat        *string // --log-format
	LogApiRequests   *bool   // --log-api
	BaseDir          *string // --base-dir
	DatabasePath     *string // --database
	BleveIndexPath   *string // --index-path
	DownloadBaseURL  *string // --download-url
	ResourcesBaseURL *string // --resources-url
	LibraryBaseURL   *string // --library-url
	Proxy            *string // --proxy
	Workers          *int    // --workers

	// Command-specific flags nested
	Versions *CliVersionsFlags
	Install  *CliInstallFlags
	Verify   *CliVerifyFlags
}

type CliVersionsFlags struct {
	Types    *[]string // --type
	MaxCount *int      // --max
}

type CliInstallFlags struct {
	Force         *bool   // --force
	UnpackNatives *bool   // --unpack
	SkipResources *bool   // --skip-resources
	NativesDir    *string // --natives-dir
}

type CliVerifyFlags struct {
	CheckHash      *bool // --check-hash
	AutoRedownload *bool // --redownload
}

// Initialize loads configuration based on defaults, config file, environment
// and flags. Precedence: Flags > Environment > Config File > Defaults.
func Initialize(flags CliFlags) (models.Config, http.RoundTripper, error) {
	var finalCfg models.Config

	v := viper.New()
	v.SetEnvPrefix("VERSION_UPDATER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setViperDefaults(v)

	actualConfigFilePath := DefaultConfigFilePath
	if flags.ConfigFilePath != nil {
		actualConfigFilePath = *flags.ConfigFilePath
		log.Debugf("[Config] Using config file path from CLI flag: %s", actualConfigFilePath)
	}
	v.SetConfigFile(actualConfigFilePath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(actualConfigFilePath); os.IsNotExist(statErr) {
			log.Debugf("[Config] Config file '%s' not found. Using defaults and CLI flags only.", actualConfigFilePath)
		} else {
			log.Warnf("[Config] Error reading config file '%s': %v. Using defaults and CLI flags only.", actualConfigFilePath, err)
		}
	} else {
		log.Debugf("[Config] Read config file: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&finalCfg); err != nil {
		return models.Config{}, nil, fmt.Errorf("failed to unmarshal config from viper: %w", err)
	}

	applyFlags(&finalCfg, flags)

	// --- Derive default paths ---
	if finalCfg.DatabasePath == "" {
		finalCfg.DatabasePath = filepath.Join(finalCfg.BaseDir, DefaultDatabaseFile)
		log.Debugf("[Config] DatabasePath defaulted based on BaseDir: %s", finalCfg.DatabasePath)
	}

	// --- Validation ---
	if finalCfg.BaseDir == "" {
		return models.Config{}, nil, fmt.Errorf("BaseDir cannot be empty (set via --base-dir flag or BaseDir in config)")
	}
	if finalCfg.Workers <= 0 {
		log.Warnf("[Config] Workers must be positive, using %d", DefaultWorkers)
		finalCfg.Workers = DefaultWorkers
	}
	if finalCfg.Versions.MaxCount <= 0 {
		finalCfg.Versions.MaxCount = DefaultVersionsMaxCount
	}
	for _, t := range finalCfg.Versions.Types {
		if strings.EqualFold(t, "all") {
			continue
		}
		if _, err := models.ParseReleaseType(t); err != nil {
			return models.Config{}, nil, fmt.Errorf("invalid Versions.Types entry: %w", err)
		}
	}

	// --- Setup HTTP Transport ---
	baseTransport, err := api.NewTransport(api.TransportOptions{
		ConnectTimeout: time.Duration(finalCfg.ConnectTimeoutSec) * time.Second,
		ReadTimeout:    time.Duration(finalCfg.ReadTimeoutSec) * time.Second,
		Proxy:          finalCfg.Proxy,
	})
	if err != nil {
		return models.Config{}, nil, err
	}
	var finalTransport http.RoundTripper = baseTransport

	if finalCfg.LogApiRequests {
		logFilePath := "api.log"
		if _, statErr := os.Stat(finalCfg.BaseDir); statErr == nil {
			logFilePath = filepath.Join(finalCfg.BaseDir, logFilePath)
		} else {
			log.Warnf("BaseDir '%s' not found, saving api.log to current directory.", finalCfg.BaseDir)
		}
		log.Infof("API logging to file: %s", logFilePath)

		loggingTransport, err := api.NewLoggingTransport(baseTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		} else {
			finalTransport = loggingTransport
		}
	}

	log.Debug("Configuration initialized successfully.")
	return finalCfg, finalTransport, nil
}

func applyFlags(cfg *models.Config, flags CliFlags) {
	setString := func(dst *string, src *string, name string) {
		if src != nil {
			log.Debugf("[Config] Overriding %s from flag: '%s'", name, *src)
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool, name string) {
		if src != nil {
			log.Debugf("[Config] Overriding %s from flag: %v", name, *src)
			*dst = *src
		}
	}

	setString(&cfg.LogLevel, flags.LogLevel, "LogLevel")
	setString(&cfg.LogFormat, flags.LogFormat, "LogFormat")
	setBool(&cfg.LogApiRequests, flags.LogApiRequests, "LogApiRequests")
	setString(&cfg.BaseDir, flags.BaseDir, "BaseDir")
	setString(&cfg.DatabasePath, flags.DatabasePath, "DatabasePath")
	setString(&cfg.BleveIndexPath, flags.BleveIndexPath, "BleveIndexPath")
	setString(&cfg.DownloadBaseURL, flags.DownloadBaseURL, "DownloadBaseURL")
	setString(&cfg.ResourcesBaseURL, flags.ResourcesBaseURL, "ResourcesBaseURL")
	setString(&cfg.LibraryBaseURL, flags.LibraryBaseURL, "LibraryBaseURL")
	setString(&cfg.Proxy, flags.Proxy, "Proxy")
	if flags.Workers != nil {
		log.Debugf("[Config] Overriding Workers from flag: %d", *flags.Workers)
		cfg.Workers = *flags.Workers
	}

	if flags.Versions != nil {
		if flags.Versions.Types != nil && len(*flags.Versions.Types) > 0 {
			cfg.Versions.Types = *flags.Versions.Types
		}
		if flags.Versions.MaxCount != nil {
			cfg.Versions.MaxCount = *flags.Versions.MaxCount
		}
	}

	if flags.Install != nil {
		setBool(&cfg.Install.Force, flags.Install.Force, "Install.Force")
		setBool(&cfg.Install.UnpackNatives, flags.Install.UnpackNatives, "Install.UnpackNatives")
		setBool(&cfg.Install.SkipResources, flags.Install.SkipResources, "Install.SkipResources")
		setString(&cfg.Install.NativesDir, flags.Install.NativesDir, "Install.NativesDir")
	}

	if flags.Verify != nil {
		setBool(&cfg.Verify.CheckHash, flags.Verify.CheckHash, "Verify.CheckHash")
		setBool(&cfg.Verify.AutoRedownload, flags.Verify.AutoRedownload, "Verify.AutoRedownload")
	}
}

// DefaultConfig returns the configuration written by 'config init'.
func DefaultConfig() models.Config {
	return models.Config{
		BaseDir:           DefaultBaseDir(),
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
		DownloadBaseURL:   DefaultDownloadBaseURL,
		ResourcesBaseURL:  DefaultResourcesBaseURL,
		LibraryBaseURL:    DefaultLibraryBaseURL,
		Workers:           DefaultWorkers,
		ConnectTimeoutSec: DefaultConnectTimeoutSec,
		ReadTimeoutSec:    DefaultReadTimeoutSec,
		Versions: models.VersionsConfig{
			Types:    append([]string(nil), DefaultVersionTypes...),
			MaxCount: DefaultVersionsMaxCount,
		},
		Install: models.InstallConfig{
			NativesDir:    DefaultInstallNativesDir,
			UnpackNatives: DefaultInstallUnpackNatives,
		},
		Verify: models.VerifyConfig{
			CheckHash: DefaultVerifyCheckHash,
		},
	}
}

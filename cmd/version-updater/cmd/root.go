package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-version-updater/internal/api"
	"go-version-updater/internal/catalog"
	"go-version-updater/internal/config"
	"go-version-updater/internal/downloader"
	"go-version-updater/internal/models"
	"go-version-updater/internal/updater"
)

// Persistent flag values. Only flags the user actually set are passed on
// to config.Initialize, see loadGlobalConfig.
var (
	cfgFile             string
	logLevelFlag        string
	logFormatFlag       string
	logApiFlag          bool
	baseDirFlag         string
	databasePathFlag    string
	bleveIndexPathFlag  string
	downloadBaseURLFlag string
	resourcesURLFlag    string
	libraryURLFlag      string
	proxyFlag           string
	workersFlag         int
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the globally configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

// globalExecutor is the worker pool shared by catalog refreshes and download
// jobs for the running command.
var globalExecutor *downloader.Executor

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "version-updater",
	Short: "Keep a local game folder in sync with the published versions",
	Long: `Version Updater lists the versions published on the download server,
compares them with the versions installed under the base directory and
downloads whatever is missing or outdated.`,
	PersistentPreRunE: loadGlobalConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownExecutor()
		api.CloseAllLoggingTransports()
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Interrupts cancel running downloads through the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", config.DefaultConfigFilePath, "Configuration file path")
	pf.StringVar(&logLevelFlag, "log-level", config.DefaultLogLevel, "Logging level (trace, debug, info, warn, error)")
	pf.StringVar(&logFormatFlag, "log-format", config.DefaultLogFormat, "Logging format (text, json)")
	pf.BoolVar(&logApiFlag, "log-api", false, "Log HTTP requests and responses to api.log in the base directory")
	pf.StringVar(&baseDirFlag, "base-dir", "", "Game directory holding versions/, libraries/ and assets/ (overrides config)")
	pf.StringVar(&databasePathFlag, "database", "", "Install ledger path (default <base-dir>/updater.db)")
	pf.StringVar(&bleveIndexPathFlag, "index-path", "", "Search index directory (empty keeps the index in memory)")
	pf.StringVar(&downloadBaseURLFlag, "download-url", "", "Base URL of the version server (overrides config)")
	pf.StringVar(&resourcesURLFlag, "resources-url", "", "Base URL of the resources bucket (overrides config)")
	pf.StringVar(&libraryURLFlag, "library-url", "", "Base URL of the library repository (overrides config)")
	pf.StringVar(&proxyFlag, "proxy", "", "HTTP proxy URL (overrides config)")
	pf.IntVarP(&workersFlag, "workers", "w", config.DefaultWorkers, "Number of concurrent download workers")
}

// changedString returns a pointer to value when the named flag was set on
// the command line, nil otherwise.
func changedString(cmd *cobra.Command, name string, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func changedBool(cmd *cobra.Command, name string, value bool) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func changedInt(cmd *cobra.Command, name string, value int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

// buildCliFlags collects the flags the user set for cmd.
func buildCliFlags(cmd *cobra.Command) config.CliFlags {
	flags := config.CliFlags{
		ConfigFilePath:   &cfgFile,
		LogLevel:         changedString(cmd, "log-level", logLevelFlag),
		LogFormat:        changedString(cmd, "log-format", logFormatFlag),
		LogApiRequests:   changedBool(cmd, "log-api", logApiFlag),
		BaseDir:          changedString(cmd, "base-dir", baseDirFlag),
		DatabasePath:     changedString(cmd, "database", databasePathFlag),
		BleveIndexPath:   changedString(cmd, "index-path", bleveIndexPathFlag),
		DownloadBaseURL:  changedString(cmd, "download-url", downloadBaseURLFlag),
		ResourcesBaseURL: changedString(cmd, "resources-url", resourcesURLFlag),
		LibraryBaseURL:   changedString(cmd, "library-url", libraryURLFlag),
		Proxy:            changedString(cmd, "proxy", proxyFlag),
		Workers:          changedInt(cmd, "workers", workersFlag),
	}

	switch cmd {
	case versionsCmd:
		flags.Versions = &config.CliVersionsFlags{MaxCount: changedInt(cmd, "max", versionsMaxFlag)}
		if cmd.Flags().Changed("type") {
			flags.Versions.Types = &versionsTypesFlag
		}
	case installCmd:
		flags.Install = &config.CliInstallFlags{
			Force:         changedBool(cmd, "force", installForceFlag),
			UnpackNatives: changedBool(cmd, "unpack", installUnpackFlag),
			SkipResources: changedBool(cmd, "skip-resources", installSkipResourcesFlag),
			NativesDir:    changedString(cmd, "natives-dir", installNativesDirFlag),
		}
	case verifyCmd:
		flags.Verify = &config.CliVerifyFlags{
			CheckHash:      changedBool(cmd, "check-hash", verifyCheckHashFlag),
			AutoRedownload: changedBool(cmd, "yes", verifyYesFlag),
		}
	}
	return flags
}

// loadGlobalConfig loads the configuration, applies flag overrides and sets
// up logging and the global HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	cfg, transport, err := config.Initialize(buildCliFlags(cmd))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := initLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	globalConfig = cfg
	globalHttpTransport = transport
	log.Debugf("Global HTTP transport type: %T", globalHttpTransport)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdownExecutor()
	globalExecutor = downloader.NewExecutor(ctx, cfg.Workers)
	return nil
}

func shutdownExecutor() {
	if globalExecutor != nil {
		globalExecutor.Shutdown()
		globalExecutor = nil
	}
}

func initLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", level, err)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format '%s' (expected text or json)", format)
	}
	log.SetOutput(os.Stderr)
	return nil
}

// newManager builds the local and remote catalogs from globalConfig.
func newManager() (*updater.Manager, error) {
	if err := os.MkdirAll(globalConfig.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}
	diag := log.WithField("baseDir", globalConfig.BaseDir)
	local, err := catalog.NewLocalCatalog(globalConfig.BaseDir, diag)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Transport: globalHttpTransport}
	remote := catalog.NewRemoteCatalog(api.NewClient(globalConfig.DownloadBaseURL, httpClient), log.WithField("server", globalConfig.DownloadBaseURL))

	return updater.NewManager(local, remote, updater.Options{
		LibraryBaseURL:   globalConfig.LibraryBaseURL,
		ResourcesBaseURL: globalConfig.ResourcesBaseURL,
		HttpClient:       httpClient,
	}), nil
}

package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-version-updater/internal/downloader"
)

var resourcesDryRunFlag bool

// resourcesCmd refreshes the shared resource files
var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Download changed resource files",
	Long: `Lists the resources bucket and downloads every asset whose local copy is
missing or differs from the published one. Individual failures are logged
but do not fail the command.`,
	Args: cobra.NoArgs,
	RunE: runResources,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
	resourcesCmd.Flags().BoolVar(&resourcesDryRunFlag, "dry-run", false, "Only print the files that would be downloaded")
}

func runResources(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, err := newManager()
	if err != nil {
		return err
	}

	if resourcesDryRunFlag {
		specs, err := m.ResourceFiles(ctx, globalConfig.BaseDir)
		if err != nil {
			return err
		}
		for _, spec := range specs {
			fmt.Println(spec.Target)
		}
		fmt.Printf("%d resource file(s) need downloading.\n", len(specs))
		return nil
	}

	printer := newProgressPrinter()
	defer printer.Stop()

	job := downloader.NewJob("Resources", true, printer)
	printer.track(job.Name())
	if err := m.DownloadResources(ctx, job); err != nil {
		return fmt.Errorf("listing resources: %w", err)
	}
	if err := runJobs(ctx, job); err != nil {
		return err
	}
	printer.Stop()

	log.Infof("[Resources] %d of %d resource files downloaded", job.Successful(), job.Size())
	return nil
}

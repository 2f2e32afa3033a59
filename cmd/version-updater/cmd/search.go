package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-version-updater/internal/index"
)

var searchLimitFlag int

// searchCmd queries the version index
var searchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search versions by id, type, year or main class",
	Long: `Refreshes the version lists, indexes every known version and runs a query
string against the index, for example:

  version-updater search type:snapshot year:2013
  version-updater search "mainClass:net.minecraft.client.Minecraft"

The index is kept in memory unless BleveIndexPath (--index-path) is set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimitFlag, "limit", "l", 20, "Maximum number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}
	refreshVersions(cmd.Context(), m)

	idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		return fmt.Errorf("opening search index: %w", err)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			log.WithError(err).Warn("[Index] Failed to close search index")
		}
	}()

	if err := index.IndexVersions(idx, m.Versions(nil)); err != nil {
		return err
	}

	hits, err := index.Search(idx, strings.Join(args, " "), searchLimitFlag)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No matching versions.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Version\tType\tYear\tInstalled\tMain Class\tScore")
	fmt.Fprintln(tw, "-------\t----\t----\t---------\t----------\t-----")
	for _, hit := range hits {
		mainClass := hit.MainClass
		if mainClass == "" {
			mainClass = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.3f\n", hit.ID, hit.Type, hit.Year, yesNo(hit.Installed), mainClass, hit.Score)
	}
	return tw.Flush()
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexStatsCmd)
	rootCmd.AddCommand(indexCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the full-text index (sqlite backend)",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild [project]",
	Short: "Rebuild the full-text index from the stored entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndexRebuild,
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	idx := mustIndexer(mustOpenBackend(mustLoadConfig(), log))

	project := ""
	if len(args) == 1 {
		project = args[0]
	}
	report, err := idx.RebuildIndex(project)
	if err != nil {
		exitWithError(exitCodeFor(err), "rebuilding index: %v", err)
	}

	if humanOutput {
		outputHuman("Indexed %d entries\n", report.Indexed)
	} else {
		outputJSON(report)
	}
	return nil
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index health",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	idx := mustIndexer(mustOpenBackend(mustLoadConfig(), log))

	stats, err := idx.GetIndexStats()
	if err != nil {
		exitWithError(exitCodeFor(err), "reading index stats: %v", err)
	}

	if humanOutput {
		state := "stale"
		if stats.InSync {
			state = "in sync"
		}
		fmt.Printf("Entries:  %d\n", stats.Entries)
		fmt.Printf("Indexed:  %d (%s)\n", stats.Indexed, state)
		fmt.Printf("Database: %s (%d bytes)\n", stats.DBPath, stats.DBSizeB)
	} else {
		outputJSON(stats)
	}
	return nil
}

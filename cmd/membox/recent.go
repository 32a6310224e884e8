package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentutil/membox/internal/memory"
)

var recentLimit int

func init() {
	recentCmd.Flags().IntVar(&recentLimit, "limit", 0, "Number of entries (0 uses the configured default)")
	rootCmd.AddCommand(recentCmd)
}

var recentCmd = &cobra.Command{
	Use:   "recent <project>",
	Short: "Show the most recent entries of a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecent,
}

// EntriesResponse is the JSON payload for entry listings.
type EntriesResponse struct {
	Project string         `json:"project"`
	Count   int            `json:"count"`
	Entries []memory.Entry `json:"entries"`
}

func runRecent(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	backend := mustOpenBackend(mustLoadConfig(), log)

	project := args[0]
	entries, err := backend.GetRecent(project, recentLimit)
	if err != nil {
		exitWithError(exitCodeFor(err), "reading recent entries: %v", err)
	}

	if humanOutput {
		printEntriesHuman(entries)
	} else {
		outputJSON(EntriesResponse{Project: project, Count: len(entries), Entries: entries})
	}
	return nil
}

func printEntriesHuman(entries []memory.Entry) {
	if len(entries) == 0 {
		fmt.Println("no entries")
		return
	}
	for _, e := range entries {
		heading := e.Timestamp
		if e.Title != "" {
			heading += " - " + e.Title
		}
		if e.Category != "" {
			heading += " #" + e.Category
		}
		fmt.Printf("%d. %s\n   %s\n\n", e.ID, heading, truncateString(firstLine(e.Body), 70))
	}
}

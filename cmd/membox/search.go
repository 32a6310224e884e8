package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentutil/membox/internal/memory"
)

var searchLimit int

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum results (0 uses the configured default)")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <project> <query>",
	Short: "Search a project's memory",
	Long: `Search a project's memory, ranked by relevance.

On the sqlite backend the query is routed automatically: enumeration
queries are answered from the index alone, analytical questions go
through context assembly, everything else takes a hybrid path.

Example:
  membox search my-app "auth tokens" --limit 5`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

// SearchResponse is the JSON payload for the search command.
type SearchResponse struct {
	Project string                `json:"project"`
	Query   string                `json:"query"`
	Count   int                   `json:"count"`
	Results []memory.SearchResult `json:"results"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	backend := mustOpenBackend(mustLoadConfig(), log)

	project, query := args[0], args[1]
	results, err := backend.Search(project, query, searchLimit)
	if err != nil {
		exitWithError(exitCodeFor(err), "searching: %v", err)
	}

	if humanOutput {
		printSearchResultsHuman(results)
	} else {
		outputJSON(SearchResponse{Project: project, Query: query, Count: len(results), Results: results})
	}
	return nil
}

func printSearchResultsHuman(results []memory.SearchResult) {
	if len(results) == 0 {
		fmt.Println("no matches")
		return
	}
	for i, r := range results {
		heading := r.Timestamp
		if r.Title != "" {
			heading += " - " + r.Title
		}
		if r.Category != "" {
			heading += " #" + r.Category
		}
		fmt.Printf("%d. [%.2f] %s\n", i+1, r.Relevance, heading)
		fmt.Printf("   %s\n\n", truncateString(firstLine(r.Body), 70))
	}
}

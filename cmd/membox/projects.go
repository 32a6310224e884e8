package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentutil/membox/internal/memory"
)

func init() {
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(statsCmd)
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List all projects with summary statistics",
	Args:  cobra.NoArgs,
	RunE:  runProjects,
}

// ProjectsResponse is the JSON payload for the projects command.
type ProjectsResponse struct {
	Count    int                     `json:"count"`
	Projects []memory.ProjectSummary `json:"projects"`
}

func runProjects(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	backend := mustOpenBackend(mustLoadConfig(), log)

	projects, err := backend.ListProjects()
	if err != nil {
		exitWithError(exitCodeFor(err), "listing projects: %v", err)
	}

	if humanOutput {
		if len(projects) == 0 {
			fmt.Println("no projects")
			return nil
		}
		for _, p := range projects {
			fmt.Printf("%s (%d entries, modified %s)\n", p.ID, p.EntryCount, p.LastModified)
			if len(p.Categories) > 0 {
				fmt.Printf("  categories: %s\n", strings.Join(p.Categories, ", "))
			}
		}
	} else {
		outputJSON(ProjectsResponse{Count: len(projects), Projects: projects})
	}
	return nil
}

var entriesCmd = &cobra.Command{
	Use:   "entries <project>",
	Short: "List every entry of a project with its id",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntries,
}

func runEntries(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	backend := mustOpenBackend(mustLoadConfig(), log)

	project := args[0]
	entries, err := backend.ListEntries(project)
	if err != nil {
		exitWithError(exitCodeFor(err), "listing entries: %v", err)
	}

	if humanOutput {
		printEntriesHuman(entries)
	} else {
		outputJSON(EntriesResponse{Project: project, Count: len(entries), Entries: entries})
	}
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats <project>",
	Short: "Show statistics for a project's memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	backend := mustOpenBackend(mustLoadConfig(), log)

	project := args[0]
	stats, err := backend.GetStats(project)
	if err != nil {
		exitWithError(exitCodeFor(err), "reading stats: %v", err)
	}

	if humanOutput {
		if !stats.Exists {
			fmt.Printf("no memory for project %s\n", project)
			return nil
		}
		fmt.Printf("Entries:    %d\n", stats.Entries)
		fmt.Printf("Words:      %d\n", stats.Words)
		fmt.Printf("Characters: %d\n", stats.Characters)
		if len(stats.Categories) > 0 {
			fmt.Printf("Categories: %s\n", strings.Join(stats.Categories, ", "))
		}
		fmt.Printf("Range:      %s .. %s\n", stats.Oldest, stats.Latest)
	} else {
		outputJSON(stats)
	}
	return nil
}

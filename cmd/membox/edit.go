package main

import (
	"github.com/spf13/cobra"

	"github.com/agentutil/membox/internal/memory"
)

// Selector flags shared by edit and delete.
var (
	selID        int64
	selTimestamp string
	selTitle     string
	selCategory  string
	selContent   string
)

var (
	editTitle    string
	editCategory string
	editBody     string
)

func addSelectorFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&selID, "id", 0, "Match the entry with this id")
	cmd.Flags().StringVar(&selTimestamp, "match-timestamp", "", "Match entries whose timestamp contains this")
	cmd.Flags().StringVar(&selTitle, "match-title", "", "Match entries whose title contains this")
	cmd.Flags().StringVar(&selCategory, "match-category", "", "Match entries whose category contains this")
	cmd.Flags().StringVar(&selContent, "match-content", "", "Match entries whose body contains this")
}

func selectorFromFlags() memory.Selector {
	return memory.Selector{
		ID:        selID,
		Timestamp: selTimestamp,
		Title:     selTitle,
		Category:  selCategory,
		Content:   selContent,
	}
}

func init() {
	addSelectorFlags(editCmd)
	editCmd.Flags().StringVar(&editTitle, "title", "", "Replacement title")
	editCmd.Flags().StringVar(&editCategory, "category", "", "Replacement category")
	editCmd.Flags().StringVar(&editBody, "body", "", "Replacement body")
	rootCmd.AddCommand(editCmd)
}

var editCmd = &cobra.Command{
	Use:   "edit <project>",
	Short: "Edit the first entry matching a selector",
	Long: `Edit the first entry matching a selector. Exactly one selector flag
should be given; --id wins over the substring matchers. Only the fields
passed as flags are replaced.

Example:
  membox edit my-app --id 3 --title "Corrected title"`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

func runEdit(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	backend := mustOpenBackend(mustLoadConfig(), log)

	fields := memory.EditFields{}
	if cmd.Flags().Changed("title") {
		fields.Title = &editTitle
	}
	if cmd.Flags().Changed("category") {
		fields.Category = &editCategory
	}
	if cmd.Flags().Changed("body") {
		fields.Body = &editBody
	}

	project := args[0]
	report, err := backend.EditEntry(project, selectorFromFlags(), fields)
	if err != nil {
		exitWithError(exitCodeFor(err), "editing entry: %v", err)
	}
	if report == nil {
		exitWithError(ExitNotFound, "no entry matched in project %s", project)
	}

	if humanOutput {
		outputHuman("Edited entry %d in %s\n", report.Edited.ID, project)
	} else {
		outputJSON(report)
	}
	return nil
}

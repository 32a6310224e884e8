package main

import (
	"github.com/spf13/cobra"
)

var (
	saveTitle    string
	saveCategory string
)

func init() {
	saveCmd.Flags().StringVar(&saveTitle, "title", "", "Optional entry title")
	saveCmd.Flags().StringVar(&saveCategory, "category", "", "Optional entry category")
	rootCmd.AddCommand(saveCmd)
}

var saveCmd = &cobra.Command{
	Use:   "save <project> <body>",
	Short: "Append a new memory entry to a project",
	Long: `Append a new memory entry to a project. Entries are never overwritten.

Example:
  membox save my-app "Switched auth to tokens" --title "Auth" --category security`,
	Args: cobra.ExactArgs(2),
	RunE: runSave,
}

func runSave(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	backend := mustOpenBackend(mustLoadConfig(), log)

	project, body := args[0], args[1]
	if err := backend.Save(project, body, saveTitle, saveCategory); err != nil {
		exitWithError(exitCodeFor(err), "saving entry: %v", err)
	}

	if humanOutput {
		outputHuman("Saved to %s\n", project)
	} else {
		outputJSON(StatusResponse{Status: "saved", Project: project})
	}
	return nil
}

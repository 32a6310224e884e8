package main

import (
	"github.com/spf13/cobra"
)

func init() {
	addSelectorFlags(deleteCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(renameCmd)
}

var deleteCmd = &cobra.Command{
	Use:   "delete <project>",
	Short: "Delete every entry matching a selector",
	Long: `Delete every entry matching a selector. With --id exactly one entry
is removed and later entries shift down one position on the file backend.

Example:
  membox delete my-app --match-category obsolete`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	backend := mustOpenBackend(mustLoadConfig(), log)

	project := args[0]
	report, err := backend.DeleteEntry(project, selectorFromFlags())
	if err != nil {
		exitWithError(exitCodeFor(err), "deleting entries: %v", err)
	}
	if report == nil {
		exitWithError(ExitNotFound, "no entry matched in project %s", project)
	}

	if humanOutput {
		outputHuman("Deleted %d entries from %s (%d remaining)\n",
			len(report.Deleted), project, report.Remaining)
	} else {
		outputJSON(report)
	}
	return nil
}

var dropCmd = &cobra.Command{
	Use:   "drop <project>",
	Short: "Delete a whole project and all its entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runDrop,
}

func runDrop(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	backend := mustOpenBackend(mustLoadConfig(), log)

	project := args[0]
	existed, err := backend.DeleteProject(project)
	if err != nil {
		exitWithError(exitCodeFor(err), "deleting project: %v", err)
	}
	if !existed {
		exitWithError(ExitNotFound, "project %s does not exist", project)
	}

	if humanOutput {
		outputHuman("Deleted project %s\n", project)
	} else {
		outputJSON(StatusResponse{Status: "deleted", Project: project})
	}
	return nil
}

var renameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a project, relabeling every entry atomically",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

func runRename(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	backend := mustOpenBackend(mustLoadConfig(), log)

	oldID, newID := args[0], args[1]
	renamed, err := backend.RenameProject(oldID, newID)
	if err != nil {
		exitWithError(exitCodeFor(err), "renaming project: %v", err)
	}
	if !renamed {
		exitWithError(ExitNotFound, "project %s does not exist", oldID)
	}

	if humanOutput {
		outputHuman("Renamed %s to %s\n", oldID, newID)
	} else {
		outputJSON(StatusResponse{Status: "renamed", Project: newID, Detail: "was " + oldID})
	}
	return nil
}

package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <project>",
	Short: "Print a project's full memory text",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

// GetResponse is the JSON payload for the get command.
type GetResponse struct {
	Project string `json:"project"`
	Exists  bool   `json:"exists"`
	Text    string `json:"text,omitempty"`
}

func runGet(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	backend := mustOpenBackend(mustLoadConfig(), log)

	project := args[0]
	text, ok, err := backend.Get(project)
	if err != nil {
		exitWithError(exitCodeFor(err), "reading memory: %v", err)
	}
	if !ok {
		if humanOutput {
			exitWithError(ExitNotFound, "no memory for project %s", project)
		}
		outputJSON(GetResponse{Project: project, Exists: false})
		return nil
	}

	if humanOutput {
		outputHuman("%s", text)
	} else {
		outputJSON(GetResponse{Project: project, Exists: true, Text: text})
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	askLimit     int
	askMaxTokens int
)

func init() {
	askCmd.Flags().IntVar(&askLimit, "limit", 0, "Maximum snippets (0 uses the configured default)")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "Token budget for the bundle (0 uses the configured default)")
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask <project> <question>",
	Short: "Assemble a token-budgeted context bundle for a question",
	Long: `Assemble a context bundle answering a question from a project's
memory: a cheap index retrieval picks candidates, then bodies are loaded
selectively and trimmed to the paragraphs mentioning the question terms.
The bundle's estimated token total never exceeds the budget.

Requires the sqlite backend.

Example:
  membox ask my-app "why did we switch auth" --backend sqlite`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	idx := mustIndexer(mustOpenBackend(mustLoadConfig(), log))

	project, question := args[0], args[1]
	bundle, err := idx.RAGAssemble(project, question, askLimit, askMaxTokens)
	if err != nil {
		exitWithError(exitCodeFor(err), "assembling context: %v", err)
	}

	if humanOutput {
		outputHuman("Context for %q (%d/%d tokens)\n\n", bundle.Question, bundle.Tokens, bundle.MaxTokens)
		for _, sn := range bundle.Snippets {
			heading := sn.Timestamp
			if sn.Title != "" {
				heading += " - " + sn.Title
			}
			fmt.Printf("[%d tok] %s\n%s\n\n", sn.Tokens, heading, sn.Text)
		}
	} else {
		outputJSON(bundle)
	}
	return nil
}

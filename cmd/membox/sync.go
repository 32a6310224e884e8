package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentutil/membox/internal/config"
	"github.com/agentutil/membox/internal/filestore"
	"github.com/agentutil/membox/internal/memory"
	"github.com/agentutil/membox/internal/sqlstore"
	"github.com/agentutil/membox/internal/syncer"
)

var (
	syncMode      string
	syncThreshold float64
	syncTo        string
)

func init() {
	syncCmd.Flags().StringVar(&syncMode, "mode", string(syncer.ModeAuto), "Sync mode: preview, auto or interactive")
	syncCmd.Flags().Float64Var(&syncThreshold, "threshold", syncer.DefaultThreshold, "Similarity above which diverged content is replaced")
	syncCmd.Flags().StringVar(&syncTo, "to", "sqlite", "Sync direction: sqlite (file to db) or file (db to file)")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync [project]",
	Short: "Reconcile the two backends by content similarity",
	Long: `Reconcile the two backends by content similarity. Without a project
argument every project in the source backend is synced.

Per project: content absent from the target is imported; similar content
(Jaccard similarity strictly above the threshold) replaces the target;
diverged content is imported under "<project>-imported" instead of being
overwritten. The source backend is never mutated, so an interrupted sync
can be replayed.

Example:
  membox sync --mode preview
  membox sync my-app --to sqlite --threshold 0.7`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	cfg := mustLoadConfig()

	source, target := mustSyncPair(cfg, log)
	engine := syncer.New(source, target, log)

	if len(args) == 1 {
		d, err := engine.SyncProject(args[0], syncer.Mode(syncMode), syncThreshold)
		if err != nil {
			exitWithError(exitCodeFor(err), "syncing project: %v", err)
		}
		if humanOutput {
			printDecisionHuman(*d)
		} else {
			outputJSON(d)
		}
		return nil
	}

	report, err := engine.SyncAll(syncer.Mode(syncMode), syncThreshold)
	if err != nil {
		exitWithError(exitCodeFor(err), "syncing: %v", err)
	}

	if humanOutput {
		for _, d := range report.Decisions {
			printDecisionHuman(d)
		}
		fmt.Printf("%d of %d applied\n", report.Applied, len(report.Decisions))
	} else {
		outputJSON(report)
	}
	return nil
}

// mustSyncPair builds (source, target) for the requested direction.
func mustSyncPair(cfg config.Config, log *zap.Logger) (memory.Backend, memory.Backend) {
	fs, err := filestore.New(cfg, log)
	if err != nil {
		exitWithError(ExitConfigError, "opening file backend: %v", err)
	}
	db, err := sqlstore.New(cfg, log)
	if err != nil {
		exitWithError(ExitConfigError, "opening sqlite backend: %v", err)
	}

	switch syncTo {
	case "sqlite", "db":
		return fs, db
	case "file":
		return db, fs
	default:
		exitWithError(ExitConfigError, "unknown sync direction %q (want sqlite or file)", syncTo)
		return nil, nil
	}
}

func printDecisionHuman(d syncer.Decision) {
	state := "planned"
	if d.Applied {
		state = "applied"
	}
	fmt.Printf("%s: %s (similarity %.2f, %s)", d.Project, d.Action, d.Similarity, state)
	if d.Target != "" && d.Target != d.Project {
		fmt.Printf(" -> %s", d.Target)
	}
	fmt.Println()
}

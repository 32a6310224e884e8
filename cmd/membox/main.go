// Package main provides the membox CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agentutil/membox/internal/config"
	"github.com/agentutil/membox/internal/filestore"
	"github.com/agentutil/membox/internal/memory"
	"github.com/agentutil/membox/internal/sqlstore"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	backendName string
	configPath  string
	verbose     bool
)

func main() {
	// Missing .env is fine; explicit env always wins.
	godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "membox",
	Short: "Project-scoped long-term memory for AI agents",
	Long: `membox is a persistent note store scoped by project, built for AI
agent long-term memory.

Core features:
  - Append-only Markdown flat files, one per project, with advisory locking
  - SQLite backend with full-text trigram index and query routing
  - Token-budgeted context assembly for retrieval-augmented answers
  - Similarity-based sync between the two backends

All commands output JSON by default for AI agent integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "file", "Storage backend: file or sqlite")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging to stderr")
	rootCmd.Version = Version
}

// mustLoadConfig loads configuration, exits on error.
func mustLoadConfig() config.Config {
	cfg, err := config.Load("", configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// newLogger builds the CLI logger. Structured output goes to stderr so
// stdout stays parseable JSON; warnings only unless --verbose.
func newLogger() *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// mustOpenBackend constructs the backend selected by --backend, exits on
// error.
func mustOpenBackend(cfg config.Config, log *zap.Logger) memory.Backend {
	switch backendName {
	case "file":
		s, err := filestore.New(cfg, log)
		if err != nil {
			exitWithError(ExitConfigError, "opening file backend: %v", err)
		}
		return s
	case "sqlite", "db":
		s, err := sqlstore.New(cfg, log)
		if err != nil {
			exitWithError(ExitConfigError, "opening sqlite backend: %v", err)
		}
		return s
	default:
		exitWithError(ExitConfigError, "unknown backend %q (want file or sqlite)", backendName)
		return nil
	}
}

// mustIndexer probes the backend for the indexing capability, exits when
// it has none.
func mustIndexer(b memory.Backend) memory.Indexer {
	idx, ok := b.(memory.Indexer)
	if !ok {
		exitWithError(ExitConfigError, "backend %q has no full-text index; use --backend sqlite", backendName)
	}
	return idx
}

// exitCodeFor maps an error to the CLI exit code table.
func exitCodeFor(err error) int {
	switch memory.KindOf(err) {
	case memory.KindValidation, memory.KindSecurity:
		return ExitDataError
	case memory.KindLockTimeout:
		return ExitLockTimeout
	case memory.KindStorage, memory.KindDatabase:
		return ExitError
	default:
		return ExitError
	}
}

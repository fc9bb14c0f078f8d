package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/devdb"
	"github.com/tidemark/tidemark/internal/engine"
	"github.com/tidemark/tidemark/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "tidemark",
	Short: "Declarative schema migrations for fleets of databases",
	Long: `Tidemark reconciles every configured database with a single desired
schema definition: it inspects the live schema, diffs it against the
desired state, plans ordered DDL, lints the plan for risky statements,
and applies it target by target with canary ordering.`,
}

func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.tidemark/tidemark.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// setup loads the config and builds the logger every subcommand shares.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.Setup(level, cfg.Logging.Directory)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// buildEngine wires the dev database and desired schema into an engine.
func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	dev, err := devdb.New(&cfg.DevDatabase)
	if err != nil {
		return nil, err
	}
	desired, err := engine.LoadDesired(ctx, cfg, dev)
	if err != nil {
		return nil, fmt.Errorf("loading desired schema: %w", err)
	}
	return engine.New(cfg, desired, dev, logger), nil
}

// findTarget resolves a --target flag value against the config, or
// returns all targets when the flag is empty.
func findTarget(cfg *config.Config, name string) ([]config.Target, error) {
	if name == "" {
		return cfg.Targets, nil
	}
	for _, t := range cfg.Targets {
		if t.Name == name {
			return []config.Target{t}, nil
		}
	}
	return nil, fmt.Errorf("unknown target %q", name)
}

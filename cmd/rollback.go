package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/lock"
	"github.com/tidemark/tidemark/internal/revision"
)

var rollbackTarget string

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Revert the most recently applied revision",
	Long: `Run the down script of each target's highest applied revision and
remove it from the ledger. A revision without a down file cannot be
rolled back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if cfg.Revisions.Directory == "" {
			return fmt.Errorf("no revisions.directory configured")
		}

		revisions, err := revision.Load(config.ExpandHome(cfg.Revisions.Directory))
		if err != nil {
			return err
		}

		targets, err := findTarget(cfg, rollbackTarget)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := lock.Acquire(""); err != nil {
			return err
		}
		defer lock.Release("")

		for i := range targets {
			t := &targets[i]
			res := revision.Rollback(ctx, t, revisions, cfg.Revisions.Table, logger)
			switch {
			case res.Failed():
				fmt.Printf("  [FAIL] %s: %s\n", t.Name, res.ErrorMsg)
				return res.Err
			case res.VersionFrom == 0:
				fmt.Printf("  [ OK ] %s: nothing applied\n", t.Name)
			default:
				fmt.Printf("  [ OK ] %s: version %d -> %d\n", t.Name, res.VersionFrom, res.VersionTo)
			}
		}
		return nil
	},
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackTarget, "target", "", "limit to one target")
	rootCmd.AddCommand(rollbackCmd)
}

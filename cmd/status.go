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

var statusTarget string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending revisions per target",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}

		if held, pid, _ := lock.IsHeld(""); held {
			fmt.Printf("A run is in progress (PID %d)\n\n", pid)
		}

		if cfg.Revisions.Directory == "" {
			return fmt.Errorf("no revisions.directory configured; use `tidemark diff` for declarative state")
		}
		revisions, err := revision.Load(config.ExpandHome(cfg.Revisions.Directory))
		if err != nil {
			return err
		}
		fmt.Printf("%d revision(s) in %s\n\n", len(revisions), cfg.Revisions.Directory)

		targets, err := findTarget(cfg, statusTarget)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		for i := range targets {
			t := &targets[i]
			ledger, err := revision.OpenLedger(ctx, t, cfg.Revisions.Table)
			if err != nil {
				fmt.Printf("%s: unreachable (%v)\n", t.Name, err)
				continue
			}

			current, err := ledger.CurrentVersion(ctx)
			if err != nil {
				ledger.Close()
				fmt.Printf("%s: %v\n", t.Name, err)
				continue
			}
			entries, err := ledger.Entries(ctx)
			ledger.Close()
			if err != nil {
				fmt.Printf("%s: %v\n", t.Name, err)
				continue
			}

			pending := revision.Pending(revisions, current)
			fmt.Printf("%s: version %d, %d pending\n", t.Name, current, len(pending))
			for _, e := range entries {
				fmt.Printf("  [applied] %03d_%s at %s\n", e.Version, e.Description,
					e.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			for _, r := range pending {
				fmt.Printf("  [pending] %03d_%s\n", r.Version, r.Description)
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusTarget, "target", "", "limit to one target")
	rootCmd.AddCommand(statusCmd)
}

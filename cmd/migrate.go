package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tidemark/tidemark/internal/devdb"
	"github.com/tidemark/tidemark/internal/engine"
	"github.com/tidemark/tidemark/internal/lock"
	"github.com/tidemark/tidemark/internal/schema"
)

var migrateReport string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending versioned revisions to every target",
	Long: `Apply the numbered migration files after each target's current
version marker, recording every applied revision in the ledger table.
Canary ordering and fail-fast behavior match apply.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if cfg.Revisions.Directory == "" {
			return fmt.Errorf("no revisions.directory configured")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Versioned runs never consult the desired schema; the engine only
		// needs the fan-out policy.
		dev, err := devdb.New(&cfg.DevDatabase)
		if err != nil {
			return err
		}
		eng := engine.New(cfg, &schema.Schema{}, dev, logger)

		if err := lock.Acquire(""); err != nil {
			return err
		}
		defer lock.Release("")

		rep, runErr := eng.MigrateAll(ctx)

		for i := range rep.Targets {
			t := &rep.Targets[i]
			switch {
			case t.Skipped:
				fmt.Printf("  [SKIP] %s\n", t.Target)
			case t.Failed():
				fmt.Printf("  [FAIL] %s: %s\n", t.Target, targetError(t))
			case t.NoChange:
				fmt.Printf("  [ OK ] %s: already at version %d\n", t.Target, t.Revisions.VersionTo)
			default:
				fmt.Printf("  [ OK ] %s: version %d -> %d (%d revision(s))\n",
					t.Target, t.Revisions.VersionFrom, t.Revisions.VersionTo, len(t.Revisions.Applied))
			}
		}
		fmt.Println()
		fmt.Println(rep.Summary())

		if migrateReport != "" {
			if err := rep.WriteYAML(migrateReport); err != nil {
				return err
			}
			fmt.Printf("Report written to %s\n", migrateReport)
		}
		return runErr
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateReport, "report", "", "write the run report to a file")
	rootCmd.AddCommand(migrateCmd)
}

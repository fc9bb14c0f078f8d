package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tidemark/tidemark/internal/lock"
	"github.com/tidemark/tidemark/internal/report"
)

var (
	applyDryRun       bool
	applyReport       string
	applyReportFormat string
	applySuppressFile string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Reconcile every target with the desired schema",
	Long: `Inspect, diff, plan, lint, and execute against every configured
target. The first run.canaries targets run serially; a failure there
halts the whole run before later targets are touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		sups, err := loadSuppressions(applySuppressFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := buildEngine(ctx, cfg, logger)
		if err != nil {
			return err
		}
		eng.Suppressions = sups
		eng.DryRun = applyDryRun || cfg.Run.DryRun

		if !eng.DryRun {
			if err := lock.Acquire(""); err != nil {
				return err
			}
			defer lock.Release("")
		}

		rep, runErr := eng.Run(ctx)

		for i := range rep.Targets {
			t := &rep.Targets[i]
			switch {
			case t.Skipped:
				fmt.Printf("  [SKIP] %s\n", t.Target)
			case t.Failed():
				fmt.Printf("  [FAIL] %s: %s\n", t.Target, targetError(t))
			case t.NoChange:
				fmt.Printf("  [ OK ] %s: up to date\n", t.Target)
			case eng.DryRun:
				fmt.Printf("  [PLAN] %s: %d statement(s)\n", t.Target, len(t.Statements))
			default:
				fmt.Printf("  [ OK ] %s: %d statement(s) applied\n", t.Target, len(t.Statements))
			}
		}
		fmt.Println()
		fmt.Println(rep.Summary())

		if applyReport != "" {
			var werr error
			if applyReportFormat == "json" {
				werr = rep.WriteJSON(applyReport)
			} else {
				werr = rep.WriteYAML(applyReport)
			}
			if werr != nil {
				return werr
			}
			fmt.Printf("Report written to %s\n", applyReport)
		}

		return runErr
	},
}

func targetError(t *report.TargetReport) string {
	switch {
	case t.Error != "":
		return t.Error
	case t.Execution != nil && t.Execution.ErrorMsg != "":
		return t.Execution.ErrorMsg
	case t.Revisions != nil && t.Revisions.ErrorMsg != "":
		return t.Revisions.ErrorMsg
	}
	return "unknown error"
}

func init() {
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "plan and lint without executing")
	applyCmd.Flags().StringVar(&applyReport, "report", "", "write the run report to a file")
	applyCmd.Flags().StringVar(&applyReportFormat, "report-format", "yaml", "report format (yaml or json)")
	applyCmd.Flags().StringVar(&applySuppressFile, "suppressions", "", "YAML file of lint suppressions")
	rootCmd.AddCommand(applyCmd)
}

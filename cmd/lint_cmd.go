package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/lint"
	"github.com/tidemark/tidemark/internal/revision"
)

var (
	lintTarget       string
	lintSuppressFile string
	lintRevisions    bool
)

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Analyze plans for destructive and data-dependent statements",
	Long: `Classify the statements Tidemark would run against each target. With
--revisions the versioned migration files are analyzed instead of the
declarative plan.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		sups, err := loadSuppressions(lintSuppressFile)
		if err != nil {
			return err
		}

		if lintRevisions {
			return lintRevisionFiles(cfg, sups)
		}

		targets, err := findTarget(cfg, lintTarget)
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
		desired, err := eng.NormalizeDesired(ctx)
		if err != nil {
			return err
		}

		total := 0
		for i := range targets {
			t := &targets[i]
			p, rpt, err := eng.Plan(ctx, t, desired)
			if err != nil {
				return fmt.Errorf("target %s: %w", t.Name, err)
			}

			if p.Empty() {
				fmt.Printf("%s: up to date\n", t.Name)
				continue
			}
			printFindings(t.Name, len(p.Statements), rpt)
			total += len(rpt.Findings)
		}

		if total > 0 && cfg.Run.LintGate != "" {
			fmt.Printf("\nlint_gate is %q; apply will refuse unsuppressed findings.\n", cfg.Run.LintGate)
		}
		return nil
	},
}

func lintRevisionFiles(cfg *config.Config, sups []lint.Suppression) error {
	if cfg.Revisions.Directory == "" {
		return fmt.Errorf("no revisions.directory configured")
	}
	revisions, err := revision.Load(config.ExpandHome(cfg.Revisions.Directory))
	if err != nil {
		return err
	}
	for _, r := range revisions {
		rpt := lint.AnalyzeStatements(r.UpSQL, sups)
		printFindings(fmt.Sprintf("%03d_%s", r.Version, r.Description), len(r.UpSQL), rpt)
	}
	return nil
}

func printFindings(name string, statements int, rpt *lint.Report) {
	if len(rpt.Findings) == 0 {
		fmt.Printf("%s: %d statement(s), no findings\n", name, statements)
		return
	}
	fmt.Printf("%s: %d statement(s), %d finding(s)\n", name, statements, len(rpt.Findings))
	for _, f := range rpt.Findings {
		fmt.Printf("  [%s] #%d %s\n", f.Category, f.Statement, f.Reason)
		fmt.Printf("      %s\n", f.SQL)
		fmt.Printf("      suppress: hash %s\n", lint.Hash(f.SQL))
	}
}

func loadSuppressions(path string) ([]lint.Suppression, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suppressions: %w", err)
	}
	var sups []lint.Suppression
	if err := yaml.Unmarshal(data, &sups); err != nil {
		return nil, fmt.Errorf("parsing suppressions: %w", err)
	}
	for i, s := range sups {
		if (s.Hash == "") == (s.Statement == nil) {
			return nil, fmt.Errorf("suppression %d: exactly one of statement or hash is required", i)
		}
	}
	return sups, nil
}

func init() {
	lintCmd.Flags().StringVar(&lintTarget, "target", "", "limit to one target")
	lintCmd.Flags().StringVar(&lintSuppressFile, "suppressions", "", "YAML file of suppressions")
	lintCmd.Flags().BoolVar(&lintRevisions, "revisions", false, "lint the versioned migration files instead")
	rootCmd.AddCommand(lintCmd)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var planTarget string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the SQL statements that would reconcile each target",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		targets, err := findTarget(cfg, planTarget)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := buildEngine(ctx, cfg, logger)
		if err != nil {
			return err
		}
		desired, err := eng.NormalizeDesired(ctx)
		if err != nil {
			return err
		}

		for i := range targets {
			t := &targets[i]
			p, rpt, err := eng.Plan(ctx, t, desired)
			if err != nil {
				return fmt.Errorf("target %s: %w", t.Name, err)
			}

			fmt.Printf("-- target: %s (%s)\n", t.Name, t.Dialect)
			if p.Empty() {
				fmt.Println("-- up to date")
				continue
			}
			flagged := make(map[int]string, len(rpt.Findings))
			for _, f := range rpt.Findings {
				flagged[f.Statement] = string(f.Category)
			}
			for j, sql := range p.SQL() {
				if cat, ok := flagged[j]; ok {
					fmt.Printf("-- %s\n", cat)
				}
				fmt.Printf("%s;\n", sql)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	planCmd.Flags().StringVar(&planTarget, "target", "", "limit to one target")
	rootCmd.AddCommand(planCmd)
}

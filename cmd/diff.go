package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var diffTarget string

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show the changes between targets and the desired schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		targets, err := findTarget(cfg, diffTarget)
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

		clean := true
		for i := range targets {
			t := &targets[i]
			p, _, err := eng.Plan(ctx, t, desired)
			if err != nil {
				return fmt.Errorf("target %s: %w", t.Name, err)
			}

			if p.Empty() {
				fmt.Printf("%s: up to date\n", t.Name)
				continue
			}
			clean = false
			fmt.Printf("%s:\n", t.Name)
			prev := ""
			for j := range p.Statements {
				c := p.Statements[j].Change.String()
				if c != prev {
					fmt.Printf("  %s\n", c)
					prev = c
				}
			}
		}

		if !clean {
			fmt.Println()
			fmt.Println("Run `tidemark plan` to see the SQL, or `tidemark apply` to reconcile.")
		}
		return nil
	},
}

func init() {
	diffCmd.Flags().StringVar(&diffTarget, "target", "", "limit to one target")
	rootCmd.AddCommand(diffCmd)
}

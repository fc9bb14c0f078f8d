package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tidemark/tidemark/internal/inspect"
)

var (
	inspectTarget string
	inspectOut    string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Dump a target's current schema as YAML",
	Long:  `Connect to a configured target, read its live schema, and print it as YAML. The output is a valid desired-schema file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}

		targets, err := findTarget(cfg, inspectTarget)
		if err != nil {
			return err
		}
		if inspectTarget == "" {
			targets = targets[:1]
		}
		t := &targets[0]

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		insp, err := inspect.New(t)
		if err != nil {
			return err
		}
		if err := insp.Connect(ctx); err != nil {
			return err
		}
		defer insp.Close()

		s, err := insp.Inspect(ctx)
		if err != nil {
			return err
		}

		if inspectOut != "" {
			if err := s.WriteYAML(inspectOut); err != nil {
				return err
			}
			fmt.Printf("Schema written to %s (%s)\n", inspectOut, s.Summary())
			return nil
		}

		data, err := s.ToYAML()
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectTarget, "target", "", "target name (default: first target)")
	inspectCmd.Flags().StringVar(&inspectOut, "out", "", "write the schema to a file instead of stdout")
	rootCmd.AddCommand(inspectCmd)
}

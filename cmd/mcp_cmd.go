package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tidemark/tidemark/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve read-only schema tools over the Model Context Protocol",
	Long: `Expose schema_inspect, schema_diff, migration_plan, plan_lint, and
revision_status as MCP tools on stdio. Execution is not exposed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		eng, err := buildEngine(context.Background(), cfg, logger)
		if err != nil {
			return err
		}

		return mcp.NewServer(cfg, eng, logger).Serve(version)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

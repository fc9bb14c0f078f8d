package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/engine"
	"github.com/tidemark/tidemark/internal/inspect"
	"github.com/tidemark/tidemark/internal/lint"
	"github.com/tidemark/tidemark/internal/plan"
	"github.com/tidemark/tidemark/internal/revision"
)

// Server exposes read-only pipeline operations over the Model Context
// Protocol on stdio. Nothing here executes DDL against a target; apply
// stays a deliberate CLI action.
type Server struct {
	cfg    *config.Config
	eng    *engine.Engine
	logger *slog.Logger
}

// NewServer creates an MCP server around a configured engine.
func NewServer(cfg *config.Config, eng *engine.Engine, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, eng: eng, logger: logger}
}

// Serve registers the tools and blocks serving stdio.
func (s *Server) Serve(version string) error {
	srv := server.NewMCPServer(
		"tidemark",
		version,
		server.WithToolCapabilities(false),
	)

	inspectTool := mcp.NewTool("schema_inspect",
		mcp.WithDescription("Inspect a configured target database and return its schema as YAML"),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Name of the target in the tidemark config"),
		),
	)
	srv.AddTool(inspectTool, s.handleInspect)

	diffTool := mcp.NewTool("schema_diff",
		mcp.WithDescription("Diff a target against the desired schema and return the change list"),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Name of the target in the tidemark config"),
		),
	)
	srv.AddTool(diffTool, s.handleDiff)

	planTool := mcp.NewTool("migration_plan",
		mcp.WithDescription("Return the ordered SQL statements that would reconcile a target"),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Name of the target in the tidemark config"),
		),
	)
	srv.AddTool(planTool, s.handlePlan)

	lintTool := mcp.NewTool("plan_lint",
		mcp.WithDescription("Analyze a target's migration plan for destructive and data-dependent statements"),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Name of the target in the tidemark config"),
		),
	)
	srv.AddTool(lintTool, s.handleLint)

	statusTool := mcp.NewTool("revision_status",
		mcp.WithDescription("Return the applied and pending versioned revisions for a target"),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Name of the target in the tidemark config"),
		),
	)
	srv.AddTool(statusTool, s.handleStatus)

	s.logger.Info("starting tidemark mcp server")
	return server.ServeStdio(srv)
}

func (s *Server) target(request mcp.CallToolRequest) (*config.Target, error) {
	name, err := request.RequireString("target")
	if err != nil {
		return nil, fmt.Errorf("target parameter is required")
	}
	for i := range s.cfg.Targets {
		if s.cfg.Targets[i].Name == name {
			return &s.cfg.Targets[i], nil
		}
	}
	return nil, fmt.Errorf("unknown target %q", name)
}

func (s *Server) handleInspect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := s.target(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	insp, err := inspect.New(t)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := insp.Connect(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer insp.Close()

	current, err := insp.Inspect(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := current.ToYAML()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleDiff(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := s.target(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p, _, err := s.plan(ctx, t)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if p.Empty() {
		return mcp.NewToolResultText("no changes: target matches the desired schema"), nil
	}

	out := ""
	prev := ""
	for i := range p.Statements {
		c := p.Statements[i].Change.String()
		if c != prev {
			out += c + "\n"
			prev = c
		}
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) handlePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := s.target(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p, _, err := s.plan(ctx, t)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if p.Empty() {
		return mcp.NewToolResultText("no statements: target matches the desired schema"), nil
	}

	out := ""
	for _, sql := range p.SQL() {
		out += sql + ";\n"
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) handleLint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := s.target(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p, rpt, err := s.plan(ctx, t)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if p.Empty() {
		return mcp.NewToolResultText("no statements to lint"), nil
	}
	if len(rpt.Findings) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("%d statement(s), no findings", len(p.Statements))), nil
	}

	data, err := json.MarshalIndent(rpt, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := s.target(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.cfg.Revisions.Directory == "" {
		return mcp.NewToolResultError("no revisions.directory configured"), nil
	}

	revisions, err := revision.Load(config.ExpandHome(s.cfg.Revisions.Directory))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ledger, err := revision.OpenLedger(ctx, t, s.cfg.Revisions.Table)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer ledger.Close()

	current, err := ledger.CurrentVersion(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := ledger.Entries(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	status := map[string]any{
		"target":          t.Name,
		"current_version": current,
		"applied":         entries,
		"pending":         []int{},
	}
	var pending []int
	for _, r := range revision.Pending(revisions, current) {
		pending = append(pending, r.Version)
	}
	if pending != nil {
		status["pending"] = pending
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) plan(ctx context.Context, t *config.Target) (*plan.Plan, *lint.Report, error) {
	desired, err := s.eng.NormalizeDesired(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s.eng.Plan(ctx, t, desired)
}

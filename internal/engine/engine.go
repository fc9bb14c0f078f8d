package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/devdb"
	"github.com/tidemark/tidemark/internal/diff"
	"github.com/tidemark/tidemark/internal/exec"
	"github.com/tidemark/tidemark/internal/inspect"
	"github.com/tidemark/tidemark/internal/lint"
	"github.com/tidemark/tidemark/internal/plan"
	"github.com/tidemark/tidemark/internal/report"
	"github.com/tidemark/tidemark/internal/revision"
	"github.com/tidemark/tidemark/internal/schema"
)

// Engine drives the reconcile pipeline across every configured target:
// inspect, normalize, diff, plan, lint, apply.
type Engine struct {
	cfg     *config.Config
	desired *schema.Schema
	dev     devdb.DevDatabase
	logger  *slog.Logger

	// Suppressions to apply when linting, usually from the CLI.
	Suppressions []lint.Suppression

	// DryRun plans and lints but applies nothing.
	DryRun bool
}

// New creates an engine for the given config and desired schema.
func New(cfg *config.Config, desired *schema.Schema, dev devdb.DevDatabase, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, desired: desired, dev: dev, logger: logger}
}

// LoadDesired reads the configured desired schema. YAML files parse
// directly; SQL files are materialized on the dev database and read
// back as a schema.
func LoadDesired(ctx context.Context, cfg *config.Config, dev devdb.DevDatabase) (*schema.Schema, error) {
	path := config.ExpandHome(cfg.Schema.File)
	switch cfg.Schema.Format {
	case "yaml", "":
		return schema.LoadYAML(path)
	case "sql":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading desired schema: %w", err)
		}
		return dev.Materialize(ctx, revision.SplitStatements(string(data)))
	default:
		return nil, fmt.Errorf("unsupported schema format %q", cfg.Schema.Format)
	}
}

// Run reconciles every target with the desired schema. The first
// Run.Canaries targets run strictly serially in list order, and a canary
// failure halts the whole run before any later target is attempted. The
// post-canary tail runs serially too unless Run.Concurrency allows a
// bounded worker pool; tail failures do not stop sibling workers but
// mark the run failed.
func (e *Engine) Run(ctx context.Context) (*report.RunReport, error) {
	// The desired side normalizes once; it is the same for every target.
	desired, err := e.dev.Normalize(ctx, e.desired)
	if err != nil {
		return report.NewRun().Fail(), fmt.Errorf("normalizing desired schema: %w", err)
	}

	return e.fanOut(ctx, func(ctx context.Context, t *config.Target) *report.TargetReport {
		return e.reconcile(ctx, t, desired)
	})
}

// MigrateAll applies pending versioned revisions to every target, with
// the same canary ordering and fail-fast behavior as Run.
func (e *Engine) MigrateAll(ctx context.Context) (*report.RunReport, error) {
	revisions, err := revision.Load(config.ExpandHome(e.cfg.Revisions.Directory))
	if err != nil {
		return report.NewRun().Fail(), err
	}
	if len(revisions) == 0 {
		return report.NewRun().Fail(), fmt.Errorf("no revisions in %s", e.cfg.Revisions.Directory)
	}

	return e.fanOut(ctx, func(ctx context.Context, t *config.Target) *report.TargetReport {
		tr := &report.TargetReport{Target: t.Name, Dialect: t.Dialect}
		res := revision.Migrate(ctx, t, revisions, e.cfg.Revisions.Table, e.logger)
		tr.Revisions = res
		if !res.Failed() && res.VersionFrom == res.VersionTo {
			tr.NoChange = true
		}
		return tr
	})
}

// fanOut runs fn against every target with canary ordering. A failure
// inside the serial phase halts the run and records the untouched
// targets as skipped.
func (e *Engine) fanOut(ctx context.Context, fn func(context.Context, *config.Target) *report.TargetReport) (*report.RunReport, error) {
	rep := report.NewRun()
	targets := e.cfg.Targets

	canaries := e.cfg.Run.Canaries
	if canaries > len(targets) {
		canaries = len(targets)
	}
	serialTail := e.cfg.Run.Concurrency <= 1

	halt := -1
	for i := 0; i < len(targets); i++ {
		if i >= canaries && !serialTail {
			break
		}
		tr := fn(ctx, &targets[i])
		rep.Targets = append(rep.Targets, *tr)
		if tr.Failed() {
			halt = i
			break
		}
	}

	switch {
	case halt >= 0:
		// Whole-run fail-fast: remaining targets are recorded as skipped,
		// never attempted.
		for i := halt + 1; i < len(targets); i++ {
			rep.Targets = append(rep.Targets, report.TargetReport{
				Target: targets[i].Name, Dialect: targets[i].Dialect, Skipped: true,
			})
			e.logger.Warn("target skipped after earlier failure", "target", targets[i].Name)
		}
	case !serialTail && canaries < len(targets):
		tail := targets[canaries:]
		results := make([]*report.TargetReport, len(tail))

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.Run.Concurrency)
		for i := range tail {
			g.Go(func() error {
				tr := fn(gctx, &tail[i])
				mu.Lock()
				results[i] = tr
				mu.Unlock()
				return nil
			})
		}
		// Workers never return errors; failures live in their reports so
		// one bad tenant cannot cancel its siblings.
		_ = g.Wait()

		for _, tr := range results {
			rep.Targets = append(rep.Targets, *tr)
		}
	}

	rep.Finish()
	if !rep.Success {
		return rep, errors.New("one or more targets failed")
	}
	return rep, nil
}

// reconcile runs the full pipeline for one target. Pipeline errors
// before execution (connection, inspection, normalization, planning)
// abort the target without touching it.
func (e *Engine) reconcile(ctx context.Context, t *config.Target, desired *schema.Schema) *report.TargetReport {
	tr := &report.TargetReport{Target: t.Name, Dialect: t.Dialect}
	log := e.logger.With("target", t.Name)

	p, rpt, err := e.Plan(ctx, t, desired)
	if err != nil {
		tr.Error = err.Error()
		log.Error("planning failed", "error", err)
		return tr
	}
	if p.Empty() {
		tr.NoChange = true
		log.Info("target already matches desired state")
		return tr
	}

	for _, st := range p.Statements {
		tr.Statements = append(tr.Statements, st.SQL)
	}
	tr.Changes = changeSummaries(p)
	tr.Findings = rpt.Findings

	if gate := e.cfg.Run.LintGate; gate != "" {
		if blocked := gateViolated(gate, rpt); blocked != "" {
			tr.Error = blocked
			log.Error("lint gate blocked execution", "gate", gate)
			return tr
		}
	}

	if e.DryRun {
		log.Info("dry run; skipping execution", "statements", len(p.Statements))
		return tr
	}

	res := exec.Apply(ctx, t, p, log)
	tr.Execution = res
	if res.Failed() {
		log.Error("execution failed", "error", res.Err)
	} else {
		log.Info("target reconciled", "statements", len(res.Applied))
	}
	return tr
}

// Plan computes the current diff and lint report for one target without
// applying anything. State is recomputed freshly on every call; nothing
// is cached between invocations, so a reconciled target always plans to
// an empty statement list. The desired schema passed in must already be
// normalized.
func (e *Engine) Plan(ctx context.Context, t *config.Target, desired *schema.Schema) (*plan.Plan, *lint.Report, error) {
	insp, err := inspect.New(t)
	if err != nil {
		return nil, nil, err
	}
	if err := insp.Connect(ctx); err != nil {
		return nil, nil, err
	}
	defer insp.Close()

	current, err := insp.Inspect(ctx)
	if err != nil {
		return nil, nil, err
	}

	current, err = e.dev.Normalize(ctx, current)
	if err != nil {
		return nil, nil, fmt.Errorf("normalizing current schema of %s: %w", t.Name, err)
	}

	changes := diff.Changes(current, desired)
	p, err := plan.New(changes, t.Dialect)
	if err != nil {
		return nil, nil, err
	}

	return p, lint.Analyze(p, e.Suppressions), nil
}

// NormalizeDesired runs the configured desired schema through the dev
// database once, for callers that plan without executing.
func (e *Engine) NormalizeDesired(ctx context.Context) (*schema.Schema, error) {
	return e.dev.Normalize(ctx, e.desired)
}

func changeSummaries(p *plan.Plan) []string {
	var out []string
	prev := ""
	for i := range p.Statements {
		s := p.Statements[i].Change.String()
		if s != prev {
			out = append(out, s)
			prev = s
		}
	}
	return out
}

func gateViolated(gate string, rpt *lint.Report) string {
	switch gate {
	case "destructive":
		if rpt.HasCategory(lint.Destructive) {
			return "lint gate: plan contains unsuppressed destructive statements"
		}
	case "all":
		if len(rpt.Findings) > 0 {
			return "lint gate: plan contains unsuppressed findings"
		}
	}
	return ""
}

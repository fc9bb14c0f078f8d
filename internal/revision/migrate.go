package revision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/exec"
)

// AppliedRevision records one revision applied during a run.
type AppliedRevision struct {
	Version     int                    `yaml:"version" json:"version"`
	Description string                 `yaml:"description" json:"description"`
	Statements  []exec.StatementResult `yaml:"statements,omitempty" json:"statements,omitempty"`
}

// Result is the per-target outcome of a versioned migration run.
type Result struct {
	Target      string            `yaml:"target" json:"target"`
	VersionFrom int               `yaml:"version_from" json:"version_from"`
	VersionTo   int               `yaml:"version_to" json:"version_to"`
	Applied     []AppliedRevision `yaml:"applied,omitempty" json:"applied,omitempty"`
	Pending     []int             `yaml:"pending,omitempty" json:"pending,omitempty"`
	ErrorMsg    string            `yaml:"error,omitempty" json:"error,omitempty"`

	Err error `yaml:"-" json:"-"`
}

// Failed reports whether the run hit a terminal error.
func (r *Result) Failed() bool { return r.Err != nil }

// Migrate applies every revision after the target's current marker,
// fail-fast: the first failing statement stops this target, records the
// failure, and leaves the remaining revisions pending. Each completed
// revision is recorded in the ledger before the next one starts.
func Migrate(ctx context.Context, target *config.Target, revisions []Revision, table string, logger *slog.Logger) *Result {
	res := &Result{Target: target.Name}

	ledger, err := OpenLedger(ctx, target, table)
	if err != nil {
		res.Err = err
		res.ErrorMsg = err.Error()
		return res
	}
	defer ledger.Close()

	current, err := ledger.CurrentVersion(ctx)
	if err != nil {
		res.Err = err
		res.ErrorMsg = err.Error()
		return res
	}
	res.VersionFrom = current
	res.VersionTo = current

	if err := ledger.VerifyChecksums(ctx, revisions); err != nil {
		res.Err = err
		res.ErrorMsg = err.Error()
		return res
	}

	pending := Pending(revisions, current)
	for i, r := range pending {
		applied := AppliedRevision{Version: r.Version, Description: r.Description}
		start := time.Now()

		for pos, stmt := range r.UpSQL {
			if err := ctx.Err(); err != nil {
				res.failAt(&applied, pending[i:], err)
				return res
			}

			sr := exec.StatementResult{SQL: stmt, Started: time.Now()}
			_, execErr := ledger.DB().ExecContext(ctx, stmt)
			sr.Ended = time.Now()

			if execErr != nil {
				sr.Error = execErr.Error()
				applied.Statements = append(applied.Statements, sr)
				err := &exec.ExecutionError{Target: target.Name, Statement: stmt, Position: pos, Err: execErr}
				res.failAt(&applied, pending[i:], err)
				logger.Error("revision failed", "target", target.Name, "version", r.Version, "error", execErr)
				return res
			}
			applied.Statements = append(applied.Statements, sr)
		}

		if err := ledger.record(ctx, &r, time.Since(start)); err != nil {
			res.failAt(&applied, pending[i:], err)
			return res
		}

		res.Applied = append(res.Applied, applied)
		res.VersionTo = r.Version
		logger.Info("revision applied", "target", target.Name, "version", r.Version,
			"description", r.Description, "duration", time.Since(start))
	}

	return res
}

func (r *Result) failAt(partial *AppliedRevision, remaining []Revision, err error) {
	r.Applied = append(r.Applied, *partial)
	for _, rev := range remaining {
		r.Pending = append(r.Pending, rev.Version)
	}
	r.Err = err
	r.ErrorMsg = err.Error()
}

// Rollback reverts the most recently applied revision using its down
// script. A revision without a down script cannot be rolled back.
func Rollback(ctx context.Context, target *config.Target, revisions []Revision, table string, logger *slog.Logger) *Result {
	res := &Result{Target: target.Name}

	ledger, err := OpenLedger(ctx, target, table)
	if err != nil {
		res.Err = err
		res.ErrorMsg = err.Error()
		return res
	}
	defer ledger.Close()

	current, err := ledger.CurrentVersion(ctx)
	if err != nil {
		res.Err = err
		res.ErrorMsg = err.Error()
		return res
	}
	res.VersionFrom = current
	res.VersionTo = current

	if current == 0 {
		return res
	}

	var rev *Revision
	for i := range revisions {
		if revisions[i].Version == current {
			rev = &revisions[i]
			break
		}
	}
	if rev == nil {
		res.Err = fmt.Errorf("no migration file for applied version %d", current)
		res.ErrorMsg = res.Err.Error()
		return res
	}
	if len(rev.DownSQL) == 0 {
		res.Err = fmt.Errorf("version %d has no down migration", current)
		res.ErrorMsg = res.Err.Error()
		return res
	}

	applied := AppliedRevision{Version: rev.Version, Description: rev.Description}
	for pos, stmt := range rev.DownSQL {
		sr := exec.StatementResult{SQL: stmt, Started: time.Now()}
		_, execErr := ledger.DB().ExecContext(ctx, stmt)
		sr.Ended = time.Now()

		if execErr != nil {
			sr.Error = execErr.Error()
			applied.Statements = append(applied.Statements, sr)
			res.Applied = append(res.Applied, applied)
			res.Err = &exec.ExecutionError{Target: target.Name, Statement: stmt, Position: pos, Err: execErr}
			res.ErrorMsg = res.Err.Error()
			return res
		}
		applied.Statements = append(applied.Statements, sr)
	}

	if err := ledger.remove(ctx, current); err != nil {
		res.Err = err
		res.ErrorMsg = err.Error()
		return res
	}

	res.Applied = append(res.Applied, applied)
	prev, err := ledger.CurrentVersion(ctx)
	if err == nil {
		res.VersionTo = prev
	}
	logger.Info("revision rolled back", "target", target.Name, "version", current)
	return res
}

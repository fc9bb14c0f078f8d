package exec

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/plan"
)

// ExecutionError records a statement failing against a specific target.
type ExecutionError struct {
	Target    string
	Statement string
	Position  int
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing statement %d on %s: %v", e.Position+1, e.Target, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// StatementResult records one applied (or attempted) statement.
type StatementResult struct {
	SQL     string    `yaml:"sql" json:"sql"`
	Started time.Time `yaml:"started" json:"started"`
	Ended   time.Time `yaml:"ended" json:"ended"`
	Error   string    `yaml:"error,omitempty" json:"error,omitempty"`
}

// Result is the per-target execution record. Applied is append-only:
// once a statement lands it is never removed from the record, even when
// a later statement fails.
type Result struct {
	Target   string            `yaml:"target" json:"target"`
	Started  time.Time         `yaml:"started" json:"started"`
	Ended    time.Time         `yaml:"ended" json:"ended"`
	Applied  []StatementResult `yaml:"applied,omitempty" json:"applied,omitempty"`
	Pending  []string          `yaml:"pending,omitempty" json:"pending,omitempty"`
	ErrorMsg string            `yaml:"error,omitempty" json:"error,omitempty"`

	// Err is the terminal error, nil on success. ErrorMsg mirrors it for
	// serialized reports.
	Err error `yaml:"-" json:"-"`
}

// Failed reports whether execution hit a terminal error.
func (r *Result) Failed() bool { return r.Err != nil }

// Apply runs the plan against one target, fail-fast: the first statement
// error stops execution for this target, records the failure, and leaves
// the remaining statements in Pending. Cancellation stops issuing new
// statements; already-applied DDL is never rolled back.
func Apply(ctx context.Context, target *config.Target, p *plan.Plan, logger *slog.Logger) *Result {
	res := &Result{Target: target.Name, Started: time.Now()}
	defer func() { res.Ended = time.Now() }()

	db, err := sql.Open(target.DriverName(), target.DSN())
	if err != nil {
		res.fail(&ExecutionError{Target: target.Name, Position: -1, Err: err}, p.SQL())
		return res
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		res.fail(&ExecutionError{Target: target.Name, Position: -1, Err: err}, p.SQL())
		return res
	}

	for i, st := range p.Statements {
		if err := ctx.Err(); err != nil {
			res.fail(&ExecutionError{Target: target.Name, Statement: st.SQL, Position: i, Err: err}, pending(p, i))
			return res
		}

		sr := StatementResult{SQL: st.SQL, Started: time.Now()}
		_, err := db.ExecContext(ctx, st.SQL)
		sr.Ended = time.Now()

		if err != nil {
			sr.Error = err.Error()
			res.Applied = append(res.Applied, sr)
			res.fail(&ExecutionError{Target: target.Name, Statement: st.SQL, Position: i, Err: err}, pending(p, i+1))
			logger.Error("statement failed", "target", target.Name, "position", i, "error", err)
			return res
		}

		res.Applied = append(res.Applied, sr)
		logger.Debug("statement applied", "target", target.Name, "position", i,
			"duration", sr.Ended.Sub(sr.Started))
	}

	return res
}

func (r *Result) fail(err *ExecutionError, pending []string) {
	r.Err = err
	r.ErrorMsg = err.Error()
	r.Pending = pending
}

func pending(p *plan.Plan, from int) []string {
	if from >= len(p.Statements) {
		return nil
	}
	return p.SQL()[from:]
}

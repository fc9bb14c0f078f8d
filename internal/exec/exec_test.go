package exec

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/plan"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sqliteTarget(t *testing.T) *config.Target {
	t.Helper()
	return &config.Target{
		Name:     "unit",
		Dialect:  "sqlite",
		Database: filepath.Join(t.TempDir(), "unit.db"),
	}
}

func planOf(stmts ...string) *plan.Plan {
	p := &plan.Plan{Dialect: "sqlite"}
	for _, sql := range stmts {
		p.Statements = append(p.Statements, plan.Statement{SQL: sql})
	}
	return p
}

func TestApplyRunsAllStatements(t *testing.T) {
	target := sqliteTarget(t)
	p := planOf(
		"CREATE TABLE users (id integer PRIMARY KEY, email text)",
		"CREATE UNIQUE INDEX users_email_key ON users (email)",
		"CREATE TABLE posts (id integer PRIMARY KEY)",
	)

	res := Apply(context.Background(), target, p, discard())
	if res.Failed() {
		t.Fatalf("Apply failed: %v", res.Err)
	}
	if len(res.Applied) != 3 || len(res.Pending) != 0 {
		t.Fatalf("applied=%d pending=%d", len(res.Applied), len(res.Pending))
	}
	for _, sr := range res.Applied {
		if sr.Error != "" || sr.Ended.Before(sr.Started) {
			t.Errorf("statement result: %+v", sr)
		}
	}

	db, err := sql.Open("sqlite3", target.DSN())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'posts')").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected both tables, found %d", n)
	}
}

func TestApplyFailFast(t *testing.T) {
	target := sqliteTarget(t)
	p := planOf(
		"CREATE TABLE a (id integer PRIMARY KEY)",
		"CREATE TABLE broken (",
		"CREATE TABLE never (id integer PRIMARY KEY)",
	)

	res := Apply(context.Background(), target, p, discard())
	if !res.Failed() {
		t.Fatal("expected failure")
	}

	var ee *ExecutionError
	if !errors.As(res.Err, &ee) {
		t.Fatalf("expected ExecutionError, got %v", res.Err)
	}
	if ee.Position != 1 || ee.Target != "unit" {
		t.Errorf("error detail: %+v", ee)
	}

	// The failing statement is recorded with its error; the rest stays
	// pending and is never attempted.
	if len(res.Applied) != 2 || res.Applied[1].Error == "" {
		t.Errorf("applied record: %+v", res.Applied)
	}
	if len(res.Pending) != 1 || res.Pending[0] != "CREATE TABLE never (id integer PRIMARY KEY)" {
		t.Errorf("pending: %v", res.Pending)
	}

	db, err := sql.Open("sqlite3", target.DSN())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'never'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Error("statement after the failure was executed")
	}
}

func TestApplyRespectsCancellation(t *testing.T) {
	target := sqliteTarget(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Apply(ctx, target, planOf("CREATE TABLE a (id integer PRIMARY KEY)"), discard())
	if !res.Failed() {
		t.Fatal("expected failure on canceled context")
	}
	if len(res.Pending) != 1 {
		t.Errorf("pending: %v", res.Pending)
	}
}

func TestApplyEmptyPlan(t *testing.T) {
	res := Apply(context.Background(), sqliteTarget(t), planOf(), discard())
	if res.Failed() || len(res.Applied) != 0 {
		t.Errorf("empty plan should be a clean no-op: %+v", res)
	}
}

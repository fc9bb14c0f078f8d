package engine

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/devdb"
	"github.com/tidemark/tidemark/internal/schema"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sqliteTarget(t *testing.T, name string) config.Target {
	t.Helper()
	return config.Target{
		Name:     name,
		Dialect:  "sqlite",
		Database: filepath.Join(t.TempDir(), name+".db"),
	}
}

func desiredSchema() *schema.Schema {
	return &schema.Schema{Tables: []schema.Table{
		{
			Name: "users",
			Columns: []schema.Column{
				{Name: "id", Type: "int"},
				{Name: "email", Type: "text", Nullable: true},
			},
			PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
			Indexes:    []schema.Index{{Name: "users_email_idx", Columns: []string{"email"}}},
		},
	}}
}

func newTestEngine(cfg *config.Config, desired *schema.Schema) *Engine {
	return New(cfg, desired, devdb.NewSQLiteMemory(), discard())
}

func tableExists(t *testing.T, target *config.Target, table string) bool {
	t.Helper()
	db, err := sql.Open("sqlite3", target.DSN())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n == 1
}

func TestRunReconcilesAllTargets(t *testing.T) {
	cfg := &config.Config{
		Targets: []config.Target{sqliteTarget(t, "a"), sqliteTarget(t, "b")},
	}
	eng := newTestEngine(cfg, desiredSchema())

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Success || len(rep.Targets) != 2 {
		t.Fatalf("report: %+v", rep)
	}
	for i := range cfg.Targets {
		if !tableExists(t, &cfg.Targets[i], "users") {
			t.Errorf("target %s not reconciled", cfg.Targets[i].Name)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	cfg := &config.Config{Targets: []config.Target{sqliteTarget(t, "a")}}
	eng := newTestEngine(cfg, desiredSchema())

	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !rep.Targets[0].NoChange {
		t.Errorf("second run should be a no-op: %+v", rep.Targets[0])
	}
	if len(rep.Targets[0].Statements) != 0 {
		t.Errorf("no-op run planned statements: %v", rep.Targets[0].Statements)
	}
}

func TestCanaryFailureHaltsRun(t *testing.T) {
	// The canary points at an unreachable database; the later targets
	// must never be touched.
	bad := config.Target{
		Name:     "canary",
		Dialect:  "sqlite",
		Database: filepath.Join(t.TempDir(), "missing", "deeper", "bad.db"),
	}
	okA, okB := sqliteTarget(t, "a"), sqliteTarget(t, "b")
	cfg := &config.Config{
		Targets: []config.Target{bad, okA, okB},
		Run:     config.RunConfig{Canaries: 1},
	}
	eng := newTestEngine(cfg, desiredSchema())

	rep, err := eng.Run(context.Background())
	if err == nil {
		t.Fatal("expected run error")
	}
	if rep.Success {
		t.Error("report should be failed")
	}
	if len(rep.Targets) != 3 {
		t.Fatalf("targets: %+v", rep.Targets)
	}
	if !rep.Targets[0].Failed() {
		t.Errorf("canary should have failed: %+v", rep.Targets[0])
	}
	if !rep.Targets[1].Skipped || !rep.Targets[2].Skipped {
		t.Errorf("later targets should be skipped: %+v", rep.Targets[1:])
	}
	if tableExists(t, &okA, "users") || tableExists(t, &okB, "users") {
		t.Error("skipped target was modified")
	}
}

func TestConcurrentTailAfterCanary(t *testing.T) {
	targets := []config.Target{
		sqliteTarget(t, "canary"),
		sqliteTarget(t, "a"),
		sqliteTarget(t, "b"),
		sqliteTarget(t, "c"),
	}
	cfg := &config.Config{
		Targets: targets,
		Run:     config.RunConfig{Canaries: 1, Concurrency: 3},
	}
	eng := newTestEngine(cfg, desiredSchema())

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Success || len(rep.Targets) != 4 {
		t.Fatalf("report: %+v", rep)
	}
	// Canary first, then the tail in list order regardless of completion
	// order.
	for i, want := range []string{"canary", "a", "b", "c"} {
		if rep.Targets[i].Target != want {
			t.Errorf("target %d = %s, want %s", i, rep.Targets[i].Target, want)
		}
	}
	for i := range targets {
		if !tableExists(t, &targets[i], "users") {
			t.Errorf("target %s not reconciled", targets[i].Name)
		}
	}
}

func TestDryRunPlansWithoutExecuting(t *testing.T) {
	target := sqliteTarget(t, "a")
	cfg := &config.Config{Targets: []config.Target{target}}
	eng := newTestEngine(cfg, desiredSchema())
	eng.DryRun = true

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Targets[0].Statements) == 0 {
		t.Error("dry run should still plan statements")
	}
	if rep.Targets[0].Execution != nil {
		t.Error("dry run must not execute")
	}
	if tableExists(t, &target, "users") {
		t.Error("dry run modified the target")
	}
}

func TestLintGateBlocksDestructivePlan(t *testing.T) {
	target := sqliteTarget(t, "a")
	cfg := &config.Config{
		Targets: []config.Target{target},
		Run:     config.RunConfig{LintGate: "destructive"},
	}

	// First converge, then shrink the desired schema so the next plan
	// drops a table.
	eng := newTestEngine(cfg, &schema.Schema{Tables: []schema.Table{
		{Name: "users", Columns: []schema.Column{{Name: "id", Type: "int"}}},
		{Name: "legacy", Columns: []schema.Column{{Name: "id", Type: "int"}}},
	}})
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("initial run: %v", err)
	}

	eng = newTestEngine(cfg, &schema.Schema{Tables: []schema.Table{
		{Name: "users", Columns: []schema.Column{{Name: "id", Type: "int"}}},
	}})
	rep, err := eng.Run(context.Background())
	if err == nil {
		t.Fatal("expected gate to fail the run")
	}
	if rep.Targets[0].Error == "" {
		t.Errorf("gate violation should be recorded: %+v", rep.Targets[0])
	}
	if !tableExists(t, &target, "legacy") {
		t.Error("gated plan was executed anyway")
	}
}

func TestMigrateAllAppliesRevisions(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"001_users.up.sql": "CREATE TABLE users (id integer PRIMARY KEY);",
		"002_posts.up.sql": "CREATE TABLE posts (id integer PRIMARY KEY);",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	targets := []config.Target{sqliteTarget(t, "a"), sqliteTarget(t, "b")}
	cfg := &config.Config{
		Targets:   targets,
		Revisions: config.RevConfig{Directory: dir},
	}
	eng := newTestEngine(cfg, &schema.Schema{})

	rep, err := eng.MigrateAll(context.Background())
	if err != nil {
		t.Fatalf("MigrateAll: %v", err)
	}
	if !rep.Success {
		t.Fatalf("report: %+v", rep)
	}
	for i := range targets {
		if !tableExists(t, &targets[i], "posts") {
			t.Errorf("target %s missing migrated table", targets[i].Name)
		}
		tr := rep.Targets[i]
		if tr.Revisions == nil || tr.Revisions.VersionTo != 2 {
			t.Errorf("target %s revisions: %+v", targets[i].Name, tr.Revisions)
		}
	}
}

func TestLoadDesiredFromSQLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desired.sql")
	script := `CREATE TABLE users (
  id integer PRIMARY KEY,
  email text NOT NULL
);
CREATE UNIQUE INDEX users_email_key ON users (email);`
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{Schema: config.Desired{File: path, Format: "sql"}}
	s, err := LoadDesired(context.Background(), cfg, devdb.NewSQLiteMemory())
	if err != nil {
		t.Fatalf("LoadDesired: %v", err)
	}
	users := s.Table("users")
	if users == nil || users.Index("users_email_key") == nil {
		t.Fatalf("desired schema incomplete: %+v", s)
	}
}

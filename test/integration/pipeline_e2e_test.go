//go:build integration

package integration

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/devdb"
	"github.com/tidemark/tidemark/internal/engine"
	"github.com/tidemark/tidemark/internal/schema"
)

// TestSchemaLifecycle drives the whole pipeline through three desired
// states against sqlite targets: initial creation, an additive upgrade,
// and a column removal with a table rebuild.
func TestSchemaLifecycle(t *testing.T) {
	targets := []config.Target{
		{Name: "tenant-1", Dialect: "sqlite", Database: filepath.Join(t.TempDir(), "t1.db")},
		{Name: "tenant-2", Dialect: "sqlite", Database: filepath.Join(t.TempDir(), "t2.db")},
	}
	cfg := &config.Config{
		Targets: targets,
		Run:     config.RunConfig{Canaries: 1},
	}

	v1 := &schema.Schema{Tables: []schema.Table{
		{
			Name: "users",
			Columns: []schema.Column{
				{Name: "id", Type: "int"},
				{Name: "email", Type: "text"},
				{Name: "legacy_flags", Type: "int", Nullable: true},
			},
			PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
		},
	}}

	run := func(desired *schema.Schema) {
		t.Helper()
		eng := engine.New(cfg, desired, devdb.NewSQLiteMemory(), discard())
		rep, err := eng.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !rep.Success {
			t.Fatalf("run not successful: %+v", rep.Targets)
		}
	}

	run(v1)
	for i := range targets {
		assertColumns(t, &targets[i], "users", "id", "email", "legacy_flags")
	}

	// v2: new table with a foreign key, new index.
	v2 := &schema.Schema{Tables: []schema.Table{
		v1.Tables[0],
		{
			Name: "posts",
			Columns: []schema.Column{
				{Name: "id", Type: "int"},
				{Name: "user_id", Type: "int"},
				{Name: "title", Type: "text", Nullable: true},
			},
			PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
			ForeignKeys: []schema.ForeignKey{
				{Name: "fk_posts_user_id", Columns: []string{"user_id"},
					ReferencedTable: "users", ReferencedColumns: []string{"id"}},
			},
			Indexes: []schema.Index{{Name: "posts_user_idx", Columns: []string{"user_id"}}},
		},
	}}
	run(v2)
	for i := range targets {
		assertColumns(t, &targets[i], "posts", "id", "user_id", "title")
	}

	// v3: drop the legacy column; on sqlite this rebuilds users while
	// posts keeps its foreign key to it.
	v3 := &schema.Schema{Tables: []schema.Table{
		{
			Name: "users",
			Columns: []schema.Column{
				{Name: "id", Type: "int"},
				{Name: "email", Type: "text"},
			},
			PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
		},
		v2.Tables[1],
	}}
	run(v3)
	for i := range targets {
		assertColumns(t, &targets[i], "users", "id", "email")
	}

	// Converged: one more run must plan nothing.
	eng := engine.New(cfg, v3, devdb.NewSQLiteMemory(), discard())
	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("final run: %v", err)
	}
	for _, tr := range rep.Targets {
		if !tr.NoChange {
			t.Errorf("target %s not converged: %+v", tr.Target, tr.Changes)
		}
	}
}

// TestDataSurvivesRebuild checks the sqlite copy step preserves rows
// through a drop-column rebuild.
func TestDataSurvivesRebuild(t *testing.T) {
	target := config.Target{Name: "t", Dialect: "sqlite", Database: filepath.Join(t.TempDir(), "t.db")}
	cfg := &config.Config{Targets: []config.Target{target}}

	before := &schema.Schema{Tables: []schema.Table{
		{
			Name: "users",
			Columns: []schema.Column{
				{Name: "id", Type: "int"},
				{Name: "email", Type: "text"},
				{Name: "scratch", Type: "text", Nullable: true},
			},
			PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
		},
	}}
	eng := engine.New(cfg, before, devdb.NewSQLiteMemory(), discard())
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("initial run: %v", err)
	}

	db, err := sql.Open("sqlite3", target.DSN())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(
		"INSERT INTO users (id, email, scratch) VALUES (1, 'a@example.com', 'x'), (2, 'b@example.com', 'y')"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	after := &schema.Schema{Tables: []schema.Table{
		{
			Name: "users",
			Columns: []schema.Column{
				{Name: "id", Type: "int"},
				{Name: "email", Type: "text"},
			},
			PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
		},
	}}
	eng = engine.New(cfg, after, devdb.NewSQLiteMemory(), discard())
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("rebuild run: %v", err)
	}

	db, err = sql.Open("sqlite3", target.DSN())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow("SELECT count(*) FROM users WHERE email LIKE '%@example.com'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("rows lost in rebuild: %d", n)
	}
}

func assertColumns(t *testing.T, target *config.Target, table string, want ...string) {
	t.Helper()
	db, err := sql.Open("sqlite3", target.DSN())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		t.Fatalf("table %s: %v", table, err)
	}
	defer rows.Close()

	got := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatal(err)
		}
		got[name] = true
	}
	if len(got) != len(want) {
		t.Errorf("%s on %s: columns %v, want %v", table, target.Name, got, want)
	}
	for _, c := range want {
		if !got[c] {
			t.Errorf("%s on %s: missing column %s", table, target.Name, c)
		}
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tidemark.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
version: 1
schema:
  file: desired.sql
dev_database:
  kind: sqlite
targets:
  - name: canary
    dialect: postgres
    host: db-canary.internal
    port: 5432
    database: app
    username: app
    password: secret
  - name: tenant-a
    dialect: postgres
    url: postgres://app:pw@db-a.internal:5432/app
run:
  canaries: 1
  concurrency: 4
  lint_gate: destructive
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schema.Format != "sql" {
		t.Errorf("format not inferred from extension: %q", cfg.Schema.Format)
	}
	if len(cfg.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(cfg.Targets))
	}
	if cfg.Run.Canaries != 1 || cfg.Run.Concurrency != 4 {
		t.Errorf("run policy not loaded: %+v", cfg.Run)
	}
	if cfg.Revisions.Table != "tidemark_revision" {
		t.Errorf("default ledger table not applied: %q", cfg.Revisions.Table)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "wrong version",
			body: "version: 2\nschema:\n  file: s.yaml\n",
			want: "unsupported config version",
		},
		{
			name: "duplicate target",
			body: `
version: 1
schema:
  file: s.yaml
targets:
  - {name: a, dialect: postgres}
  - {name: a, dialect: postgres}
`,
			want: "duplicate target",
		},
		{
			name: "unknown dialect",
			body: `
version: 1
schema:
  file: s.yaml
targets:
  - {name: a, dialect: mongodb}
`,
			want: "unsupported dialect",
		},
		{
			name: "too many canaries",
			body: `
version: 1
schema:
  file: s.yaml
targets:
  - {name: a, dialect: postgres}
run:
  canaries: 3
`,
			want: "exceeds target count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestResolveValueEnv(t *testing.T) {
	t.Setenv("TIDEMARK_TEST_SECRET", "hunter2")

	got, err := ResolveValue("${ENV:TIDEMARK_TEST_SECRET}")
	if err != nil {
		t.Fatalf("ResolveValue: %v", err)
	}
	if got != "hunter2" {
		t.Errorf("got %q", got)
	}

	plain, err := ResolveValue("not-a-reference")
	if err != nil || plain != "not-a-reference" {
		t.Errorf("plain value altered: %q, %v", plain, err)
	}

	if _, err := ResolveValue("${ENV:TIDEMARK_TEST_UNSET_VAR}"); err == nil {
		t.Error("expected error for unset variable")
	}
}

func TestResolveVaultReferenceShape(t *testing.T) {
	// Malformed references fail before any Vault round trip.
	for _, ref := range []string{"no-field", "#field-only", "path#"} {
		if _, err := resolveVault(ref); err == nil || !strings.Contains(err.Error(), "path#field") {
			t.Errorf("resolveVault(%q) error = %v, want malformed-reference error", ref, err)
		}
	}
}

func TestTargetDSN(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{
			name: "postgres fields",
			target: Target{
				Dialect: "postgres", Host: "db", Port: 5432,
				Database: "app", Username: "u", Password: "p",
			},
			want: "postgres://u:p@db:5432/app?sslmode=disable",
		},
		{
			name: "mysql fields",
			target: Target{
				Dialect: "mysql", Host: "db", Port: 3306,
				Database: "app", Username: "u", Password: "p",
			},
			want: "u:p@tcp(db:3306)/app",
		},
		{
			name:   "sqlite path",
			target: Target{Dialect: "sqlite", Database: "/data/app.db"},
			want:   "/data/app.db",
		},
		{
			name:   "url override",
			target: Target{Dialect: "postgres", URL: "postgres://x@y/z"},
			want:   "postgres://x@y/z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.target.DSN(); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDriverName(t *testing.T) {
	pairs := map[string]string{
		"postgres": "pgx",
		"mysql":    "mysql",
		"sqlite":   "sqlite3",
		"oracle":   "oracle",
	}
	for dialect, want := range pairs {
		tgt := Target{Dialect: dialect}
		if got := tgt.DriverName(); got != want {
			t.Errorf("DriverName(%s) = %q, want %q", dialect, got, want)
		}
	}
}

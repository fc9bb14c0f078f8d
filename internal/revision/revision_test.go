package revision

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRevisions(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoadSortsAndPairs(t *testing.T) {
	dir := writeRevisions(t, map[string]string{
		"002_add_posts.up.sql":   "CREATE TABLE posts (id integer PRIMARY KEY);",
		"001_add_users.up.sql":   "CREATE TABLE users (id integer PRIMARY KEY);",
		"001_add_users.down.sql": "DROP TABLE users;",
		"notes.txt":              "ignored",
	})

	revs, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(revs) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(revs))
	}
	if revs[0].Version != 1 || revs[1].Version != 2 {
		t.Errorf("not sorted by version: %d, %d", revs[0].Version, revs[1].Version)
	}
	if revs[0].Description != "add_users" {
		t.Errorf("description = %q", revs[0].Description)
	}
	if len(revs[0].DownSQL) != 1 {
		t.Errorf("down script not paired: %+v", revs[0].DownSQL)
	}
	if len(revs[1].DownSQL) != 0 {
		t.Errorf("unexpected down script: %+v", revs[1].DownSQL)
	}
	if revs[0].Checksum == "" || revs[0].Checksum == revs[1].Checksum {
		t.Error("checksums missing or not distinct")
	}
}

func TestLoadRejectsDuplicateVersion(t *testing.T) {
	dir := writeRevisions(t, map[string]string{
		"001_a.up.sql": "SELECT 1;",
		"001_b.up.sql": "SELECT 2;",
	})
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "duplicate version") {
		t.Errorf("expected duplicate version error, got %v", err)
	}
}

func TestLoadRejectsOrphanDown(t *testing.T) {
	dir := writeRevisions(t, map[string]string{
		"003_x.down.sql": "DROP TABLE x;",
	})
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "no matching up migration") {
		t.Errorf("expected orphan down error, got %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	script := `-- create the users table
CREATE TABLE users (
  id integer PRIMARY KEY,
  name text NOT NULL
);

-- seed marker
INSERT INTO users (id, name) VALUES (1, 'semi;colon');
CREATE INDEX users_name_idx ON users (name)`

	stmts := SplitStatements(script)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], "CREATE TABLE users") || !strings.Contains(stmts[0], "name text NOT NULL") {
		t.Errorf("statement 0: %q", stmts[0])
	}
	if !strings.Contains(stmts[1], "semi;colon") {
		t.Errorf("inline semicolon mangled: %q", stmts[1])
	}
	if strings.Contains(stmts[0], "--") {
		t.Errorf("comment survived: %q", stmts[0])
	}
	if strings.HasSuffix(stmts[2], ";") {
		t.Errorf("trailing statement should not need a semicolon: %q", stmts[2])
	}
}

func TestPending(t *testing.T) {
	revs := []Revision{{Version: 1}, {Version: 2}, {Version: 3}}

	if got := Pending(revs, 0); len(got) != 3 {
		t.Errorf("Pending(0) = %d revisions", len(got))
	}
	if got := Pending(revs, 2); len(got) != 1 || got[0].Version != 3 {
		t.Errorf("Pending(2) = %+v", got)
	}
	if got := Pending(revs, 3); len(got) != 0 {
		t.Errorf("Pending(3) = %+v", got)
	}
}

package revision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Revision is one versioned migration: an up script and an optional down
// script discovered from a migrations directory.
type Revision struct {
	Version     int
	Description string
	UpSQL       []string
	DownSQL     []string
	Checksum    string // hex SHA-256 of the raw up file
}

var fileRe = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// Load discovers NNN_name.up.sql / NNN_name.down.sql pairs in a
// directory and returns them sorted by version. A down file without a
// matching up file, or two up files sharing a version, is an error.
func Load(dir string) ([]Revision, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	byVersion := make(map[int]*Revision)
	downs := make(map[int][]string)

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("parsing version in %q: %w", e.Name(), err)
		}

		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", e.Name(), err)
		}

		if m[3] == "down" {
			downs[version] = SplitStatements(string(data))
			continue
		}

		if prev, ok := byVersion[version]; ok {
			return nil, fmt.Errorf("duplicate version %d (%q and %q)", version, prev.Description, m[2])
		}
		sum := sha256.Sum256(data)
		byVersion[version] = &Revision{
			Version:     version,
			Description: m[2],
			UpSQL:       SplitStatements(string(data)),
			Checksum:    hex.EncodeToString(sum[:]),
		}
	}

	for version := range downs {
		if _, ok := byVersion[version]; !ok {
			return nil, fmt.Errorf("down migration %d has no matching up migration", version)
		}
		byVersion[version].DownSQL = downs[version]
	}

	out := make([]Revision, 0, len(byVersion))
	for _, r := range byVersion {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// SplitStatements splits a SQL script on semicolons at line ends,
// dropping comments and blank statements. Good enough for DDL scripts;
// semicolons inside string literals spanning lines are not supported.
func SplitStatements(script string) []string {
	var stmts []string
	var b strings.Builder

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(b.String())
			stmt = strings.TrimSuffix(stmt, ";")
			if stmt != "" {
				stmts = append(stmts, stmt)
			}
			b.Reset()
		}
	}
	if stmt := strings.TrimSpace(b.String()); stmt != "" {
		stmts = append(stmts, stmt)
	}
	return stmts
}

// Pending returns the revisions strictly after the current version
// marker, in apply order.
func Pending(revisions []Revision, current int) []Revision {
	var out []Revision
	for _, r := range revisions {
		if r.Version > current {
			out = append(out, r)
		}
	}
	return out
}

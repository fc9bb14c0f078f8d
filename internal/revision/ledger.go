package revision

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tidemark/tidemark/internal/config"
)

// Ledger is the per-target applied-version marker: a small append-only
// table in the target database itself, so the marker survives process
// restarts and travels with the tenant.
type Ledger struct {
	db      *sql.DB
	dialect string
	table   string
	target  string
}

// Entry is one applied revision as recorded in the ledger.
type Entry struct {
	Version         int       `yaml:"version"`
	Description     string    `yaml:"description"`
	AppliedAt       time.Time `yaml:"applied_at"`
	ExecutionTimeMs int64     `yaml:"execution_time_ms"`
	StatementCount  int       `yaml:"statement_count"`
	Checksum        string    `yaml:"checksum"`
}

// OpenLedger connects to the target and ensures the ledger table exists.
func OpenLedger(ctx context.Context, target *config.Target, table string) (*Ledger, error) {
	if table == "" {
		table = "tidemark_revision"
	}

	db, err := sql.Open(target.DriverName(), target.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening target %s: %w", target.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging target %s: %w", target.Name, err)
	}

	l := &Ledger{db: db, dialect: target.Dialect, table: table, target: target.Name}
	if err := l.ensure(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring ledger table on %s: %w", target.Name, err)
	}
	return l, nil
}

// Close closes the underlying connection.
func (l *Ledger) Close() error { return l.db.Close() }

// DB exposes the target connection for applying revision statements on
// the same session the ledger records to.
func (l *Ledger) DB() *sql.DB { return l.db }

func (l *Ledger) ensure(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  version integer PRIMARY KEY,
  description varchar(255) NOT NULL,
  applied_at timestamp NOT NULL,
  execution_time_ms bigint NOT NULL,
  statement_count integer NOT NULL,
  checksum varchar(64) NOT NULL
)`, l.table)
	_, err := l.db.ExecContext(ctx, ddl)
	return err
}

// CurrentVersion returns the highest applied version, 0 when none.
func (l *Ledger) CurrentVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	query := fmt.Sprintf("SELECT MAX(version) FROM %s", l.table)
	if err := l.db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return 0, fmt.Errorf("reading version marker: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

// Entries returns every ledger row in version order.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	query := fmt.Sprintf(`SELECT version, description, applied_at, execution_time_ms, statement_count, checksum
		FROM %s ORDER BY version`, l.table)
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Version, &e.Description, &e.AppliedAt, &e.ExecutionTimeMs, &e.StatementCount, &e.Checksum); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// VerifyChecksums compares applied ledger rows against the loaded
// revision files. A drifted file for an already-applied version is an
// error: the history no longer describes what ran.
func (l *Ledger) VerifyChecksums(ctx context.Context, revisions []Revision) error {
	entries, err := l.Entries(ctx)
	if err != nil {
		return err
	}

	byVersion := make(map[int]Revision, len(revisions))
	for _, r := range revisions {
		byVersion[r.Version] = r
	}

	for _, e := range entries {
		r, ok := byVersion[e.Version]
		if !ok {
			return fmt.Errorf("applied version %d has no migration file", e.Version)
		}
		if r.Checksum != e.Checksum {
			return fmt.Errorf("migration %d_%s changed after it was applied (checksum mismatch)", e.Version, r.Description)
		}
	}
	return nil
}

func (l *Ledger) record(ctx context.Context, r *Revision, took time.Duration) error {
	query := fmt.Sprintf("INSERT INTO %s (version, description, applied_at, execution_time_ms, statement_count, checksum) VALUES (%s)",
		l.table, l.placeholders(6))
	_, err := l.db.ExecContext(ctx, query,
		r.Version, r.Description, time.Now().UTC(), took.Milliseconds(), len(r.UpSQL), r.Checksum)
	if err != nil {
		return fmt.Errorf("recording version %d: %w", r.Version, err)
	}
	return nil
}

func (l *Ledger) remove(ctx context.Context, version int) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE version = %s", l.table, l.placeholder(1))
	if _, err := l.db.ExecContext(ctx, query, version); err != nil {
		return fmt.Errorf("removing version %d: %w", version, err)
	}
	return nil
}

func (l *Ledger) placeholder(n int) string {
	if l.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (l *Ledger) placeholders(count int) string {
	out := ""
	for i := 1; i <= count; i++ {
		if i > 1 {
			out += ", "
		}
		out += l.placeholder(i)
	}
	return out
}

package inspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/schema"
)

// SQLite implements Inspector for SQLite targets. The schema is read
// through pragmas rather than information_schema.
type SQLite struct {
	target *config.Target
	db     *sql.DB
	owned  bool // whether Close should close db
}

// NewSQLite creates a SQLite inspector for a database file.
func NewSQLite(t *config.Target) *SQLite {
	return &SQLite{target: t, owned: true}
}

// SQLiteFromDB wraps an already-open handle, e.g. an in-memory dev
// database. Close leaves the handle open for the owner.
func SQLiteFromDB(db *sql.DB) *SQLite {
	return &SQLite{target: &config.Target{Name: "dev", Dialect: "sqlite"}, db: db}
}

func (s *SQLite) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite3", s.target.DSN())
	if err != nil {
		return &ConnectionError{Dialect: "sqlite", Target: s.target.Name, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &ConnectionError{Dialect: "sqlite", Target: s.target.Name, Err: err}
	}
	s.db = db
	return nil
}

func (s *SQLite) Inspect(ctx context.Context) (*schema.Schema, error) {
	if s.db == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}

	names, err := s.listTables(ctx)
	if err != nil {
		return nil, &InspectionError{Dialect: "sqlite", Target: s.target.Name, Object: "tables", Err: err}
	}

	out := &schema.Schema{Name: "main"}
	for _, name := range names {
		t, err := s.inspectTable(ctx, name)
		if err != nil {
			return nil, &InspectionError{Dialect: "sqlite", Target: s.target.Name, Object: name, Err: err}
		}
		out.Tables = append(out.Tables, *t)
	}
	return out, nil
}

func (s *SQLite) Close() error {
	if s.db != nil && s.owned {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *SQLite) listTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLite) inspectTable(ctx context.Context, name string) (*schema.Table, error) {
	t := &schema.Table{Name: name}

	if err := s.inspectColumns(ctx, t); err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	if err := s.inspectForeignKeys(ctx, t); err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}
	if err := s.inspectIndexes(ctx, t); err != nil {
		return nil, fmt.Errorf("indexes: %w", err)
	}
	return t, nil
}

func (s *SQLite) inspectColumns(ctx context.Context, t *schema.Table) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", t.Name))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notNull, pkOrder int
		var colName, colType string
		var defaultVal sql.NullString
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &defaultVal, &pkOrder); err != nil {
			return err
		}

		col := schema.Column{
			Name:     colName,
			Type:     schema.CanonicalType(colType),
			RawType:  colType,
			Nullable: notNull == 0,
		}
		if defaultVal.Valid {
			col.Default = &defaultVal.String
		}
		t.Columns = append(t.Columns, col)

		if pkOrder > 0 {
			if t.PrimaryKey == nil {
				t.PrimaryKey = &schema.PrimaryKey{}
			}
			t.PrimaryKey.Columns = append(t.PrimaryKey.Columns, colName)
		}
	}
	return rows.Err()
}

func (s *SQLite) inspectForeignKeys(ctx context.Context, t *schema.Table) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", t.Name))
	if err != nil {
		return err
	}
	defer rows.Close()

	grouped := make(map[int]*schema.ForeignKey)
	var order []int

	for rows.Next() {
		var id, seq int
		var refTable, from, onUpdate, onDelete, match string
		var to sql.NullString
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return err
		}

		fk, exists := grouped[id]
		if !exists {
			fk = &schema.ForeignKey{
				ReferencedTable: refTable,
				OnDelete:        onDelete,
				OnUpdate:        onUpdate,
			}
			grouped[id] = fk
			order = append(order, id)
		}
		fk.Columns = append(fk.Columns, from)
		if to.Valid {
			fk.ReferencedColumns = append(fk.ReferencedColumns, to.String)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range order {
		fk := grouped[id]
		// The pragma reports no constraint name; synthesize a deterministic
		// one so keyed matching works after a dev-database round trip.
		fk.Name = fmt.Sprintf("fk_%s_%s", t.Name, strings.Join(fk.Columns, "_"))
		t.ForeignKeys = append(t.ForeignKeys, *fk)
	}
	return nil
}

func (s *SQLite) inspectIndexes(ctx context.Context, t *schema.Table) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%q)", t.Name))
	if err != nil {
		return err
	}
	defer rows.Close()

	type idxInfo struct {
		name    string
		unique  bool
		partial bool
	}
	var infos []idxInfo

	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return err
		}
		// Skip indexes backing PRIMARY KEY and UNIQUE clauses.
		if origin != "c" || strings.HasPrefix(name, "sqlite_autoindex") {
			continue
		}
		infos = append(infos, idxInfo{name: name, unique: unique == 1, partial: partial == 1})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, info := range infos {
		idx := schema.Index{Name: info.name, Unique: info.unique}

		cols, err := s.indexColumns(ctx, info.name)
		if err != nil {
			return err
		}
		idx.Columns = cols

		if info.partial {
			pred, err := s.indexPredicate(ctx, info.name)
			if err != nil {
				return err
			}
			idx.Predicate = pred
		}
		t.Indexes = append(t.Indexes, idx)
	}
	return nil
}

func (s *SQLite) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%q)", index))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var colName sql.NullString
		if err := rows.Scan(&seqno, &cid, &colName); err != nil {
			return nil, err
		}
		if colName.Valid {
			cols = append(cols, colName.String)
		}
	}
	return cols, rows.Err()
}

// indexPredicate recovers a partial index predicate from the original DDL
// in sqlite_master, since no pragma exposes it.
func (s *SQLite) indexPredicate(ctx context.Context, index string) (string, error) {
	var ddl sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'index' AND name = ?", index).Scan(&ddl)
	if err != nil {
		return "", err
	}
	if !ddl.Valid {
		return "", nil
	}
	upper := strings.ToUpper(ddl.String)
	i := strings.LastIndex(upper, " WHERE ")
	if i < 0 {
		return "", nil
	}
	return strings.TrimSpace(ddl.String[i+len(" WHERE "):]), nil
}

// compile-time interface check
var _ Inspector = (*SQLite)(nil)

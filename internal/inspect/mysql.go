package inspect

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/schema"
)

// MySQL implements Inspector for MySQL and MariaDB targets.
type MySQL struct {
	target *config.Target
	db     *sql.DB
}

// NewMySQL creates a MySQL inspector.
func NewMySQL(t *config.Target) *MySQL {
	return &MySQL{target: t}
}

func (m *MySQL) Connect(ctx context.Context) error {
	db, err := sql.Open("mysql", m.target.DSN())
	if err != nil {
		return &ConnectionError{Dialect: "mysql", Target: m.target.Name, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &ConnectionError{Dialect: "mysql", Target: m.target.Name, Err: err}
	}
	m.db = db
	return nil
}

func (m *MySQL) Inspect(ctx context.Context) (*schema.Schema, error) {
	if m.db == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}

	tables, err := m.inspectTables(ctx)
	if err != nil {
		return nil, &InspectionError{Dialect: "mysql", Target: m.target.Name, Object: "tables", Err: err}
	}

	tableMap := make(map[string]*schema.Table, len(tables))
	for i := range tables {
		tableMap[tables[i].Name] = &tables[i]
	}

	if err := m.inspectColumns(ctx, tableMap); err != nil {
		return nil, &InspectionError{Dialect: "mysql", Target: m.target.Name, Object: "columns", Err: err}
	}
	if err := m.inspectKeys(ctx, tableMap); err != nil {
		return nil, &InspectionError{Dialect: "mysql", Target: m.target.Name, Object: "keys", Err: err}
	}
	if err := m.inspectIndexes(ctx, tableMap); err != nil {
		return nil, &InspectionError{Dialect: "mysql", Target: m.target.Name, Object: "indexes", Err: err}
	}
	if err := m.inspectChecks(ctx, tableMap); err != nil {
		return nil, &InspectionError{Dialect: "mysql", Target: m.target.Name, Object: "check constraints", Err: err}
	}

	return &schema.Schema{Name: m.target.Database, Tables: tables}, nil
}

func (m *MySQL) Close() error {
	if m.db != nil {
		err := m.db.Close()
		m.db = nil
		return err
	}
	return nil
}

func (m *MySQL) inspectTables(ctx context.Context) ([]schema.Table, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []schema.Table
	for rows.Next() {
		var t schema.Table
		if err := rows.Scan(&t.Name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (m *MySQL) inspectColumns(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT table_name, column_name, column_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, colName, colType, nullable string
		var defaultVal sql.NullString
		if err := rows.Scan(&tableName, &colName, &colType, &nullable, &defaultVal); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		col := schema.Column{
			Name:     colName,
			Type:     schema.CanonicalType(colType),
			RawType:  colType,
			Nullable: nullable == "YES",
		}
		if defaultVal.Valid {
			col.Default = &defaultVal.String
		}
		t.Columns = append(t.Columns, col)
	}
	return rows.Err()
}

// inspectKeys fetches primary and foreign keys in one pass over
// key_column_usage; referential actions come from referential_constraints.
func (m *MySQL) inspectKeys(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			kcu.table_name,
			kcu.constraint_name,
			kcu.column_name,
			COALESCE(kcu.referenced_table_name, ''),
			COALESCE(kcu.referenced_column_name, ''),
			COALESCE(rc.delete_rule, ''),
			COALESCE(rc.update_rule, '')
		FROM information_schema.key_column_usage kcu
		LEFT JOIN information_schema.referential_constraints rc
		  ON kcu.constraint_name = rc.constraint_name
		  AND kcu.table_schema = rc.constraint_schema
		WHERE kcu.table_schema = DATABASE()
		ORDER BY kcu.table_name, kcu.constraint_name, kcu.ordinal_position`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	type fkKey struct{ table, constraint string }
	grouped := make(map[fkKey]*schema.ForeignKey)
	var order []fkKey

	for rows.Next() {
		var tableName, constraintName, column, refTable, refColumn, onDelete, onUpdate string
		if err := rows.Scan(&tableName, &constraintName, &column, &refTable, &refColumn, &onDelete, &onUpdate); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		if constraintName == "PRIMARY" {
			if t.PrimaryKey == nil {
				t.PrimaryKey = &schema.PrimaryKey{Name: "PRIMARY"}
			}
			t.PrimaryKey.Columns = append(t.PrimaryKey.Columns, column)
			continue
		}
		if refTable == "" {
			// Unique constraints surface through inspectIndexes.
			continue
		}

		k := fkKey{tableName, constraintName}
		fk, exists := grouped[k]
		if !exists {
			fk = &schema.ForeignKey{
				Name:            constraintName,
				ReferencedTable: refTable,
				OnDelete:        onDelete,
				OnUpdate:        onUpdate,
			}
			grouped[k] = fk
			order = append(order, k)
		}
		fk.Columns = append(fk.Columns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, k := range order {
		if t, ok := tableMap[k.table]; ok {
			t.ForeignKeys = append(t.ForeignKeys, *grouped[k])
		}
	}
	return nil
}

func (m *MySQL) inspectIndexes(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT table_name, index_name, non_unique, column_name
		FROM information_schema.statistics
		WHERE table_schema = DATABASE()
		  AND index_name != 'PRIMARY'
		ORDER BY table_name, index_name, seq_in_index`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	type idxKey struct{ table, index string }
	grouped := make(map[idxKey]*schema.Index)
	var order []idxKey

	for rows.Next() {
		var tableName, indexName, colName string
		var nonUnique int
		if err := rows.Scan(&tableName, &indexName, &nonUnique, &colName); err != nil {
			return err
		}

		k := idxKey{tableName, indexName}
		idx, exists := grouped[k]
		if !exists {
			idx = &schema.Index{Name: indexName, Unique: nonUnique == 0}
			grouped[k] = idx
			order = append(order, k)
		}
		idx.Columns = append(idx.Columns, colName)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	fkIndexes := make(map[idxKey]bool)
	for name, t := range tableMap {
		for _, fk := range t.ForeignKeys {
			// MySQL auto-creates a backing index named after the constraint.
			fkIndexes[idxKey{name, fk.Name}] = true
		}
	}

	for _, k := range order {
		if fkIndexes[k] {
			continue
		}
		if t, ok := tableMap[k.table]; ok {
			t.Indexes = append(t.Indexes, *grouped[k])
		}
	}
	return nil
}

func (m *MySQL) inspectChecks(ctx context.Context, tableMap map[string]*schema.Table) error {
	// check_constraints exists from MySQL 8.0.16; treat its absence as
	// "no check constraints" rather than an inspection failure.
	query := `
		SELECT tc.table_name, cc.constraint_name, cc.check_clause
		FROM information_schema.table_constraints tc
		JOIN information_schema.check_constraints cc
		  ON tc.constraint_name = cc.constraint_name
		  AND tc.constraint_schema = cc.constraint_schema
		WHERE tc.table_schema = DATABASE()
		  AND tc.constraint_type = 'CHECK'
		ORDER BY tc.table_name, cc.constraint_name`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, constraintName, clause string
		if err := rows.Scan(&tableName, &constraintName, &clause); err != nil {
			return err
		}
		if t, ok := tableMap[tableName]; ok {
			t.Checks = append(t.Checks, schema.Check{Name: constraintName, Expr: clause})
		}
	}
	return rows.Err()
}

// compile-time interface check
var _ Inspector = (*MySQL)(nil)

package inspect

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/schema"
)

// Postgres implements Inspector for PostgreSQL targets.
type Postgres struct {
	target *config.Target
	pool   *pgxpool.Pool
	pgs    string // pg schema to inspect, defaults to "public"
}

// NewPostgres creates a PostgreSQL inspector.
func NewPostgres(t *config.Target) *Postgres {
	s := t.Schema
	if s == "" {
		s = "public"
	}
	return &Postgres{target: t, pgs: s}
}

func (p *Postgres) Connect(ctx context.Context) error {
	poolCfg, err := pgxpool.ParseConfig(p.target.DSN())
	if err != nil {
		return &ConnectionError{Dialect: "postgres", Target: p.target.Name, Err: err}
	}
	// Inspection reads sequentially; one connection is enough.
	poolCfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return &ConnectionError{Dialect: "postgres", Target: p.target.Name, Err: err}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return &ConnectionError{Dialect: "postgres", Target: p.target.Name, Err: err}
	}

	p.pool = pool
	return nil
}

func (p *Postgres) Inspect(ctx context.Context) (*schema.Schema, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}

	tables, err := p.inspectTables(ctx)
	if err != nil {
		return nil, &InspectionError{Dialect: "postgres", Target: p.target.Name, Object: "tables", Err: err}
	}

	tableMap := make(map[string]*schema.Table, len(tables))
	for i := range tables {
		tableMap[tables[i].Name] = &tables[i]
	}

	if err := p.inspectColumns(ctx, tableMap); err != nil {
		return nil, &InspectionError{Dialect: "postgres", Target: p.target.Name, Object: "columns", Err: err}
	}
	if err := p.inspectPrimaryKeys(ctx, tableMap); err != nil {
		return nil, &InspectionError{Dialect: "postgres", Target: p.target.Name, Object: "primary keys", Err: err}
	}
	if err := p.inspectForeignKeys(ctx, tableMap); err != nil {
		return nil, &InspectionError{Dialect: "postgres", Target: p.target.Name, Object: "foreign keys", Err: err}
	}
	if err := p.inspectIndexes(ctx, tableMap); err != nil {
		return nil, &InspectionError{Dialect: "postgres", Target: p.target.Name, Object: "indexes", Err: err}
	}
	if err := p.inspectChecks(ctx, tableMap); err != nil {
		return nil, &InspectionError{Dialect: "postgres", Target: p.target.Name, Object: "check constraints", Err: err}
	}

	return &schema.Schema{Name: p.pgs, Tables: tables}, nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}

func (p *Postgres) inspectTables(ctx context.Context) ([]schema.Table, error) {
	query := `
		SELECT c.relname
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relkind = 'r'
		ORDER BY c.relname`

	rows, err := p.pool.Query(ctx, query, p.pgs)
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

func (p *Postgres) inspectColumns(ctx context.Context, tableMap map[string]*schema.Table) error {
	// information_schema splits parametrized types across data_type and the
	// length/precision columns; reassemble them into one type spelling.
	query := `
		SELECT
			table_name,
			column_name,
			data_type,
			is_nullable,
			column_default,
			character_maximum_length,
			numeric_precision,
			numeric_scale
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = ANY($2)
		ORDER BY table_name, ordinal_position`

	rows, err := p.pool.Query(ctx, query, p.pgs, tableNames(tableMap))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tableName, colName, dataType, nullable string
			defaultVal                             *string
			maxLen, precision, scale               *int
		)
		if err := rows.Scan(&tableName, &colName, &dataType, &nullable, &defaultVal, &maxLen, &precision, &scale); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		raw := assembleType(dataType, maxLen, precision, scale)
		t.Columns = append(t.Columns, schema.Column{
			Name:     colName,
			Type:     schema.CanonicalType(raw),
			RawType:  raw,
			Nullable: nullable == "YES",
			Default:  defaultVal,
		})
	}
	return rows.Err()
}

func (p *Postgres) inspectPrimaryKeys(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		ORDER BY tc.table_name, kcu.ordinal_position`

	rows, err := p.pool.Query(ctx, query, p.pgs, tableNames(tableMap))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, constraintName, colName string
		if err := rows.Scan(&tableName, &constraintName, &colName); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}
		if t.PrimaryKey == nil {
			t.PrimaryKey = &schema.PrimaryKey{Name: constraintName}
		}
		t.PrimaryKey.Columns = append(t.PrimaryKey.Columns, colName)
	}
	return rows.Err()
}

func (p *Postgres) inspectForeignKeys(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column,
			rc.delete_rule,
			rc.update_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		  AND tc.table_schema = ccu.table_schema
		JOIN information_schema.referential_constraints rc
		  ON tc.constraint_name = rc.constraint_name
		  AND tc.table_schema = rc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`

	rows, err := p.pool.Query(ctx, query, p.pgs, tableNames(tableMap))
	if err != nil {
		return err
	}
	defer rows.Close()

	// Composite foreign keys arrive as one row per column pair; group them
	// back together by table + constraint name, preserving first-seen order.
	type fkKey struct{ table, constraint string }
	grouped := make(map[fkKey]*schema.ForeignKey)
	var order []fkKey

	for rows.Next() {
		var tableName, constraintName, column, refTable, refColumn, onDelete, onUpdate string
		if err := rows.Scan(&tableName, &constraintName, &column, &refTable, &refColumn, &onDelete, &onUpdate); err != nil {
			return err
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

func (p *Postgres) inspectIndexes(ctx context.Context, tableMap map[string]*schema.Table) error {
	// Primary key and unique-constraint indexes are reported with their
	// constraints, not as standalone indexes.
	query := `
		SELECT
			t.relname AS table_name,
			i.relname AS index_name,
			ix.indisunique AS is_unique,
			COALESCE(pg_get_expr(ix.indpred, t.oid), '') AS predicate,
			a.attname AS column_name
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1
		  AND t.relname = ANY($2)
		  AND NOT ix.indisprimary
		  AND NOT EXISTS (
			SELECT 1 FROM pg_constraint c WHERE c.conindid = ix.indexrelid
		  )
		ORDER BY t.relname, i.relname, array_position(ix.indkey, a.attnum)`

	rows, err := p.pool.Query(ctx, query, p.pgs, tableNames(tableMap))
	if err != nil {
		return err
	}
	defer rows.Close()

	type idxKey struct{ table, index string }
	grouped := make(map[idxKey]*schema.Index)
	var order []idxKey

	for rows.Next() {
		var tableName, indexName, predicate, colName string
		var isUnique bool
		if err := rows.Scan(&tableName, &indexName, &isUnique, &predicate, &colName); err != nil {
			return err
		}

		k := idxKey{tableName, indexName}
		idx, exists := grouped[k]
		if !exists {
			idx = &schema.Index{
				Name:      indexName,
				Unique:    isUnique,
				Predicate: predicate,
			}
			grouped[k] = idx
			order = append(order, k)
		}
		idx.Columns = append(idx.Columns, colName)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, k := range order {
		if t, ok := tableMap[k.table]; ok {
			t.Indexes = append(t.Indexes, *grouped[k])
		}
	}
	return nil
}

func (p *Postgres) inspectChecks(ctx context.Context, tableMap map[string]*schema.Table) error {
	// NOT NULL shows up as a synthetic check constraint; it lives on the
	// column already, so filter it out here.
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			cc.check_clause
		FROM information_schema.table_constraints tc
		JOIN information_schema.check_constraints cc
		  ON tc.constraint_name = cc.constraint_name
		  AND tc.constraint_schema = cc.constraint_schema
		WHERE tc.constraint_type = 'CHECK'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		  AND tc.constraint_name NOT LIKE '%_not_null'
		ORDER BY tc.table_name, tc.constraint_name`

	rows, err := p.pool.Query(ctx, query, p.pgs, tableNames(tableMap))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, constraintName, clause string
		if err := rows.Scan(&tableName, &constraintName, &clause); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}
		t.Checks = append(t.Checks, schema.Check{Name: constraintName, Expr: clause})
	}
	return rows.Err()
}

func assembleType(dataType string, maxLen, precision, scale *int) string {
	switch dataType {
	case "character varying", "character":
		if maxLen != nil {
			return fmt.Sprintf("%s(%d)", dataType, *maxLen)
		}
	case "numeric", "decimal":
		if precision != nil && scale != nil && *scale > 0 {
			return fmt.Sprintf("%s(%d,%d)", dataType, *precision, *scale)
		}
		if precision != nil {
			return fmt.Sprintf("%s(%d)", dataType, *precision)
		}
	}
	return dataType
}

func tableNames(tableMap map[string]*schema.Table) []string {
	names := make([]string, 0, len(tableMap))
	for name := range tableMap {
		names = append(names, name)
	}
	return names
}

// compile-time interface check
var _ Inspector = (*Postgres)(nil)

package inspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/sijms/go-ora/v2"
	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/schema"
)

// Oracle implements Inspector for Oracle targets using go-ora (pure Go,
// no Instant Client). Oracle is inspect-only: planning or applying DDL
// against an Oracle target is not supported.
type Oracle struct {
	target *config.Target
	db     *sql.DB
	owner  string // Oracle schema owner, defaults to username uppercased
}

// NewOracle creates an Oracle inspector.
func NewOracle(t *config.Target) *Oracle {
	owner := t.Schema
	if owner == "" {
		owner = strings.ToUpper(t.Username)
	}
	return &Oracle{target: t, owner: owner}
}

func (o *Oracle) Connect(ctx context.Context) error {
	db, err := sql.Open("oracle", o.target.DSN())
	if err != nil {
		return &ConnectionError{Dialect: "oracle", Target: o.target.Name, Err: err}
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &ConnectionError{Dialect: "oracle", Target: o.target.Name, Err: err}
	}

	o.db = db
	return nil
}

func (o *Oracle) Inspect(ctx context.Context) (*schema.Schema, error) {
	if o.db == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}

	tables, err := o.inspectTables(ctx)
	if err != nil {
		return nil, &InspectionError{Dialect: "oracle", Target: o.target.Name, Object: "tables", Err: err}
	}

	tableMap := make(map[string]*schema.Table, len(tables))
	for i := range tables {
		tableMap[tables[i].Name] = &tables[i]
	}

	if err := o.inspectColumns(ctx, tableMap); err != nil {
		return nil, &InspectionError{Dialect: "oracle", Target: o.target.Name, Object: "columns", Err: err}
	}
	if err := o.inspectConstraints(ctx, tableMap); err != nil {
		return nil, &InspectionError{Dialect: "oracle", Target: o.target.Name, Object: "constraints", Err: err}
	}
	if err := o.inspectIndexes(ctx, tableMap); err != nil {
		return nil, &InspectionError{Dialect: "oracle", Target: o.target.Name, Object: "indexes", Err: err}
	}

	return &schema.Schema{Name: o.owner, Tables: tables}, nil
}

func (o *Oracle) Close() error {
	if o.db != nil {
		err := o.db.Close()
		o.db = nil
		return err
	}
	return nil
}

func (o *Oracle) inspectTables(ctx context.Context) ([]schema.Table, error) {
	query := `
		SELECT table_name
		FROM all_tables
		WHERE owner = :1
		ORDER BY table_name`

	rows, err := o.db.QueryContext(ctx, query, o.owner)
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

func (o *Oracle) inspectColumns(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT table_name, column_name, data_type, data_length, data_precision, data_scale, nullable, data_default
		FROM all_tab_columns
		WHERE owner = :1
		ORDER BY table_name, column_id`

	rows, err := o.db.QueryContext(ctx, query, o.owner)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, colName, dataType, nullable string
		var dataLength int
		var precision, scale sql.NullInt64
		var defaultVal sql.NullString
		if err := rows.Scan(&tableName, &colName, &dataType, &dataLength, &precision, &scale, &nullable, &defaultVal); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		raw := oracleType(dataType, dataLength, precision, scale)
		col := schema.Column{
			Name:     colName,
			Type:     schema.CanonicalType(raw),
			RawType:  raw,
			Nullable: nullable == "Y",
		}
		if defaultVal.Valid {
			v := strings.TrimSpace(defaultVal.String)
			col.Default = &v
		}
		t.Columns = append(t.Columns, col)
	}
	return rows.Err()
}

// inspectConstraints fetches primary keys, foreign keys, and checks from
// all_constraints in one pass.
func (o *Oracle) inspectConstraints(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			c.table_name,
			c.constraint_name,
			c.constraint_type,
			acc.column_name,
			NVL(rc.table_name, ''),
			NVL(racc.column_name, ''),
			NVL(c.delete_rule, ''),
			NVL(c.search_condition_vc, '')
		FROM all_constraints c
		JOIN all_cons_columns acc
		  ON c.owner = acc.owner AND c.constraint_name = acc.constraint_name
		LEFT JOIN all_constraints rc
		  ON c.r_owner = rc.owner AND c.r_constraint_name = rc.constraint_name
		LEFT JOIN all_cons_columns racc
		  ON rc.owner = racc.owner AND rc.constraint_name = racc.constraint_name
		  AND racc.position = acc.position
		WHERE c.owner = :1
		  AND c.constraint_type IN ('P', 'R', 'C')
		ORDER BY c.table_name, c.constraint_name, acc.position`

	rows, err := o.db.QueryContext(ctx, query, o.owner)
	if err != nil {
		return err
	}
	defer rows.Close()

	type fkKey struct{ table, constraint string }
	grouped := make(map[fkKey]*schema.ForeignKey)
	var order []fkKey

	for rows.Next() {
		var tableName, constraintName, ctype, column, refTable, refColumn, deleteRule, condition string
		if err := rows.Scan(&tableName, &constraintName, &ctype, &column, &refTable, &refColumn, &deleteRule, &condition); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		switch ctype {
		case "P":
			if t.PrimaryKey == nil {
				t.PrimaryKey = &schema.PrimaryKey{Name: constraintName}
			}
			t.PrimaryKey.Columns = append(t.PrimaryKey.Columns, column)
		case "R":
			k := fkKey{tableName, constraintName}
			fk, exists := grouped[k]
			if !exists {
				fk = &schema.ForeignKey{
					Name:            constraintName,
					ReferencedTable: refTable,
					OnDelete:        deleteRule,
				}
				grouped[k] = fk
				order = append(order, k)
			}
			fk.Columns = append(fk.Columns, column)
			fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
		case "C":
			// Oracle stores NOT NULL as a generated check constraint.
			if strings.HasSuffix(condition, "IS NOT NULL") {
				continue
			}
			if t.Check(constraintName) == nil {
				t.Checks = append(t.Checks, schema.Check{Name: constraintName, Expr: condition})
			}
		}
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

func (o *Oracle) inspectIndexes(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT i.table_name, i.index_name, i.uniqueness, ic.column_name
		FROM all_indexes i
		JOIN all_ind_columns ic
		  ON i.owner = ic.index_owner AND i.index_name = ic.index_name
		WHERE i.owner = :1
		  AND NOT EXISTS (
			SELECT 1 FROM all_constraints c
			WHERE c.owner = i.owner AND c.index_name = i.index_name
		  )
		ORDER BY i.table_name, i.index_name, ic.column_position`

	rows, err := o.db.QueryContext(ctx, query, o.owner)
	if err != nil {
		return err
	}
	defer rows.Close()

	type idxKey struct{ table, index string }
	grouped := make(map[idxKey]*schema.Index)
	var order []idxKey

	for rows.Next() {
		var tableName, indexName, uniqueness, colName string
		if err := rows.Scan(&tableName, &indexName, &uniqueness, &colName); err != nil {
			return err
		}

		k := idxKey{tableName, indexName}
		idx, exists := grouped[k]
		if !exists {
			idx = &schema.Index{Name: indexName, Unique: uniqueness == "UNIQUE"}
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

func oracleType(dataType string, length int, precision, scale sql.NullInt64) string {
	switch dataType {
	case "VARCHAR2", "NVARCHAR2", "CHAR", "NCHAR", "RAW":
		return fmt.Sprintf("%s(%d)", dataType, length)
	case "NUMBER":
		if precision.Valid && scale.Valid && scale.Int64 > 0 {
			return fmt.Sprintf("NUMBER(%d,%d)", precision.Int64, scale.Int64)
		}
		if precision.Valid {
			return fmt.Sprintf("NUMBER(%d)", precision.Int64)
		}
		return "NUMBER"
	default:
		return dataType
	}
}

// compile-time interface check
var _ Inspector = (*Oracle)(nil)

package plan

import (
	"fmt"
	"strings"

	"github.com/tidemark/tidemark/internal/diff"
	"github.com/tidemark/tidemark/internal/schema"
)

// StatementGenerator renders one abstract change into dialect-specific
// DDL. One implementation per supported dialect, selected by connection
// descriptor.
type StatementGenerator interface {
	Render(c *diff.Change) ([]string, error)
}

// tableRebuilder is implemented by dialects that cannot alter certain
// table attributes in place and must rewrite the whole table instead.
type tableRebuilder interface {
	needsRebuild(c *diff.Change) bool
	rebuildTable(before, after *schema.Table) []string
}

func newGenerator(dialect string) (StatementGenerator, error) {
	switch dialect {
	case "postgres":
		return &postgresGen{}, nil
	case "mysql":
		return &mysqlGen{}, nil
	case "sqlite":
		return &sqliteGen{}, nil
	default:
		return nil, fmt.Errorf("no statement generator for dialect %q", dialect)
	}
}

// columnDef renders "name type [NOT NULL] [DEFAULT expr]" with the given
// identifier quoting. RawType wins over the canonical type when the
// schema came from inspection.
func columnDef(c *schema.Column, quote func(string) string) string {
	var b strings.Builder
	b.WriteString(quote(c.Name))
	b.WriteString(" ")
	b.WriteString(columnType(c))
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(*c.Default)
	}
	return b.String()
}

func columnType(c *schema.Column) string {
	if c.RawType != "" {
		return c.RawType
	}
	return c.Type
}

func quoteAll(names []string, quote func(string) string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quote(n)
	}
	return out
}

func columnList(names []string, quote func(string) string) string {
	return strings.Join(quoteAll(names, quote), ", ")
}

// createTable renders a CREATE TABLE with inline primary key and check
// constraints, plus CREATE INDEX statements for the table's indexes.
// Foreign keys are included only when withFKs is set (table rebuilds).
func createTable(t *schema.Table, quote func(string) string, withFKs bool, tableName string) []string {
	if tableName == "" {
		tableName = t.Name
	}

	var defs []string
	for i := range t.Columns {
		defs = append(defs, "  "+columnDef(&t.Columns[i], quote))
	}
	if t.PrimaryKey != nil {
		defs = append(defs, fmt.Sprintf("  PRIMARY KEY (%s)", columnList(t.PrimaryKey.Columns, quote)))
	}
	for _, ck := range t.Checks {
		defs = append(defs, fmt.Sprintf("  CONSTRAINT %s CHECK (%s)", quote(ck.Name), ck.Expr))
	}
	if withFKs {
		for i := range t.ForeignKeys {
			fk := &t.ForeignKeys[i]
			defs = append(defs, "  "+foreignKeyDef(fk, quote))
		}
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE %s (\n%s\n)", quote(tableName), strings.Join(defs, ",\n"))}
	for i := range t.Indexes {
		stmts = append(stmts, createIndex(tableName, &t.Indexes[i], quote))
	}
	return stmts
}

func foreignKeyDef(fk *schema.ForeignKey, quote func(string) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		quote(fk.Name), columnList(fk.Columns, quote),
		quote(fk.ReferencedTable), columnList(fk.ReferencedColumns, quote))
	if a := strings.ToUpper(strings.TrimSpace(fk.OnDelete)); a != "" && a != "NO ACTION" {
		b.WriteString(" ON DELETE " + a)
	}
	if a := strings.ToUpper(strings.TrimSpace(fk.OnUpdate)); a != "" && a != "NO ACTION" {
		b.WriteString(" ON UPDATE " + a)
	}
	return b.String()
}

func createIndex(table string, ix *schema.Index, quote func(string) string) string {
	unique := ""
	if ix.Unique {
		unique = "UNIQUE "
	}
	stmt := fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, quote(ix.Name), quote(table), columnList(ix.Columns, quote))
	if ix.Predicate != "" {
		stmt += " WHERE " + ix.Predicate
	}
	return stmt
}

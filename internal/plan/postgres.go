package plan

import (
	"fmt"
	"strings"

	"github.com/tidemark/tidemark/internal/diff"
)

// postgresGen renders DDL for PostgreSQL.
type postgresGen struct{}

func pgQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (g *postgresGen) Render(c *diff.Change) ([]string, error) {
	q := pgQuote
	switch c.Kind {
	case diff.AddTable:
		return createTable(c.TableAfter, q, false, ""), nil
	case diff.DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", q(c.Table))}, nil
	case diff.AddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
			q(c.Table), columnDef(c.ColumnAfter, q))}, nil
	case diff.DropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
			q(c.Table), q(c.ColumnBefore.Name))}, nil
	case diff.ModifyColumn:
		return g.modifyColumn(c)
	case diff.AddIndex:
		return []string{createIndex(c.Table, c.IndexAfter, q)}, nil
	case diff.DropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s", q(c.IndexBefore.Name))}, nil
	case diff.AddPrimaryKey:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)",
			q(c.Table), columnList(c.PKAfter.Columns, q))}, nil
	case diff.DropPrimaryKey:
		name := c.PKBefore.Name
		if name == "" {
			name = c.Table + "_pkey"
		}
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", q(c.Table), q(name))}, nil
	case diff.AddForeignKey:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD %s",
			q(c.Table), foreignKeyDef(c.FKAfter, q))}, nil
	case diff.DropForeignKey:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s",
			q(c.Table), q(c.FKBefore.Name))}, nil
	case diff.AddCheck:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)",
			q(c.Table), q(c.CheckAfter.Name), c.CheckAfter.Expr)}, nil
	case diff.DropCheck:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s",
			q(c.Table), q(c.CheckBefore.Name))}, nil
	}
	return nil, fmt.Errorf("unhandled change kind %q", c.Kind)
}

// modifyColumn joins the attribute deltas into one ALTER TABLE with
// comma-separated actions.
func (g *postgresGen) modifyColumn(c *diff.Change) ([]string, error) {
	q := pgQuote
	col := q(c.ColumnAfter.Name)

	var actions []string
	for _, d := range c.Deltas {
		switch d {
		case "type":
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s TYPE %s", col, columnType(c.ColumnAfter)))
		case "nullable":
			if c.ColumnAfter.Nullable {
				actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", col))
			} else {
				actions = append(actions, fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", col))
			}
		case "default":
			if c.ColumnAfter.Default == nil {
				actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", col))
			} else {
				actions = append(actions, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", col, *c.ColumnAfter.Default))
			}
		default:
			return nil, fmt.Errorf("unknown column delta %q", d)
		}
	}
	if len(actions) == 0 {
		return nil, nil
	}
	return []string{fmt.Sprintf("ALTER TABLE %s %s", q(c.Table), strings.Join(actions, ", "))}, nil
}

// compile-time interface check
var _ StatementGenerator = (*postgresGen)(nil)

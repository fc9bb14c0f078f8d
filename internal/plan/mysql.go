package plan

import (
	"fmt"
	"strings"

	"github.com/tidemark/tidemark/internal/diff"
)

// mysqlGen renders DDL for MySQL and MariaDB.
type mysqlGen struct{}

func myQuote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (g *mysqlGen) Render(c *diff.Change) ([]string, error) {
	q := myQuote
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
		// MySQL restates the full column definition on modify.
		return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s",
			q(c.Table), columnDef(c.ColumnAfter, q))}, nil
	case diff.AddIndex:
		if c.IndexAfter.Predicate != "" {
			return nil, fmt.Errorf("mysql does not support partial indexes (index %q)", c.IndexAfter.Name)
		}
		return []string{createIndex(c.Table, c.IndexAfter, q)}, nil
	case diff.DropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s ON %s", q(c.IndexBefore.Name), q(c.Table))}, nil
	case diff.AddPrimaryKey:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)",
			q(c.Table), columnList(c.PKAfter.Columns, q))}, nil
	case diff.DropPrimaryKey:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY", q(c.Table))}, nil
	case diff.AddForeignKey:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD %s",
			q(c.Table), foreignKeyDef(c.FKAfter, q))}, nil
	case diff.DropForeignKey:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s",
			q(c.Table), q(c.FKBefore.Name))}, nil
	case diff.AddCheck:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)",
			q(c.Table), q(c.CheckAfter.Name), c.CheckAfter.Expr)}, nil
	case diff.DropCheck:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CHECK %s",
			q(c.Table), q(c.CheckBefore.Name))}, nil
	}
	return nil, fmt.Errorf("unhandled change kind %q", c.Kind)
}

// compile-time interface check
var _ StatementGenerator = (*mysqlGen)(nil)

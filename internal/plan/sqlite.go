package plan

import (
	"fmt"
	"strings"

	"github.com/tidemark/tidemark/internal/diff"
	"github.com/tidemark/tidemark/internal/schema"
)

// sqliteGen renders DDL for SQLite. ALTER TABLE covers only column
// addition there; every other table mutation is expressed as a full
// rebuild (create new, copy, drop old, rename), per the documented
// sqlite "12-step" procedure.
type sqliteGen struct{}

func sqQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (g *sqliteGen) Render(c *diff.Change) ([]string, error) {
	q := sqQuote
	switch c.Kind {
	case diff.AddTable:
		return createTable(c.TableAfter, q, false, ""), nil
	case diff.DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", q(c.Table))}, nil
	case diff.AddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
			q(c.Table), columnDef(c.ColumnAfter, q))}, nil
	case diff.AddIndex:
		return []string{createIndex(c.Table, c.IndexAfter, q)}, nil
	case diff.DropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s", q(c.IndexBefore.Name))}, nil
	}
	return nil, fmt.Errorf("change kind %q requires a table rebuild", c.Kind)
}

func (g *sqliteGen) needsRebuild(c *diff.Change) bool {
	switch c.Kind {
	case diff.DropColumn, diff.ModifyColumn,
		diff.AddPrimaryKey, diff.DropPrimaryKey,
		diff.AddForeignKey, diff.DropForeignKey,
		diff.AddCheck, diff.DropCheck:
		return true
	}
	return false
}

// rebuildTable emits the rebuild group: create the desired shape under a
// temporary name, copy the surviving columns, swap the tables, recreate
// the desired indexes. before is nil when the table was created earlier
// in the same plan.
func (g *sqliteGen) rebuildTable(before, after *schema.Table) []string {
	q := sqQuote
	tmp := after.Name + "__tidemark_new"

	create := createTable(after, q, true, tmp)
	// createTable appends index statements; hold them until after the
	// rename so they attach to the final table name.
	stmts := []string{create[0]}

	var common []string
	for i := range after.Columns {
		name := after.Columns[i].Name
		if before == nil || before.Column(name) != nil {
			common = append(common, name)
		}
	}
	if len(common) > 0 {
		cols := columnList(common, q)
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			q(tmp), cols, cols, q(after.Name)))
	}

	stmts = append(stmts,
		fmt.Sprintf("DROP TABLE %s", q(after.Name)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", q(tmp), q(after.Name)))

	for i := range after.Indexes {
		stmts = append(stmts, createIndex(after.Name, &after.Indexes[i], q))
	}
	return stmts
}

// compile-time interface checks
var (
	_ StatementGenerator = (*sqliteGen)(nil)
	_ tableRebuilder     = (*sqliteGen)(nil)
)

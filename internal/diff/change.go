package diff

import (
	"fmt"
	"strings"

	"github.com/tidemark/tidemark/internal/schema"
)

// Kind identifies an abstract change operation.
type Kind string

const (
	AddTable       Kind = "add_table"
	DropTable      Kind = "drop_table"
	AddColumn      Kind = "add_column"
	DropColumn     Kind = "drop_column"
	ModifyColumn   Kind = "modify_column"
	AddIndex       Kind = "add_index"
	DropIndex      Kind = "drop_index"
	AddPrimaryKey  Kind = "add_primary_key"
	DropPrimaryKey Kind = "drop_primary_key"
	AddForeignKey  Kind = "add_foreign_key"
	DropForeignKey Kind = "drop_foreign_key"
	AddCheck       Kind = "add_check"
	DropCheck      Kind = "drop_check"
)

// Change is one abstract operation produced by the differ. Table names
// the owning table; the Before/After snapshots carry whichever entity the
// Kind refers to. Snapshots are copies, never aliases into the compared
// schemas.
type Change struct {
	Kind  Kind
	Table string

	TableBefore *schema.Table
	TableAfter  *schema.Table

	ColumnBefore *schema.Column
	ColumnAfter  *schema.Column

	IndexBefore *schema.Index
	IndexAfter  *schema.Index

	PKBefore *schema.PrimaryKey
	PKAfter  *schema.PrimaryKey

	FKBefore *schema.ForeignKey
	FKAfter  *schema.ForeignKey

	CheckBefore *schema.Check
	CheckAfter  *schema.Check

	// Deltas names the attributes that differ on a modify change, e.g.
	// "type", "nullable", "default".
	Deltas []string
}

// Entity returns the name of the entity the change operates on.
func (c *Change) Entity() string {
	switch c.Kind {
	case AddTable, DropTable:
		return c.Table
	case AddColumn:
		return c.ColumnAfter.Name
	case DropColumn:
		return c.ColumnBefore.Name
	case ModifyColumn:
		return c.ColumnAfter.Name
	case AddIndex:
		return c.IndexAfter.Name
	case DropIndex:
		return c.IndexBefore.Name
	case AddForeignKey:
		return c.FKAfter.Name
	case DropForeignKey:
		return c.FKBefore.Name
	case AddCheck:
		return c.CheckAfter.Name
	case DropCheck:
		return c.CheckBefore.Name
	case AddPrimaryKey, DropPrimaryKey:
		return c.Table
	}
	return ""
}

// String renders the change for logs and reports.
func (c *Change) String() string {
	switch c.Kind {
	case AddTable, DropTable, AddPrimaryKey, DropPrimaryKey:
		return fmt.Sprintf("%s %s", c.Kind, c.Table)
	case ModifyColumn:
		return fmt.Sprintf("%s %s.%s (%s)", c.Kind, c.Table, c.Entity(), strings.Join(c.Deltas, ", "))
	default:
		return fmt.Sprintf("%s %s.%s", c.Kind, c.Table, c.Entity())
	}
}

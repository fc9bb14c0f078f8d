package diff

import (
	"testing"

	"github.com/tidemark/tidemark/internal/schema"
)

func strptr(s string) *string { return &s }

func usersTable() schema.Table {
	return schema.Table{
		Name: "users",
		Columns: []schema.Column{
			{Name: "id", Type: "int"},
			{Name: "email", Type: "text"},
		},
		PrimaryKey: &schema.PrimaryKey{Name: "users_pkey", Columns: []string{"id"}},
	}
}

func kinds(changes []Change) []Kind {
	out := make([]Kind, len(changes))
	for i := range changes {
		out[i] = changes[i].Kind
	}
	return out
}

func TestIdenticalSchemasProduceNoChanges(t *testing.T) {
	a := &schema.Schema{Tables: []schema.Table{usersTable()}}
	b := &schema.Schema{Tables: []schema.Table{usersTable()}}

	if got := Changes(a, b); len(got) != 0 {
		t.Errorf("expected empty change set, got %v", kinds(got))
	}
}

func TestAliasedTypesProduceNoChanges(t *testing.T) {
	a := &schema.Schema{Tables: []schema.Table{
		{Name: "t", Columns: []schema.Column{{Name: "n", Type: "integer"}}},
	}}
	b := &schema.Schema{Tables: []schema.Table{
		{Name: "t", Columns: []schema.Column{{Name: "n", Type: "int4"}}},
	}}

	if got := Changes(a, b); len(got) != 0 {
		t.Errorf("aliased types should be equal, got %v", kinds(got))
	}
}

func TestAddTableEmitsForeignKeysSeparately(t *testing.T) {
	current := &schema.Schema{Tables: []schema.Table{usersTable()}}
	desired := &schema.Schema{Tables: []schema.Table{
		usersTable(),
		{
			Name: "posts",
			Columns: []schema.Column{
				{Name: "id", Type: "int"},
				{Name: "user_id", Type: "int"},
			},
			ForeignKeys: []schema.ForeignKey{
				{Name: "posts_user_fkey", Columns: []string{"user_id"},
					ReferencedTable: "users", ReferencedColumns: []string{"id"}},
			},
		},
	}}

	changes := Changes(current, desired)
	if len(changes) != 2 {
		t.Fatalf("expected AddTable + AddForeignKey, got %v", kinds(changes))
	}
	if changes[0].Kind != AddTable || changes[1].Kind != AddForeignKey {
		t.Fatalf("unexpected kinds %v", kinds(changes))
	}
	if len(changes[0].TableAfter.ForeignKeys) != 0 {
		t.Error("AddTable snapshot should not carry foreign keys")
	}
	if changes[1].FKAfter.Name != "posts_user_fkey" {
		t.Errorf("foreign key snapshot: %+v", changes[1].FKAfter)
	}
}

func TestDropTableDropsForeignKeysFirst(t *testing.T) {
	current := &schema.Schema{Tables: []schema.Table{
		usersTable(),
		{
			Name:    "posts",
			Columns: []schema.Column{{Name: "id", Type: "int"}, {Name: "user_id", Type: "int"}},
			ForeignKeys: []schema.ForeignKey{
				{Name: "posts_user_fkey", Columns: []string{"user_id"},
					ReferencedTable: "users", ReferencedColumns: []string{"id"}},
			},
		},
	}}
	desired := &schema.Schema{Tables: []schema.Table{usersTable()}}

	changes := Changes(current, desired)
	if len(changes) != 2 {
		t.Fatalf("expected DropForeignKey + DropTable, got %v", kinds(changes))
	}
	if changes[0].Kind != DropForeignKey || changes[1].Kind != DropTable {
		t.Errorf("unexpected order %v", kinds(changes))
	}
}

func TestColumnChanges(t *testing.T) {
	current := &schema.Schema{Tables: []schema.Table{
		{Name: "t", Columns: []schema.Column{
			{Name: "keep", Type: "int"},
			{Name: "gone", Type: "text"},
			{Name: "age", Type: "int", Nullable: true},
		}},
	}}
	desired := &schema.Schema{Tables: []schema.Table{
		{Name: "t", Columns: []schema.Column{
			{Name: "keep", Type: "int"},
			{Name: "age", Type: "bigint", Nullable: false},
			{Name: "added", Type: "text", Nullable: true},
		}},
	}}

	changes := Changes(current, desired)
	byKind := make(map[Kind]*Change)
	for i := range changes {
		byKind[changes[i].Kind] = &changes[i]
	}

	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %v", kinds(changes))
	}
	if c := byKind[AddColumn]; c == nil || c.ColumnAfter.Name != "added" {
		t.Errorf("AddColumn: %+v", c)
	}
	if c := byKind[DropColumn]; c == nil || c.ColumnBefore.Name != "gone" {
		t.Errorf("DropColumn: %+v", c)
	}
	mc := byKind[ModifyColumn]
	if mc == nil || mc.ColumnAfter.Name != "age" {
		t.Fatalf("ModifyColumn: %+v", mc)
	}
	if len(mc.Deltas) != 2 || mc.Deltas[0] != "type" || mc.Deltas[1] != "nullable" {
		t.Errorf("deltas = %v, want [type nullable]", mc.Deltas)
	}
}

func TestRenamedAndRetypedColumnIsDropPlusAdd(t *testing.T) {
	current := &schema.Schema{Tables: []schema.Table{
		{Name: "t", Columns: []schema.Column{{Name: "old_name", Type: "int"}}},
	}}
	desired := &schema.Schema{Tables: []schema.Table{
		{Name: "t", Columns: []schema.Column{{Name: "new_name", Type: "bigint"}}},
	}}

	changes := Changes(current, desired)
	got := kinds(changes)
	if len(got) != 2 || got[0] != AddColumn || got[1] != DropColumn {
		t.Errorf("expected add+drop without rename inference, got %v", got)
	}
}

func TestDefaultDeltaUsesNormalizedComparison(t *testing.T) {
	current := &schema.Schema{Tables: []schema.Table{
		{Name: "t", Columns: []schema.Column{{Name: "s", Type: "text", Default: strptr("'new'::text")}}},
	}}
	desired := &schema.Schema{Tables: []schema.Table{
		{Name: "t", Columns: []schema.Column{{Name: "s", Type: "text", Default: strptr("'new'")}}},
	}}

	if got := Changes(current, desired); len(got) != 0 {
		t.Errorf("cast-suffixed default should not produce a change: %v", kinds(got))
	}
}

func TestPrimaryKeyChangeIsDropPlusAdd(t *testing.T) {
	current := &schema.Schema{Tables: []schema.Table{
		{Name: "t",
			Columns:    []schema.Column{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}},
			PrimaryKey: &schema.PrimaryKey{Name: "t_pkey", Columns: []string{"a"}}},
	}}
	desired := &schema.Schema{Tables: []schema.Table{
		{Name: "t",
			Columns:    []schema.Column{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}},
			PrimaryKey: &schema.PrimaryKey{Name: "t_pkey", Columns: []string{"a", "b"}}},
	}}

	got := kinds(Changes(current, desired))
	if len(got) != 2 || got[0] != DropPrimaryKey || got[1] != AddPrimaryKey {
		t.Errorf("expected drop+add primary key, got %v", got)
	}
}

func TestIndexModificationIsDropPlusAdd(t *testing.T) {
	current := &schema.Schema{Tables: []schema.Table{
		{Name: "t",
			Columns: []schema.Column{{Name: "a", Type: "int"}},
			Indexes: []schema.Index{{Name: "t_a_idx", Columns: []string{"a"}}}},
	}}
	desired := &schema.Schema{Tables: []schema.Table{
		{Name: "t",
			Columns: []schema.Column{{Name: "a", Type: "int"}},
			Indexes: []schema.Index{{Name: "t_a_idx", Columns: []string{"a"}, Unique: true}}},
	}}

	got := kinds(Changes(current, desired))
	if len(got) != 2 || got[0] != DropIndex || got[1] != AddIndex {
		t.Errorf("expected drop+add index, got %v", got)
	}
}

func TestSubChangesCarryTableSnapshots(t *testing.T) {
	current := &schema.Schema{Tables: []schema.Table{
		{Name: "t", Columns: []schema.Column{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}}},
	}}
	desired := &schema.Schema{Tables: []schema.Table{
		{Name: "t", Columns: []schema.Column{{Name: "a", Type: "int"}}},
	}}

	changes := Changes(current, desired)
	if len(changes) != 1 {
		t.Fatalf("expected one change, got %v", kinds(changes))
	}
	c := &changes[0]
	if c.TableBefore == nil || c.TableBefore.Column("b") == nil {
		t.Error("TableBefore snapshot missing dropped column")
	}
	if c.TableAfter == nil || c.TableAfter.Column("b") != nil {
		t.Error("TableAfter snapshot should not have dropped column")
	}
}

func TestChangeString(t *testing.T) {
	c := Change{Kind: ModifyColumn, Table: "t",
		ColumnAfter: &schema.Column{Name: "age"}, Deltas: []string{"type", "nullable"}}
	if got := c.String(); got != "modify_column t.age (type, nullable)" {
		t.Errorf("String() = %q", got)
	}
}

package schema

import (
	"fmt"
	"strings"
)

// Schema is a snapshot of one database namespace. Snapshots are treated as
// immutable: the differ and planner never modify an inspected or loaded
// schema, they produce new values instead.
type Schema struct {
	Name   string  `yaml:"name,omitempty"`
	Tables []Table `yaml:"tables"`
}

// Table represents a database table.
type Table struct {
	Name        string       `yaml:"name"`
	Columns     []Column     `yaml:"columns"`
	PrimaryKey  *PrimaryKey  `yaml:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty"`
	Indexes     []Index      `yaml:"indexes,omitempty"`
	Checks      []Check      `yaml:"checks,omitempty"`
}

// Column represents a table column. Type holds the canonical logical type
// used for comparison; RawType keeps the dialect-specific spelling as
// reported by the engine.
type Column struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	RawType  string  `yaml:"raw_type,omitempty"`
	Nullable bool    `yaml:"nullable"`
	Default  *string `yaml:"default,omitempty"`
}

// PrimaryKey represents a table's primary key.
type PrimaryKey struct {
	Name    string   `yaml:"name,omitempty"`
	Columns []string `yaml:"columns"`
}

// ForeignKey represents a foreign key relationship. OnDelete and OnUpdate
// hold the referential action ("NO ACTION" when the engine reports none).
type ForeignKey struct {
	Name              string   `yaml:"name"`
	Columns           []string `yaml:"columns"`
	ReferencedTable   string   `yaml:"referenced_table"`
	ReferencedColumns []string `yaml:"referenced_columns"`
	OnDelete          string   `yaml:"on_delete,omitempty"`
	OnUpdate          string   `yaml:"on_update,omitempty"`
}

// Index represents a database index.
type Index struct {
	Name      string   `yaml:"name"`
	Columns   []string `yaml:"columns"`
	Unique    bool     `yaml:"unique"`
	Predicate string   `yaml:"predicate,omitempty"`
}

// Check represents a check constraint.
type Check struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// Table returns the table with the given name, or nil.
func (s *Schema) Table(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// Index returns the index with the given name, or nil.
func (t *Table) Index(name string) *Index {
	for i := range t.Indexes {
		if t.Indexes[i].Name == name {
			return &t.Indexes[i]
		}
	}
	return nil
}

// ForeignKey returns the foreign key with the given name, or nil.
func (t *Table) ForeignKey(name string) *ForeignKey {
	for i := range t.ForeignKeys {
		if t.ForeignKeys[i].Name == name {
			return &t.ForeignKeys[i]
		}
	}
	return nil
}

// Check returns the check constraint with the given name, or nil.
func (t *Table) Check(name string) *Check {
	for i := range t.Checks {
		if t.Checks[i].Name == name {
			return &t.Checks[i]
		}
	}
	return nil
}

// Validate checks the model invariants: table names unique within the
// schema, column names unique within each table, and every foreign key
// resolving to an existing table and columns within this schema.
func (s *Schema) Validate() error {
	tables := make(map[string]bool, len(s.Tables))
	for i := range s.Tables {
		t := &s.Tables[i]
		if tables[t.Name] {
			return fmt.Errorf("duplicate table %q", t.Name)
		}
		tables[t.Name] = true

		cols := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			if cols[c.Name] {
				return fmt.Errorf("duplicate column %q in table %q", c.Name, t.Name)
			}
			cols[c.Name] = true
		}
	}

	for i := range s.Tables {
		t := &s.Tables[i]
		for _, fk := range t.ForeignKeys {
			ref := s.Table(fk.ReferencedTable)
			if ref == nil {
				return fmt.Errorf("foreign key %q on table %q references unknown table %q",
					fk.Name, t.Name, fk.ReferencedTable)
			}
			for _, rc := range fk.ReferencedColumns {
				if ref.Column(rc) == nil {
					return fmt.Errorf("foreign key %q on table %q references unknown column %q.%q",
						fk.Name, t.Name, fk.ReferencedTable, rc)
				}
			}
		}
	}

	return nil
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	out := &Schema{Name: s.Name, Tables: make([]Table, len(s.Tables))}
	for i := range s.Tables {
		out.Tables[i] = *s.Tables[i].Clone()
	}
	return out
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{Name: t.Name}
	out.Columns = append(out.Columns, t.Columns...)
	for i := range out.Columns {
		if d := out.Columns[i].Default; d != nil {
			v := *d
			out.Columns[i].Default = &v
		}
	}
	if t.PrimaryKey != nil {
		pk := PrimaryKey{Name: t.PrimaryKey.Name}
		pk.Columns = append(pk.Columns, t.PrimaryKey.Columns...)
		out.PrimaryKey = &pk
	}
	for _, fk := range t.ForeignKeys {
		f := fk
		f.Columns = append([]string(nil), fk.Columns...)
		f.ReferencedColumns = append([]string(nil), fk.ReferencedColumns...)
		out.ForeignKeys = append(out.ForeignKeys, f)
	}
	for _, ix := range t.Indexes {
		x := ix
		x.Columns = append([]string(nil), ix.Columns...)
		out.Indexes = append(out.Indexes, x)
	}
	out.Checks = append(out.Checks, t.Checks...)
	return out
}

// Equal reports whether two columns are structurally equal. Types are
// compared by their canonical form so that engine aliases (int4 vs integer)
// do not register as changes.
func (c *Column) Equal(other *Column) bool {
	if c.Name != other.Name || c.Nullable != other.Nullable {
		return false
	}
	if CanonicalType(c.Type) != CanonicalType(other.Type) {
		return false
	}
	return NormalizeDefault(c.Default) == NormalizeDefault(other.Default)
}

// Equal reports whether two indexes are structurally equal.
func (ix *Index) Equal(other *Index) bool {
	return ix.Name == other.Name &&
		ix.Unique == other.Unique &&
		ix.Predicate == other.Predicate &&
		equalStrings(ix.Columns, other.Columns)
}

// Equal reports whether two foreign keys are structurally equal.
func (fk *ForeignKey) Equal(other *ForeignKey) bool {
	return fk.Name == other.Name &&
		fk.ReferencedTable == other.ReferencedTable &&
		referentialAction(fk.OnDelete) == referentialAction(other.OnDelete) &&
		referentialAction(fk.OnUpdate) == referentialAction(other.OnUpdate) &&
		equalStrings(fk.Columns, other.Columns) &&
		equalStrings(fk.ReferencedColumns, other.ReferencedColumns)
}

// Equal reports whether two primary keys cover the same columns.
func (pk *PrimaryKey) Equal(other *PrimaryKey) bool {
	return equalStrings(pk.Columns, other.Columns)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// NormalizeDefault reduces a default expression to a comparable form,
// stripping engine decoration such as Postgres cast suffixes.
func NormalizeDefault(d *string) string {
	if d == nil {
		return ""
	}
	v := strings.TrimSpace(*d)
	// Postgres reports defaults with a cast suffix, e.g. 'x'::text.
	if i := strings.Index(v, "::"); i > 0 {
		v = v[:i]
	}
	v = strings.Trim(v, "()")
	return strings.ToLower(v)
}

func referentialAction(a string) string {
	a = strings.ToUpper(strings.TrimSpace(a))
	if a == "" || a == "RESTRICT" {
		return "NO ACTION"
	}
	return a
}

package diff

import (
	"github.com/tidemark/tidemark/internal/schema"
)

// Changes computes the ordered change set that turns current into desired.
// Entities are matched by name at every level (keyed comparison, never
// positional). A column that was renamed and retyped at once is reported
// as a drop plus an add; guessing renames risks silent data loss, so no
// rename inference is attempted. Neither input is modified.
func Changes(current, desired *schema.Schema) []Change {
	var changes []Change

	currentTables := make(map[string]*schema.Table, len(current.Tables))
	for i := range current.Tables {
		currentTables[current.Tables[i].Name] = &current.Tables[i]
	}
	desiredTables := make(map[string]*schema.Table, len(desired.Tables))
	for i := range desired.Tables {
		desiredTables[desired.Tables[i].Name] = &desired.Tables[i]
	}

	// New tables first. Their foreign keys are emitted as separate changes
	// so the planner can defer them when they form cycles.
	for i := range desired.Tables {
		t := &desired.Tables[i]
		if _, ok := currentTables[t.Name]; ok {
			continue
		}
		added := t.Clone()
		added.ForeignKeys = nil
		full := t.Clone()
		changes = append(changes, Change{Kind: AddTable, Table: t.Name, TableAfter: added})
		for j := range t.ForeignKeys {
			fk := t.ForeignKeys[j]
			changes = append(changes, Change{Kind: AddForeignKey, Table: t.Name, FKAfter: &fk, TableAfter: full})
		}
	}

	// Tables present on both sides: sub-changes grouped per table, column
	// changes before constraint and index changes.
	for i := range desired.Tables {
		dt := &desired.Tables[i]
		ct, ok := currentTables[dt.Name]
		if !ok {
			continue
		}
		changes = append(changes, tableChanges(ct, dt)...)
	}

	// Dropped tables last; their incoming foreign keys from surviving
	// tables are handled above as DropForeignKey changes, and the planner
	// orders those before the table drop.
	for i := range current.Tables {
		t := &current.Tables[i]
		if _, ok := desiredTables[t.Name]; ok {
			continue
		}
		dropped := t.Clone()
		for j := range t.ForeignKeys {
			fk := t.ForeignKeys[j]
			changes = append(changes, Change{Kind: DropForeignKey, Table: t.Name, FKBefore: &fk, TableBefore: dropped})
		}
		changes = append(changes, Change{Kind: DropTable, Table: t.Name, TableBefore: dropped})
	}

	return changes
}

func tableChanges(current, desired *schema.Table) []Change {
	var changes []Change
	name := desired.Name
	before, after := current.Clone(), desired.Clone()

	// Columns.
	for i := range desired.Columns {
		dc := desired.Columns[i]
		cc := current.Column(dc.Name)
		if cc == nil {
			changes = append(changes, Change{Kind: AddColumn, Table: name, ColumnAfter: &dc})
			continue
		}
		if !cc.Equal(&dc) {
			before := *cc
			changes = append(changes, Change{
				Kind:         ModifyColumn,
				Table:        name,
				ColumnBefore: &before,
				ColumnAfter:  &dc,
				Deltas:       columnDeltas(cc, &dc),
			})
		}
	}
	for i := range current.Columns {
		cc := current.Columns[i]
		if desired.Column(cc.Name) == nil {
			changes = append(changes, Change{Kind: DropColumn, Table: name, ColumnBefore: &cc})
		}
	}

	// Primary key. The key has no meaningful identity beyond its table, so
	// any difference is a drop plus an add.
	switch {
	case current.PrimaryKey == nil && desired.PrimaryKey != nil:
		changes = append(changes, Change{Kind: AddPrimaryKey, Table: name, PKAfter: desired.PrimaryKey})
	case current.PrimaryKey != nil && desired.PrimaryKey == nil:
		changes = append(changes, Change{Kind: DropPrimaryKey, Table: name, PKBefore: current.PrimaryKey})
	case current.PrimaryKey != nil && !current.PrimaryKey.Equal(desired.PrimaryKey):
		changes = append(changes,
			Change{Kind: DropPrimaryKey, Table: name, PKBefore: current.PrimaryKey},
			Change{Kind: AddPrimaryKey, Table: name, PKAfter: desired.PrimaryKey})
	}

	// Indexes. A modified index is a drop plus an add; engines have no
	// portable in-place index alter.
	for i := range desired.Indexes {
		di := desired.Indexes[i]
		ci := current.Index(di.Name)
		if ci == nil {
			changes = append(changes, Change{Kind: AddIndex, Table: name, IndexAfter: &di})
		} else if !ci.Equal(&di) {
			before := *ci
			changes = append(changes,
				Change{Kind: DropIndex, Table: name, IndexBefore: &before},
				Change{Kind: AddIndex, Table: name, IndexAfter: &di})
		}
	}
	for i := range current.Indexes {
		ci := current.Indexes[i]
		if desired.Index(ci.Name) == nil {
			changes = append(changes, Change{Kind: DropIndex, Table: name, IndexBefore: &ci})
		}
	}

	// Checks.
	for i := range desired.Checks {
		dc := desired.Checks[i]
		cc := current.Check(dc.Name)
		if cc == nil {
			changes = append(changes, Change{Kind: AddCheck, Table: name, CheckAfter: &dc})
		} else if cc.Expr != dc.Expr {
			before := *cc
			changes = append(changes,
				Change{Kind: DropCheck, Table: name, CheckBefore: &before},
				Change{Kind: AddCheck, Table: name, CheckAfter: &dc})
		}
	}
	for i := range current.Checks {
		cc := current.Checks[i]
		if desired.Check(cc.Name) == nil {
			changes = append(changes, Change{Kind: DropCheck, Table: name, CheckBefore: &cc})
		}
	}

	// Foreign keys.
	for i := range desired.ForeignKeys {
		dfk := desired.ForeignKeys[i]
		cfk := current.ForeignKey(dfk.Name)
		if cfk == nil {
			changes = append(changes, Change{Kind: AddForeignKey, Table: name, FKAfter: &dfk})
		} else if !cfk.Equal(&dfk) {
			before := *cfk
			changes = append(changes,
				Change{Kind: DropForeignKey, Table: name, FKBefore: &before},
				Change{Kind: AddForeignKey, Table: name, FKAfter: &dfk})
		}
	}
	for i := range current.ForeignKeys {
		cfk := current.ForeignKeys[i]
		if desired.ForeignKey(cfk.Name) == nil {
			changes = append(changes, Change{Kind: DropForeignKey, Table: name, FKBefore: &cfk})
		}
	}

	// Sub-changes carry full table snapshots so planners that rebuild
	// whole tables (sqlite) can reconstruct the target state.
	for i := range changes {
		changes[i].TableBefore = before
		changes[i].TableAfter = after
	}

	return changes
}

// columnDeltas decomposes a column modification into its differing
// attributes for reporting and risk analysis.
func columnDeltas(before, after *schema.Column) []string {
	var deltas []string
	if schema.CanonicalType(before.Type) != schema.CanonicalType(after.Type) {
		deltas = append(deltas, "type")
	}
	if before.Nullable != after.Nullable {
		deltas = append(deltas, "nullable")
	}
	if schema.NormalizeDefault(before.Default) != schema.NormalizeDefault(after.Default) {
		deltas = append(deltas, "default")
	}
	return deltas
}

package plan

import (
	"fmt"

	"github.com/tidemark/tidemark/internal/diff"
	"github.com/tidemark/tidemark/internal/schema"
)

// Statement is one executable SQL statement paired with the change that
// produced it. A single change may expand into several statements (table
// rebuilds, index creation for a new table).
type Statement struct {
	Change diff.Change
	SQL    string
}

// Plan is an ordered, immutable sequence of statements for one dialect.
// Statement order respects referential dependencies: a table exists
// before any foreign key referencing it, and a foreign key is dropped
// before either of its tables.
type Plan struct {
	Dialect    string
	Statements []Statement
}

// Empty reports whether the plan applies no statements.
func (p *Plan) Empty() bool { return len(p.Statements) == 0 }

// SQL returns the planned statements in order.
func (p *Plan) SQL() []string {
	out := make([]string, len(p.Statements))
	for i := range p.Statements {
		out[i] = p.Statements[i].SQL
	}
	return out
}

// New orders the change set topologically and renders it into
// dialect-specific statements. Constraint additions caught in a
// dependency cycle (mutually referencing new tables) are deferred to a
// second pass after all structural changes; a cycle that survives even
// that is an UnsupportedChangeError.
func New(changes []diff.Change, dialect string) (*Plan, error) {
	gen, err := newGenerator(dialect)
	if err != nil {
		return nil, &PlanningError{Dialect: dialect, Err: err}
	}

	g := buildGraph(changes)
	order, deferred, leftover := g.sort()

	if len(leftover) > 0 {
		c := &changes[leftover[0]]
		return nil, &UnsupportedChangeError{
			Dialect: dialect,
			Change:  c.String(),
			Reason:  "unbreakable dependency cycle",
		}
	}
	if len(deferred) > 0 {
		if _, ok := gen.(tableRebuilder); ok {
			c := &changes[deferred[0]]
			return nil, &UnsupportedChangeError{
				Dialect: dialect,
				Change:  c.String(),
				Reason:  "constraint creation cannot be deferred on this dialect",
			}
		}
		order = append(order, deferred...)
	}

	// A rebuild reconstructs the table's full desired shape, so once any
	// change forces one, every other column/index/constraint change on
	// that table is folded into it rather than rendered standalone.
	rb, canRebuild := gen.(tableRebuilder)
	rebuildTables := make(map[string]bool)
	if canRebuild {
		for i := range changes {
			if rb.needsRebuild(&changes[i]) {
				rebuildTables[changes[i].Table] = true
			}
		}
	}

	p := &Plan{Dialect: dialect}
	rebuilt := make(map[string]bool)
	for _, i := range order {
		c := changes[i]

		if canRebuild && rebuildTables[c.Table] && subsumedByRebuild(c.Kind) {
			if rebuilt[c.Table] {
				continue
			}
			if c.TableAfter == nil {
				// The table itself is being dropped; DROP TABLE takes its
				// constraints with it.
				continue
			}
			rebuilt[c.Table] = true
			for _, sql := range rb.rebuildTable(c.TableBefore, c.TableAfter) {
				p.Statements = append(p.Statements, Statement{Change: c, SQL: sql})
			}
			continue
		}

		stmts, err := gen.Render(&c)
		if err != nil {
			return nil, &PlanningError{Dialect: dialect, Change: c.String(), Err: err}
		}
		for _, sql := range stmts {
			p.Statements = append(p.Statements, Statement{Change: c, SQL: sql})
		}
	}

	return p, nil
}

// subsumedByRebuild reports whether a change kind is covered by a full
// table rebuild. Table creation and deletion stand on their own.
func subsumedByRebuild(k diff.Kind) bool {
	switch k {
	case diff.AddTable, diff.DropTable:
		return false
	}
	return true
}

// CreateScript renders the statements that materialize a schema from
// scratch, used by the dev database to stage a candidate schema.
func CreateScript(s *schema.Schema, dialect string) ([]string, error) {
	empty := &schema.Schema{Name: s.Name}
	p, err := New(diff.Changes(empty, s), dialect)
	if err != nil {
		return nil, fmt.Errorf("rendering create script: %w", err)
	}
	return p.SQL(), nil
}

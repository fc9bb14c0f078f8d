package lint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/tidemark/tidemark/internal/diff"
	"github.com/tidemark/tidemark/internal/plan"
)

// Category classifies the risk a statement carries.
type Category string

const (
	// Destructive statements can discard data: dropped tables, dropped
	// columns, truncation.
	Destructive Category = "destructive"

	// DataDependent statements succeed or fail depending on the data
	// already in the target, e.g. adding a NOT NULL column without a
	// default, or a unique index over existing duplicates.
	DataDependent Category = "data-dependent"
)

// Finding is one statement→category mapping in a report.
type Finding struct {
	Statement int      `yaml:"statement" json:"statement"` // index into the analyzed statement list
	SQL       string   `yaml:"sql" json:"sql"`
	Category  Category `yaml:"category" json:"category"`
	Reason    string   `yaml:"reason" json:"reason"`
}

// Report is the ordered risk report for a plan. It carries no policy:
// whether findings block execution is the caller's decision.
type Report struct {
	Findings []Finding `yaml:"findings,omitempty" json:"findings,omitempty"`
}

// HasCategory reports whether any finding carries the category.
func (r *Report) HasCategory(cat Category) bool {
	for _, f := range r.Findings {
		if f.Category == cat {
			return true
		}
	}
	return false
}

// Suppression exempts one statement from one category, or from all
// categories when Category is empty. The statement is matched by index
// or by the hex SHA-256 of its SQL; an entry with neither matches
// nothing. Statement is a pointer so an absent index cannot be mistaken
// for index zero.
type Suppression struct {
	Statement *int     `yaml:"statement,omitempty" json:"statement,omitempty"`
	Hash      string   `yaml:"hash,omitempty" json:"hash,omitempty"`
	Category  Category `yaml:"category,omitempty" json:"category,omitempty"`
}

// Hash returns the suppression hash for a statement.
func Hash(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}

func suppressed(sups []Suppression, index int, sql string, cat Category) bool {
	for _, s := range sups {
		if s.Category != "" && s.Category != cat {
			continue
		}
		switch {
		case s.Hash != "":
			if s.Hash == Hash(sql) {
				return true
			}
		case s.Statement != nil:
			if *s.Statement == index {
				return true
			}
		}
	}
	return false
}

// Analyze classifies every statement of a plan using the structured
// changes behind them. Suppressed findings are dropped from the report;
// the statements themselves stay in the plan untouched.
func Analyze(p *plan.Plan, sups []Suppression) *Report {
	r := &Report{}
	prev := ""
	for i, st := range p.Statements {
		// A rebuild group shares one change across several statements;
		// report it once, on the group's first statement.
		key := st.Change.String()
		if key == prev {
			continue
		}
		prev = key
		for _, f := range classifyChange(&st.Change) {
			if suppressed(sups, i, st.SQL, f.Category) {
				continue
			}
			f.Statement = i
			f.SQL = st.SQL
			r.Findings = append(r.Findings, f)
		}
	}
	return r
}

func classifyChange(c *diff.Change) []Finding {
	var out []Finding
	switch c.Kind {
	case diff.DropTable:
		out = append(out, Finding{Category: Destructive,
			Reason: fmt.Sprintf("dropping table %q discards its rows", c.Table)})
	case diff.DropColumn:
		out = append(out, Finding{Category: Destructive,
			Reason: fmt.Sprintf("dropping column %q.%q discards its values", c.Table, c.ColumnBefore.Name)})
	case diff.ModifyColumn:
		for _, d := range c.Deltas {
			switch d {
			case "type":
				out = append(out, Finding{Category: DataDependent,
					Reason: fmt.Sprintf("changing the type of %q.%q may not convert existing values", c.Table, c.ColumnAfter.Name)})
			case "nullable":
				if !c.ColumnAfter.Nullable {
					out = append(out, Finding{Category: DataDependent,
						Reason: fmt.Sprintf("%q.%q becomes NOT NULL; existing NULLs would fail", c.Table, c.ColumnAfter.Name)})
				}
			}
		}
	case diff.AddColumn:
		if !c.ColumnAfter.Nullable && c.ColumnAfter.Default == nil {
			out = append(out, Finding{Category: DataDependent,
				Reason: fmt.Sprintf("adding NOT NULL column %q.%q without a default fails on a populated table", c.Table, c.ColumnAfter.Name)})
		}
	case diff.AddIndex:
		if c.IndexAfter.Unique {
			out = append(out, Finding{Category: DataDependent,
				Reason: fmt.Sprintf("unique index %q fails if existing rows collide", c.IndexAfter.Name)})
		}
	case diff.AddPrimaryKey:
		out = append(out, Finding{Category: DataDependent,
			Reason: fmt.Sprintf("primary key on %q fails on duplicate or NULL key values", c.Table)})
	case diff.AddForeignKey:
		out = append(out, Finding{Category: DataDependent,
			Reason: fmt.Sprintf("foreign key %q fails if existing rows reference missing parents", c.FKAfter.Name)})
	case diff.AddCheck:
		out = append(out, Finding{Category: DataDependent,
			Reason: fmt.Sprintf("check %q fails if existing rows violate it", c.CheckAfter.Name)})
	}
	return out
}

var (
	dropTableRe   = regexp.MustCompile(`(?i)^\s*DROP\s+TABLE\b`)
	dropColumnRe  = regexp.MustCompile(`(?i)\bDROP\s+COLUMN\b`)
	truncateRe    = regexp.MustCompile(`(?i)^\s*TRUNCATE\b`)
	deleteRe      = regexp.MustCompile(`(?i)^\s*DELETE\s+FROM\b`)
	uniqueIndexRe = regexp.MustCompile(`(?i)^\s*CREATE\s+UNIQUE\s+INDEX\b`)
	notNullAddRe  = regexp.MustCompile(`(?i)\bADD\s+COLUMN\b.*\bNOT\s+NULL\b`)
	defaultRe     = regexp.MustCompile(`(?i)\bDEFAULT\b`)
	addFKRe       = regexp.MustCompile(`(?i)\bFOREIGN\s+KEY\b`)
	addCheckRe    = regexp.MustCompile(`(?i)\bADD\s+CONSTRAINT\b.*\bCHECK\b`)
)

// AnalyzeStatements classifies externally written statements (versioned
// migration files) by syntax alone, without structured change context.
func AnalyzeStatements(stmts []string, sups []Suppression) *Report {
	r := &Report{}
	for i, sql := range stmts {
		for _, f := range classifySQL(sql) {
			if suppressed(sups, i, sql, f.Category) {
				continue
			}
			f.Statement = i
			f.SQL = sql
			r.Findings = append(r.Findings, f)
		}
	}
	return r
}

func classifySQL(sql string) []Finding {
	var out []Finding
	switch {
	case dropTableRe.MatchString(sql):
		out = append(out, Finding{Category: Destructive, Reason: "drops a table"})
	case dropColumnRe.MatchString(sql):
		out = append(out, Finding{Category: Destructive, Reason: "drops a column"})
	case truncateRe.MatchString(sql):
		out = append(out, Finding{Category: Destructive, Reason: "truncates a table"})
	case deleteRe.MatchString(sql):
		out = append(out, Finding{Category: Destructive, Reason: "deletes rows"})
	}
	switch {
	case uniqueIndexRe.MatchString(sql):
		out = append(out, Finding{Category: DataDependent, Reason: "unique index fails if existing rows collide"})
	case notNullAddRe.MatchString(sql) && !defaultRe.MatchString(sql):
		out = append(out, Finding{Category: DataDependent, Reason: "NOT NULL column without default fails on a populated table"})
	case addFKRe.MatchString(sql):
		out = append(out, Finding{Category: DataDependent, Reason: "foreign key fails if existing rows reference missing parents"})
	case addCheckRe.MatchString(sql):
		out = append(out, Finding{Category: DataDependent, Reason: "check fails if existing rows violate it"})
	}
	return out
}

package devdb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tidemark/tidemark/internal/inspect"
	"github.com/tidemark/tidemark/internal/plan"
	"github.com/tidemark/tidemark/internal/schema"
)

// SQLiteMemory is the default dev database: an in-memory SQLite instance
// created per invocation and discarded with it. No external process, no
// persistent state.
type SQLiteMemory struct {
	mu sync.Mutex
}

// NewSQLiteMemory creates the in-memory dev database.
func NewSQLiteMemory() *SQLiteMemory {
	return &SQLiteMemory{}
}

func (d *SQLiteMemory) Normalize(ctx context.Context, candidate *schema.Schema) (*schema.Schema, error) {
	stmts, err := plan.CreateScript(candidate, "sqlite")
	if err != nil {
		return nil, &NormalizationError{Err: err}
	}
	return d.Materialize(ctx, stmts)
}

func (d *SQLiteMemory) Materialize(ctx context.Context, statements []string) (*schema.Schema, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory sqlite: %w", err)
	}
	defer db.Close()
	// One connection only: each sqlite :memory: connection is its own
	// database.
	db.SetMaxOpenConns(1)

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, &NormalizationError{Statement: stmt, Err: err}
		}
	}

	insp := inspect.SQLiteFromDB(db)
	out, err := insp.Inspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("re-inspecting dev database: %w", err)
	}
	return out, nil
}

// compile-time interface check
var _ DevDatabase = (*SQLiteMemory)(nil)

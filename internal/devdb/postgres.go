package devdb

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/inspect"
	"github.com/tidemark/tidemark/internal/plan"
	"github.com/tidemark/tidemark/internal/schema"
)

// PostgresURL normalizes through a user-supplied scratch Postgres
// database. Each invocation creates a transient pg schema, materializes
// the candidate inside it, re-inspects, and drops the schema on every
// exit path.
type PostgresURL struct {
	url string
	mu  sync.Mutex
}

// NewPostgresURL creates a Postgres-backed dev database.
func NewPostgresURL(url string) *PostgresURL {
	return &PostgresURL{url: url}
}

func (d *PostgresURL) Normalize(ctx context.Context, candidate *schema.Schema) (*schema.Schema, error) {
	stmts, err := plan.CreateScript(candidate, "postgres")
	if err != nil {
		return nil, &NormalizationError{Err: err}
	}
	return d.Materialize(ctx, stmts)
}

func (d *PostgresURL) Materialize(ctx context.Context, statements []string) (*schema.Schema, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := sql.Open("pgx", d.url)
	if err != nil {
		return nil, &inspect.ConnectionError{Dialect: "postgres", Target: "dev", Err: err}
	}
	defer db.Close()
	// One connection only: SET search_path is per session and must hold
	// for every following statement.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, &inspect.ConnectionError{Dialect: "postgres", Target: "dev", Err: err}
	}

	scratch := fmt.Sprintf("tidemark_dev_%08x", rand.Uint32())
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %q", scratch)); err != nil {
		return nil, fmt.Errorf("creating scratch schema: %w", err)
	}
	defer db.ExecContext(context.WithoutCancel(ctx), fmt.Sprintf("DROP SCHEMA %q CASCADE", scratch))

	if _, err := db.ExecContext(ctx, fmt.Sprintf("SET search_path TO %q", scratch)); err != nil {
		return nil, fmt.Errorf("setting search path: %w", err)
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, &NormalizationError{Statement: stmt, Err: err}
		}
	}

	insp := inspect.NewPostgres(&config.Target{
		Name:    "dev",
		Dialect: "postgres",
		URL:     d.url,
		Schema:  scratch,
	})
	if err := insp.Connect(ctx); err != nil {
		return nil, err
	}
	defer insp.Close()

	out, err := insp.Inspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("re-inspecting dev database: %w", err)
	}
	out.Name = ""
	return out, nil
}

// compile-time interface check
var _ DevDatabase = (*PostgresURL)(nil)

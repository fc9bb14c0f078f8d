package devdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tidemark/tidemark/internal/schema"
)

const defaultImage = "postgres:16-alpine"

// Container normalizes through a disposable Postgres container, started
// and terminated per invocation. Heavier than the in-memory dev database
// but exercises real Postgres canonicalization.
type Container struct {
	image string
	mu    sync.Mutex
}

// NewContainer creates a container-backed dev database. image may be
// empty for the default postgres image.
func NewContainer(image string) *Container {
	if image == "" {
		image = defaultImage
	}
	return &Container{image: image}
}

func (d *Container) Normalize(ctx context.Context, candidate *schema.Schema) (*schema.Schema, error) {
	return d.run(ctx, func(inner *PostgresURL) (*schema.Schema, error) {
		return inner.Normalize(ctx, candidate)
	})
}

func (d *Container) Materialize(ctx context.Context, statements []string) (*schema.Schema, error) {
	return d.run(ctx, func(inner *PostgresURL) (*schema.Schema, error) {
		return inner.Materialize(ctx, statements)
	})
}

// run starts the container, delegates to the Postgres dev database over
// its connection string, and terminates the container on every exit path.
func (d *Container) run(ctx context.Context, fn func(*PostgresURL) (*schema.Schema, error)) (*schema.Schema, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctr, err := postgres.Run(ctx,
		d.image,
		postgres.WithDatabase("tidemark_dev"),
		postgres.WithUsername("tidemark"),
		postgres.WithPassword("tidemark"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute)),
	)
	if err != nil {
		return nil, fmt.Errorf("starting dev database container: %w", err)
	}
	defer ctr.Terminate(context.WithoutCancel(ctx))

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("resolving container connection string: %w", err)
	}

	return fn(NewPostgresURL(connStr))
}

// compile-time interface check
var _ DevDatabase = (*Container)(nil)

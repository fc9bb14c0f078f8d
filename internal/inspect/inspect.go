package inspect

import (
	"context"
	"fmt"

	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/schema"
)

// Inspector reads the live schema of a target database. Inspection is
// strictly read-only: no statement issued by an Inspector modifies the
// inspected database.
type Inspector interface {
	// Connect establishes a connection to the target.
	Connect(ctx context.Context) error

	// Inspect extracts the current schema from the target.
	Inspect(ctx context.Context) (*schema.Schema, error)

	// Close closes the connection.
	Close() error
}

// New creates an Inspector for the given target, selected by dialect.
func New(t *config.Target) (Inspector, error) {
	switch t.Dialect {
	case "postgres":
		return NewPostgres(t), nil
	case "mysql":
		return NewMySQL(t), nil
	case "sqlite":
		return NewSQLite(t), nil
	case "oracle":
		return NewOracle(t), nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", t.Dialect)
	}
}

package devdb

import (
	"context"
	"fmt"

	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/schema"
)

// DevDatabase normalizes candidate schemas by materializing them on a
// disposable database instance and re-inspecting the result, so that
// engine canonicalization (type aliases, default spellings) cancels out
// before diffing. The instance is exclusive to one normalization cycle
// at a time; implementations serialize concurrent callers.
type DevDatabase interface {
	// Normalize materializes the candidate and returns it as re-inspected.
	Normalize(ctx context.Context, candidate *schema.Schema) (*schema.Schema, error)

	// Materialize applies raw DDL statements to a fresh instance and
	// returns the resulting schema. Used to load desired schemas written
	// as SQL files.
	Materialize(ctx context.Context, statements []string) (*schema.Schema, error)
}

// New selects a dev database implementation by kind.
func New(cfg *config.DevConfig) (DevDatabase, error) {
	switch cfg.Kind {
	case "sqlite", "":
		return NewSQLiteMemory(), nil
	case "postgres":
		if cfg.URL == "" {
			return nil, fmt.Errorf("dev_database.url required for kind postgres")
		}
		return NewPostgresURL(cfg.URL), nil
	case "container":
		return NewContainer(cfg.URL), nil
	default:
		return nil, fmt.Errorf("unsupported dev database kind %q", cfg.Kind)
	}
}

// NormalizationError indicates the candidate schema itself cannot be
// materialized: a user-facing, non-retryable error.
type NormalizationError struct {
	Statement string
	Err       error
}

func (e *NormalizationError) Error() string {
	if e.Statement != "" {
		return fmt.Sprintf("normalizing schema at %q: %v", e.Statement, e.Err)
	}
	return fmt.Sprintf("normalizing schema: %v", e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

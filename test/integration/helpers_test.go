//go:build integration

package integration

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/plan"
)

func planOfStatements(dialect string, stmts ...string) *plan.Plan {
	p := &plan.Plan{Dialect: dialect}
	for _, sql := range stmts {
		p.Statements = append(p.Statements, plan.Statement{SQL: sql})
	}
	return p
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func pgTarget(t *testing.T, name string) config.Target {
	t.Helper()
	var port int
	fmt.Sscanf(envOrDefault("TIDEMARK_TEST_PG_PORT", "5432"), "%d", &port)
	return config.Target{
		Name:     name,
		Dialect:  "postgres",
		Host:     envOrDefault("TIDEMARK_TEST_PG_HOST", "localhost"),
		Port:     port,
		Database: envOrDefault("TIDEMARK_TEST_PG_DATABASE", "tidemark_test"),
		Schema:   "public",
		Username: envOrDefault("TIDEMARK_TEST_PG_USER", "postgres"),
		Password: envOrDefault("TIDEMARK_TEST_PG_PASSWORD", "postgres"),
	}
}

func skipIfNoPostgres(t *testing.T) {
	t.Helper()
	host := envOrDefault("TIDEMARK_TEST_PG_HOST", "localhost")
	port := envOrDefault("TIDEMARK_TEST_PG_PORT", "5432")
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), 2*time.Second)
	if err != nil {
		t.Skipf("postgres not reachable at %s:%s: %v", host, port, err)
	}
	conn.Close()
}

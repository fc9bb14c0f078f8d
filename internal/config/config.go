package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.tidemark/tidemark.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version     int       `yaml:"version"`
	Schema      Desired   `yaml:"schema"`
	DevDatabase DevConfig `yaml:"dev_database"`
	Targets     []Target  `yaml:"targets"`
	Run         RunConfig `yaml:"run,omitempty"`
	Revisions   RevConfig `yaml:"revisions,omitempty"`
	Logging     LogConfig `yaml:"logging,omitempty"`
}

// Desired points at the desired-state schema definition.
type Desired struct {
	File   string `yaml:"file"`
	Format string `yaml:"format,omitempty"` // yaml or sql, inferred from extension when empty
}

// DevConfig defines the disposable dev database used for normalization.
type DevConfig struct {
	Kind string `yaml:"kind"` // sqlite, postgres, or container
	URL  string `yaml:"url,omitempty"`
}

// Target defines one tenant database. Targets are applied in list order;
// the first Run.Canaries entries act as canaries.
type Target struct {
	Name     string `yaml:"name"`
	Dialect  string `yaml:"dialect"` // postgres, mysql, sqlite, oracle
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"`
	Schema   string `yaml:"schema,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	SSL      bool   `yaml:"ssl,omitempty"`
	URL      string `yaml:"url,omitempty"` // overrides the discrete fields
}

// RunConfig controls the multi-tenant run policy.
type RunConfig struct {
	Canaries    int    `yaml:"canaries,omitempty"`    // serial head of the target list
	Concurrency int    `yaml:"concurrency,omitempty"` // workers for the post-canary tail; 0 or 1 = fully serial
	LintGate    string `yaml:"lint_gate,omitempty"`   // "", "destructive", or "all"
	DryRun      bool   `yaml:"dry_run,omitempty"`
}

// RevConfig locates versioned migration files.
type RevConfig struct {
	Directory string `yaml:"directory,omitempty"`
	Table     string `yaml:"table,omitempty"` // ledger table, default tidemark_revision
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.tidemark/logs/
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.DevDatabase.Kind == "" {
		c.DevDatabase.Kind = "sqlite"
	}
	if c.Run.Concurrency < 1 {
		c.Run.Concurrency = 1
	}
	if c.Revisions.Table == "" {
		c.Revisions.Table = "tidemark_revision"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.tidemark/logs/")
	}
	if c.Schema.Format == "" {
		switch strings.ToLower(filepath.Ext(c.Schema.File)) {
		case ".sql":
			c.Schema.Format = "sql"
		default:
			c.Schema.Format = "yaml"
		}
	}
}

func (c *Config) validate() error {
	names := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("target without a name")
		}
		if names[t.Name] {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		names[t.Name] = true
		switch t.Dialect {
		case "postgres", "mysql", "sqlite", "oracle":
		default:
			return fmt.Errorf("target %q: unsupported dialect %q", t.Name, t.Dialect)
		}
	}
	if c.Run.Canaries > len(c.Targets) {
		return fmt.Errorf("run.canaries (%d) exceeds target count (%d)", c.Run.Canaries, len(c.Targets))
	}
	return nil
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	for i := range c.Targets {
		t := &c.Targets[i]
		if t.Password, err = ResolveValue(t.Password); err != nil {
			return fmt.Errorf("target %s password: %w", t.Name, err)
		}
		if t.URL, err = ResolveValue(t.URL); err != nil {
			return fmt.Errorf("target %s url: %w", t.Name, err)
		}
	}
	if c.DevDatabase.URL, err = ResolveValue(c.DevDatabase.URL); err != nil {
		return fmt.Errorf("dev database url: %w", err)
	}
	return nil
}

// ResolveValue resolves secret references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// DSN returns the connection string for the target in the form its
// database/sql driver expects.
func (t *Target) DSN() string {
	if t.URL != "" && t.Dialect != "mysql" {
		return t.URL
	}
	switch t.Dialect {
	case "postgres":
		ssl := "disable"
		if t.SSL {
			ssl = "require"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			url.QueryEscape(t.Username), url.QueryEscape(t.Password),
			t.Host, t.Port, t.Database, ssl)
	case "mysql":
		if t.URL != "" {
			// go-sql-driver uses its own DSN form, not a URL.
			return strings.TrimPrefix(t.URL, "mysql://")
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			t.Username, t.Password, t.Host, t.Port, t.Database)
	case "sqlite":
		return t.Database
	case "oracle":
		return fmt.Sprintf("oracle://%s:%s@%s:%d/%s",
			t.Username, t.Password, t.Host, t.Port, t.Database)
	default:
		return t.URL
	}
}

// DriverName returns the database/sql driver registered for the dialect.
func (t *Target) DriverName() string {
	switch t.Dialect {
	case "postgres":
		return "pgx"
	case "mysql":
		return "mysql"
	case "sqlite":
		return "sqlite3"
	case "oracle":
		return "oracle"
	default:
		return t.Dialect
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

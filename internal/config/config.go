// Package config loads the temporaltables YAML configuration and builds the
// process logger from it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dragos-durlut/TemporalTables/internal/materialize"
	"github.com/dragos-durlut/TemporalTables/internal/querysql"
	"github.com/dragos-durlut/TemporalTables/internal/store"
)

// DefaultPath is read when no --config flag is given. A missing default
// file is not an error.
const DefaultPath = "temporaltables.yaml"

// Config is the root of the configuration file.
type Config struct {
	Database Database `yaml:"database"`

	// Dialect selects the SQL the compiler emits. Empty means the dialect
	// of the database driver.
	Dialect string `yaml:"dialect,omitempty"`

	// Model is the path of a CUE mapping model. Empty selects the embedded
	// demo model.
	Model string `yaml:"model,omitempty"`

	Materializer Materializer `yaml:"materializer"`
	Log          Log          `yaml:"log"`
}

// Database locates the store.
type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Materializer carries the construction-plan builder options.
type Materializer struct {
	// AlwaysRebuild disables the plan cache.
	AlwaysRebuild bool `yaml:"always_rebuild"`

	// StrictPeriodProperties fails plans of temporal types whose period
	// shadow properties are missing.
	StrictPeriodProperties bool `yaml:"strict_period_properties"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default returns the configuration used when no file is present: an
// in-memory SQLite database and text logging at info level.
func Default() *Config {
	return &Config{
		Database: Database{Driver: store.DriverSQLite, DSN: ":memory:"},
		Log:      Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. Unknown fields are rejected. When path
// is DefaultPath and the file does not exist, the defaults are returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if path == DefaultPath && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverPgx:
	default:
		return fmt.Errorf("database.driver %q: must be %s or %s", c.Database.Driver, store.DriverSQLite, store.DriverPgx)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Dialect {
	case "", querysql.DialectSQLite, querysql.DialectPostgres, querysql.DialectSQLServer:
	default:
		return fmt.Errorf("dialect %q: must be %s, %s or %s", c.Dialect,
			querysql.DialectSQLite, querysql.DialectPostgres, querysql.DialectSQLServer)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: must be text or json", c.Log.Format)
	}
	return nil
}

// SQLDialect returns the configured dialect, falling back to the driver's.
func (c *Config) SQLDialect() string {
	if c.Dialect != "" {
		return c.Dialect
	}
	if c.Database.Driver == store.DriverPgx {
		return querysql.DialectPostgres
	}
	return querysql.DialectSQLite
}

// BuilderOptions returns the materializer options the configuration selects.
func (c *Config) BuilderOptions(logger *slog.Logger) []materialize.Option {
	return []materialize.Option{
		materialize.WithLogger(logger),
		materialize.WithAlwaysRebuild(c.Materializer.AlwaysRebuild),
		materialize.WithStrictPeriodProperties(c.Materializer.StrictPeriodProperties),
	}
}

// Logger builds a logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level %q: must be debug, info, warn or error", s)
}

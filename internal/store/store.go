package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver

	"github.com/dragos-durlut/TemporalTables/internal/materialize"
	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/querysql"
)

// Supported driver names.
const (
	DriverSQLite = "sqlite3"
	DriverPgx    = "pgx"
)

// Store provides versioned storage for the entity types of a model.
type Store struct {
	db      *sqlx.DB
	model   *model.Model
	dialect string
	builder goqu.DialectWrapper
	clock   func() time.Time
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the source of write timestamps. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLogger sets the logger statements are written to at Debug.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open connects to the database and prepares the connection.
//
// The schema is not created; call EnsureSchema.
func Open(driver, dsn string, m *model.Model, opts ...Option) (*Store, error) {
	var dialect string
	switch driver {
	case DriverSQLite:
		dialect = querysql.DialectSQLite
	case DriverPgx:
		dialect = querysql.DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if m == nil {
		return nil, fmt.Errorf("open store: nil model")
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite only supports one writer at a time, and an in-memory
		// database exists only on the connection that created it.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db, dsn); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	s := &Store{
		db:      db,
		model:   m,
		dialect: dialect,
		builder: goqu.Dialect(dialect),
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying handle for direct queries.
func (s *Store) DB() *sqlx.DB { return s.db }

// Model returns the model the store maps.
func (s *Store) Model() *model.Model { return s.model }

// Dialect returns the querysql dialect matching the driver.
func (s *Store) Dialect() string { return s.dialect }

// Query runs a compiled statement and returns each row as a value buffer
// whose positions follow the statement's column order.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]materialize.ValueBuffer, error) {
	s.logger.Debug("query", "sql", query, "params", len(args))
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []materialize.ValueBuffer
	for rows.Next() {
		row, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, materialize.ValueBuffer(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func applyPragmas(db *sqlx.DB, dsn string) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	if !isMemoryDSN(dsn) {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

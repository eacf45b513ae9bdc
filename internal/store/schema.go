package store

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/querysql"
)

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// column is one column of a generated table.
type column struct {
	name string
	sql  string
	key  bool
}

// EnsureSchema creates every table of the model that does not exist yet,
// and the history table of every temporal table. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.SchemaStatements() {
		s.logger.Debug("schema", "sql", stmt)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}
	return nil
}

// SchemaStatements returns the DDL EnsureSchema executes.
func (s *Store) SchemaStatements() []string {
	var stmts []string
	if s.dialect == querysql.DialectPostgres {
		schemas := map[string]bool{}
		for _, t := range s.model.Tables() {
			if t.Schema != "" && !schemas[t.Schema] {
				schemas[t.Schema] = true
				stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+quote(t.Schema))
			}
		}
	}

	for _, t := range s.model.Tables() {
		cols := s.tableColumns(t)
		stmts = append(stmts, createTable(s.qualified(t.Schema, t.Name), cols, true))
		if t.Temporal == nil {
			continue
		}
		stmts = append(stmts, createTable(s.qualified(t.Schema, t.Temporal.HistoryTable), cols, false))

		idx := []string{}
		for _, c := range cols {
			if c.key {
				idx = append(idx, quote(c.name))
			}
		}
		idx = append(idx, quote(t.Temporal.PeriodStartColumn))
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quote("ix_"+t.Temporal.HistoryTable+"_period"),
			s.qualified(t.Schema, t.Temporal.HistoryTable),
			strings.Join(idx, ", ")))
	}
	return stmts
}

// tableColumns merges the columns of every entity type mapped to t. Types
// sharing a table through inheritance or ownership contribute their own
// columns; a column declared twice keeps its first definition. Temporal
// tables always carry their period columns, mapped or not.
func (s *Store) tableColumns(t *model.Table) []column {
	var cols []column
	seen := map[string]bool{}
	for _, et := range s.model.EntityTypesInTable(t) {
		for _, p := range et.AllProperties() {
			name := strings.ToLower(p.Column)
			if seen[name] {
				continue
			}
			seen[name] = true
			cols = append(cols, column{
				name: p.Column,
				sql:  s.columnType(p),
				key:  p.Key && !et.IsOwned() && et.BaseType() == nil,
			})
		}
	}
	if tt := t.Temporal; tt != nil {
		for _, name := range []string{tt.PeriodStartColumn, tt.PeriodEndColumn} {
			if !seen[strings.ToLower(name)] {
				seen[strings.ToLower(name)] = true
				cols = append(cols, column{name: name, sql: "TEXT"})
			}
		}
	}
	return cols
}

func (s *Store) columnType(p *model.Property) string {
	if p.Converter != nil {
		return "TEXT"
	}
	t := p.Type
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	pg := s.dialect == querysql.DialectPostgres

	switch {
	case t == timeType, t == uuidType:
		return "TEXT"
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		if pg {
			return "BYTEA"
		}
		return "BLOB"
	}

	switch t.Kind() {
	case reflect.Bool:
		return "BOOLEAN"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if pg {
			return "BIGINT"
		}
		return "INTEGER"
	case reflect.Float32, reflect.Float64:
		if pg {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	}
	return "TEXT"
}

func createTable(table string, cols []column, primaryKey bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (", table)

	var keys []string
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", quote(c.name), c.sql)
		if c.key {
			b.WriteString(" NOT NULL")
			keys = append(keys, quote(c.name))
		}
	}
	if primaryKey && len(keys) > 0 {
		fmt.Fprintf(&b, ", PRIMARY KEY (%s)", strings.Join(keys, ", "))
	}
	b.WriteString(")")
	return b.String()
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// qualified renders a table name. SQLite has no schemas; there the schema
// is dropped.
func (s *Store) qualified(schema, name string) string {
	if schema == "" || s.dialect == querysql.DialectSQLite {
		return quote(name)
	}
	return quote(schema) + "." + quote(name)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/querysql"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

// ErrNotFound is returned when an update or delete targets a row that has
// no current version.
var ErrNotFound = errors.New("entity not found")

// ChangeKind is the kind of a write.
type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeUpdate
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// Change is one write. Entity must be a pointer to a struct bound to a
// non-owned entity type of the model.
type Change struct {
	Kind   ChangeKind
	Entity any
}

// Insert writes new rows. Zero uuid keys are generated.
func (s *Store) Insert(ctx context.Context, entities ...any) (time.Time, error) {
	return s.Save(ctx, changes(ChangeInsert, entities)...)
}

// Update writes new versions of existing rows.
func (s *Store) Update(ctx context.Context, entities ...any) (time.Time, error) {
	return s.Save(ctx, changes(ChangeUpdate, entities)...)
}

// Delete ends the current version of existing rows.
func (s *Store) Delete(ctx context.Context, entities ...any) (time.Time, error) {
	return s.Save(ctx, changes(ChangeDelete, entities)...)
}

func changes(kind ChangeKind, entities []any) []Change {
	out := make([]Change, len(entities))
	for i, e := range entities {
		out[i] = Change{Kind: kind, Entity: e}
	}
	return out
}

// Save applies changes in order in one transaction, stamping every row with
// the same instant, and returns that instant. On success the validity
// period of entities implementing temporal.Entity is updated to match the
// stored version.
func (s *Store) Save(ctx context.Context, changes ...Change) (time.Time, error) {
	now := s.clock().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("save: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	rows := make([]*row, len(changes))
	for i, c := range changes {
		r, err := s.rowOf(c.Entity, c.Kind == ChangeInsert)
		if err != nil {
			return time.Time{}, fmt.Errorf("save %s: %w", c.Kind, err)
		}
		rows[i] = r

		switch c.Kind {
		case ChangeInsert:
			err = s.insert(ctx, tx, r, now)
		case ChangeUpdate:
			err = s.update(ctx, tx, r, now)
		case ChangeDelete:
			err = s.delete(ctx, tx, r, now)
		default:
			err = fmt.Errorf("unknown change kind %d", c.Kind)
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("save %s %s: %w", c.Kind, r.et.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("save: commit: %w", err)
	}

	for i, c := range changes {
		te, ok := c.Entity.(temporal.Entity)
		if !ok || !rows[i].et.IsTemporal() {
			continue
		}
		if c.Kind == ChangeDelete {
			te.SetValidTo(now)
		} else {
			te.SetValidFrom(now)
			te.SetValidTo(temporal.OpenEnd)
		}
	}
	return now, nil
}

func (s *Store) insert(ctx context.Context, tx *sqlx.Tx, r *row, now time.Time) error {
	rec := r.record()
	if tt := r.et.Table.Temporal; tt != nil {
		rec[tt.PeriodStartColumn] = temporal.FormatInstant(now)
		rec[tt.PeriodEndColumn] = temporal.FormatInstant(temporal.OpenEnd)
	}
	return s.exec(ctx, tx, s.builder.Insert(s.ident(r.et.Table.Schema, r.et.Table.Name)).Rows(rec))
}

func (s *Store) update(ctx context.Context, tx *sqlx.Tx, r *row, now time.Time) error {
	if err := s.archive(ctx, tx, r, now); err != nil {
		return err
	}

	rec := r.record()
	for col := range r.key {
		delete(rec, col)
	}
	if tt := r.et.Table.Temporal; tt != nil {
		rec[tt.PeriodStartColumn] = temporal.FormatInstant(now)
		rec[tt.PeriodEndColumn] = temporal.FormatInstant(temporal.OpenEnd)
	}
	if len(rec) == 0 {
		return nil
	}
	return s.exec(ctx, tx, s.builder.Update(s.ident(r.et.Table.Schema, r.et.Table.Name)).Set(rec).Where(r.key))
}

func (s *Store) delete(ctx context.Context, tx *sqlx.Tx, r *row, now time.Time) error {
	if err := s.archive(ctx, tx, r, now); err != nil {
		return err
	}
	return s.exec(ctx, tx, s.builder.Delete(s.ident(r.et.Table.Schema, r.et.Table.Name)).Where(r.key))
}

// archive copies the current version of r's row into the history table,
// closed at now. A version that started at now is dropped: it was never
// observable. Fails with ErrNotFound when there is no current version.
func (s *Store) archive(ctx context.Context, tx *sqlx.Tx, r *row, now time.Time) error {
	t := r.et.Table
	cols := s.tableColumns(t)
	sel := make([]any, len(cols))
	for i, c := range cols {
		sel[i] = goqu.C(c.name)
	}

	query, args, err := s.builder.From(s.ident(t.Schema, t.Name)).Select(sel...).Where(r.key).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("render select: %w", err)
	}
	s.logger.Debug("read current version", "sql", query)

	var current []any
	rows, err := tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("read current version: %w", err)
	}
	if rows.Next() {
		current, err = rows.SliceScan()
	}
	rows.Close()
	if err != nil {
		return fmt.Errorf("scan current version: %w", err)
	}
	if current == nil {
		return ErrNotFound
	}

	tt := t.Temporal
	if tt == nil {
		return nil
	}

	stamp := temporal.FormatInstant(now)
	rec := goqu.Record{}
	for i, c := range cols {
		rec[c.name] = current[i]
	}
	if start, ok := rec[tt.PeriodStartColumn]; ok && providerText(start) >= stamp {
		return nil
	}
	rec[tt.PeriodEndColumn] = stamp
	return s.exec(ctx, tx, s.builder.Insert(s.ident(t.Schema, tt.HistoryTable)).Rows(rec))
}

type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

func (s *Store) exec(ctx context.Context, tx *sqlx.Tx, ds any) error {
	var b sqlBuilder
	switch d := ds.(type) {
	case *goqu.InsertDataset:
		b = d.Prepared(true)
	case *goqu.UpdateDataset:
		b = d.Prepared(true)
	case *goqu.DeleteDataset:
		b = d.Prepared(true)
	default:
		return fmt.Errorf("unsupported statement %T", ds)
	}

	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("render statement: %w", err)
	}
	s.logger.Debug("exec", "sql", query, "params", len(args))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}

// ident is the goqu counterpart of qualified.
func (s *Store) ident(schema, name string) exp.IdentifierExpression {
	if schema == "" || s.dialect == querysql.DialectSQLite {
		return goqu.T(name)
	}
	return goqu.S(schema).Table(name)
}

func providerText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return temporal.FormatInstant(x)
	}
	return ""
}

// row holds the encoded column values of one entity.
type row struct {
	et     *model.EntityType
	values map[string]any
	key    goqu.Ex
}

func (r *row) record() goqu.Record {
	rec := goqu.Record{}
	for k, v := range r.values {
		rec[k] = v
	}
	return rec
}

func (s *Store) rowOf(entity any, generateKeys bool) (*row, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity must be a non-nil pointer to a struct, got %T", entity)
	}
	et, ok := s.model.FindByGoType(v.Type())
	if !ok {
		return nil, fmt.Errorf("no entity type bound to %s", v.Type())
	}
	if et.IsOwned() {
		return nil, fmt.Errorf("owned entity type %s is written with its owner", et.Name)
	}
	v = v.Elem()

	r := &row{et: et, values: map[string]any{}, key: goqu.Ex{}}
	tt := et.Table.Temporal

	for _, p := range et.Properties {
		if p.Shadow {
			if tt != nil && (p.Column == tt.PeriodStartColumn || p.Column == tt.PeriodEndColumn) {
				continue
			}
			r.values[p.Column] = nil
			continue
		}
		f, err := v.FieldByIndexErr(p.FieldIndex())
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", et.Name, p.Name, err)
		}
		if p.Key && generateKeys && f.Type() == uuidType && f.IsZero() && f.CanSet() {
			f.Set(reflect.ValueOf(uuid.New()))
		}
		enc, err := encode(p, f)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", et.Name, p.Name, err)
		}
		r.values[p.Column] = enc
		if p.Key {
			r.key[p.Column] = enc
		}
	}

	for _, cp := range et.ComplexProperties {
		cv, err := v.FieldByIndexErr(cp.FieldIndex())
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", et.Name, cp.Name, err)
		}
		if cv.Kind() == reflect.Pointer {
			if cv.IsNil() {
				for _, p := range cp.Properties {
					r.values[p.Column] = nil
				}
				continue
			}
			cv = cv.Elem()
		}
		for _, p := range cp.Properties {
			enc, err := encode(p, cv.FieldByIndex(p.FieldIndex()))
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", et.Name, p.Path(), err)
			}
			r.values[p.Column] = enc
		}
	}

	if len(r.key) == 0 {
		return nil, fmt.Errorf("entity type %s has no key", et.Name)
	}
	return r, nil
}

// encode converts a field value to the provider value written to storage.
func encode(p *model.Property, f reflect.Value) (any, error) {
	if f.Kind() == reflect.Pointer || f.Kind() == reflect.Interface {
		if f.IsNil() {
			return nil, nil
		}
		if p.Converter == nil {
			f = f.Elem()
		}
	}
	v := f.Interface()

	if p.Converter != nil {
		if (f.Kind() == reflect.Slice || f.Kind() == reflect.Map) && f.IsNil() {
			return nil, nil
		}
		return p.Converter.ToProvider(v)
	}

	switch x := v.(type) {
	case time.Time:
		return temporal.FormatInstant(x), nil
	case uuid.UUID:
		return x.String(), nil
	}
	return v, nil
}

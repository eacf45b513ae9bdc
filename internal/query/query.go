package query

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dragos-durlut/TemporalTables/internal/materialize"
	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/queryir"
)

// Query is an immutable query description. Every method returns a new
// Query; the receiver is never modified.
type Query struct {
	session  *Session
	root     queryir.Root
	filters  []queryir.Predicate
	orderBy  []queryir.Order
	includes []string
	sets     []setPart
}

type setPart struct {
	kind  queryir.SetKind
	query *Query
}

func (q *Query) clone() *Query {
	c := *q
	c.filters = slices.Clone(q.filters)
	c.orderBy = slices.Clone(q.orderBy)
	c.includes = slices.Clone(q.includes)
	c.sets = slices.Clone(q.sets)
	return &c
}

// EntityType returns the entity type the query reads.
func (q *Query) EntityType() *model.EntityType { return q.root.EntityType() }

// Root returns the query's root.
func (q *Query) Root() queryir.Root { return q.root }

// AsOf reads the version of each row valid at t.
func (q *Query) AsOf(t time.Time) *Query {
	c := q.clone()
	c.root = queryir.AsOf{Entity: q.EntityType(), PointInTime: t}
	return c
}

// All reads every version of every row.
func (q *Query) All() *Query {
	c := q.clone()
	c.root = queryir.All{Entity: q.EntityType()}
	return c
}

// FromTo reads every version valid at some instant of [from, to).
func (q *Query) FromTo(from, to time.Time) *Query {
	c := q.clone()
	c.root = queryir.Range{Entity: q.EntityType(), From: from, To: to}
	return c
}

// Where adds a filter. Filters are combined with AND.
func (q *Query) Where(p queryir.Predicate) *Query {
	c := q.clone()
	c.filters = append(c.filters, p)
	return c
}

// OrderBy adds an ascending sort on a property, which may be a shadow
// property such as PeriodStart.
func (q *Query) OrderBy(property string) *Query {
	c := q.clone()
	c.orderBy = append(c.orderBy, queryir.Order{Property: property})
	return c
}

// OrderByDescending adds a descending sort on a property.
func (q *Query) OrderByDescending(property string) *Query {
	c := q.clone()
	c.orderBy = append(c.orderBy, queryir.Order{Property: property, Descending: true})
	return c
}

// Include loads a navigation path such as "Orders.Customer" with the
// results.
func (q *Query) Include(path string) *Query {
	c := q.clone()
	c.includes = append(c.includes, path)
	return c
}

// Union combines q with other, removing duplicate rows.
func (q *Query) Union(other *Query) *Query {
	c := q.clone()
	c.sets = append(c.sets, setPart{kind: queryir.Union, query: other})
	return c
}

// Concat combines q with other, keeping duplicate rows.
func (q *Query) Concat(other *Query) *Query {
	c := q.clone()
	c.sets = append(c.sets, setPart{kind: queryir.Concat, query: other})
	return c
}

func (q *Query) selectIR() queryir.Select {
	s := queryir.Select{Root: q.root, OrderBy: q.orderBy}
	switch len(q.filters) {
	case 0:
	case 1:
		s.Filter = q.filters[0]
	default:
		s.Filter = queryir.And{Predicates: q.filters}
	}
	return s
}

// IR returns the logical query.
func (q *Query) IR() queryir.Query {
	var out queryir.Query = q.selectIR()
	for _, part := range q.sets {
		out = queryir.SetOperation{Kind: part.kind, Left: out, Right: part.query.IR()}
	}
	return out
}

// SQL compiles the query without running it.
func (q *Query) SQL() (string, []any, error) {
	return q.session.compiler.Compile(q.IR())
}

// Load runs the query and returns the materialized instances, pointers to
// the entity type's Go type, in result order.
func (q *Query) Load(ctx context.Context) ([]any, error) {
	s := q.session
	et := q.EntityType()

	ctx, span := s.tracer.Start(ctx, "query.Load",
		trace.WithAttributes(
			attribute.String("entity.type", et.Name),
			attribute.String("temporal.mode", q.root.Mode().String()),
			attribute.Int("query.includes", len(q.includes)),
		),
	)
	defer span.End()

	out, err := q.load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("query.rows", len(out)))
	return out, nil
}

func (q *Query) load(ctx context.Context) ([]any, error) {
	s := q.session
	tree, err := parseIncludes(q.EntityType(), q.includes)
	if err != nil {
		return nil, err
	}
	// Roots are derived before anything is read so that an unsupported
	// include fails without touching the database.
	if err := s.validateIncludes(tree, q.root); err != nil {
		return nil, err
	}

	instances, err := s.read(ctx, q.IR(), q.EntityType())
	if err != nil {
		return nil, err
	}
	if err := s.expand(ctx, tree, q.root, instances); err != nil {
		return nil, err
	}
	return instances, nil
}

// Single runs the query and returns its only instance.
func (q *Query) Single(ctx context.Context) (any, error) {
	out, err := q.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s query returned %d rows, expected exactly one", q.EntityType().Name, len(out))
	}
	return out[0], nil
}

// String describes the query for diagnostics.
func (q *Query) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v", q.root)
	for _, inc := range q.includes {
		fmt.Fprintf(&b, " include(%s)", inc)
	}
	return b.String()
}

// List runs q and returns its instances as *T.
func List[T any](ctx context.Context, q *Query) ([]*T, error) {
	out, err := q.Load(ctx)
	if err != nil {
		return nil, err
	}
	typed := make([]*T, len(out))
	for i, v := range out {
		t, ok := v.(*T)
		if !ok {
			return nil, fmt.Errorf("%s instance is %T, not %T", q.EntityType().Name, v, t)
		}
		typed[i] = t
	}
	return typed, nil
}

// read compiles and runs query and materializes every row as et.
func (s *Session) read(ctx context.Context, query queryir.Query, et *model.EntityType) ([]any, error) {
	sql, params, err := s.compiler.Compile(query)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Query(ctx, sql, params...)
	if err != nil {
		return nil, err
	}

	materializer, err := s.builder.BuildMaterializer(et)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rows))
	for i, row := range rows {
		inst, err := materializer(&materialize.Context{Buffer: row, Services: s.services})
		if err != nil {
			return nil, fmt.Errorf("materialize %s row %d: %w", et.Name, i, err)
		}
		out = append(out, inst)
	}
	s.logger.Debug("loaded", "entity", et.Name, "rows", len(out))
	return out, nil
}

package querysql

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"  // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"   // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlserver" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/queryir"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

// Supported dialect names.
const (
	DialectSQLite    = "sqlite3"
	DialectPostgres  = "postgres"
	DialectSQLServer = "sqlserver"
)

const (
	sourceAlias = "t"
	setAlias    = "u"
)

// Compiler compiles queries for one dialect. It is safe for concurrent use.
type Compiler struct {
	dialect string
	builder goqu.DialectWrapper
	logger  *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger compiled statements are written to at Debug.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCompiler returns a Compiler for the named dialect.
func NewCompiler(dialect string, opts ...Option) (*Compiler, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres, DialectSQLServer:
	default:
		return nil, fmt.Errorf("unsupported SQL dialect %q", dialect)
	}
	c := &Compiler{
		dialect: dialect,
		builder: goqu.Dialect(dialect),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dialect returns the dialect name.
func (c *Compiler) Dialect() string { return c.dialect }

// Compile validates q and converts it to SQL and its bound parameters.
func (c *Compiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if err := queryir.Validate(q); err != nil {
		return "", nil, err
	}

	var ds *goqu.SelectDataset
	var err error
	switch query := q.(type) {
	case queryir.Select:
		ds, err = c.compileSelect(query)
	case *queryir.Select:
		ds, err = c.compileSelect(*query)
	case queryir.SetOperation:
		ds, err = c.compileSetOperation(query)
	case *queryir.SetOperation:
		ds, err = c.compileSetOperation(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
	if err != nil {
		return "", nil, err
	}

	sql, params, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("render %s SQL: %w", c.dialect, err)
	}
	c.logger.Debug("compiled query", "dialect", c.dialect, "sql", sql, "params", len(params))
	return sql, params, nil
}

func (c *Compiler) compileSelect(s queryir.Select) (*goqu.SelectDataset, error) {
	ds, err := c.arm(s, s.Root.EntityType())
	if err != nil {
		return nil, err
	}
	order, err := c.orderBy(sourceAlias, s.Root, s.OrderBy)
	if err != nil {
		return nil, err
	}
	return ds.Order(order...), nil
}

// compileSetOperation wraps the compound statement in a derived table so
// that a single ORDER BY applies to the combined rows. Every arm projects
// the columns of the leftmost root's entity type.
func (c *Compiler) compileSetOperation(s queryir.SetOperation) (*goqu.SelectDataset, error) {
	root := queryir.RootOf(s)
	et := root.EntityType()

	compound, err := c.compound(s, et)
	if err != nil {
		return nil, err
	}

	var orderBy []queryir.Order
	if first := leftmostSelect(s); first != nil {
		orderBy = first.OrderBy
	}
	order, err := c.orderBy(setAlias, root, orderBy)
	if err != nil {
		return nil, err
	}
	return c.builder.From(compound.As(setAlias)).
		Select(columns(setAlias, et)...).
		Order(order...), nil
}

func (c *Compiler) compound(q queryir.Query, et *model.EntityType) (*goqu.SelectDataset, error) {
	switch query := q.(type) {
	case queryir.Select:
		return c.arm(query, et)
	case *queryir.Select:
		return c.arm(*query, et)
	case queryir.SetOperation:
		return c.combine(query, et)
	case *queryir.SetOperation:
		return c.combine(*query, et)
	}
	return nil, fmt.Errorf("unsupported query type: %T", q)
}

func (c *Compiler) combine(s queryir.SetOperation, et *model.EntityType) (*goqu.SelectDataset, error) {
	left, err := c.compound(s.Left, et)
	if err != nil {
		return nil, err
	}
	right, err := c.compound(s.Right, et)
	if err != nil {
		return nil, err
	}
	if s.Kind == queryir.Concat {
		return left.UnionAll(right), nil
	}
	return left.Union(right), nil
}

// arm renders one Select without ordering, projecting the columns of et.
func (c *Compiler) arm(s queryir.Select, et *model.EntityType) (*goqu.SelectDataset, error) {
	from, conds, err := c.source(s.Root)
	if err != nil {
		return nil, err
	}
	if s.Filter != nil {
		cond, err := c.predicate(s.Root.EntityType(), s.Filter)
		if err != nil {
			return nil, fmt.Errorf("compile filter: %w", err)
		}
		conds = append(conds, cond)
	}

	ds := c.builder.From(from).Select(columns(sourceAlias, et)...)
	if len(conds) > 0 {
		ds = ds.Where(conds...)
	}
	return ds, nil
}

// source returns the aliased FROM expression for a root and the period
// conditions that restrict it.
func (c *Compiler) source(root queryir.Root) (any, []exp.Expression, error) {
	et := root.EntityType()
	table := et.Table
	if table == nil {
		return nil, nil, fmt.Errorf("entity type %s is not mapped to a table", et.Name)
	}
	current := c.table(table.Schema, table.Name)

	if !queryir.IsTemporal(root) {
		return current.As(sourceAlias), nil, nil
	}
	tt := table.Temporal
	if tt == nil {
		return nil, nil, temporal.NewUnsupportedTemporalNavigationError(et.DisplayName(), root.Mode().String())
	}

	if c.dialect == DialectSQLServer {
		return c.systemTime(current, root), nil, nil
	}

	history := c.table(table.Schema, tt.HistoryTable)
	cols := versionColumns(et, tt)
	versions := c.builder.From(current).Select(cols...).
		UnionAll(c.builder.From(history).Select(cols...))

	start := goqu.T(sourceAlias).Col(tt.PeriodStartColumn)
	end := goqu.T(sourceAlias).Col(tt.PeriodEndColumn)

	var conds []exp.Expression
	switch r := root.(type) {
	case queryir.AsOf:
		at := c.value(r.PointInTime)
		conds = append(conds, start.Lte(at), end.Gt(at))
	case queryir.Range:
		conds = append(conds, start.Lt(c.value(r.To)), end.Gt(c.value(r.From)))
	}
	return versions.As(sourceAlias), conds, nil
}

// systemTime renders the native FOR SYSTEM_TIME clause. SQL Server's
// FROM ... TO form is the half-open overlap filter.
func (c *Compiler) systemTime(table exp.IdentifierExpression, root queryir.Root) exp.Expression {
	var clause exp.LiteralExpression
	switch r := root.(type) {
	case queryir.AsOf:
		clause = goqu.L("? FOR SYSTEM_TIME AS OF ?", table, r.PointInTime.UTC())
	case queryir.Range:
		clause = goqu.L("? FOR SYSTEM_TIME FROM ? TO ?", table, r.From.UTC(), r.To.UTC())
	default:
		clause = goqu.L("? FOR SYSTEM_TIME ALL", table)
	}
	return clause.As(sourceAlias)
}

func (c *Compiler) orderBy(alias string, root queryir.Root, explicit []queryir.Order) ([]exp.OrderedExpression, error) {
	et := root.EntityType()
	var order []exp.OrderedExpression
	seen := make(map[string]bool)

	add := func(column string, desc bool) {
		if seen[column] {
			return
		}
		seen[column] = true
		col := goqu.T(alias).Col(column)
		if desc {
			order = append(order, col.Desc())
		} else {
			order = append(order, col.Asc())
		}
	}

	for _, o := range explicit {
		p, ok := et.FindProperty(o.Property)
		if !ok {
			return nil, fmt.Errorf("order by unknown property %s.%s", et.Name, o.Property)
		}
		add(p.Column, o.Descending)
	}
	for _, p := range et.KeyProperties() {
		add(p.Column, false)
	}
	if root.Mode() == queryir.ModeAll || root.Mode() == queryir.ModeRange {
		if tt := et.Table.Temporal; tt != nil {
			add(tt.PeriodStartColumn, false)
		}
	}
	return order, nil
}

func (c *Compiler) predicate(et *model.EntityType, p queryir.Predicate) (exp.Expression, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return c.equals(et, pred)
	case *queryir.Equals:
		return c.equals(et, *pred)
	case queryir.Compare:
		return c.compare(et, pred)
	case *queryir.Compare:
		return c.compare(et, *pred)
	case queryir.In:
		return c.in(et, pred)
	case *queryir.In:
		return c.in(et, *pred)
	case queryir.And:
		return c.and(et, pred)
	case *queryir.And:
		return c.and(et, *pred)
	}
	return nil, fmt.Errorf("unsupported predicate type: %T", p)
}

func (c *Compiler) column(et *model.EntityType, name string) (exp.IdentifierExpression, error) {
	p, ok := et.FindProperty(name)
	if !ok {
		return nil, fmt.Errorf("unknown property %s.%s", et.Name, name)
	}
	return goqu.T(sourceAlias).Col(p.Column), nil
}

func (c *Compiler) equals(et *model.EntityType, eq queryir.Equals) (exp.Expression, error) {
	col, err := c.column(et, eq.Property)
	if err != nil {
		return nil, err
	}
	if eq.Value == nil {
		return col.IsNull(), nil
	}
	return col.Eq(c.value(eq.Value)), nil
}

func (c *Compiler) compare(et *model.EntityType, cmp queryir.Compare) (exp.Expression, error) {
	col, err := c.column(et, cmp.Property)
	if err != nil {
		return nil, err
	}
	v := c.value(cmp.Value)
	switch cmp.Op {
	case queryir.OpLess:
		return col.Lt(v), nil
	case queryir.OpLessEqual:
		return col.Lte(v), nil
	case queryir.OpGreater:
		return col.Gt(v), nil
	case queryir.OpGreaterEqual:
		return col.Gte(v), nil
	case queryir.OpNotEqual:
		return col.Neq(v), nil
	}
	return nil, fmt.Errorf("unknown comparison operator %q", cmp.Op)
}

func (c *Compiler) in(et *model.EntityType, in queryir.In) (exp.Expression, error) {
	col, err := c.column(et, in.Property)
	if err != nil {
		return nil, err
	}
	if len(in.Values) == 0 {
		return goqu.L("1 = 0"), nil
	}
	values := make([]any, len(in.Values))
	for i, v := range in.Values {
		values[i] = c.value(v)
	}
	return col.In(values...), nil
}

func (c *Compiler) and(et *model.EntityType, and queryir.And) (exp.Expression, error) {
	parts := make([]exp.Expression, 0, len(and.Predicates))
	for _, p := range and.Predicates {
		e, err := c.predicate(et, p)
		if err != nil {
			return nil, err
		}
		parts = append(parts, e)
	}
	return goqu.And(parts...), nil
}

// value converts a bound value to the representation the dialect stores.
// Emulated dialects persist instants as fixed-width text.
func (c *Compiler) value(v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	if c.dialect == DialectSQLServer {
		return t.UTC()
	}
	return temporal.FormatInstant(t)
}

// Columns returns the column names read for et, in property index order.
func Columns(et *model.EntityType) []string {
	props := et.AllProperties()
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Column
	}
	return names
}

func columns(alias string, et *model.EntityType) []any {
	names := Columns(et)
	cols := make([]any, len(names))
	for i, name := range names {
		cols[i] = goqu.T(alias).Col(name)
	}
	return cols
}

// versionColumns is the projection of each arm of the current/history
// union: the entity type's columns plus the period columns, which the outer
// filter needs even when no property maps them.
func versionColumns(et *model.EntityType, tt *model.TemporalTable) []any {
	names := Columns(et)
	for _, period := range []string{tt.PeriodStartColumn, tt.PeriodEndColumn} {
		if !slices.Contains(names, period) {
			names = append(names, period)
		}
	}
	cols := make([]any, len(names))
	for i, name := range names {
		cols[i] = goqu.C(name)
	}
	return cols
}

// table qualifies name with schema. SQLite has no schemas; there the schema
// is dropped.
func (c *Compiler) table(schema, name string) exp.IdentifierExpression {
	if schema == "" || c.dialect == DialectSQLite {
		return goqu.T(name)
	}
	return goqu.S(schema).Table(name)
}

func leftmostSelect(q queryir.Query) *queryir.Select {
	switch query := q.(type) {
	case queryir.Select:
		return &query
	case *queryir.Select:
		return query
	case queryir.SetOperation:
		return leftmostSelect(query.Left)
	case *queryir.SetOperation:
		return leftmostSelect(query.Left)
	}
	return nil
}

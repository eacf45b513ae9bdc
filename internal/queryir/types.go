package queryir

import (
	"fmt"
	"time"

	"github.com/dragos-durlut/TemporalTables/internal/model"
)

// Mode classifies a root.
type Mode int

const (
	ModePlain Mode = iota
	ModeAsOf
	ModeAll
	ModeRange
)

func (m Mode) String() string {
	switch m {
	case ModePlain:
		return "Plain"
	case ModeAsOf:
		return "AsOf"
	case ModeAll:
		return "All"
	case ModeRange:
		return "Range"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Root is the logical source of a query.
//
// This is a sealed interface - only types in this package implement it.
type Root interface {
	rootNode()

	// EntityType returns the entity type the root reads.
	EntityType() *model.EntityType

	// Mode returns the temporal classification.
	Mode() Mode
}

// Plain reads the current rows of an entity type.
type Plain struct {
	Entity *model.EntityType
}

func (Plain) rootNode()                       {}
func (r Plain) EntityType() *model.EntityType { return r.Entity }
func (Plain) Mode() Mode                      { return ModePlain }
func (r Plain) String() string                { return fmt.Sprintf("Plain(%s)", r.Entity) }

// AsOf reads the version of each row valid at PointInTime.
type AsOf struct {
	Entity      *model.EntityType
	PointInTime time.Time
}

func (AsOf) rootNode()                       {}
func (r AsOf) EntityType() *model.EntityType { return r.Entity }
func (AsOf) Mode() Mode                      { return ModeAsOf }
func (r AsOf) String() string {
	return fmt.Sprintf("AsOf(%s, %s)", r.Entity, r.PointInTime.UTC().Format(time.RFC3339Nano))
}

// All reads every version of every row.
type All struct {
	Entity *model.EntityType
}

func (All) rootNode()                       {}
func (r All) EntityType() *model.EntityType { return r.Entity }
func (All) Mode() Mode                      { return ModeAll }
func (r All) String() string                { return fmt.Sprintf("All(%s)", r.Entity) }

// Range reads every version whose validity overlaps the half-open interval
// [From, To).
type Range struct {
	Entity *model.EntityType
	From   time.Time
	To     time.Time
}

func (Range) rootNode()                       {}
func (r Range) EntityType() *model.EntityType { return r.Entity }
func (Range) Mode() Mode                      { return ModeRange }
func (r Range) String() string {
	return fmt.Sprintf("Range(%s, %s, %s)", r.Entity,
		r.From.UTC().Format(time.RFC3339Nano), r.To.UTC().Format(time.RFC3339Nano))
}

// IsTemporal reports whether r is one of the temporal variants.
func IsTemporal(r Root) bool {
	return r != nil && r.Mode() != ModePlain
}

// Retarget returns a root of the same kind and parameters for et.
func Retarget(r Root, et *model.EntityType) Root {
	switch r := r.(type) {
	case AsOf:
		return AsOf{Entity: et, PointInTime: r.PointInTime}
	case All:
		return All{Entity: et}
	case Range:
		return Range{Entity: et, From: r.From, To: r.To}
	}
	return Plain{Entity: et}
}

// Query is a logical query.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode()
}

// Select reads rows from a root.
//
// Semantics:
//
//	SELECT <all properties of Root's entity type> FROM <Root>
//	WHERE <Filter> ORDER BY <OrderBy>, <key>
//
// Results are always ordered by the key (and, for temporal roots other than
// AsOf, by period start) after any explicit ordering, so that reads are
// deterministic.
type Select struct {
	Root    Root
	Filter  Predicate // nil = no filter
	OrderBy []Order
}

func (Select) queryNode() {}

// Order sorts by one property.
type Order struct {
	Property   string
	Descending bool
}

// SetKind is the kind of set operation.
type SetKind int

const (
	// Union removes duplicates.
	Union SetKind = iota
	// Concat keeps duplicates (UNION ALL).
	Concat
)

func (k SetKind) String() string {
	if k == Concat {
		return "Concat"
	}
	return "Union"
}

// SetOperation combines two queries over compatible roots.
type SetOperation struct {
	Kind  SetKind
	Left  Query
	Right Query
}

func (SetOperation) queryNode() {}

// Predicate is a filter condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Equals matches rows whose property equals Value.
type Equals struct {
	Property string
	Value    any
}

func (Equals) predicateNode() {}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpGreater      CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
	OpNotEqual     CompareOp = "<>"
)

// Compare matches rows where <Property> <Op> <Value>.
type Compare struct {
	Property string
	Op       CompareOp
	Value    any
}

func (Compare) predicateNode() {}

// In matches rows whose property equals one of Values. An empty list
// matches nothing.
type In struct {
	Property string
	Values   []any
}

func (In) predicateNode() {}

// And matches rows satisfying every predicate.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// RootOf returns the root of the leftmost Select in q.
func RootOf(q Query) Root {
	switch q := q.(type) {
	case Select:
		return q.Root
	case *Select:
		return q.Root
	case SetOperation:
		return RootOf(q.Left)
	case *SetOperation:
		return RootOf(q.Left)
	}
	return nil
}

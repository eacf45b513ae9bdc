package model

import (
	"reflect"
	"strings"
)

// Property is a scalar value stored in one column.
type Property struct {
	// Name is the struct field name, or the model-only name of a shadow
	// property.
	Name string

	// Column is the storage column. Defaults to Name.
	Column string

	// Type is the Go type of the value. Mapped properties default to the
	// struct field's type; shadow properties must set it.
	Type reflect.Type

	// Shadow marks a property with no struct field.
	Shadow bool

	// Key marks a primary key property.
	Key bool

	// Nullable allows NULL in storage.
	Nullable bool

	// Converter translates between the provider value and Type.
	Converter *Converter

	index int
	field []int
	owner *EntityType
	path  string
}

// Index returns the property's position in the row buffer.
func (p *Property) Index() int { return p.index }

// FieldIndex returns the reflect field path of the backing struct field,
// relative to the struct that declares it. Nil for shadow properties.
func (p *Property) FieldIndex() []int { return p.field }

// Path returns the qualified name: "Name" or "Complex.Name".
func (p *Property) Path() string { return p.path }

// DeclaringEntityType returns the entity type the property belongs to.
func (p *Property) DeclaringEntityType() *EntityType { return p.owner }

// ComplexProperty is a nested non-entity struct whose properties are stored
// in columns of the owning entity's table.
type ComplexProperty struct {
	Name       string
	Properties []*Property

	typ   reflect.Type
	field []int
}

// Type returns the field type: a struct or a pointer to a struct.
func (c *ComplexProperty) Type() reflect.Type { return c.typ }

// FieldIndex returns the reflect field path on the entity struct.
func (c *ComplexProperty) FieldIndex() []int { return c.field }

// ServiceProperty is a struct field populated from context services rather
// than from the row.
type ServiceProperty struct {
	Name string

	typ   reflect.Type
	field []int
}

// Type returns the service type the field is resolved by.
func (s *ServiceProperty) Type() reflect.Type { return s.typ }

// FieldIndex returns the reflect field path on the entity struct.
func (s *ServiceProperty) FieldIndex() []int { return s.field }

// Param binds one constructor argument to either a property or a service.
type Param struct {
	Property string
	Service  reflect.Type

	property *Property
}

// BoundProperty returns the property bound to the parameter, if any.
func (p *Param) BoundProperty() *Property { return p.property }

// Constructor builds an instance from resolved arguments. New must return a
// pointer to the entity's Go type.
type Constructor struct {
	Params []Param
	New    func(args []any) any
}

// ServiceOnly reports whether no parameter is bound to a property.
func (c *Constructor) ServiceOnly() bool {
	for i := range c.Params {
		if c.Params[i].Property != "" {
			return false
		}
	}
	return true
}

// Navigation is a relationship to another entity type.
type Navigation struct {
	Name   string
	Target string

	// ForeignKey names the property holding the key of the principal side.
	// It lives on the target when Principal is set, otherwise on the
	// declaring entity.
	ForeignKey string

	// Collection navigations hold a slice of target pointers. They are
	// always on the principal side.
	Collection bool

	// Principal marks a reference navigation from principal to dependent.
	Principal bool

	target *EntityType
	fk     *Property
	field  []int
}

// TargetType returns the resolved target entity type.
func (n *Navigation) TargetType() *EntityType { return n.target }

// ForeignKeyProperty returns the resolved foreign key property.
func (n *Navigation) ForeignKeyProperty() *Property { return n.fk }

// FieldIndex returns the reflect field path on the declaring struct.
func (n *Navigation) FieldIndex() []int { return n.field }

// ForeignKeyOnTarget reports whether the foreign key lives on the target.
func (n *Navigation) ForeignKeyOnTarget() bool { return n.Collection || n.Principal }

// Table identifies physical storage.
type Table struct {
	Schema   string
	Name     string
	Temporal *TemporalTable
}

// QualifiedName returns "schema.name" or "name".
func (t *Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// TemporalTable configures system versioning for a table.
type TemporalTable struct {
	// HistoryTable defaults to "<Name>History".
	HistoryTable string

	// Property and column names of the period. Properties default to
	// temporal.PeriodStartName and temporal.PeriodEndName, columns to the
	// property names.
	PeriodStartProperty string
	PeriodStartColumn   string
	PeriodEndProperty   string
	PeriodEndColumn     string

	// SkipPeriodProperties leaves the period shadow properties undeclared.
	// The columns still exist in storage but rows carry no validity period.
	SkipPeriodProperties bool
}

// SameTable reports whether two tables denote the same physical storage:
// equal schema and case-insensitively equal name.
func SameTable(a, b *Table) bool {
	if a == nil || b == nil {
		return false
	}
	if a == b {
		return true
	}
	return strings.EqualFold(a.Schema, b.Schema) && strings.EqualFold(a.Name, b.Name)
}

// Ownership marks an entity type as owned by another.
type Ownership struct {
	Owner string

	// JSON marks an owned type stored as a document in a column of the
	// owner's table.
	JSON bool

	owner *EntityType
}

// OwnerType returns the resolved owner.
func (o *Ownership) OwnerType() *EntityType { return o.owner }

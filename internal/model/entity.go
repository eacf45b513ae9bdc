package model

import (
	"reflect"
)

// EntityType describes one mapped Go struct.
type EntityType struct {
	Name string

	// GoType is the struct type. Instances are pointers to it. May be nil
	// for abstract types.
	GoType reflect.Type

	// Factory returns a new zero instance. Defaults to reflect.New(GoType).
	Factory func() any

	Abstract bool

	// Base names the base entity type. Derived types inherit the base's
	// table and properties.
	Base string

	// Table defaults to the base's table, or the owner's table for owned
	// types.
	Table *Table

	Ownership *Ownership

	Properties        []*Property
	ComplexProperties []*ComplexProperty
	ServiceProperties []*ServiceProperty
	Navigations       []*Navigation

	// Constructor is nil when instances come from Factory.
	Constructor *Constructor

	base  *EntityType
	all   []*Property
	props map[string]*Property
	navs  map[string]*Navigation
	model *Model
}

// DisplayName returns the name used in diagnostics.
func (e *EntityType) DisplayName() string { return e.Name }

// String implements fmt.Stringer.
func (e *EntityType) String() string { return e.Name }

// BaseType returns the resolved base, or nil.
func (e *EntityType) BaseType() *EntityType { return e.base }

// Root returns the top of the inheritance hierarchy.
func (e *EntityType) Root() *EntityType {
	r := e
	for r.base != nil {
		r = r.base
	}
	return r
}

// Model returns the model the entity type belongs to.
func (e *EntityType) Model() *Model { return e.model }

// IsTemporal reports whether the entity type is stored in a
// system-versioned table.
func (e *EntityType) IsTemporal() bool {
	t := e.Root().Table
	return t != nil && t.Temporal != nil
}

// IsOwned reports whether the type is owned by another entity type.
func (e *EntityType) IsOwned() bool { return e.Ownership != nil }

// IsMappedToJSON reports whether the type is owned and stored as a JSON
// document in its owner's table.
func (e *EntityType) IsMappedToJSON() bool {
	return e.Ownership != nil && e.Ownership.JSON
}

// IsOwnedInOwnerTable reports whether the type is owned and its columns live
// in the same table as its owner's.
func (e *EntityType) IsOwnedInOwnerTable() bool {
	if e.Ownership == nil || e.Ownership.owner == nil {
		return false
	}
	return SameTable(e.Table, e.Ownership.owner.Table)
}

// AllProperties returns scalar and complex sub-properties in storage index
// order.
func (e *EntityType) AllProperties() []*Property { return e.all }

// FindProperty looks up a property by qualified path.
func (e *EntityType) FindProperty(path string) (*Property, bool) {
	p, ok := e.props[path]
	return p, ok
}

// KeyProperties returns the key properties in declaration order.
func (e *EntityType) KeyProperties() []*Property {
	var keys []*Property
	for _, p := range e.Properties {
		if p.Key {
			keys = append(keys, p)
		}
	}
	return keys
}

// ShadowProperties returns the shadow properties in declaration order.
func (e *EntityType) ShadowProperties() []*Property {
	var shadows []*Property
	for _, p := range e.Properties {
		if p.Shadow {
			shadows = append(shadows, p)
		}
	}
	return shadows
}

// FindNavigation looks up a navigation by name.
func (e *EntityType) FindNavigation(name string) (*Navigation, bool) {
	n, ok := e.navs[name]
	return n, ok
}

// PeriodProperties returns the shadow properties bound to the period start
// and end names of a temporal table. Either may be nil when no shadow
// property carries the configured name.
func (e *EntityType) PeriodProperties() (start, end *Property) {
	t := e.Root().Table
	if t == nil || t.Temporal == nil {
		return nil, nil
	}
	for _, p := range e.Properties {
		if !p.Shadow {
			continue
		}
		switch p.Name {
		case t.Temporal.PeriodStartProperty:
			start = p
		case t.Temporal.PeriodEndProperty:
			end = p
		}
	}
	return start, end
}

// NewInstance returns a fresh zero instance.
func (e *EntityType) NewInstance() any {
	return e.Factory()
}

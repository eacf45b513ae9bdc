package model

import (
	"fmt"
	"reflect"
	"time"

	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

// Model is a validated, immutable set of entity types.
type Model struct {
	types  map[string]*EntityType
	order  []*EntityType
	byType map[reflect.Type]*EntityType
}

// New resolves and validates entity types into a model. The entity types,
// their tables and properties are owned by the model afterwards and must not
// be modified.
func New(types ...*EntityType) (*Model, error) {
	m := &Model{
		types:  make(map[string]*EntityType, len(types)),
		byType: make(map[reflect.Type]*EntityType, len(types)),
	}
	for _, e := range types {
		if e == nil || e.Name == "" {
			return nil, &LoadError{Message: "entity type has no name"}
		}
		if _, dup := m.types[e.Name]; dup {
			return nil, &LoadError{Entity: e.Name, Message: "duplicate entity type"}
		}
		m.types[e.Name] = e
		m.order = append(m.order, e)
		e.model = m
	}

	r := resolver{m: m, state: make(map[*EntityType]int)}
	for _, e := range m.order {
		if err := r.resolve(e); err != nil {
			return nil, err
		}
	}
	for _, e := range m.order {
		if err := r.resolveNavigations(e); err != nil {
			return nil, err
		}
		if err := r.resolveConstructor(e); err != nil {
			return nil, err
		}
		if e.GoType != nil && !e.Abstract {
			m.byType[e.GoType] = e
		}
	}
	return m, nil
}

// EntityType looks up an entity type by name.
func (m *Model) EntityType(name string) (*EntityType, bool) {
	e, ok := m.types[name]
	return e, ok
}

// FindByGoType returns the non-abstract entity type bound to t. Pointer
// types are dereferenced.
func (m *Model) FindByGoType(t reflect.Type) (*EntityType, bool) {
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	e, ok := m.byType[t]
	return e, ok
}

// EntityTypes returns all entity types in declaration order.
func (m *Model) EntityTypes() []*EntityType {
	out := make([]*EntityType, len(m.order))
	copy(out, m.order)
	return out
}

// EntityTypesInTable returns the entity types mapped to the given table.
func (m *Model) EntityTypesInTable(t *Table) []*EntityType {
	var out []*EntityType
	for _, e := range m.order {
		if SameTable(e.Table, t) {
			out = append(out, e)
		}
	}
	return out
}

// Tables returns the distinct tables of the model in declaration order.
func (m *Model) Tables() []*Table {
	var out []*Table
	for _, e := range m.order {
		if e.Table == nil {
			continue
		}
		seen := false
		for _, t := range out {
			if SameTable(t, e.Table) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, e.Table)
		}
	}
	return out
}

const (
	unvisited = iota
	visiting
	done
)

type resolver struct {
	m     *Model
	state map[*EntityType]int
}

func (r *resolver) resolve(e *EntityType) error {
	switch r.state[e] {
	case done:
		return nil
	case visiting:
		return &LoadError{Entity: e.Name, Message: "cycle in base or ownership chain"}
	}
	r.state[e] = visiting

	if e.Base != "" {
		base, ok := r.m.types[e.Base]
		if !ok {
			return &LoadError{Entity: e.Name, Field: "base", Message: fmt.Sprintf("unknown base entity type %q", e.Base)}
		}
		if err := r.resolve(base); err != nil {
			return err
		}
		e.base = base
		if e.Table == nil {
			e.Table = base.Table
		}
		e.Properties = append(inherit(base.Properties), e.Properties...)
	}

	if e.Ownership != nil {
		owner, ok := r.m.types[e.Ownership.Owner]
		if !ok {
			return &LoadError{Entity: e.Name, Field: "owned_by", Message: fmt.Sprintf("unknown owner %q", e.Ownership.Owner)}
		}
		if err := r.resolve(owner); err != nil {
			return err
		}
		e.Ownership.owner = owner
		if e.Table == nil {
			e.Table = owner.Table
		}
	}

	if e.Table == nil && !e.Abstract {
		return &LoadError{Entity: e.Name, Field: "table", Message: "no table mapped"}
	}
	if e.Table != nil && e.Table.Temporal != nil {
		applyTemporalDefaults(e.Table)
	}

	if e.GoType != nil {
		if e.GoType.Kind() != reflect.Struct {
			return &LoadError{Entity: e.Name, Message: fmt.Sprintf("Go type %s is not a struct", e.GoType)}
		}
		if e.Factory == nil {
			t := e.GoType
			e.Factory = func() any { return reflect.New(t).Interface() }
		}
	} else if !e.Abstract {
		return &LoadError{Entity: e.Name, Message: "no Go type bound"}
	}

	if e.IsTemporal() {
		addPeriodProperties(e)
	}

	if err := r.resolveProperties(e); err != nil {
		return err
	}

	r.state[e] = done
	return nil
}

func inherit(props []*Property) []*Property {
	out := make([]*Property, 0, len(props))
	for _, p := range props {
		cp := *p
		cp.owner = nil
		out = append(out, &cp)
	}
	return out
}

func applyTemporalDefaults(t *Table) {
	tt := t.Temporal
	if tt.HistoryTable == "" {
		tt.HistoryTable = t.Name + "History"
	}
	if tt.PeriodStartProperty == "" {
		tt.PeriodStartProperty = temporal.PeriodStartName
	}
	if tt.PeriodEndProperty == "" {
		tt.PeriodEndProperty = temporal.PeriodEndName
	}
	if tt.PeriodStartColumn == "" {
		tt.PeriodStartColumn = tt.PeriodStartProperty
	}
	if tt.PeriodEndColumn == "" {
		tt.PeriodEndColumn = tt.PeriodEndProperty
	}
}

func addPeriodProperties(e *EntityType) {
	tt := e.Root().Table.Temporal
	if tt.SkipPeriodProperties {
		return
	}
	timeType := reflect.TypeOf(time.Time{})
	for _, pc := range [][2]string{
		{tt.PeriodStartProperty, tt.PeriodStartColumn},
		{tt.PeriodEndProperty, tt.PeriodEndColumn},
	} {
		declared := false
		for _, p := range e.Properties {
			if p.Name == pc[0] {
				declared = true
				break
			}
		}
		if !declared {
			e.Properties = append(e.Properties, &Property{
				Name:   pc[0],
				Column: pc[1],
				Type:   timeType,
				Shadow: true,
			})
		}
	}
}

func (r *resolver) resolveProperties(e *EntityType) error {
	e.props = make(map[string]*Property)
	e.all = e.all[:0]

	add := func(p *Property, path string) error {
		if _, dup := e.props[path]; dup {
			return &LoadError{Entity: e.Name, Field: path, Message: "duplicate property"}
		}
		p.owner = e
		p.path = path
		p.index = len(e.all)
		e.all = append(e.all, p)
		e.props[path] = p
		return nil
	}

	for _, p := range e.Properties {
		if err := bindProperty(e, e.GoType, p, p.Name); err != nil {
			return err
		}
		if err := add(p, p.Name); err != nil {
			return err
		}
	}

	for _, c := range e.ComplexProperties {
		if e.GoType == nil {
			return &LoadError{Entity: e.Name, Field: c.Name, Message: "complex property on type without Go type"}
		}
		sf, ok := e.GoType.FieldByName(c.Name)
		if !ok {
			return &LoadError{Entity: e.Name, Field: c.Name, Message: "no struct field for complex property"}
		}
		st := sf.Type
		if st.Kind() == reflect.Pointer {
			st = st.Elem()
		}
		if st.Kind() != reflect.Struct {
			return &LoadError{Entity: e.Name, Field: c.Name, Message: fmt.Sprintf("complex property type %s is not a struct", sf.Type)}
		}
		c.typ = sf.Type
		c.field = sf.Index
		for _, p := range c.Properties {
			if p.Shadow {
				return &LoadError{Entity: e.Name, Field: c.Name + "." + p.Name, Message: "complex properties cannot declare shadow properties"}
			}
			if p.Column == "" {
				p.Column = c.Name + "_" + p.Name
			}
			if err := bindProperty(e, st, p, c.Name+"."+p.Name); err != nil {
				return err
			}
			if err := add(p, c.Name+"."+p.Name); err != nil {
				return err
			}
		}
	}

	for _, s := range e.ServiceProperties {
		if e.GoType == nil {
			return &LoadError{Entity: e.Name, Field: s.Name, Message: "service property on type without Go type"}
		}
		sf, ok := e.GoType.FieldByName(s.Name)
		if !ok {
			return &LoadError{Entity: e.Name, Field: s.Name, Message: "no struct field for service property"}
		}
		s.typ = sf.Type
		s.field = sf.Index
	}

	if !e.Abstract && len(e.KeyProperties()) == 0 {
		return &LoadError{Entity: e.Name, Message: "no key property"}
	}
	return nil
}

func bindProperty(e *EntityType, st reflect.Type, p *Property, path string) error {
	if p.Column == "" {
		p.Column = p.Name
	}
	if p.Shadow {
		if p.Type == nil {
			return &LoadError{Entity: e.Name, Field: path, Message: "shadow property needs a type"}
		}
		p.field = nil
	} else {
		if st == nil {
			return &LoadError{Entity: e.Name, Field: path, Message: "mapped property on type without Go type"}
		}
		sf, ok := st.FieldByName(p.Name)
		if !ok {
			return &LoadError{Entity: e.Name, Field: path, Message: fmt.Sprintf("no struct field %s on %s", p.Name, st)}
		}
		if !sf.IsExported() {
			return &LoadError{Entity: e.Name, Field: path, Message: "struct field is not exported"}
		}
		if p.Type != nil && p.Type != sf.Type {
			return &LoadError{Entity: e.Name, Field: path, Message: fmt.Sprintf("declared type %s does not match field type %s", p.Type, sf.Type)}
		}
		p.Type = sf.Type
		p.field = sf.Index
	}
	if p.Converter == nil && isPrimitiveCollection(p.Type) {
		p.Converter = JSONConverter(p.Type)
	}
	return nil
}

func (r *resolver) resolveNavigations(e *EntityType) error {
	e.navs = make(map[string]*Navigation, len(e.Navigations))
	for _, n := range e.Navigations {
		target, ok := r.m.types[n.Target]
		if !ok {
			return &LoadError{Entity: e.Name, Field: n.Name, Message: fmt.Sprintf("unknown navigation target %q", n.Target)}
		}
		n.target = target

		holder := e
		if n.ForeignKeyOnTarget() {
			holder = target
		}
		fk, ok := holder.FindProperty(n.ForeignKey)
		if !ok {
			return &LoadError{Entity: e.Name, Field: n.Name, Message: fmt.Sprintf("foreign key %q not found on %s", n.ForeignKey, holder.Name)}
		}
		n.fk = fk

		if e.GoType == nil {
			return &LoadError{Entity: e.Name, Field: n.Name, Message: "navigation on type without Go type"}
		}
		sf, ok := e.GoType.FieldByName(n.Name)
		if !ok {
			return &LoadError{Entity: e.Name, Field: n.Name, Message: "no struct field for navigation"}
		}
		if target.GoType != nil {
			want := reflect.PointerTo(target.GoType)
			if n.Collection {
				want = reflect.SliceOf(want)
			}
			if sf.Type != want {
				return &LoadError{Entity: e.Name, Field: n.Name, Message: fmt.Sprintf("navigation field type %s, want %s", sf.Type, want)}
			}
		}
		n.field = sf.Index
		e.navs[n.Name] = n
	}
	return nil
}

func (r *resolver) resolveConstructor(e *EntityType) error {
	if e.Constructor == nil {
		return nil
	}
	if e.Constructor.New == nil {
		return &LoadError{Entity: e.Name, Field: "constructor", Message: "constructor has no New func"}
	}
	for i := range e.Constructor.Params {
		param := &e.Constructor.Params[i]
		switch {
		case param.Property != "" && param.Service != nil:
			return &LoadError{Entity: e.Name, Field: "constructor", Message: fmt.Sprintf("parameter %d binds both a property and a service", i)}
		case param.Property != "":
			p, ok := e.FindProperty(param.Property)
			if !ok {
				return &LoadError{Entity: e.Name, Field: "constructor", Message: fmt.Sprintf("parameter %d binds unknown property %q", i, param.Property)}
			}
			param.property = p
		case param.Service == nil:
			return &LoadError{Entity: e.Name, Field: "constructor", Message: fmt.Sprintf("parameter %d is unbound", i)}
		}
	}
	return nil
}

func isPrimitiveCollection(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Map:
		return true
	case reflect.Slice:
		return t.Elem().Kind() != reflect.Uint8
	}
	return false
}

package model

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/google/uuid"
)

// shadowTypes maps the type names accepted for shadow properties in CUE
// models.
var shadowTypes = map[string]reflect.Type{
	"string":  reflect.TypeOf(""),
	"int":     reflect.TypeOf(int(0)),
	"int64":   reflect.TypeOf(int64(0)),
	"float64": reflect.TypeOf(float64(0)),
	"bool":    reflect.TypeOf(false),
	"bytes":   reflect.TypeOf([]byte(nil)),
	"time":    reflect.TypeOf(time.Time{}),
	"uuid":    reflect.TypeOf(uuid.UUID{}),
}

// LoadCUEFile reads a CUE model from path.
func LoadCUEFile(path string, reg *Registry) (*Model, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return LoadCUE(src, path, reg)
}

// LoadCUE builds a model from CUE source. Entity types are declared under
// the top-level "entity" struct, in the order they should appear in the
// model:
//
//	entity: Customer: {
//	    table:    "Customers"
//	    temporal: true
//	    properties: {
//	        Id:   {key: true}
//	        Name: {}
//	    }
//	    navigations: Orders: {target: "Order", foreign_key: "CustomerId", collection: true}
//	}
//
// Go types come from reg, looked up by the entity's "type" field or its name.
func LoadCUE(src []byte, filename string, reg *Registry) (*Model, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError("", err)
	}

	entities := v.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return nil, &LoadError{Field: "entity", Message: "no entity declarations", Pos: v.Pos()}
	}

	l := cueLoader{reg: reg, tables: make(map[string]*Table)}
	iter, err := entities.Fields()
	if err != nil {
		return nil, formatCUEError("", err)
	}
	var types []*EntityType
	for iter.Next() {
		e, err := l.entity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		types = append(types, e)
	}
	return New(types...)
}

type cueLoader struct {
	reg    *Registry
	tables map[string]*Table
}

func (l *cueLoader) entity(name string, v cue.Value) (*EntityType, error) {
	e := &EntityType{Name: name}

	var err error
	if e.Abstract, err = optBool(v, "abstract"); err != nil {
		return nil, formatCUEError(name, err)
	}
	if e.Base, err = optString(v, "base"); err != nil {
		return nil, formatCUEError(name, err)
	}

	typeName := name
	if s, err := optString(v, "type"); err != nil {
		return nil, formatCUEError(name, err)
	} else if s != "" {
		typeName = s
	}
	if reg, ok := l.reg.lookup(typeName); ok {
		e.GoType = reg.goType
		e.Factory = reg.factory
		e.Constructor = reg.ctor
	} else if !e.Abstract {
		return nil, &LoadError{Entity: name, Field: "type", Message: fmt.Sprintf("Go type %q not registered", typeName), Pos: v.Pos()}
	}

	owner, err := optString(v, "owned_by")
	if err != nil {
		return nil, formatCUEError(name, err)
	}
	if owner != "" {
		jsonOwned, err := optBool(v, "json")
		if err != nil {
			return nil, formatCUEError(name, err)
		}
		e.Ownership = &Ownership{Owner: owner, JSON: jsonOwned}
	}

	if e.Table, err = l.table(name, v); err != nil {
		return nil, err
	}

	if e.Properties, err = cueProperties(name, v.LookupPath(cue.ParsePath("properties"))); err != nil {
		return nil, err
	}

	if cv := v.LookupPath(cue.ParsePath("complex")); cv.Exists() {
		iter, err := cv.Fields()
		if err != nil {
			return nil, formatCUEError(name, err)
		}
		for iter.Next() {
			props, err := cueProperties(name, iter.Value())
			if err != nil {
				return nil, err
			}
			e.ComplexProperties = append(e.ComplexProperties, &ComplexProperty{
				Name:       iter.Label(),
				Properties: props,
			})
		}
	}

	if sv := v.LookupPath(cue.ParsePath("services")); sv.Exists() {
		list, err := sv.List()
		if err != nil {
			return nil, formatCUEError(name, err)
		}
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return nil, formatCUEError(name, err)
			}
			e.ServiceProperties = append(e.ServiceProperties, &ServiceProperty{Name: s})
		}
	}

	if nv := v.LookupPath(cue.ParsePath("navigations")); nv.Exists() {
		iter, err := nv.Fields()
		if err != nil {
			return nil, formatCUEError(name, err)
		}
		for iter.Next() {
			n, err := cueNavigation(name, iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			e.Navigations = append(e.Navigations, n)
		}
	}

	return e, nil
}

func (l *cueLoader) table(entity string, v cue.Value) (*Table, error) {
	tableName, err := optString(v, "table")
	if err != nil {
		return nil, formatCUEError(entity, err)
	}
	if tableName == "" {
		return nil, nil
	}
	schema, err := optString(v, "schema")
	if err != nil {
		return nil, formatCUEError(entity, err)
	}

	key := schema + "." + tableName
	t, ok := l.tables[key]
	if !ok {
		t = &Table{Schema: schema, Name: tableName}
		l.tables[key] = t
	}

	tv := v.LookupPath(cue.ParsePath("temporal"))
	if !tv.Exists() {
		return t, nil
	}
	if b, err := tv.Bool(); err == nil {
		if b && t.Temporal == nil {
			t.Temporal = &TemporalTable{}
		}
		return t, nil
	}
	if tv.IncompleteKind() != cue.StructKind {
		return nil, &LoadError{Entity: entity, Field: "temporal", Message: "temporal must be a bool or a struct", Pos: tv.Pos()}
	}

	tt := &TemporalTable{}
	fields := []struct {
		path string
		dst  *string
	}{
		{"history", &tt.HistoryTable},
		{"period_start.property", &tt.PeriodStartProperty},
		{"period_start.column", &tt.PeriodStartColumn},
		{"period_end.property", &tt.PeriodEndProperty},
		{"period_end.column", &tt.PeriodEndColumn},
	}
	for _, f := range fields {
		if *f.dst, err = optString(tv, f.path); err != nil {
			return nil, formatCUEError(entity, err)
		}
	}
	if tt.SkipPeriodProperties, err = optBool(tv, "skip_period_properties"); err != nil {
		return nil, formatCUEError(entity, err)
	}
	t.Temporal = tt
	return t, nil
}

func cueProperties(entity string, v cue.Value) ([]*Property, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(entity, err)
	}
	var props []*Property
	for iter.Next() {
		pv := iter.Value()
		p := &Property{Name: iter.Label()}
		if p.Key, err = optBool(pv, "key"); err != nil {
			return nil, formatCUEError(entity, err)
		}
		if p.Shadow, err = optBool(pv, "shadow"); err != nil {
			return nil, formatCUEError(entity, err)
		}
		if p.Nullable, err = optBool(pv, "nullable"); err != nil {
			return nil, formatCUEError(entity, err)
		}
		if p.Column, err = optString(pv, "column"); err != nil {
			return nil, formatCUEError(entity, err)
		}
		typeName, err := optString(pv, "type")
		if err != nil {
			return nil, formatCUEError(entity, err)
		}
		if typeName != "" {
			t, ok := shadowTypes[typeName]
			if !ok {
				return nil, &LoadError{Entity: entity, Field: p.Name, Message: fmt.Sprintf("unknown property type %q", typeName), Pos: pv.Pos()}
			}
			p.Type = t
		}
		props = append(props, p)
	}
	return props, nil
}

func cueNavigation(entity, name string, v cue.Value) (*Navigation, error) {
	n := &Navigation{Name: name}
	var err error
	if n.Target, err = optString(v, "target"); err != nil {
		return nil, formatCUEError(entity, err)
	}
	if n.Target == "" {
		return nil, &LoadError{Entity: entity, Field: name, Message: "navigation target is required", Pos: v.Pos()}
	}
	if n.ForeignKey, err = optString(v, "foreign_key"); err != nil {
		return nil, formatCUEError(entity, err)
	}
	if n.Collection, err = optBool(v, "collection"); err != nil {
		return nil, formatCUEError(entity, err)
	}
	if n.Principal, err = optBool(v, "principal"); err != nil {
		return nil, formatCUEError(entity, err)
	}
	return n, nil
}

func optString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", nil
	}
	return f.String()
}

func optBool(v cue.Value, path string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return false, nil
	}
	return f.Bool()
}

package snapshot

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

// Of returns a JSON-ready view of inst, a pointer to a mapped entity. The
// view holds every mapped property by path, the validity period of temporal
// entities and the loaded navigations. A navigation back to an entity
// already being rendered is left out.
func Of(m *model.Model, inst any) (map[string]any, error) {
	r := renderer{model: m, active: map[any]bool{}}
	return r.entity(inst)
}

// List renders instances as a canonical JSON array.
func List(m *model.Model, instances []any) ([]byte, error) {
	out := make([]any, len(instances))
	for i, inst := range instances {
		v, err := Of(m, inst)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return Marshal(out)
}

type renderer struct {
	model  *model.Model
	active map[any]bool
}

func (r *renderer) entity(inst any) (map[string]any, error) {
	rv := reflect.ValueOf(inst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, fmt.Errorf("snapshot of %T: want a non-nil pointer", inst)
	}
	et, ok := r.model.FindByGoType(rv.Type().Elem())
	if !ok {
		return nil, fmt.Errorf("snapshot of %T: not a mapped entity type", inst)
	}

	r.active[inst] = true
	defer delete(r.active, inst)

	out := map[string]any{"$type": et.Name}
	for _, p := range et.AllProperties() {
		if p.Shadow {
			continue
		}
		f, err := rv.Elem().FieldByIndexErr(p.FieldIndex())
		if err != nil {
			// Property inside a nil complex value.
			out[p.Path()] = nil
			continue
		}
		out[p.Path()] = scalar(f)
	}
	if te, ok := inst.(temporal.Entity); ok && et.IsTemporal() {
		out["$validFrom"] = formatTime(te.ValidFrom())
		out["$validTo"] = formatTime(te.ValidTo())
	}

	for _, nav := range et.Navigations {
		f := rv.Elem().FieldByIndex(nav.FieldIndex())
		if nav.Collection {
			if f.IsNil() {
				continue
			}
			items := make([]any, 0, f.Len())
			for i := 0; i < f.Len(); i++ {
				item := f.Index(i).Interface()
				if r.active[item] {
					continue
				}
				v, err := r.entity(item)
				if err != nil {
					return nil, fmt.Errorf("%s.%s[%d]: %w", et.Name, nav.Name, i, err)
				}
				items = append(items, v)
			}
			out[nav.Name] = items
			continue
		}
		if f.IsNil() || r.active[f.Interface()] {
			continue
		}
		v, err := r.entity(f.Interface())
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", et.Name, nav.Name, err)
		}
		out[nav.Name] = v
	}
	return out, nil
}

// scalar converts a property value to a type Marshal accepts.
func scalar(v reflect.Value) any {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	switch x := v.Interface().(type) {
	case time.Time:
		return formatTime(x)
	case uuid.UUID:
		return x.String()
	case []byte:
		if x == nil {
			return nil
		}
		return base64.StdEncoding.EncodeToString(x)
	case fmt.Stringer:
		return x.String()
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		out := make([]any, v.Len())
		for i := range out {
			out[i] = scalar(v.Index(i))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = scalar(iter.Value())
		}
		return out
	case reflect.Struct:
		out := make(map[string]any)
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).IsExported() {
				out[t.Field(i).Name] = scalar(v.Field(i))
			}
		}
		return out
	}
	return fmt.Sprint(v.Interface())
}

func formatTime(t time.Time) string {
	return temporal.FormatInstant(t)
}

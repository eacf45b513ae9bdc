package materialize

import (
	"fmt"
	"reflect"
	"time"

	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

// Interceptor observes and alters materialization. Interceptors run in
// registration order.
type Interceptor interface {
	// CreatingInstance runs before construction. A non-nil result replaces
	// construction; later interceptors are not asked.
	CreatingInstance(data *MaterializationData) (any, error)

	// CreatedInstance runs after construction and may return a substitute.
	CreatedInstance(data *MaterializationData, instance any) (any, error)

	// InitializingInstance runs before property assignment. Returning true
	// suppresses assignment of mapped and service properties.
	InitializingInstance(data *MaterializationData, instance any) (suppress bool, err error)

	// InitializedInstance runs after assignment and may return a substitute.
	InitializedInstance(data *MaterializationData, instance any) (any, error)
}

// NopInterceptor implements Interceptor with no effect. Embed it to
// implement only some of the hooks.
type NopInterceptor struct{}

func (NopInterceptor) CreatingInstance(*MaterializationData) (any, error) { return nil, nil }

func (NopInterceptor) CreatedInstance(_ *MaterializationData, instance any) (any, error) {
	return instance, nil
}

func (NopInterceptor) InitializingInstance(*MaterializationData, any) (bool, error) {
	return false, nil
}

func (NopInterceptor) InitializedInstance(_ *MaterializationData, instance any) (any, error) {
	return instance, nil
}

// accessor reads one property of the current row, typed or raw.
type accessor struct {
	property *model.Property
	read     readFunc
}

// MaterializationData gives interceptors access to the row being
// materialized. Property values are converted lazily, at most once per row,
// and may be overridden before assignment.
type MaterializationData struct {
	EntityType *model.EntityType
	Context    *Context

	accessors map[string]*accessor
	values    []any
	loaded    []bool
}

func newMaterializationData(et *model.EntityType, ctx *Context, accessors map[string]*accessor) *MaterializationData {
	n := len(et.AllProperties())
	return &MaterializationData{
		EntityType: et,
		Context:    ctx,
		accessors:  accessors,
		values:     make([]any, n),
		loaded:     make([]bool, n),
	}
}

func (d *MaterializationData) lookup(path string) (*accessor, error) {
	a, ok := d.accessors[path]
	if !ok {
		return nil, fmt.Errorf("entity type %s has no property %q", d.EntityType.Name, path)
	}
	return a, nil
}

// RawPropertyValue returns the unconverted buffer value of a property.
func (d *MaterializationData) RawPropertyValue(path string) (any, error) {
	a, err := d.lookup(path)
	if err != nil {
		return nil, err
	}
	return d.Context.Buffer[a.property.Index()], nil
}

// PropertyValue returns the converted value of a property, or the value set
// by SetPropertyValue.
func (d *MaterializationData) PropertyValue(path string) (any, error) {
	a, err := d.lookup(path)
	if err != nil {
		return nil, err
	}
	return d.value(a)
}

// SetPropertyValue overrides the value assigned to a property for this row.
func (d *MaterializationData) SetPropertyValue(path string, v any) error {
	a, err := d.lookup(path)
	if err != nil {
		return err
	}
	if v != nil && reflect.TypeOf(v) != a.property.Type {
		return fmt.Errorf("property %q is %s, got %T", path, a.property.Type, v)
	}
	i := a.property.Index()
	d.values[i] = v
	d.loaded[i] = true
	return nil
}

func (d *MaterializationData) value(a *accessor) (any, error) {
	i := a.property.Index()
	if d.loaded[i] {
		return d.values[i], nil
	}
	v, err := a.read(d.Context.Buffer[i])
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", d.EntityType.Name, a.property.Path(), err)
	}
	d.values[i] = v
	d.loaded[i] = true
	return v, nil
}

// PropertyValue returns a property value as T.
func PropertyValue[T any](d *MaterializationData, path string) (T, error) {
	var zero T
	v, err := d.PropertyValue(path)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("property %q holds %T, not %T", path, v, zero)
	}
	return t, nil
}

// PeriodInterceptor stamps the validity period from the period shadow
// properties once an instance is initialized. It is an alternative to the
// period steps the builder adds itself, for builders that disable them.
type PeriodInterceptor struct {
	NopInterceptor
}

// InitializedInstance implements Interceptor.
func (PeriodInterceptor) InitializedInstance(data *MaterializationData, instance any) (any, error) {
	entity, ok := instance.(temporal.Entity)
	if !ok {
		return instance, nil
	}
	start, end := data.EntityType.PeriodProperties()
	if start == nil || end == nil {
		return instance, nil
	}
	from, err := PropertyValue[time.Time](data, start.Path())
	if err != nil {
		return nil, err
	}
	to, err := PropertyValue[time.Time](data, end.Path())
	if err != nil {
		return nil, err
	}
	entity.SetValidFrom(from)
	entity.SetValidTo(to)
	return instance, nil
}

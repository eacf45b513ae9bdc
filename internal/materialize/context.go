package materialize

import (
	"reflect"

	"github.com/dragos-durlut/TemporalTables/internal/model"
)

// ValueBuffer is one row as returned by the store: values in property index
// order.
type ValueBuffer []any

// Services resolves service-typed constructor parameters and service
// properties by exact type.
type Services map[reflect.Type]any

// Add registers v under the static type T.
func Add[T any](s Services, v T) {
	s[model.TypeOf[T]()] = v
}

// Context is the per-row input of a materializer.
type Context struct {
	Buffer   ValueBuffer
	Services Services

	// Target, when non-nil, is populated in place instead of constructing a
	// new instance. It must be a pointer to the entity's Go type.
	Target any
}

// Func materializes one row into an instance of an entity type.
type Func func(ctx *Context) (any, error)

var entityTypeType = reflect.TypeOf((*model.EntityType)(nil))

func (c *Context) service(et *model.EntityType, t reflect.Type) (any, bool) {
	if t == entityTypeType {
		return et, true
	}
	if c.Services == nil {
		return nil, false
	}
	v, ok := c.Services[t]
	return v, ok
}

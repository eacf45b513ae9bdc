package materialize

import (
	"fmt"
	"reflect"
	"time"
	"unsafe"

	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

// state is the per-row scratch space of a compiled plan.
type state struct {
	ctx        *Context
	args       []any
	inst       any
	base       unsafe.Pointer
	data       *MaterializationData
	suppressed bool
}

type op func(st *state) error

// compiled is a plan lowered to a list of closures. All reflection on types
// happens here, once per plan.
type compiled struct {
	et        *model.EntityType
	ptrType   reflect.Type
	ops       []op
	nargs     int
	width     int
	accessors map[string]*accessor
}

func (b *Builder) compile(plan *Plan) Func {
	et := plan.EntityType
	c := &compiled{
		et:      et,
		ptrType: reflect.PointerTo(et.GoType),
	}
	if et.Constructor != nil {
		c.nargs = len(et.Constructor.Params)
	}
	if !plan.Empty {
		c.width = len(et.AllProperties())
	}
	if plan.Intercepted {
		c.accessors = make(map[string]*accessor, len(et.AllProperties()))
		for _, p := range et.AllProperties() {
			c.accessors[p.Path()] = &accessor{property: p, read: propertyReader(p)}
		}
	}

	for _, s := range plan.Steps {
		if o := b.lower(c, s); o != nil {
			c.ops = append(c.ops, o)
		}
	}

	return func(ctx *Context) (any, error) {
		if len(ctx.Buffer) < c.width {
			return nil, fmt.Errorf("materialize %s: row has %d values, want %d", et.Name, len(ctx.Buffer), c.width)
		}
		st := &state{ctx: ctx}
		if c.nargs > 0 {
			st.args = make([]any, c.nargs)
		}
		if c.accessors != nil {
			st.data = newMaterializationData(et, ctx, c.accessors)
		}
		if ctx.Target != nil {
			if err := c.setInstance(st, ctx.Target); err != nil {
				return nil, err
			}
		}
		for _, o := range c.ops {
			if err := o(st); err != nil {
				return nil, err
			}
		}
		return st.inst, nil
	}
}

func (c *compiled) setInstance(st *state, inst any) error {
	if reflect.TypeOf(inst) != c.ptrType {
		return fmt.Errorf("materialize %s: instance is %T, want %s", c.et.Name, inst, c.ptrType)
	}
	base := instancePointer(inst)
	if base == nil {
		return fmt.Errorf("materialize %s: nil instance", c.et.Name)
	}
	st.inst = inst
	st.base = base
	return nil
}

// value returns the converted value of p for the current row.
func (c *compiled) value(st *state, p *model.Property, read readFunc) (any, error) {
	if st.data != nil {
		return st.data.value(c.accessors[p.Path()])
	}
	v, err := read(st.ctx.Buffer[p.Index()])
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c.et.Name, p.Path(), err)
	}
	return v, nil
}

func (b *Builder) lower(c *compiled, s Step) op {
	et := c.et
	switch s.Kind {
	case StepCreating:
		interceptors := b.interceptors
		return func(st *state) error {
			if st.inst != nil {
				return nil
			}
			for _, ic := range interceptors {
				v, err := ic.CreatingInstance(st.data)
				if err != nil {
					return err
				}
				if v != nil {
					return c.setInstance(st, v)
				}
			}
			return nil
		}

	case StepResolveService:
		i := s.Param
		t := et.Constructor.Params[i].Service
		return func(st *state) error {
			if st.inst != nil {
				return nil
			}
			v, ok := st.ctx.service(et, t)
			if !ok {
				return fmt.Errorf("materialize %s: service %s not available", et.Name, t)
			}
			st.args[i] = v
			return nil
		}

	case StepReadParam:
		i, p := s.Param, s.Property
		read := propertyReader(p)
		return func(st *state) error {
			if st.inst != nil {
				return nil
			}
			v, err := c.value(st, p, read)
			if err != nil {
				return err
			}
			st.args[i] = v
			return nil
		}

	case StepConstruct:
		if et.Constructor != nil {
			newFn := et.Constructor.New
			return func(st *state) error {
				if st.inst != nil {
					return nil
				}
				return c.setInstance(st, newFn(st.args))
			}
		}
		factory := et.Factory
		return func(st *state) error {
			if st.inst != nil {
				return nil
			}
			return c.setInstance(st, factory())
		}

	case StepCreated:
		interceptors := b.interceptors
		return func(st *state) error {
			for _, ic := range interceptors {
				v, err := ic.CreatedInstance(st.data, st.inst)
				if err != nil {
					return err
				}
				if v != nil && v != st.inst {
					if err := c.setInstance(st, v); err != nil {
						return err
					}
				}
			}
			return nil
		}

	case StepInitializing:
		interceptors := b.interceptors
		return func(st *state) error {
			for _, ic := range interceptors {
				suppress, err := ic.InitializingInstance(st.data, st.inst)
				if err != nil {
					return err
				}
				st.suppressed = st.suppressed || suppress
			}
			return nil
		}

	case StepAssign:
		return c.assign(s)

	case StepAttachService:
		sp := s.Service
		fa := newFieldAccess(et.GoType, sp.FieldIndex())
		set := newSetter(sp.Type())
		return func(st *state) error {
			if st.suppressed {
				return nil
			}
			v, ok := st.ctx.service(et, sp.Type())
			if !ok {
				return fmt.Errorf("materialize %s: service %s for property %s not available", et.Name, sp.Type(), sp.Name)
			}
			set(fa.addr(et.GoType, st.base), v)
			return nil
		}

	case StepPeriodStart, StepPeriodEnd:
		p := s.Property
		read := func(raw any) (any, error) { return readTime(raw) }
		start := s.Kind == StepPeriodStart
		return func(st *state) error {
			v, err := c.value(st, p, read)
			if err != nil {
				return err
			}
			t, ok := v.(time.Time)
			if !ok {
				return fmt.Errorf("materialize %s: period property %s holds %T", et.Name, p.Name, v)
			}
			entity := st.inst.(temporal.Entity)
			if start {
				entity.SetValidFrom(t)
			} else {
				entity.SetValidTo(t)
			}
			return nil
		}

	case StepInitialized:
		interceptors := b.interceptors
		return func(st *state) error {
			for _, ic := range interceptors {
				v, err := ic.InitializedInstance(st.data, st.inst)
				if err != nil {
					return err
				}
				if v != nil && v != st.inst {
					if err := c.setInstance(st, v); err != nil {
						return err
					}
				}
			}
			return nil
		}
	}
	return nil
}

func (c *compiled) assign(s Step) op {
	et := c.et
	p := s.Property
	read := propertyReader(p)
	set := newSetter(p.Type)
	if isCollection(p.Type) {
		set = collectionSetter(p.Type, set)
	}

	if s.Complex == nil {
		fa := newFieldAccess(et.GoType, p.FieldIndex())
		return func(st *state) error {
			if st.suppressed {
				return nil
			}
			v, err := c.value(st, p, read)
			if err != nil {
				return err
			}
			set(fa.addr(et.GoType, st.base), v)
			return nil
		}
	}

	cfa := newFieldAccess(et.GoType, s.Complex.FieldIndex())
	ct := s.Complex.Type()
	isPtr := ct.Kind() == reflect.Pointer
	elem := ct
	if isPtr {
		elem = ct.Elem()
	}
	fa := newFieldAccess(elem, p.FieldIndex())
	return func(row *state) error {
		if row.suppressed {
			return nil
		}
		v, err := c.value(row, p, read)
		if err != nil {
			return err
		}
		holder := cfa.addr(et.GoType, row.base)
		if isPtr {
			pp := (*unsafe.Pointer)(holder)
			if *pp == nil {
				*pp = reflect.New(elem).UnsafePointer()
			}
			holder = *pp
		}
		set(fa.addr(elem, holder), v)
		return nil
	}
}

// propertyReader returns the reader for p, applying its converter.
func propertyReader(p *model.Property) readFunc {
	if p.Converter == nil {
		return newReader(p.Type)
	}
	conv := p.Converter
	want := p.Type
	zero := reflect.Zero(want).Interface()
	return func(raw any) (any, error) {
		if raw == nil {
			return zero, nil
		}
		v, err := conv.FromProvider(raw)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return zero, nil
		}
		if reflect.TypeOf(v) != want {
			return nil, fmt.Errorf("converter %s returned %T, want %s", conv.Name, v, want)
		}
		return v, nil
	}
}

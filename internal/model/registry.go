package model

import (
	"reflect"
	"sync"
)

// Registry binds entity names used in CUE models to Go types.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

type registration struct {
	goType  reflect.Type
	factory func() any
	ctor    *Constructor
}

// RegisterOption configures a registration.
type RegisterOption func(*registration)

// WithConstructor makes instances of the type come from c instead of the
// zero-value factory.
func WithConstructor(c *Constructor) RegisterOption {
	return func(r *registration) { r.ctor = c }
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register binds name to the struct type T.
func Register[T any](r *Registry, name string, opts ...RegisterOption) {
	reg := registration{
		goType:  TypeOf[T](),
		factory: func() any { return new(T) },
	}
	for _, opt := range opts {
		opt(&reg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = reg
}

// TypeOf returns the reflect type of T.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (r *Registry) lookup(name string) (registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	return reg, ok
}

// Names returns registered names. Order is unspecified.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	return names
}

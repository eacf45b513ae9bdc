package materialize

import (
	"reflect"
	"unsafe"
)

// Collection is implemented by pointer-typed primitive collections that must
// keep their identity across materializations. When both the field and the
// freshly read value are non-nil, the field's collection is cleared and
// refilled from the read value instead of being replaced.
type Collection interface {
	Clear()
	Items() []any
	Add(v any)
}

var collectionType = reflect.TypeOf((*Collection)(nil)).Elem()

// isCollection reports whether fields of type t are repopulated in place.
func isCollection(t reflect.Type) bool {
	if t.Kind() == reflect.Map {
		return true
	}
	return (t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface) && t.Implements(collectionType)
}

// collectionSetter wraps set so that a non-nil incoming collection refills a
// non-nil existing one in place. Either side being nil falls back to set.
func collectionSetter(t reflect.Type, set setFunc) setFunc {
	if t.Kind() == reflect.Map {
		return func(ptr unsafe.Pointer, v any) {
			cur := reflect.NewAt(t, ptr).Elem()
			if v == nil || cur.IsNil() {
				set(ptr, v)
				return
			}
			next := reflect.ValueOf(v)
			if next.IsNil() {
				set(ptr, v)
				return
			}
			if next.UnsafePointer() == cur.UnsafePointer() {
				return
			}
			cur.Clear()
			iter := next.MapRange()
			for iter.Next() {
				cur.SetMapIndex(iter.Key(), iter.Value())
			}
		}
	}
	return func(ptr unsafe.Pointer, v any) {
		cur := reflect.NewAt(t, ptr).Elem()
		if v == nil || cur.IsNil() {
			set(ptr, v)
			return
		}
		next, ok := v.(Collection)
		if !ok || isNil(reflect.ValueOf(v)) {
			set(ptr, v)
			return
		}
		existing := cur.Interface().(Collection)
		if samePointer(reflect.ValueOf(existing), reflect.ValueOf(next)) {
			return
		}
		existing.Clear()
		for _, item := range next.Items() {
			existing.Add(item)
		}
	}
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func samePointer(a, b reflect.Value) bool {
	return a.Kind() == reflect.Pointer && b.Kind() == reflect.Pointer && a.UnsafePointer() == b.UnsafePointer()
}

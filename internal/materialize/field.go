package materialize

import (
	"reflect"
	"time"
	"unsafe"

	"github.com/google/uuid"
)

// setFunc stores an already converted value into the field at ptr. A nil
// value stores the zero value.
type setFunc func(ptr unsafe.Pointer, v any)

// fieldAccess locates a struct field relative to the start of the struct.
// Paths through embedded values collapse into a single offset; paths through
// embedded pointers keep the reflect index and are resolved per call.
type fieldAccess struct {
	typ    reflect.Type
	offset uintptr
	index  []int
	direct bool
}

func newFieldAccess(root reflect.Type, index []int) fieldAccess {
	fa := fieldAccess{index: index, direct: true}
	t := root
	for i, fi := range index {
		sf := t.Field(fi)
		fa.offset += sf.Offset
		t = sf.Type
		if i < len(index)-1 && t.Kind() == reflect.Pointer {
			fa.direct = false
		}
	}
	fa.typ = t
	return fa
}

// addr returns the address of the field in the struct at base. root is the
// struct's type.
func (f fieldAccess) addr(root reflect.Type, base unsafe.Pointer) unsafe.Pointer {
	if f.direct {
		return unsafe.Add(base, f.offset)
	}
	v := reflect.NewAt(root, base).Elem()
	for _, fi := range f.index {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(fi)
	}
	return v.Addr().UnsafePointer()
}

// newSetter returns a setter for fields of type t. Common scalar types are
// stored through typed pointers; everything else goes through reflect.
func newSetter(t reflect.Type) setFunc {
	switch t {
	case stringType:
		return typedSetter[string]()
	case bytesType:
		return typedSetter[[]byte]()
	case timeType:
		return typedSetter[time.Time]()
	case uuidType:
		return typedSetter[uuid.UUID]()
	case reflect.TypeOf(int64(0)):
		return typedSetter[int64]()
	case reflect.TypeOf(int(0)):
		return typedSetter[int]()
	case reflect.TypeOf(int32(0)):
		return typedSetter[int32]()
	case reflect.TypeOf(float64(0)):
		return typedSetter[float64]()
	case reflect.TypeOf(false):
		return typedSetter[bool]()
	}
	return reflectSetter(t)
}

func typedSetter[T any]() setFunc {
	return func(ptr unsafe.Pointer, v any) {
		if v == nil {
			var zero T
			*(*T)(ptr) = zero
			return
		}
		*(*T)(ptr) = v.(T)
	}
}

func reflectSetter(t reflect.Type) setFunc {
	zero := reflect.Zero(t)
	return func(ptr unsafe.Pointer, v any) {
		dst := reflect.NewAt(t, ptr).Elem()
		if v == nil {
			dst.Set(zero)
			return
		}
		dst.Set(reflect.ValueOf(v))
	}
}

// instancePointer returns the address of the struct an entity pointer
// refers to.
func instancePointer(inst any) unsafe.Pointer {
	return reflect.ValueOf(inst).UnsafePointer()
}

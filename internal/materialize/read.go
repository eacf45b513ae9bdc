package materialize

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// readFunc converts a raw driver value into a value of the property type.
// A nil raw value yields the zero value of the type.
type readFunc func(raw any) (any, error)

// timestampFormats are the layouts accepted for textual timestamps, in the
// order they are tried. Fixed-width RFC 3339 with seven fractional digits is
// what the store writes.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

var (
	stringType = reflect.TypeOf("")
	bytesType  = reflect.TypeOf([]byte(nil))
	timeType   = reflect.TypeOf(time.Time{})
	uuidType   = reflect.TypeOf(uuid.UUID{})
)

// newReader returns the reader for values of type t. Common scalar types get
// dedicated readers; anything else falls back to reflect conversion.
func newReader(t reflect.Type) readFunc {
	switch t {
	case stringType:
		return func(raw any) (any, error) { return readString(raw) }
	case bytesType:
		return func(raw any) (any, error) { return readBytes(raw) }
	case timeType:
		return func(raw any) (any, error) { return readTime(raw) }
	case uuidType:
		return func(raw any) (any, error) { return readUUID(raw) }
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		bits := t.Bits()
		kind := t.Kind()
		if t.PkgPath() == "" {
			return func(raw any) (any, error) {
				n, err := readInt(raw, bits)
				if err != nil {
					return nil, err
				}
				return boxInt(kind, n), nil
			}
		}
		// Named integers get the same range checks as the builtin kinds.
		return func(raw any) (any, error) {
			if raw != nil && reflect.TypeOf(raw) == t {
				return raw, nil
			}
			n, err := readInt(raw, bits)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(n).Convert(t).Interface(), nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		bits := t.Bits()
		return func(raw any) (any, error) {
			if raw != nil && reflect.TypeOf(raw) == t {
				return raw, nil
			}
			n, err := readUint(raw, bits)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(n).Convert(t).Interface(), nil
		}
	case reflect.Float64:
		if t.PkgPath() == "" {
			return func(raw any) (any, error) { return readFloat(raw) }
		}
	case reflect.Bool:
		if t.PkgPath() == "" {
			return func(raw any) (any, error) { return readBool(raw) }
		}
	case reflect.Pointer:
		elem := newReader(t.Elem())
		return func(raw any) (any, error) {
			if raw == nil {
				return reflect.Zero(t).Interface(), nil
			}
			v, err := elem(raw)
			if err != nil {
				return nil, err
			}
			p := reflect.New(t.Elem())
			p.Elem().Set(reflect.ValueOf(v))
			return p.Interface(), nil
		}
	}
	return reflectReader(t)
}

func reflectReader(t reflect.Type) readFunc {
	zero := reflect.Zero(t).Interface()
	return func(raw any) (any, error) {
		if raw == nil {
			return zero, nil
		}
		v := reflect.ValueOf(raw)
		switch {
		case v.Type().AssignableTo(t):
			return raw, nil
		case v.Type().ConvertibleTo(t) && convertSafe(v.Kind(), t.Kind()):
			return v.Convert(t).Interface(), nil
		}
		// Named scalar types read through their underlying kind.
		if base := underlying(t); base != nil {
			u, err := newReader(base)(raw)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(u).Convert(t).Interface(), nil
		}
		return nil, fmt.Errorf("cannot read %T as %s", raw, t)
	}
}

// convertSafe rejects reflect conversions that reinterpret instead of
// converting, such as int64 to string.
func convertSafe(from, to reflect.Kind) bool {
	if to == reflect.String {
		return from == reflect.String || from == reflect.Slice
	}
	return true
}

func underlying(t reflect.Type) reflect.Type {
	switch t.Kind() {
	case reflect.String:
		return stringType
	case reflect.Float32, reflect.Float64:
		return reflect.TypeOf(float64(0))
	case reflect.Bool:
		return reflect.TypeOf(false)
	}
	return nil
}

func readString(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fmt.Errorf("cannot read %T as string", raw)
}

func readBytes(raw any) ([]byte, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("cannot read %T as []byte", raw)
}

func readInt(raw any, bits int) (int64, error) {
	var n int64
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int64:
		n = v
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, fmt.Errorf("cannot read %v as integer", v)
		}
		n = int64(v)
	case []byte:
		return readInt(string(v), bits)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, bits)
		if err != nil {
			return 0, fmt.Errorf("cannot read %q as integer: %w", v, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot read %T as integer", raw)
	}
	if bits < 64 && (n < -(1<<(bits-1)) || n > (1<<(bits-1))-1) {
		return 0, fmt.Errorf("value %d overflows int%d", n, bits)
	}
	return n, nil
}

func readUint(raw any, bits int) (uint64, error) {
	var n uint64
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case uint64:
		n = v
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("cannot read negative %d as unsigned", v)
		}
		n = uint64(v)
	case int:
		return readUint(int64(v), bits)
	case int32:
		return readUint(int64(v), bits)
	case float64:
		if v != math.Trunc(v) || v < 0 || v >= math.MaxUint64 {
			return 0, fmt.Errorf("cannot read %v as unsigned integer", v)
		}
		n = uint64(v)
	case []byte:
		return readUint(string(v), bits)
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, bits)
		if err != nil {
			return 0, fmt.Errorf("cannot read %q as unsigned integer: %w", v, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot read %T as unsigned integer", raw)
	}
	if bits < 64 && n > (1<<bits)-1 {
		return 0, fmt.Errorf("value %d overflows uint%d", n, bits)
	}
	return n, nil
}

func boxInt(kind reflect.Kind, n int64) any {
	switch kind {
	case reflect.Int:
		return int(n)
	case reflect.Int8:
		return int8(n)
	case reflect.Int16:
		return int16(n)
	case reflect.Int32:
		return int32(n)
	}
	return n
}

func readFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case []byte:
		return readFloat(string(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot read %q as float: %w", v, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot read %T as float", raw)
}

func readBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case []byte:
		return readBool(string(v))
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("cannot read %q as bool: %w", v, err)
		}
		return b, nil
	}
	return false, fmt.Errorf("cannot read %T as bool", raw)
}

func readTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v.UTC(), nil
	case []byte:
		return parseTime(string(v))
	case string:
		return parseTime(v)
	case int64:
		return time.Unix(v, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot read %T as time", raw)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

func readUUID(raw any) (uuid.UUID, error) {
	switch v := raw.(type) {
	case nil:
		return uuid.Nil, nil
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	case string:
		return uuid.Parse(v)
	}
	return uuid.Nil, fmt.Errorf("cannot read %T as uuid", raw)
}

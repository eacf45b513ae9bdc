package model

import (
	"fmt"
	"reflect"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Converter translates a property value between its provider (storage)
// representation and its Go type.
type Converter struct {
	Name string

	// FromProvider converts a non-nil provider value into the property type.
	FromProvider func(v any) (any, error)

	// ToProvider converts a non-nil property value for storage.
	ToProvider func(v any) (any, error)
}

// JSONConverter stores values of type t as JSON text. It is the default
// converter for primitive collections (slices and maps).
func JSONConverter(t reflect.Type) *Converter {
	return &Converter{
		Name: "json",
		FromProvider: func(v any) (any, error) {
			var raw []byte
			switch x := v.(type) {
			case string:
				raw = []byte(x)
			case []byte:
				raw = x
			default:
				return nil, fmt.Errorf("json converter: unexpected provider type %T", v)
			}
			ptr := reflect.New(t)
			if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
				return nil, fmt.Errorf("json converter: %w", err)
			}
			return ptr.Elem().Interface(), nil
		},
		ToProvider: func(v any) (any, error) {
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("json converter: %w", err)
			}
			return string(raw), nil
		},
	}
}

package util

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Field describes one exported struct field as a tool parameter.
type Field struct {
	Name        string
	Type        string
	Required    bool
	Description string
	Default     string
	Enum        []string
}

// StructFields derives parameter descriptors from a struct using its json,
// description, default and enum tags. Pointer and omitempty fields are
// optional; everything else is required.
func StructFields(structType any) ([]Field, error) {
	t := reflect.TypeOf(structType)
	if t == nil {
		return nil, fmt.Errorf("nil struct type")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct, got %s", t.Kind())
	}

	fields := make([]Field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		jsonTag := f.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name := f.Name
		if parts := strings.Split(jsonTag, ","); parts[0] != "" {
			name = parts[0]
		}
		field := Field{
			Name:        name,
			Type:        JSONType(f.Type),
			Required:    !hasOmitEmpty(jsonTag) && f.Type.Kind() != reflect.Ptr,
			Description: f.Tag.Get("description"),
			Default:     f.Tag.Get("default"),
		}
		if enum := f.Tag.Get("enum"); enum != "" {
			field.Enum = strings.Split(enum, ",")
		}
		if field.Default != "" {
			field.Required = false
		}
		fields = append(fields, field)
	}
	return fields, nil
}

// JSONType returns the JSON schema type for a given Go type.
func JSONType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return JSONType(t.Elem())
	default:
		return "string"
	}
}

func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// MatchesType checks if a decoded JSON value is valid for the expected JSON
// schema type. Unknown types accept anything.
func MatchesType(value any, expectedType string) bool {
	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return v == float64(int64(v))
		case float32:
			return v == float32(int64(v))
		case json.Number:
			_, err := v.Int64()
			return err == nil
		}
		return false
	case "number":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		case json.Number:
			_, err := v.Float64()
			return err == nil
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		if value == nil {
			return false
		}
		k := reflect.TypeOf(value).Kind()
		return k == reflect.Slice || k == reflect.Array
	case "object":
		if value == nil {
			return false
		}
		return reflect.TypeOf(value).Kind() == reflect.Map
	default:
		return true
	}
}

// DescribeType names the JSON type of a decoded value for error messages.
func DescribeType(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float32, float64, json.Number:
		if MatchesType(v, "integer") {
			return "integer"
		}
		return "number"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	}
	return fmt.Sprintf("%T", value)
}

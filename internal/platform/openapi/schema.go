package openapi

import (
	"encoding"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	timeType          = reflect.TypeOf(time.Time{})
	uuidType          = reflect.TypeOf(uuid.UUID{})
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// formatHint lets a text-marshaled type name its string format.
type formatHint interface {
	OpenAPIFormat() string
}

// SchemaOf reflects a JSON object schema from a struct value, following
// json tags and inlining embedded structs. Fields with a validate tag
// containing "required" are listed as required.
func SchemaOf(v interface{}) map[string]interface{} {
	return schemaFor(reflect.TypeOf(v))
}

func schemaFor(t reflect.Type) map[string]interface{} {
	nullable := false
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
		nullable = true
	}
	s := baseSchema(t)
	if nullable {
		s["nullable"] = true
	}
	return s
}

func baseSchema(t reflect.Type) map[string]interface{} {
	switch {
	case t == timeType:
		return map[string]interface{}{"type": "string", "format": "date-time"}
	case t == uuidType:
		return map[string]interface{}{"type": "string", "format": "uuid"}
	case t.Implements(textMarshalerType) || reflect.PtrTo(t).Implements(textMarshalerType):
		s := map[string]interface{}{"type": "string"}
		if h, ok := reflect.Zero(t).Interface().(formatHint); ok {
			s["format"] = h.OpenAPIFormat()
		}
		return s
	}

	switch t.Kind() {
	case reflect.String:
		return map[string]interface{}{"type": "string"}
	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]interface{}{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}
	case reflect.Slice, reflect.Array:
		return map[string]interface{}{"type": "array", "items": schemaFor(t.Elem())}
	case reflect.Map:
		return map[string]interface{}{"type": "object", "additionalProperties": schemaFor(t.Elem())}
	case reflect.Struct:
		props := make(map[string]interface{})
		var required []string
		collectFields(t, props, &required)
		s := map[string]interface{}{"type": "object", "properties": props}
		if len(required) > 0 {
			s["required"] = required
		}
		return s
	default:
		return map[string]interface{}{}
	}
}

func collectFields(t reflect.Type, props map[string]interface{}, required *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			collectFields(f.Type, props, required)
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		props[name] = schemaFor(f.Type)
		for _, rule := range strings.Split(f.Tag.Get("validate"), ",") {
			if rule == "required" {
				*required = append(*required, name)
			}
		}
	}
}

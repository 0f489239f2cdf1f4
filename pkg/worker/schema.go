package worker

import (
	"reflect"
	"strings"
)

// generateSchema builds a draft-07 JSON Schema for a handler input type.
// Used when register_task_def uploads the definition at startup.
func generateSchema(t reflect.Type) map[string]interface{} {
	schema := schemaFor(t)
	if schema == nil {
		return nil
	}
	schema["$schema"] = "http://json-schema.org/draft-07/schema#"
	return schema
}

func schemaFor(t reflect.Type) map[string]interface{} {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
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
		items := schemaFor(t.Elem())
		if items == nil {
			items = map[string]interface{}{}
		}
		return map[string]interface{}{"type": "array", "items": items}
	case reflect.Map:
		return map[string]interface{}{"type": "object"}
	case reflect.Struct:
		return structSchema(t)
	case reflect.Interface:
		// Any value is acceptable.
		return map[string]interface{}{}
	default:
		return nil
	}
}

func structSchema(t reflect.Type) map[string]interface{} {
	properties := map[string]interface{}{}
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, omitempty, skip := jsonFieldName(field)
		if skip {
			continue
		}

		prop := schemaFor(field.Type)
		if prop == nil {
			prop = map[string]interface{}{}
		}
		properties[name] = prop

		if field.Type.Kind() != reflect.Pointer && !omitempty {
			required = append(required, name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func jsonFieldName(field reflect.StructField) (name string, omitempty, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = field.Name
	}
	for _, p := range parts[1:] {
		if p == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

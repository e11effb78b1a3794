// Copyright (c) Microsoft. All rights reserved.

package agent

import (
	"encoding/json"
	"reflect"
	"strings"
)

func generateSchemaFromType(t reflect.Type) json.RawMessage {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	schema := schemaForType(t)
	if schema["type"] != "object" {
		// Function parameters must be an object.
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	b, _ := json.Marshal(schema)
	return b
}

func schemaForType(t reflect.Type) map[string]any {
	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": schemaForType(t.Elem())}
	case reflect.Ptr:
		return schemaForType(t.Elem())
	case reflect.Struct:
		return schemaForStruct(t)
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			return map[string]any{"type": "object", "additionalProperties": schemaForType(t.Elem())}
		}
		return map[string]any{"type": "object"}
	default:
		return map[string]any{"type": "string"}
	}
}

func schemaForStruct(t reflect.Type) map[string]any {
	properties := make(map[string]any)
	required := []string{}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, ok := jsonFieldName(field)
		if !ok {
			continue
		}

		prop := schemaForType(field.Type)
		if tag := field.Tag.Get("jsonschema"); tag != "" {
			if applySchemaTag(prop, tag) {
				required = append(required, name)
			}
		}
		properties[name] = prop
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func jsonFieldName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return field.Name, true
}

// applySchemaTag applies description, enum and default keys to prop and
// reports whether the field is marked required.
func applySchemaTag(prop map[string]any, tag string) (required bool) {
	for _, part := range strings.Split(tag, ",") {
		key, val, _ := strings.Cut(part, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		switch key {
		case "description":
			prop["description"] = val
		case "required":
			required = true
		case "enum":
			var vals []any
			for _, v := range strings.Split(val, "|") {
				vals = append(vals, strings.TrimSpace(v))
			}
			prop["enum"] = vals
		case "default":
			prop["default"] = val
		}
	}
	return required
}

package tools

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
)

// validateParams checks params against the schema: required fields,
// primitive types, enum, pattern, minimum/maximum, nested objects and
// arrays. It covers the subset of JSON Schema the builtin tools declare.
func validateParams(params map[string]any, schema *JSONSchema) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}
	return validateValue(params, schema, "")
}

func validateValue(value any, schema *JSONSchema, path string) error {
	if schema == nil {
		return nil
	}

	expectedType := schema.Type
	if expectedType == "" {
		switch {
		case schema.Items != nil:
			expectedType = "array"
		case len(schema.Properties) > 0 || len(schema.Required) > 0:
			expectedType = "object"
		}
	}

	if expectedType != "" {
		if err := validateType(value, expectedType); err != nil {
			return wrapFieldError(path, err)
		}
	}

	if len(schema.Enum) > 0 && !valueInEnum(value, schema.Enum) {
		return wrapFieldError(path, fmt.Errorf("expected one of %v but got %v", schema.Enum, value))
	}

	if schema.Pattern != "" {
		str, ok := value.(string)
		if !ok {
			return wrapFieldError(path, fmt.Errorf("expected string but got %T", value))
		}
		re, err := regexp.Compile(schema.Pattern)
		if err != nil {
			return wrapFieldError(path, fmt.Errorf("invalid pattern %q: %w", schema.Pattern, err))
		}
		if !re.MatchString(str) {
			return wrapFieldError(path, fmt.Errorf("string %q does not match pattern %q", str, schema.Pattern))
		}
	}

	if schema.Minimum != nil || schema.Maximum != nil {
		num, ok := toFloat64(value)
		if !ok {
			return wrapFieldError(path, fmt.Errorf("expected number but got %T", value))
		}
		if schema.Minimum != nil && num < *schema.Minimum {
			return wrapFieldError(path, fmt.Errorf("value %v is less than minimum %v", num, *schema.Minimum))
		}
		if schema.Maximum != nil && num > *schema.Maximum {
			return wrapFieldError(path, fmt.Errorf("value %v exceeds maximum %v", num, *schema.Maximum))
		}
	}

	switch expectedType {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return wrapFieldError(path, fmt.Errorf("expected object but got %T", value))
		}
		for _, field := range schema.Required {
			if _, exists := obj[field]; !exists {
				return fmt.Errorf("missing required field: %s", joinPath(path, field))
			}
		}
		for key, child := range obj {
			propSchema, ok := schema.Properties[key]
			if !ok || propSchema == nil {
				continue
			}
			if err := validateValue(child, propSchema, joinPath(path, key)); err != nil {
				return err
			}
		}
	case "array":
		if schema.Items == nil {
			return nil
		}
		arr, ok := value.([]any)
		if !ok {
			return wrapFieldError(path, fmt.Errorf("expected array but got %T", value))
		}
		for idx, item := range arr {
			if err := validateValue(item, schema.Items, fmt.Sprintf("%s[%d]", path, idx)); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateType(value any, expected string) error {
	switch expected {
	case "string":
		if _, ok := value.(string); ok {
			return nil
		}
	case "number":
		if _, ok := toFloat64(value); ok {
			return nil
		}
	case "integer":
		if isInteger(value) {
			return nil
		}
	case "boolean":
		if _, ok := value.(bool); ok {
			return nil
		}
	case "object":
		if _, ok := value.(map[string]any); ok {
			return nil
		}
	case "array":
		if _, ok := value.([]any); ok {
			return nil
		}
	case "null":
		if value == nil {
			return nil
		}
	default:
		return fmt.Errorf("unsupported schema type %q", expected)
	}
	return fmt.Errorf("expected %s but got %T", expected, value)
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case float32:
		return math.Trunc(float64(v)) == float64(v)
	case float64:
		return math.Trunc(v) == v
	}
	return false
}

func valueInEnum(value any, values []any) bool {
	for _, candidate := range values {
		if aNum, ok := toFloat64(value); ok {
			if bNum, ok := toFloat64(candidate); ok && aNum == bNum {
				return true
			}
			continue
		}
		if reflect.DeepEqual(value, candidate) {
			return true
		}
	}
	return false
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}

func wrapFieldError(path string, err error) error {
	if path == "" {
		return err
	}
	return fmt.Errorf("field %s: %w", path, err)
}

package schema

import (
	"fmt"
	"strings"
)

// FieldType identifies the type of a persistent field.
// The set is sealed - no floats (non-deterministic across hosts) and no
// nested structures (prefix compatibility is defined over flat fields).
type FieldType string

const (
	// TypeInt is a signed 64-bit integer.
	TypeInt FieldType = "int"

	// TypeUint is an unsigned integer, stored as a non-negative int64.
	TypeUint FieldType = "uint"

	// TypeString is a UTF-8 string.
	TypeString FieldType = "string"

	// TypeBool is a boolean.
	TypeBool FieldType = "bool"
)

// ValidFieldTypes defines the allowed field types.
var ValidFieldTypes = map[FieldType]bool{
	TypeInt:    true,
	TypeUint:   true,
	TypeString: true,
	TypeBool:   true,
}

// Field is one named, typed slot in a component's persistent storage.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Schema describes the ordered persistent fields an implementation expects,
// plus slots reserved for future appends.
type Schema struct {
	Fields   []Field `json:"fields"`
	Reserved int     `json:"reserved,omitempty"`
}

// Zero returns the zero value for a field type.
// Appended fields read as their zero value until explicitly set.
func (t FieldType) Zero() any {
	switch t {
	case TypeInt, TypeUint:
		return int64(0)
	case TypeString:
		return ""
	case TypeBool:
		return false
	default:
		return nil
	}
}

// CheckValue verifies that v is a valid runtime value for the field type.
// Runtime values are int64, string, or bool - never float64 or nil.
func (t FieldType) CheckValue(v any) error {
	switch t {
	case TypeInt:
		if _, ok := v.(int64); !ok {
			return fmt.Errorf("expected int64 for %s field, got %T", t, v)
		}
	case TypeUint:
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("expected int64 for %s field, got %T", t, v)
		}
		if n < 0 {
			return fmt.Errorf("negative value %d for %s field", n, t)
		}
	case TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string for %s field, got %T", t, v)
		}
	case TypeBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected bool for %s field, got %T", t, v)
		}
	default:
		return fmt.Errorf("unknown field type %q", t)
	}
	return nil
}

// Coerce converts a decoded JSON or YAML value into the field's runtime
// representation. JSON decodes integers as float64 and YAML as int; both
// are normalized to int64. Fractional floats are rejected - there is no
// float field type.
func (t FieldType) Coerce(v any) (any, error) {
	switch t {
	case TypeInt, TypeUint:
		switch n := v.(type) {
		case int64:
		case int:
			v = int64(n)
		case float64:
			if n != float64(int64(n)) {
				return nil, fmt.Errorf("fractional value %v for %s field", n, t)
			}
			v = int64(n)
		default:
			return nil, fmt.Errorf("expected integer for %s field, got %T", t, v)
		}
	}
	if err := t.CheckValue(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate checks structural well-formedness of a schema: non-empty unique
// field names, known types, and a non-negative reservation.
// Compatibility across versions is a separate concern - see Check.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s.Fields))
	for i, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("fields[%d]: name is required", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("fields[%d]: duplicate field name %q", i, f.Name)
		}
		seen[f.Name] = true
		if !ValidFieldTypes[f.Type] {
			return fmt.Errorf("fields[%d] %q: invalid type %q", i, f.Name, f.Type)
		}
	}
	if s.Reserved < 0 {
		return fmt.Errorf("reserved must be non-negative, got %d", s.Reserved)
	}
	return nil
}

// FieldNamed returns the field with the given name and whether it exists.
func (s Schema) FieldNamed(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ZeroStorage returns a storage object with every field set to its zero value.
func (s Schema) ZeroStorage() map[string]any {
	storage := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		storage[f.Name] = f.Type.Zero()
	}
	return storage
}

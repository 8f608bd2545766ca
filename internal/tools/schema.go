// ABOUTME: JSON-Schema-like argument declarations for tools and their validation.
// ABOUTME: Checks presence, primitive type, and enum membership of every declared argument.

package tools

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Primitive argument types understood by the validator.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// Property declares one tool argument.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema is the inputSchema advertised in tools/list and enforced by tools/call.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ObjectSchema builds an object schema from its properties and required names.
func ObjectSchema(properties map[string]Property, required ...string) Schema {
	if properties == nil {
		properties = map[string]Property{}
	}
	return Schema{
		Type:       TypeObject,
		Properties: properties,
		Required:   required,
	}
}

// check verifies the schema is internally consistent.
func (s Schema) check() error {
	if s.Type != TypeObject {
		return fmt.Errorf("schema type must be %q, got %q", TypeObject, s.Type)
	}
	for name, prop := range s.Properties {
		switch prop.Type {
		case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray:
		default:
			return fmt.Errorf("property %q has unsupported type %q", name, prop.Type)
		}
		if len(prop.Enum) > 0 && prop.Type != TypeString {
			return fmt.Errorf("property %q: enum is only supported for strings", name)
		}
	}
	for _, name := range s.Required {
		if _, ok := s.Properties[name]; !ok {
			return fmt.Errorf("required argument %q is not declared", name)
		}
	}
	return nil
}

// Validate checks every declared argument and returns one message per
// violation, in a stable order: required arguments first, then the remaining
// declared properties alphabetically. Undeclared arguments are ignored.
func (s Schema) Validate(args Arguments) []string {
	var problems []string

	checked := make(map[string]bool, len(s.Properties))
	for _, name := range s.Required {
		checked[name] = true
		value, ok := args[name]
		if !ok || value == nil {
			problems = append(problems, fmt.Sprintf("%s is required", name))
			continue
		}
		if msg := s.Properties[name].check(name, value); msg != "" {
			problems = append(problems, msg)
		}
	}

	optional := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		if !checked[name] {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)

	for _, name := range optional {
		value, ok := args[name]
		if !ok || value == nil {
			continue
		}
		if msg := s.Properties[name].check(name, value); msg != "" {
			problems = append(problems, msg)
		}
	}

	return problems
}

// check returns a violation message for value, or "" when it conforms.
func (p Property) check(name string, value any) string {
	switch p.Type {
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return fmt.Sprintf("%s must be a string", name)
		}
		if len(p.Enum) > 0 && !contains(p.Enum, str) {
			return fmt.Sprintf("%s must be one of: %s", name, strings.Join(p.Enum, ", "))
		}
	case TypeNumber:
		if _, ok := value.(float64); !ok {
			return fmt.Sprintf("%s must be a number", name)
		}
	case TypeInteger:
		f, ok := value.(float64)
		if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
			return fmt.Sprintf("%s must be an integer", name)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("%s must be a boolean", name)
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Sprintf("%s must be an object", name)
		}
	case TypeArray:
		if _, ok := value.([]any); !ok {
			return fmt.Sprintf("%s must be an array", name)
		}
	}
	return ""
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

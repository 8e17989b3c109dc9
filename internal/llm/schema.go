package llm

import (
	"encoding/json"
	"strings"
)

// JSONSchema represents a JSON Schema definition for structured output.
type JSONSchema struct {
	Type                 string                 `json:"type"`
	Description          string                 `json:"description,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"` // for array type
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
}

// ResponseFormat names a schema the reply must conform to.
type ResponseFormat struct {
	Name   string      `json:"name"`
	Schema *JSONSchema `json:"schema"`
}

// ObjectSchema creates a closed object schema; every listed property is required.
func ObjectSchema(desc string, props map[string]*JSONSchema, required ...string) *JSONSchema {
	closed := false
	return &JSONSchema{
		Type:                 "object",
		Description:          desc,
		Properties:           props,
		Required:             required,
		AdditionalProperties: &closed,
	}
}

// StringProp creates a JSON Schema for a string property.
func StringProp(desc string) *JSONSchema {
	return &JSONSchema{Type: "string", Description: desc}
}

// ArrayProp creates a JSON Schema for an array property.
func ArrayProp(desc string, items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: "array", Description: desc, Items: items}
}

// String renders the schema as indented JSON for inclusion in prompts.
func (s *JSONSchema) String() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// TrimJSON strips markdown code fences and surrounding prose some models wrap
// around a JSON object.
func TrimJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

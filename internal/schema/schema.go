// Copyright 2025 The toolmux Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package schema converts the raw JSON Schema documents advertised by tool
// servers into the restricted shape calling models accept. The schema is
// modeled as a tagged variant (primitive, array, object) and cleaning is a
// structural transform over that variant: disallowed and non-portable keys
// are stripped, unrepresentable subtrees are dropped rather than reported as
// errors, and required lists are pruned to fields that survive cleaning.
package schema

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the variant of a schema node.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// Schema is one node of a cleaned input schema. Items is set for arrays,
// Properties and Required for objects.
type Schema struct {
	Kind        Kind
	Description string
	Enum        []any
	Items       *Schema
	Properties  map[string]*Schema
	Required    []string
}

// Parse converts a raw JSON Schema document into the variant form. It
// returns (nil, nil) when the document as a whole is unrepresentable; an
// error is returned only for invalid JSON.
func Parse(raw json.RawMessage) (*Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return parseNode(v), nil
}

// Clean parses and re-marshals a raw schema into the cleaned shape. An
// unrepresentable or empty document degrades to a bare object schema, so a
// tool definition never fails outright on a bad schema.
func Clean(raw json.RawMessage) (json.RawMessage, error) {
	s, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &Schema{Kind: KindObject}
	}
	out, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal cleaned schema: %w", err)
	}
	return out, nil
}

// parseNode maps one schema value into the variant, or nil to drop it.
func parseNode(v any) *Schema {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	typ, _ := m["type"].(string)
	if typ == "" {
		// Objects commonly omit "type" when "properties" is present.
		if _, hasProps := m["properties"]; hasProps {
			typ = string(KindObject)
		} else {
			return nil
		}
	}

	s := &Schema{}
	if desc, ok := m["description"].(string); ok {
		s.Description = desc
	}
	if enum, ok := m["enum"].([]any); ok {
		for _, e := range enum {
			if e != nil {
				s.Enum = append(s.Enum, e)
			}
		}
	}

	switch Kind(typ) {
	case KindString, KindNumber, KindInteger, KindBoolean:
		s.Kind = Kind(typ)
		return s

	case KindArray:
		s.Kind = KindArray
		items := parseNode(m["items"])
		if items == nil {
			// An array whose element schema cannot be represented
			// cannot be validated at all.
			return nil
		}
		s.Items = items
		return s

	case KindObject:
		s.Kind = KindObject
		if props, ok := m["properties"].(map[string]any); ok {
			for name, prop := range props {
				if parsed := parseNode(prop); parsed != nil {
					if s.Properties == nil {
						s.Properties = make(map[string]*Schema)
					}
					s.Properties[name] = parsed
				}
			}
		}
		if required, ok := m["required"].([]any); ok {
			for _, r := range required {
				name, ok := r.(string)
				if !ok {
					continue
				}
				if _, exists := s.Properties[name]; exists {
					s.Required = append(s.Required, name)
				}
			}
		}
		return s

	default:
		// "null" and anything non-standard has no representation in the
		// target vocabulary.
		return nil
	}
}

// MarshalJSON emits the node in the target vocabulary, omitting empty fields.
func (s *Schema) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 6)
	out["type"] = string(s.Kind)
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Items != nil {
		out["items"] = s.Items
	}
	if len(s.Properties) > 0 {
		out["properties"] = s.Properties
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return json.Marshal(out)
}

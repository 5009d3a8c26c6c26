package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clean(t *testing.T, raw string) string {
	t.Helper()
	out, err := Clean(json.RawMessage(raw))
	require.NoError(t, err)
	return string(out)
}

func TestCleanStripsNonPortableKeys(t *testing.T) {
	raw := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title": "ReadFileInput",
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"path": {"type": "string", "description": "File path", "title": "Path"}
		},
		"required": ["path"]
	}`

	out := clean(t, raw)
	assert.NotContains(t, out, "$schema")
	assert.NotContains(t, out, "title")
	assert.NotContains(t, out, "additionalProperties")
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {"path": {"type": "string", "description": "File path"}},
		"required": ["path"]
	}`, out)
}

func TestCleanDropsUnrepresentableSubtrees(t *testing.T) {
	raw := `{
		"type": "object",
		"properties": {
			"good": {"type": "integer"},
			"nullType": {"type": "null"},
			"weird": {"type": "tuple"},
			"anyOf": {"anyOf": [{"type": "string"}, {"type": "number"}]}
		},
		"required": ["good", "nullType", "weird"]
	}`

	out := clean(t, raw)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {"good": {"type": "integer"}},
		"required": ["good"]
	}`, out)
}

func TestCleanArrayWithBadItemsIsDropped(t *testing.T) {
	raw := `{
		"type": "object",
		"properties": {
			"names": {"type": "array", "items": {"type": "string"}},
			"junk": {"type": "array", "items": {"type": "null"}}
		}
	}`

	out := clean(t, raw)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {"names": {"type": "array", "items": {"type": "string"}}}
	}`, out)
}

func TestCleanObjectWithoutTypeKeyword(t *testing.T) {
	raw := `{"properties": {"q": {"type": "string"}}}`
	out := clean(t, raw)
	assert.JSONEq(t, `{"type": "object", "properties": {"q": {"type": "string"}}}`, out)
}

func TestCleanEmptyOrUnusableFallsBackToObject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty document", raw: ``},
		{name: "empty object", raw: `{}`},
		{name: "null type at root", raw: `{"type": "null"}`},
		{name: "scalar", raw: `"just a string"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Clean(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.JSONEq(t, `{"type": "object"}`, string(out))
		})
	}
}

func TestCleanKeepsEnums(t *testing.T) {
	raw := `{"type": "string", "enum": ["a", "b", null]}`
	out := clean(t, raw)
	assert.JSONEq(t, `{"type": "string", "enum": ["a", "b"]}`, out)
}

func TestCleanNestedStructures(t *testing.T) {
	raw := `{
		"type": "object",
		"properties": {
			"filters": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"field": {"type": "string"},
						"op": {"type": "string", "enum": ["eq", "lt", "gt"]},
						"bogus": {"type": "null"}
					},
					"required": ["field", "op", "bogus"]
				}
			}
		}
	}`

	out := clean(t, raw)
	var parsed struct {
		Properties struct {
			Filters struct {
				Items struct {
					Required []string `json:"required"`
				} `json:"items"`
			} `json:"filters"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.ElementsMatch(t, []string{"field", "op"}, parsed.Properties.Filters.Items.Required)
}

func TestCleanInvalidJSON(t *testing.T) {
	_, err := Clean(json.RawMessage(`{"type":`))
	assert.Error(t, err)
}

func TestParseReturnsVariant(t *testing.T) {
	s, err := Parse(json.RawMessage(`{"type": "array", "items": {"type": "integer"}}`))
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, KindArray, s.Kind)
	require.NotNil(t, s.Items)
	assert.Equal(t, KindInteger, s.Items.Kind)
}

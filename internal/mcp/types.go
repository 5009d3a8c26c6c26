package mcp

import (
	"encoding/json"
	"time"
)

// ServerDescriptor describes how to reach one tool server. It is immutable
// and built from configuration at startup.
type ServerDescriptor struct {
	// Name is the unique identifier for this server.
	Name string

	// Command is the executable to run.
	Command string

	// Args are the command-line arguments.
	Args []string

	// Env are environment overrides in KEY=VALUE form.
	Env []string

	// Dirs are target directories passed to the server via arguments.
	Dirs []string

	// Timeout is the per-call budget (defaults to DefaultCallTimeout).
	Timeout time.Duration
}

// ToolDescriptor is a tool as advertised by a server: name, description,
// and the raw input schema before cleaning.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// CatalogTool is one entry of the merged catalog handed to the
// orchestration layer: the cleaned schema plus the owning server.
type CatalogTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
	Server      string          `json:"server"`
}

// ContentItem is one piece of content in a tool-call result.
type ContentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// CallResult is the raw result of a tool call as returned by the server.
type CallResult struct {
	Content           []ContentItem   `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

// ResourceDescriptor is a resource as advertised by a server.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceContents is the content of one read resource.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// PromptDescriptor is a prompt template as advertised by a server.
type PromptDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PromptMessage is one message of a resolved prompt. Content is kept raw:
// its shape varies by server and is opaque to this layer.
type PromptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Prompt is a resolved prompt template.
type Prompt struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// Invocation is the uniform envelope for one tool invocation handed back to
// the orchestration layer. Failures are carried in-band, never thrown.
type Invocation struct {
	// ID uniquely identifies this invocation for log correlation.
	ID string `json:"id"`

	// Tool is the invoked tool name.
	Tool string `json:"tool"`

	// Server is the owning server, when one was found.
	Server string `json:"server,omitempty"`

	// OK reports whether the call succeeded.
	OK bool `json:"ok"`

	// Text is the flattened text payload for simple results.
	Text string `json:"text,omitempty"`

	// Content holds the full content list for multi-part results.
	Content []ContentItem `json:"content,omitempty"`

	// Structured holds an arbitrary structured payload, when the server
	// returned one.
	Structured json.RawMessage `json:"structured,omitempty"`

	// Err describes the failure when OK is false.
	Err string `json:"error,omitempty"`

	// ErrCode categorizes the failure when OK is false.
	ErrCode ErrorCode `json:"error_code,omitempty"`

	// Duration is the wall-clock time the invocation took.
	Duration time.Duration `json:"duration_ns,omitempty"`
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Method names spoken by tool servers.
const (
	methodListTools     = "tools/list"
	methodCallTool      = "tools/call"
	methodListResources = "resources/list"
	methodReadResource  = "resources/read"
	methodListPrompts   = "prompts/list"
	methodGetPrompt     = "prompts/get"
)

// ListTools queries the server's tool list and caches it on success.
func (c *Conn) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	result, err := c.Call(ctx, methodListTools, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", methodListTools, err)
	}

	c.mu.Lock()
	c.lastTools = out.Tools
	c.mu.Unlock()
	return out.Tools, nil
}

// CallTool invokes one named tool with the given arguments.
func (c *Conn) CallTool(ctx context.Context, name string, arguments map[string]any) (*CallResult, error) {
	params := struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments,omitempty"`
	}{Name: name, Arguments: arguments}

	result, err := c.Call(ctx, methodCallTool, params)
	if err != nil {
		return nil, err
	}

	var out CallResult
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", methodCallTool, err)
	}
	return &out, nil
}

// ListResources queries the server's resource list.
func (c *Conn) ListResources(ctx context.Context) ([]ResourceDescriptor, error) {
	result, err := c.Call(ctx, methodListResources, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Resources []ResourceDescriptor `json:"resources"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", methodListResources, err)
	}
	return out.Resources, nil
}

// ReadResource reads the contents of one resource by URI.
func (c *Conn) ReadResource(ctx context.Context, uri string) ([]ResourceContents, error) {
	params := struct {
		URI string `json:"uri"`
	}{URI: uri}

	result, err := c.Call(ctx, methodReadResource, params)
	if err != nil {
		return nil, err
	}

	var out struct {
		Contents []ResourceContents `json:"contents"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", methodReadResource, err)
	}
	return out.Contents, nil
}

// ListPrompts queries the server's prompt templates.
func (c *Conn) ListPrompts(ctx context.Context) ([]PromptDescriptor, error) {
	result, err := c.Call(ctx, methodListPrompts, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Prompts []PromptDescriptor `json:"prompts"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", methodListPrompts, err)
	}
	return out.Prompts, nil
}

// GetPrompt resolves one prompt template by id.
func (c *Conn) GetPrompt(ctx context.Context, id string, arguments map[string]any) (*Prompt, error) {
	params := struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments,omitempty"`
	}{Name: id, Arguments: arguments}

	result, err := c.Call(ctx, methodGetPrompt, params)
	if err != nil {
		return nil, err
	}

	var out Prompt
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", methodGetPrompt, err)
	}
	return &out, nil
}

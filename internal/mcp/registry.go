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

package mcp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/toolmux/toolmux/internal/log"
	"github.com/toolmux/toolmux/internal/schema"
)

// Registry aggregates many server connections into one tool catalog and
// dispatches invocations to the owning connection. It is owned by the
// composition root and passed by reference: there is no ambient instance.
type Registry struct {
	logger  *slog.Logger
	opts    Options
	metrics *metrics

	mu sync.RWMutex
	// order preserves registration order so catalog merging is
	// deterministic: on a name collision the later server wins.
	order []string
	conns map[string]*Conn

	// catalog and owners are rebuilt in full on every discovery pass and
	// swapped wholesale, never patched.
	catalog []CatalogTool
	owners  map[string]string
}

// RegistryConfig configures a registry.
type RegistryConfig struct {
	// Logger is used for structured logging (optional).
	Logger *slog.Logger

	// CallTimeout is the per-call budget applied to every connection.
	CallTimeout time.Duration

	// MaxMessageBytes caps inbound message bodies on every connection.
	MaxMessageBytes int

	// Metrics receives the registry's collectors (optional).
	Metrics prometheus.Registerer
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		opts: Options{
			Timeout:         cfg.CallTimeout,
			MaxMessageBytes: cfg.MaxMessageBytes,
			Logger:          logger,
		},
		metrics: newMetrics(cfg.Metrics),
		conns:   make(map[string]*Conn),
		owners:  make(map[string]string),
	}
}

// Connect dials every descriptor in parallel. A server that fails to spawn
// or probe is logged and skipped: partial fleets are expected. Connections
// are registered in descriptor order regardless of dial completion order.
func (r *Registry) Connect(ctx context.Context, descs []ServerDescriptor) {
	results := make([]*Conn, len(descs))

	var wg sync.WaitGroup
	for i, desc := range descs {
		wg.Add(1)
		go func(i int, desc ServerDescriptor) {
			defer wg.Done()
			conn, err := Dial(ctx, desc, r.opts)
			if err != nil {
				r.logger.Error("failed to connect server", "server", desc.Name, "error", err)
				return
			}
			results[i] = conn
		}(i, desc)
	}
	wg.Wait()

	r.mu.Lock()
	for i, conn := range results {
		if conn == nil {
			continue
		}
		name := descs[i].Name
		r.order = append(r.order, name)
		r.conns[name] = conn
		r.metrics.setReady(name, conn.Ready())
	}
	r.mu.Unlock()
}

// Conn returns the named connection, or nil.
func (r *Registry) Conn(name string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[name]
}

// Discover queries every ready connection's tool list in parallel, waits
// for all of them, and replaces the catalog and ownership map wholesale.
// Individual failures shrink the catalog; they never abort discovery.
func (r *Registry) Discover(ctx context.Context) []CatalogTool {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	conns := make(map[string]*Conn, len(r.conns))
	for name, conn := range r.conns {
		conns[name] = conn
	}
	r.mu.RUnlock()

	type discovery struct {
		tools []ToolDescriptor
		err   error
	}
	results := make(map[string]*discovery, len(names))

	var wg sync.WaitGroup
	var resultsMu sync.Mutex
	for _, name := range names {
		conn := conns[name]
		if conn == nil || !conn.Ready() {
			r.metrics.setReady(name, false)
			continue
		}
		wg.Add(1)
		go func(name string, conn *Conn) {
			defer wg.Done()
			tools, err := conn.ListTools(ctx)
			resultsMu.Lock()
			results[name] = &discovery{tools: tools, err: err}
			resultsMu.Unlock()
		}(name, conn)
	}
	wg.Wait()

	// Merge in registration order so collision handling is deterministic.
	catalog := make([]CatalogTool, 0)
	owners := make(map[string]string)
	index := make(map[string]int)
	for _, name := range names {
		res := results[name]
		if res == nil {
			continue
		}
		r.metrics.setReady(name, conns[name].Ready())
		if res.err != nil {
			r.logger.Warn("tool discovery failed", "server", name, "error", res.err)
			continue
		}
		for _, tool := range res.tools {
			cleaned, err := schema.Clean(tool.InputSchema)
			if err != nil {
				r.logger.Warn("dropping tool with unparseable schema",
					"server", name, "tool", tool.Name, "error", err)
				continue
			}
			entry := CatalogTool{
				Name:        tool.Name,
				Description: tool.Description,
				Schema:      cleaned,
				Server:      name,
			}
			if prev, collided := owners[tool.Name]; collided {
				r.logger.Warn("tool name collision, later registration wins",
					"tool", tool.Name, "previous", prev, "server", name)
				catalog[index[tool.Name]] = entry
			} else {
				index[tool.Name] = len(catalog)
				catalog = append(catalog, entry)
			}
			owners[tool.Name] = name
		}
	}

	r.mu.Lock()
	r.catalog = catalog
	r.owners = owners
	r.mu.Unlock()

	r.metrics.discoveries.Inc()
	r.metrics.catalogSize.Set(float64(len(catalog)))
	r.logger.Info("tool discovery complete", "servers", len(results), "tools", len(catalog))
	return catalog
}

// Catalog returns the catalog from the most recent discovery pass.
func (r *Registry) Catalog() []CatalogTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CatalogTool, len(r.catalog))
	copy(out, r.catalog)
	return out
}

// Owner returns the server owning the named tool as of the last discovery.
func (r *Registry) Owner(tool string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.owners[tool]
	return name, ok
}

// Invoke calls the named tool on its owning server and normalizes the
// outcome into a uniform envelope. All failures (unknown tool, unready
// owner, transport or peer errors) are carried in the envelope, never
// returned as an error that would abort the surrounding request.
func (r *Registry) Invoke(ctx context.Context, tool string, arguments map[string]any) Invocation {
	inv := Invocation{
		ID:   uuid.NewString(),
		Tool: tool,
	}
	started := time.Now()

	r.mu.RLock()
	owner, known := r.owners[tool]
	conn := r.conns[owner]
	r.mu.RUnlock()

	if !known || conn == nil {
		inv.Err = ErrToolUnavailable(tool).Error()
		inv.ErrCode = CodeToolUnavailable
		return inv
	}
	inv.Server = owner

	if !conn.Ready() {
		err := ErrNotReady(owner, conn.State())
		inv.Err = err.Error()
		inv.ErrCode = CodeNotReady
		return inv
	}

	invLogger := log.WithInvocation(r.logger, inv.ID, tool)

	result, err := conn.CallTool(ctx, tool, arguments)
	inv.Duration = time.Since(started)
	if err != nil {
		inv.Err = err.Error()
		if code := CodeOf(err); code != "" {
			inv.ErrCode = code
		} else {
			inv.ErrCode = CodeProtocol
		}
		r.metrics.observeCall(owner, tool, false, inv.Duration.Seconds())
		invLogger.Warn("tool invocation failed", "server", owner, log.Error(err))
		return inv
	}

	normalizeResult(&inv, result)
	r.metrics.observeCall(owner, tool, inv.OK, inv.Duration.Seconds())
	invLogger.Debug("tool invocation complete",
		"server", owner,
		"ok", inv.OK,
		log.Duration("duration", inv.Duration.Milliseconds()),
	)
	return inv
}

// normalizeResult flattens the heterogeneous server result into the
// envelope: a lone text item becomes Text, everything else is carried as
// content items or a structured payload. An explicit error flag becomes an
// in-band peer error.
func normalizeResult(inv *Invocation, result *CallResult) {
	if result.IsError {
		inv.ErrCode = CodeToolFailed
		inv.Err = "tool execution failed"
		if text := flattenText(result.Content); text != "" {
			inv.Err = text
		}
		return
	}

	inv.OK = true
	inv.Structured = result.StructuredContent
	if len(result.Content) == 1 && result.Content[0].Type == "text" {
		inv.Text = result.Content[0].Text
		return
	}
	inv.Content = result.Content
}

// flattenText joins the text items of a content list.
func flattenText(content []ContentItem) string {
	var out string
	for _, item := range content {
		if item.Type != "text" || item.Text == "" {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += item.Text
	}
	return out
}

// Reload replaces the fleet: existing connections are closed, the new
// descriptors are dialed, and discovery runs once. The registry keeps its
// identity, so registered metrics collectors carry across reloads.
func (r *Registry) Reload(ctx context.Context, descs []ServerDescriptor) {
	r.Close()
	r.Connect(ctx, descs)
	r.Discover(ctx)
}

// Close shuts every connection down in parallel and waits for all of them.
// Individual close failures are logged, not propagated.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.conns = make(map[string]*Conn)
	r.order = nil
	r.catalog = nil
	r.owners = make(map[string]string)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *Conn) {
			defer wg.Done()
			if err := conn.Close(); err != nil {
				r.logger.Warn("failed to close connection", "server", conn.Name(), "error", err)
			}
			r.metrics.setReady(conn.Name(), false)
		}(conn)
	}
	wg.Wait()
	r.logger.Info("registry closed", "servers", len(conns))
}

// ServerStatus is a point-in-time view of one connection.
type ServerStatus struct {
	Name      string `json:"name"`
	State     State  `json:"state"`
	ToolCount int    `json:"tool_count"`
}

// Status reports every connection's state in registration order.
func (r *Registry) Status() []ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ServerStatus, 0, len(r.order))
	for _, name := range r.order {
		conn := r.conns[name]
		if conn == nil {
			continue
		}
		out = append(out, ServerStatus{
			Name:      name,
			State:     conn.State(),
			ToolCount: len(conn.Tools()),
		})
	}
	return out
}

// Summary aggregates connection states.
type Summary struct {
	Total        int `json:"total"`
	Ready        int `json:"ready"`
	Disconnected int `json:"disconnected"`
	Errored      int `json:"errored"`
}

// Summary returns aggregate connection counts.
func (r *Registry) Summary() Summary {
	statuses := r.Status()
	s := Summary{Total: len(statuses)}
	for _, st := range statuses {
		switch st.State {
		case StateReady:
			s.Ready++
		case StateDisconnected:
			s.Disconnected++
		case StateError:
			s.Errored++
		}
	}
	return s
}

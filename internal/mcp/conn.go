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
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/toolmux/toolmux/internal/log"
	"github.com/toolmux/toolmux/internal/proc"
	"github.com/toolmux/toolmux/internal/wire"
)

const (
	// DefaultCallTimeout is the per-call budget when none is configured.
	DefaultCallTimeout = 12 * time.Second

	// stopGrace is how long a server gets to exit after SIGTERM before it
	// is killed.
	stopGrace = 2 * time.Second
)

// State is the readiness lifecycle state of a connection.
type State string

const (
	// StateIdle is a freshly created connection before its probe.
	StateIdle State = "idle"
	// StateInitializing means the readiness probe is in flight.
	StateInitializing State = "initializing"
	// StateReady means the connection accepts calls.
	StateReady State = "ready"
	// StateError means a probe failure or protocol violation occurred.
	StateError State = "error"
	// StateDisconnected means the server process has exited.
	StateDisconnected State = "disconnected"
)

// NotificationHandler receives server notifications. Handlers are invoked
// from the connection's read loop and must not block.
type NotificationHandler func(method string, params json.RawMessage)

// Options tunes a connection.
type Options struct {
	// Timeout is the per-call budget (defaults to DefaultCallTimeout).
	Timeout time.Duration

	// MaxMessageBytes caps a single inbound message body.
	MaxMessageBytes int

	// Logger is used for structured logging (optional).
	Logger *slog.Logger
}

// callOutcome is the settlement of one pending call.
type callOutcome struct {
	result json.RawMessage
	err    error
}

// pendingCall tracks one outstanding request until it settles. Settlement
// happens exactly once: whoever removes the entry from the pending map
// delivers the outcome.
type pendingCall struct {
	id      int64
	method  string
	started time.Time
	timer   *time.Timer
	ch      chan callOutcome
}

// Conn is one connection to a tool server: a framed transport, a pending
// request table, and a readiness state machine.
type Conn struct {
	name    string
	logger  *slog.Logger
	timeout time.Duration

	process *proc.Process // nil when the transport was injected directly
	dec     *wire.Decoder
	r       io.Reader

	writeMu sync.Mutex
	w       io.Writer

	mu        sync.Mutex
	state     State
	nextID    int64
	pending   map[int64]*pendingCall
	listeners []NotificationHandler
	lastTools []ToolDescriptor
	closed    bool
}

// NewConn builds a connection over an arbitrary byte transport and starts
// consuming its inbound stream. Callers that spawn a real process should
// use Dial instead.
func NewConn(name string, r io.Reader, w io.Writer, opts Options) *Conn {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCallTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		name:    name,
		logger:  log.WithServer(logger, name),
		timeout: opts.Timeout,
		dec:     wire.NewDecoder(opts.MaxMessageBytes),
		r:       r,
		w:       w,
		state:   StateIdle,
		pending: make(map[int64]*pendingCall),
	}
	go c.readLoop()
	return c
}

// Dial spawns the server process described by desc, wires a connection over
// its pipes, and runs the readiness probe. On any failure the process is
// torn down and no connection is returned.
func Dial(ctx context.Context, desc ServerDescriptor, opts Options) (*Conn, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	args := append([]string{}, desc.Args...)
	args = append(args, desc.Dirs...)

	logger.Debug("spawning server",
		"server", desc.Name,
		"command", desc.Command,
		"env", RedactEnv(desc.Env),
	)

	p, err := proc.Spawn(proc.SpawnConfig{
		Command: desc.Command,
		Args:    args,
		Env:     desc.Env,
		Stderr: func(line string) {
			logger.Debug("server stderr", "server", desc.Name, "line", line)
		},
	})
	if err != nil {
		return nil, ErrSpawnFailed(desc.Name, err)
	}

	// A per-server timeout always beats the fleet-wide budget.
	if desc.Timeout > 0 {
		opts.Timeout = desc.Timeout
	}
	c := NewConn(desc.Name, p.Stdout(), p.Stdin(), opts)
	c.process = p
	go c.watchExit(p)

	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Name returns the server name.
func (c *Conn) Name() string { return c.name }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether the connection can accept new calls: state ready
// and, for a real process, the process still alive.
func (c *Conn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return false
	}
	if c.process != nil {
		select {
		case <-c.process.Done():
			return false
		default:
		}
	}
	return true
}

// Tools returns the tool list cached by the last successful probe or
// tools/list call.
func (c *Conn) Tools() []ToolDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ToolDescriptor, len(c.lastTools))
	copy(out, c.lastTools)
	return out
}

// OnNotification registers a handler for server notifications. There is no
// global event bus: listeners are explicit and per connection.
func (c *Conn) OnNotification(h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, h)
}

// Start runs the readiness probe and transitions the state machine. The
// probe is a plain tools/list call: a side-effect-free query every server
// is expected to answer, standing in for a dedicated handshake. A peer that
// answers it with "method not found" has still proven it speaks the
// protocol and becomes ready with an empty tool list.
func (c *Conn) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return ErrNotReady(c.name, state)
	}
	c.state = StateInitializing
	c.mu.Unlock()
	c.logger.Debug("state transition", "state", StateInitializing)

	tools, err := c.ListTools(ctx)
	if err != nil {
		var rpcErr *wire.Error
		if errors.As(err, &rpcErr) && rpcErr.Code == wire.CodeMethodNotFound {
			c.logger.Warn("server does not implement tools/list, treating response as readiness signal")
			tools = nil
		} else {
			// The process may have exited mid-probe; disconnected already
			// describes that, so only a live connection moves to error.
			c.mu.Lock()
			if c.state == StateInitializing {
				c.state = StateError
			}
			c.mu.Unlock()
			c.logger.Error("readiness probe failed", "error", err)
			c.Close()
			return ErrProbeFailed(c.name, err)
		}
	}

	c.mu.Lock()
	// The process may have died while the probe was in flight.
	if c.state != StateInitializing {
		state := c.state
		c.mu.Unlock()
		return ErrNotReady(c.name, state)
	}
	c.state = StateReady
	c.lastTools = tools
	c.mu.Unlock()
	c.logger.Info("server ready", "tools", len(tools))
	return nil
}

// Call issues one request and blocks until it settles: response, peer
// error, timeout, write failure, context cancellation, or connection death.
// Many calls may be outstanding at once; responses are routed by id.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed || c.state == StateError || c.state == StateDisconnected {
		c.mu.Unlock()
		return nil, ErrConnectionClosed(c.name)
	}
	c.nextID++
	id := c.nextID
	pc := &pendingCall{
		id:      id,
		method:  method,
		started: time.Now(),
		ch:      make(chan callOutcome, 1),
	}
	// Arm the timeout before the request can possibly be answered so a
	// racing response never observes a half-registered call.
	pc.timer = time.AfterFunc(c.timeout, func() {
		c.settle(id, callOutcome{err: ErrTimeout(c.name, method, c.timeout)})
	})
	c.pending[id] = pc
	c.mu.Unlock()

	msg, err := wire.NewRequest(id, method, params)
	if err != nil {
		c.settle(id, callOutcome{err: err})
		<-pc.ch
		return nil, err
	}

	c.writeMu.Lock()
	err = wire.EncodeMessage(c.w, msg)
	c.writeMu.Unlock()
	if err != nil {
		c.settle(id, callOutcome{err: ErrWriteFailed(c.name, err)})
		<-pc.ch
		return nil, ErrWriteFailed(c.name, err)
	}

	select {
	case out := <-pc.ch:
		c.logger.Debug("call settled",
			"method", method,
			"request_id", id,
			"duration_ms", time.Since(pc.started).Milliseconds(),
			"ok", out.err == nil,
		)
		return out.result, out.err
	case <-ctx.Done():
		// Settle locally; a response that arrives later is discarded as
		// unknown. No cancellation is sent to the peer.
		c.settle(id, callOutcome{err: ctx.Err()})
		out := <-pc.ch
		return out.result, out.err
	}
}

// Notify sends a notification; no response is expected or tracked.
func (c *Conn) Notify(method string, params any) error {
	msg, err := wire.NewNotification(method, params)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wire.EncodeMessage(c.w, msg); err != nil {
		return ErrWriteFailed(c.name, err)
	}
	return nil
}

// Close tears the connection down: pending calls are rejected, the process
// (if any) is stopped gracefully with escalation to a kill. Safe to call
// more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.state != StateError {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	c.rejectPending(ErrConnectionClosed(c.name))

	if c.process != nil {
		return c.process.Stop(stopGrace)
	}
	if closer, ok := c.w.(io.Closer); ok {
		_ = closer.Close()
	}
	return nil
}

// settle resolves a pending call exactly once. Removing the entry from the
// pending map is the linearization point: late or duplicate settlements
// find no entry and report false.
func (c *Conn) settle(id int64, out callOutcome) bool {
	c.mu.Lock()
	pc, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.pending, id)
	c.mu.Unlock()

	pc.timer.Stop()
	pc.ch <- out
	return true
}

// rejectPending settles every outstanding call with err.
func (c *Conn) rejectPending(err error) {
	c.mu.Lock()
	ids := make([]int64, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.settle(id, callOutcome{err: err})
	}
}

// readLoop consumes the inbound byte stream, feeding the frame decoder and
// dispatching each complete body. It exits on stream end or framing error.
func (c *Conn) readLoop() {
	buf := make([]byte, 8192)
	for {
		n, err := c.r.Read(buf)
		if n > 0 {
			bodies, ferr := c.dec.Feed(buf[:n])
			for _, body := range bodies {
				c.handleBody(body)
			}
			if ferr != nil {
				c.protocolFail(ferr)
				return
			}
		}
		if err != nil {
			c.transportClosed()
			return
		}
	}
}

// handleBody classifies one decoded message body and routes it.
func (c *Conn) handleBody(body []byte) {
	log.Trace(c.logger, "frame received", slog.Int("bytes", len(body)))

	msg, err := wire.Decode(body)
	if err != nil {
		c.logger.Warn("dropping malformed message", "error", err)
		return
	}

	switch msg.Kind() {
	case wire.KindResponse:
		out := callOutcome{result: msg.Result}
		if msg.Error != nil {
			// Peer-reported errors are surfaced to the caller verbatim.
			out = callOutcome{err: msg.Error}
		}
		if !c.settle(*msg.ID, out) {
			c.logger.Warn("discarding response for unknown or settled request", "request_id", *msg.ID)
		}

	case wire.KindNotification:
		c.mu.Lock()
		handlers := make([]NotificationHandler, len(c.listeners))
		copy(handlers, c.listeners)
		c.mu.Unlock()
		for _, h := range handlers {
			h(msg.Method, msg.Params)
		}

	default:
		c.logger.Warn("dropping unexpected message", "method", msg.Method)
	}
}

// protocolFail handles a framing violation: the connection goes to error,
// every pending call is rejected, and the process is torn down.
func (c *Conn) protocolFail(cause error) {
	c.mu.Lock()
	if c.closed || c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	c.mu.Unlock()

	err := ErrProtocol(c.name, cause)
	c.logger.Error("protocol violation, closing connection", "error", cause)
	c.rejectPending(err)
	c.Close()
}

// transportClosed handles stream end: process exit or closed pipe. Every
// pending call is rejected with a connection-closed error.
func (c *Conn) transportClosed() {
	c.mu.Lock()
	if c.closed || c.state == StateError || c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	c.logger.Info("server disconnected")
	c.rejectPending(ErrConnectionClosed(c.name))
}

// watchExit marks the connection disconnected as soon as the process exits,
// even if the read loop has not yet observed the stream end.
func (c *Conn) watchExit(p *proc.Process) {
	<-p.Done()
	if err := p.Err(); err != nil {
		c.logger.Warn("server process exited", "error", err)
	}
	c.transportClosed()
}

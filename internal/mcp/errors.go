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
	"errors"
	"fmt"
	"time"
)

// ErrorCode categorizes a failure. Spawn and protocol errors are fatal for
// their connection; timeout, peer, and write errors are local to one call.
type ErrorCode string

const (
	// CodeSpawnFailed indicates the server process never started.
	CodeSpawnFailed ErrorCode = "SPAWN_FAILED"
	// CodeProtocol indicates a framing or protocol violation on the stream.
	CodeProtocol ErrorCode = "PROTOCOL"
	// CodeTimeout indicates no response arrived within the call budget.
	CodeTimeout ErrorCode = "TIMEOUT"
	// CodeWriteFailed indicates the request could not be written.
	CodeWriteFailed ErrorCode = "WRITE_FAILED"
	// CodeConnectionClosed indicates the server connection is gone.
	CodeConnectionClosed ErrorCode = "CONNECTION_CLOSED"
	// CodeNotReady indicates the connection is not in a callable state.
	CodeNotReady ErrorCode = "NOT_READY"
	// CodeToolUnavailable indicates no ready server owns the requested tool.
	CodeToolUnavailable ErrorCode = "TOOL_UNAVAILABLE"
	// CodeToolFailed indicates the server ran the tool and reported failure.
	CodeToolFailed ErrorCode = "TOOL_FAILED"
	// CodeProbeFailed indicates the readiness probe did not succeed.
	CodeProbeFailed ErrorCode = "PROBE_FAILED"
	// CodeConfig indicates invalid configuration.
	CodeConfig ErrorCode = "CONFIG"
)

// Error is the structured error type for connection and registry failures.
type Error struct {
	// Code is the error category.
	Code ErrorCode
	// Server is the owning server name, when known.
	Server string
	// Message is the primary error message.
	Message string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Server != "" {
		msg = fmt.Sprintf("server %s: %s", e.Server, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// CodeOf extracts the ErrorCode from an error chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ErrSpawnFailed reports a process that never started.
func ErrSpawnFailed(server string, cause error) *Error {
	return &Error{Code: CodeSpawnFailed, Server: server, Message: "failed to spawn server process", Cause: cause}
}

// ErrProtocol reports a framing or protocol violation.
func ErrProtocol(server string, cause error) *Error {
	return &Error{Code: CodeProtocol, Server: server, Message: "protocol violation", Cause: cause}
}

// ErrTimeout reports a call that exceeded its budget.
func ErrTimeout(server, method string, budget time.Duration) *Error {
	return &Error{Code: CodeTimeout, Server: server, Message: fmt.Sprintf("call %s timed out after %s", method, budget)}
}

// ErrWriteFailed reports a request that could not be written to the server.
func ErrWriteFailed(server string, cause error) *Error {
	return &Error{Code: CodeWriteFailed, Server: server, Message: "failed to write request", Cause: cause}
}

// ErrConnectionClosed reports a connection that is gone; every call pending
// on it settles with this error.
func ErrConnectionClosed(server string) *Error {
	return &Error{Code: CodeConnectionClosed, Server: server, Message: "connection closed"}
}

// ErrNotReady reports a connection that cannot accept calls.
func ErrNotReady(server string, state State) *Error {
	return &Error{Code: CodeNotReady, Server: server, Message: fmt.Sprintf("connection is %s, not ready", state)}
}

// ErrToolUnavailable reports an invocation of a tool no ready server owns.
func ErrToolUnavailable(tool string) *Error {
	return &Error{Code: CodeToolUnavailable, Message: fmt.Sprintf("tool %q is not available", tool)}
}

// ErrProbeFailed reports a failed readiness probe.
func ErrProbeFailed(server string, cause error) *Error {
	return &Error{Code: CodeProbeFailed, Server: server, Message: "readiness probe failed", Cause: cause}
}

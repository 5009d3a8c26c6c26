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

/*
Package mcp implements the multi-server tool client at the heart of toolmux.

Tool servers are external processes spoken to over stdio with JSON-RPC 2.0
and Content-Length framing. This package handles process supervision,
request correlation, readiness probing, tool discovery, and dispatch.

# Overview

The implementation consists of several components:

  - Conn: one connection to one server process (state machine, correlation)
  - Registry: many connections merged into one tool catalog
  - Config: the YAML fleet configuration and its validation
  - ConfigWatcher: debounced reload of the fleet configuration

# Connections

Dial spawns the server process and probes it for readiness:

	conn, err := mcp.Dial(ctx, mcp.ServerDescriptor{
	    Name:    "filesystem",
	    Command: "npx",
	    Args:    []string{"-y", "@modelcontextprotocol/server-filesystem"},
	}, mcp.Options{Logger: logger})

A connection moves through states:

  - idle: created, probe not yet run
  - initializing: probe in flight
  - ready: probe succeeded, calls accepted
  - error: protocol violation, connection torn down
  - disconnected: process exited or connection closed

The readiness probe is a tools/list call. A peer that answers it with
method-not-found is still alive and well-formed, so the connection becomes
ready with an empty tool list.

# Registry

The registry dials a fleet, discovers tools, and dispatches invocations:

	reg := mcp.NewRegistry(mcp.RegistryConfig{Logger: logger})
	reg.Connect(ctx, cfg.Descriptors())
	catalog := reg.Discover(ctx)

	inv := reg.Invoke(ctx, "read_file", map[string]any{"path": "/etc/hosts"})
	if !inv.OK {
	    fmt.Println(inv.ErrCode, inv.Err)
	}

Invocations never return a Go error: every failure mode is carried in the
Invocation envelope so one bad tool call cannot abort the caller's request.

# Configuration

The fleet is configured at ~/.config/toolmux/servers.yaml:

	servers:
	  filesystem:
	    command: npx
	    args: ["-y", "@modelcontextprotocol/server-filesystem"]
	    env: ["HOME=${HOME}"]
	defaults:
	  timeout: 12
*/
package mcp

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

// Package proc spawns and supervises external tool-server processes. It is
// the only package that touches OS process primitives: everything above it
// sees a process as a pair of byte channels plus an exit signal.
package proc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// SpawnConfig describes how to launch a tool-server process.
type SpawnConfig struct {
	// Command is the executable to run.
	Command string

	// Args are the command-line arguments.
	Args []string

	// Env are environment overrides in KEY=VALUE form, merged over the
	// parent environment. Values may reference parent variables as ${VAR}.
	Env []string

	// Dir is the working directory for the process (optional).
	Dir string

	// Stderr receives each line the process writes to its diagnostic
	// channel. It is forwarded, never parsed. Optional.
	Stderr func(line string)
}

// Process is a running tool-server process. Stdin is the input channel and
// Stdout the output channel of the framed transport built on top of it.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	done    chan struct{}
	waitErr error
	wg      sync.WaitGroup

	killOnce sync.Once
}

// Spawn starts the process. On failure no Process is returned and nothing
// is left running.
func Spawn(cfg SpawnConfig) (*Process, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("command is required")
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = mergeEnv(os.Environ(), cfg.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", cfg.Command, err)
	}

	// Stdout is pumped through a pipe the supervisor owns: cmd.Wait closes
	// the exec pipes on exit, which must not race a consumer still draining
	// the final buffered output.
	stdoutR, stdoutW := io.Pipe()

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdoutR,
		done:   make(chan struct{}),
	}

	p.wg.Add(2)
	go p.forwardStderr(stderr, cfg.Stderr)
	go p.pumpStdout(stdoutPipe, stdoutW)

	go func() {
		p.wg.Wait()
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// pumpStdout drains the exec stdout pipe into the supervisor-owned pipe, so
// Wait is gated on the output being fully handed off.
func (p *Process) pumpStdout(src io.Reader, dst *io.PipeWriter) {
	defer p.wg.Done()
	_, err := io.Copy(dst, src)
	_ = dst.CloseWithError(err)
}

// Stdin returns the process input channel.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout returns the process output channel.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Pid returns the OS process id.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited for any reason.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the exit error once Done is closed; nil for a clean exit.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Stop shuts the process down: close stdin, send SIGTERM, and escalate to
// SIGKILL if it has not exited within grace.
func (p *Process) Stop(grace time.Duration) error {
	_ = p.stdin.Close()

	select {
	case <-p.done:
		return nil
	default:
	}

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	p.killOnce.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
	})

	// If the consumer stopped reading, the stdout pump may still be blocked
	// handing off buffered output; release it so Wait can complete.
	_ = p.stdout.Close()

	<-p.done
	return nil
}

// forwardStderr streams diagnostic output line by line to the sink.
func (p *Process) forwardStderr(r io.Reader, sink func(line string)) {
	defer p.wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		if sink != nil {
			sink(scanner.Text())
		}
	}
}

// mergeEnv overlays overrides on the base environment. Override values may
// reference base variables with ${VAR} syntax.
func mergeEnv(base, overrides []string) []string {
	if len(overrides) == 0 {
		return base
	}

	lookup := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			lookup[k] = v
		}
	}

	merged := make([]string, len(base), len(base)+len(overrides))
	copy(merged, base)
	for _, kv := range overrides {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		expanded := os.Expand(v, func(name string) string { return lookup[name] })
		merged = append(merged, k+"="+expanded)
	}
	return merged
}

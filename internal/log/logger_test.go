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

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}
	if cfg.AddSource {
		t.Errorf("expected default AddSource to be false")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		level   string
		format  Format
		source  bool
	}{
		{
			name:   "defaults when no env vars",
			level:  "info",
			format: FormatJSON,
		},
		{
			name:    "debug flag enables debug and source",
			envVars: map[string]string{"TOOLMUX_DEBUG": "1"},
			level:   "debug",
			format:  FormatJSON,
			source:  true,
		},
		{
			name:    "explicit level",
			envVars: map[string]string{"TOOLMUX_LOG_LEVEL": "ERROR"},
			level:   "error",
			format:  FormatJSON,
		},
		{
			name:    "TOOLMUX_LOG_LEVEL wins over LOG_LEVEL",
			envVars: map[string]string{"TOOLMUX_LOG_LEVEL": "warn", "LOG_LEVEL": "debug"},
			level:   "warn",
			format:  FormatJSON,
		},
		{
			name:    "text format",
			envVars: map[string]string{"LOG_FORMAT": "text"},
			level:   "info",
			format:  FormatText,
		},
		{
			name:    "source via env",
			envVars: map[string]string{"LOG_SOURCE": "1"},
			level:   "info",
			format:  FormatJSON,
			source:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"TOOLMUX_DEBUG", "TOOLMUX_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
				t.Setenv(key, "")
				os.Unsetenv(key)
			}
			for key, val := range tt.envVars {
				t.Setenv(key, val)
			}

			cfg := FromEnv()
			if cfg.Level != tt.level {
				t.Errorf("Level = %q, want %q", cfg.Level, tt.level)
			}
			if cfg.Format != tt.format {
				t.Errorf("Format = %q, want %q", cfg.Format, tt.format)
			}
			if cfg.AddSource != tt.source {
				t.Errorf("AddSource = %v, want %v", cfg.AddSource, tt.source)
			}
		})
	}
}

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("server ready", ServerKey, "filesystem", ToolKey, "read_file")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "server ready" {
		t.Errorf("msg = %v, want 'server ready'", entry["msg"])
	}
	if entry[ServerKey] != "filesystem" {
		t.Errorf("server = %v, want 'filesystem'", entry[ServerKey])
	}
}

func TestNewTextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})

	logger.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output missing message: %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatJSON, Output: &buf})

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Errorf("below-threshold entries leaked: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn entry missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "trace", Format: FormatJSON, Output: &buf})

	Trace(logger, "raw frame", slog.Int("bytes", 128))
	if !strings.Contains(buf.String(), "raw frame") {
		t.Errorf("trace entry missing: %q", buf.String())
	}

	buf.Reset()
	quiet := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})
	Trace(quiet, "suppressed")
	if buf.Len() != 0 {
		t.Errorf("trace leaked at debug level: %q", buf.String())
	}
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithInvocation(WithServer(logger, "filesystem"), "inv-1", "read_file").Info("done")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry[ServerKey] != "filesystem" || entry[InvocationIDKey] != "inv-1" || entry[ToolKey] != "read_file" {
		t.Errorf("context fields missing: %v", entry)
	}
}

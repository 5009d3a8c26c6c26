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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerNameRegex validates server names.
// Names must start with a letter and contain only letters, numbers, hyphens,
// and underscores. Maximum length is 64 characters.
var ServerNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// Config is the server fleet configuration file.
// Stored at ~/.config/toolmux/servers.yaml by default.
type Config struct {
	// Servers is a map of server name to configuration.
	Servers map[string]*ServerEntry `yaml:"servers,omitempty"`

	// Defaults provides default values for server configuration.
	Defaults Defaults `yaml:"defaults,omitempty"`
}

// ServerEntry is a single server configuration entry.
type ServerEntry struct {
	// Command is the executable to run (e.g., "npx", "python").
	Command string `yaml:"command,omitempty"`

	// Args are command-line arguments.
	Args []string `yaml:"args,omitempty"`

	// Env are environment variables in KEY=VALUE format.
	// Supports ${VAR} syntax for runtime variable substitution.
	Env []string `yaml:"env,omitempty"`

	// Dirs are target directories appended to the arguments, for servers
	// that take their working set on the command line.
	Dirs []string `yaml:"dirs,omitempty"`

	// Enabled controls whether this server is dialed. Nil means enabled.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Timeout is the per-call budget in seconds.
	// Defaults to 12 seconds if not specified.
	Timeout int `yaml:"timeout,omitempty"`
}

// Defaults provides default values for server configuration.
type Defaults struct {
	// Timeout is the default per-call budget in seconds (default: 12).
	Timeout int `yaml:"timeout,omitempty"`

	// MaxMessageBytes caps inbound message bodies (default: 10 MiB).
	MaxMessageBytes int `yaml:"max_message_bytes,omitempty"`
}

// DefaultConfigDefaults returns the default values for configuration.
func DefaultConfigDefaults() Defaults {
	return Defaults{
		Timeout:         int(DefaultCallTimeout / time.Second),
		MaxMessageBytes: 10 << 20,
	}
}

// DefaultConfigPath returns the default path of the configuration file.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "toolmux", "servers.yaml"), nil
}

// LoadConfig loads the fleet configuration from disk.
// Returns an empty config if the file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{
				Servers:  make(map[string]*ServerEntry),
				Defaults: DefaultConfigDefaults(),
			}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{Code: CodeConfig, Message: "failed to parse config file", Cause: err}
	}

	if cfg.Servers == nil {
		cfg.Servers = make(map[string]*ServerEntry)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults applies default values to server entries.
func (c *Config) applyDefaults() {
	defaults := c.Defaults
	if defaults.Timeout == 0 {
		defaults.Timeout = int(DefaultCallTimeout / time.Second)
	}
	if defaults.MaxMessageBytes == 0 {
		defaults.MaxMessageBytes = 10 << 20
	}
	c.Defaults = defaults

	for _, entry := range c.Servers {
		if entry.Timeout == 0 {
			entry.Timeout = defaults.Timeout
		}
	}
}

// IsEnabled reports whether the entry should be dialed.
func (e *ServerEntry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Validate validates the entire configuration.
func (c *Config) Validate() error {
	for name, entry := range c.Servers {
		if err := ValidateServerName(name); err != nil {
			return fmt.Errorf("server %q: %w", name, err)
		}
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("server %q: %w", name, err)
		}
	}
	return nil
}

// Validate validates a single server entry.
func (e *ServerEntry) Validate() error {
	if err := ValidateCommand(e.Command); err != nil {
		return err
	}

	if e.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}

	for i, arg := range e.Args {
		if err := ValidateArg(arg); err != nil {
			return fmt.Errorf("args[%d]: %w", i, err)
		}
	}

	for i, env := range e.Env {
		if err := ValidateEnv(env); err != nil {
			return fmt.Errorf("env[%d]: %w", i, err)
		}
	}

	return nil
}

// Descriptors converts the enabled entries to server descriptors, sorted by
// name so registration order is stable across runs.
func (c *Config) Descriptors() []ServerDescriptor {
	names := make([]string, 0, len(c.Servers))
	for name, entry := range c.Servers {
		if entry.IsEnabled() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]ServerDescriptor, 0, len(names))
	for _, name := range names {
		entry := c.Servers[name]
		out = append(out, ServerDescriptor{
			Name:    name,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     entry.Env,
			Dirs:    entry.Dirs,
			Timeout: time.Duration(entry.Timeout) * time.Second,
		})
	}
	return out
}

// ValidateServerName validates a server name.
func ValidateServerName(name string) error {
	if name == "" {
		return fmt.Errorf("server name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("server name exceeds 64 character limit")
	}
	if !ServerNameRegex.MatchString(name) {
		return fmt.Errorf("invalid server name: must start with a letter and contain only letters, numbers, hyphens, and underscores")
	}
	return nil
}

// ValidateCommand validates a command is safe to execute.
func ValidateCommand(cmd string) error {
	if cmd == "" {
		return fmt.Errorf("command is required")
	}

	if filepath.IsAbs(cmd) {
		info, err := os.Stat(cmd)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("command not found: %s", cmd)
			}
			return fmt.Errorf("cannot access command: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("command is a directory: %s", cmd)
		}
		if info.Mode()&0111 == 0 {
			return fmt.Errorf("command is not executable: %s", cmd)
		}
		return nil
	}

	if _, err := exec.LookPath(cmd); err != nil {
		return fmt.Errorf("command not found in PATH: %s", cmd)
	}

	return nil
}

// shellInjectionPatterns are patterns that could indicate shell injection attempts.
var shellInjectionPatterns = []string{
	";", "&&", "||", "|", "`", "$(", "${", "\n", "\r",
}

// ValidateArg validates a command argument for shell injection.
func ValidateArg(arg string) error {
	for _, pattern := range shellInjectionPatterns {
		if strings.Contains(arg, pattern) {
			return fmt.Errorf("argument contains potentially unsafe pattern %q", pattern)
		}
	}
	return nil
}

// envKeyRegex validates environment variable keys.
var envKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateEnv validates an environment variable.
func ValidateEnv(env string) error {
	parts := strings.SplitN(env, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("environment variable must be in KEY=VALUE format")
	}

	key := parts[0]
	if key == "" {
		return fmt.Errorf("environment variable key is required")
	}
	if !envKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid environment variable key: %s", key)
	}

	// Values may carry ${VAR} for runtime substitution, but nothing else
	// from the injection list.
	value := parts[1]
	for _, pattern := range shellInjectionPatterns {
		if pattern == "${" {
			continue
		}
		if strings.Contains(value, pattern) {
			return fmt.Errorf("environment value contains potentially unsafe pattern %q", pattern)
		}
	}

	return nil
}

// sensitiveKeyPatterns are patterns that indicate a sensitive value.
var sensitiveKeyPatterns = []string{
	"SECRET", "TOKEN", "KEY", "PASSWORD", "CREDENTIAL", "AUTH", "API_KEY",
}

// IsSensitiveEnvKey returns true if the key appears to contain sensitive data.
func IsSensitiveEnvKey(key string) bool {
	upperKey := strings.ToUpper(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(upperKey, pattern) {
			return true
		}
	}
	return false
}

// RedactEnv redacts sensitive values from an environment variable list.
func RedactEnv(envs []string) []string {
	result := make([]string, len(envs))
	for i, env := range envs {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 && IsSensitiveEnvKey(parts[0]) {
			result[i] = parts[0] + "=***REDACTED***"
		} else {
			result[i] = env
		}
	}
	return result
}

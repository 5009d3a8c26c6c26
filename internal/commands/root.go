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

// Package commands implements the toolmux command-line interface.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/toolmux/toolmux/internal/log"
	"github.com/toolmux/toolmux/internal/mcp"
)

// Version information, injected via ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion records build-time version information.
func SetVersion(v, c, d string) {
	version, commit, buildDate = v, c, d
}

// Global flag values shared by all subcommands.
var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
	flagJSON      bool
)

// NewRootCommand builds the toolmux root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolmux",
		Short: "Multiplex tool servers behind one catalog",
		Long: `toolmux connects to a fleet of stdio tool servers, merges their
tools into one catalog, and dispatches invocations to the owning server.

Servers are configured in ~/.config/toolmux/servers.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Accept underscore spellings (--log_level) alongside the canonical
	// hyphenated names.
	cmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to servers.yaml (default ~/.config/toolmux/servers.yaml)")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: json, text")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output machine-readable JSON")

	cmd.AddCommand(newToolsCommand())
	cmd.AddCommand(newCallCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newWatchCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, RenderError(err.Error()))
		os.Exit(1)
	}
}

// newLogger builds the process logger from env config overridden by flags.
func newLogger() *slog.Logger {
	cfg := log.FromEnv()
	if flagLogLevel != "" {
		cfg.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Format = log.Format(flagLogFormat)
	}
	return log.WithComponent(log.New(cfg), "cli")
}

// configPath resolves the configuration file path from the flag or default.
func configPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	return mcp.DefaultConfigPath()
}

// loadConfig loads and validates the fleet configuration.
func loadConfig() (*mcp.Config, string, error) {
	path, err := configPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := mcp.LoadConfig(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, path, nil
}

// connectFleet dials every configured server and runs one discovery pass.
// The caller owns the returned registry and must Close it.
func connectFleet(ctx context.Context, logger *slog.Logger, cfg *mcp.Config) *mcp.Registry {
	reg := mcp.NewRegistry(mcp.RegistryConfig{
		Logger:          logger,
		CallTimeout:     time.Duration(cfg.Defaults.Timeout) * time.Second,
		MaxMessageBytes: cfg.Defaults.MaxMessageBytes,
	})
	reg.Connect(ctx, cfg.Descriptors())
	reg.Discover(ctx)
	return reg
}

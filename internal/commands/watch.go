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

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/toolmux/toolmux/internal/mcp"
)

// newWatchCommand creates the 'watch' command.
func newWatchCommand() *cobra.Command {
	var metricsAddr string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the fleet connected and follow config changes",
		Long: `Connect to the configured servers and stay running: tools are
rediscovered on an interval, and edits to the config file reconnect the
fleet without a restart.

With --metrics-addr, Prometheus metrics are served at /metrics.

Examples:
  toolmux watch
  toolmux watch --metrics-addr :9090 --interval 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), metricsAddr, interval)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (e.g. :9090)")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "tool rediscovery interval")
	return cmd
}

func runWatch(ctx context.Context, metricsAddr string, interval time.Duration) error {
	logger := newLogger()
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	reg := mcp.NewRegistry(mcp.RegistryConfig{
		Logger:          logger,
		CallTimeout:     time.Duration(cfg.Defaults.Timeout) * time.Second,
		MaxMessageBytes: cfg.Defaults.MaxMessageBytes,
		Metrics:         promReg,
	})
	defer reg.Close()

	reg.Connect(ctx, cfg.Descriptors())
	reg.Discover(ctx)

	watcher, err := mcp.NewConfigWatcher(mcp.ConfigWatcherOptions{
		Path:   path,
		Logger: logger,
		OnChange: func(next *mcp.Config) {
			reg.Reload(ctx, next.Descriptors())
			logger.Info("fleet reconnected after config change")
		},
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	if metricsAddr != "" {
		go serveMetrics(logger, metricsAddr, promReg)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fmt.Println(RenderOK("watching " + path))
	for {
		select {
		case <-ticker.C:
			reg.Discover(ctx)
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		}
	}
}

func serveMetrics(logger *slog.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", "error", err)
	}
}

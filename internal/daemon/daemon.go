// Copyright 2026 Blink Labs Software
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

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/agora"
	"github.com/blinklabs-io/agora/internal/config"
	"github.com/blinklabs-io/agora/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "daemon")
	syncInterval, err := time.ParseDuration(cfg.SyncInterval)
	if err != nil {
		return fmt.Errorf("invalid sync interval: %w", err)
	}
	settlementTimeout, err := time.ParseDuration(cfg.SettlementTimeout)
	if err != nil {
		return fmt.Errorf("invalid settlement timeout: %w", err)
	}
	shutdownTimeout, err := time.ParseDuration(cfg.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	client := ledger.NewRpcClient(ledger.RpcClientConfig{
		Logger:   logger,
		Endpoint: cfg.LedgerEndpoint,
	})
	node, err := agora.New(
		agora.NewConfig(
			agora.WithLogger(logger),
			agora.WithLedgerClient(client),
			agora.WithAccount(cfg.Account),
			agora.WithSyncInterval(syncInterval),
			agora.WithSettlementTimeout(settlementTimeout),
			agora.WithShutdownTimeout(shutdownTimeout),
			// Enable metrics with default prometheus registry
			agora.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		),
	)
	if err != nil {
		return err
	}
	// Metrics listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component", "daemon",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "daemon",
			)
			os.Exit(1)
		}
	}()
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run node until the signal context is cancelled; Run stops the node
	// itself on cancellation
	runErr := node.Run(signalCtx)
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn(
			fmt.Sprintf("metrics listener shutdown: %s", err),
			"component", "daemon",
		)
	}
	return runErr
}

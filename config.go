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

package agora

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/agora/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultSyncInterval      = 15 * time.Second
	DefaultSettlementTimeout = 60 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
)

type Config struct {
	promRegistry      prometheus.Registerer
	logger            *slog.Logger
	client            ledger.Client
	account           string
	syncInterval      time.Duration
	settlementTimeout time.Duration
	shutdownTimeout   time.Duration
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new agora config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		syncInterval:      DefaultSyncInterval,
		settlementTimeout: DefaultSettlementTimeout,
		shutdownTimeout:   DefaultShutdownTimeout,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (n *Node) configValidate() error {
	if n.config.client == nil {
		return errors.New("no ledger client configured")
	}
	if n.config.syncInterval <= 0 {
		return errors.New("sync interval must be positive")
	}
	return nil
}

// WithLedgerClient specifies the ledger client to use. Required.
func WithLedgerClient(client ledger.Client) ConfigOptionFunc {
	return func(c *Config) {
		c.client = client
	}
}

// WithLogger specifies the logger to use. The default is to discard log output.
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithAccount specifies the initially active account address
func WithAccount(account string) ConfigOptionFunc {
	return func(c *Config) {
		c.account = account
	}
}

// WithPrometheusRegistry specifies a prometheus registerer for metrics. The
// default is no metrics.
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithSyncInterval specifies how often the read model is refreshed from the
// ledger's event log
func WithSyncInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.syncInterval = interval
	}
}

// WithSettlementTimeout specifies how long a mutating action waits locally
// for settlement before reporting an unknown outcome
func WithSettlementTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.settlementTimeout = timeout
	}
}

// WithShutdownTimeout specifies the maximum time allowed for graceful shutdown
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

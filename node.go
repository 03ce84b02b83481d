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

// Package agora is a client for ledger-hosted DAO governance: it rebuilds a
// local read model of proposals and certificates from the ledger's event
// log and drives multi-step mutating workflows (propose, vote, queue,
// execute, mint, delegate, issue) against it. The ledger is always the
// source of truth; everything here is a disposable, rebuildable cache.
package agora

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/agora/access"
	"github.com/blinklabs-io/agora/event"
	"github.com/blinklabs-io/agora/ingest"
	"github.com/blinklabs-io/agora/readmodel"
	"github.com/blinklabs-io/agora/session"
	"github.com/blinklabs-io/agora/txsubmit"
)

type Node struct {
	config       Config
	eventBus     *event.EventBus
	store        *readmodel.Store
	ingestor     *ingest.Ingestor
	orchestrator *txsubmit.Orchestrator
	accessGate   *access.Gate
	session      *session.Session
	done         chan struct{}
	shutdownOnce sync.Once
}

func New(config Config) (*Node, error) {
	n := &Node{
		config: config,
		done:   make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid node config: %w", err)
	}
	n.eventBus = event.NewEventBus(config.promRegistry, config.logger)
	store, err := readmodel.New(config.logger)
	if err != nil {
		return nil, fmt.Errorf("create read model store: %w", err)
	}
	n.store = store
	n.ingestor = ingest.NewIngestor(ingest.IngestorConfig{
		PromRegistry: config.promRegistry,
		Logger:       config.logger,
		EventBus:     n.eventBus,
		Client:       config.client,
		Store:        n.store,
	})
	n.accessGate = access.NewGate(access.GateConfig{
		Logger: config.logger,
		Client: config.client,
	})
	n.session = session.NewSession(session.SessionConfig{
		Logger: config.logger,
		Client: config.client,
	})
	if config.account != "" {
		n.session.SetAccount(config.account)
	}
	n.orchestrator = txsubmit.NewOrchestrator(txsubmit.OrchestratorConfig{
		PromRegistry:      config.promRegistry,
		Logger:            config.logger,
		Client:            config.client,
		Syncer:            n.ingestor,
		Session:           n.session,
		Gate:              n.accessGate,
		SettlementTimeout: config.settlementTimeout,
	})
	return n, nil
}

// Store returns the read model for queries
func (n *Node) Store() *readmodel.Store {
	return n.store
}

// Ingestor returns the event ingestor for explicit sync triggers
func (n *Node) Ingestor() *ingest.Ingestor {
	return n.ingestor
}

// Orchestrator returns the transaction orchestrator for mutating actions
func (n *Node) Orchestrator() *txsubmit.Orchestrator {
	return n.orchestrator
}

// AccessGate returns the capability gate for the active account
func (n *Node) AccessGate() *access.Gate {
	return n.accessGate
}

// Session returns the active session account state
func (n *Node) Session() *session.Session {
	return n.session
}

// EventBus returns the node's event bus
func (n *Node) EventBus() *event.EventBus {
	return n.eventBus
}

// SetAccount switches the active account: the session's balances are
// cleared and re-fetched and the capability cache is dropped
func (n *Node) SetAccount(ctx context.Context, account string) error {
	n.session.SetAccount(account)
	n.accessGate.Invalidate()
	return n.session.Refresh(ctx)
}

// Run performs an initial sync and then refreshes the read model on the
// configured interval until the context is cancelled or Stop is called
func (n *Node) Run(ctx context.Context) error {
	// Initial sync; transient failure is tolerated and retried on the
	// next tick with the store left in its last-good (empty) state
	if err := n.ingestor.Sync(ctx); err != nil {
		n.config.logger.Warn(
			"initial sync failed",
			"error", err,
			"component", "node",
		)
	}
	if n.config.account != "" {
		if err := n.session.Refresh(ctx); err != nil {
			n.config.logger.Warn(
				"initial balance refresh failed",
				"error", err,
				"component", "node",
			)
		}
	}
	ticker := time.NewTicker(n.config.syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return n.Stop()
		case <-n.done:
			return nil
		case <-ticker.C:
			if err := n.ingestor.Sync(ctx); err != nil {
				n.config.logger.Warn(
					"periodic sync failed",
					"error", err,
					"component", "node",
				)
			}
		}
	}
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	close(n.done)
	n.config.logger.Debug(
		"starting graceful shutdown",
		"component", "node",
	)
	// Wait for detached settlement watchers, bounded by the shutdown timeout
	watchersDone := make(chan struct{})
	go func() {
		n.orchestrator.Stop()
		close(watchersDone)
	}()
	select {
	case <-watchersDone:
	case <-time.After(n.config.shutdownTimeout):
		n.config.logger.Warn(
			"shutdown timeout waiting for settlement watchers",
			"component", "node",
		)
	}
	n.eventBus.Stop()
	if err := n.store.Close(); err != nil {
		return fmt.Errorf("close read model store: %w", err)
	}
	return nil
}

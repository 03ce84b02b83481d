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

package access

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/agora/ledger"
)

type GateConfig struct {
	Logger *slog.Logger
	Client ledger.Client
}

// Gate resolves whether an account holds the admin capability. Role
// membership is a live ledger predicate, not a log-derived fact, so it is
// resolved by direct query and cached only for the account it was resolved
// for. Any query failure resolves to the least-privileged answer.
type Gate struct {
	client  ledger.Client
	logger  *slog.Logger
	mu      sync.Mutex
	account string
	admin   bool
	cached  bool
}

func NewGate(config GateConfig) *Gate {
	g := &Gate{
		client: config.Client,
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		g.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		g.logger = config.Logger
	}
	return g
}

// Allowed reports whether the account holds the admin role. The result is
// cached until the account changes; an account change drops the cache
// entirely so one account's answer can never leak to another. Failures
// resolve to false, never an error: this gate decides which mutating
// actions may even be attempted, so it fails closed.
func (g *Gate) Allowed(ctx context.Context, account string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cached && g.account == account {
		return g.admin
	}
	// Account changed (or first resolution): reset before querying so a
	// failed query can't leave a stale grant behind
	g.account = account
	g.admin = false
	g.cached = false
	result, err := g.client.Call(
		ctx,
		ledger.MethodHasRole,
		ledger.AdminRole,
		account,
	)
	if err != nil {
		g.logger.Warn(
			"role query failed, defaulting to no capability",
			"account", account,
			"error", err,
			"component", "access",
		)
		return false
	}
	admin, ok := result.(bool)
	if !ok {
		g.logger.Warn(
			"unexpected role query result type, defaulting to no capability",
			"account", account,
			"component", "access",
		)
		return false
	}
	g.admin = admin
	g.cached = true
	return admin
}

// Invalidate drops any cached resolution, forcing the next Allowed call to
// query the ledger again
func (g *Gate) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cached = false
	g.admin = false
}

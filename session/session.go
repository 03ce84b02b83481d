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

package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/agora/ledger"
)

type SessionConfig struct {
	Logger *slog.Logger
	Client ledger.Client
}

// Session tracks the active account and its point-in-time ledger facts:
// token balance and voting power. These are live queries, not log-derived,
// and are re-fetched after every confirmed mutating action that could
// affect them. A refresh failure keeps the previous values rather than
// blanking the display.
type Session struct {
	client      ledger.Client
	logger      *slog.Logger
	mu          sync.RWMutex
	account     string
	balance     uint64
	votingPower uint64
}

func NewSession(config SessionConfig) *Session {
	s := &Session{
		client: config.Client,
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		s.logger = config.Logger
	}
	return s
}

// SetAccount switches the active account and clears the previous account's
// balances. The caller should follow up with Refresh.
func (s *Session) SetAccount(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == account {
		return
	}
	s.account = account
	s.balance = 0
	s.votingPower = 0
}

// Account returns the active account address
func (s *Session) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Balance returns the last fetched token balance for the active account
func (s *Session) Balance() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance
}

// VotingPower returns the last fetched voting power for the active account
func (s *Session) VotingPower() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.votingPower
}

// Refresh re-fetches balance and voting power for the active account. On
// failure the previous values remain in place and the error is returned for
// the caller to report.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.RLock()
	account := s.account
	s.mu.RUnlock()
	if account == "" {
		return nil
	}
	balanceVal, err := s.client.Call(ctx, ledger.MethodGetVotes, account)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	balance, ok := balanceVal.(uint64)
	if !ok {
		return fmt.Errorf("unexpected balance result type %T", balanceVal)
	}
	powerVal, err := s.client.Call(ctx, ledger.MethodGetVotingPower, account)
	if err != nil {
		return fmt.Errorf("read voting power: %w", err)
	}
	votingPower, ok := powerVal.(uint64)
	if !ok {
		return fmt.Errorf("unexpected voting power result type %T", powerVal)
	}
	s.mu.Lock()
	// The account may have changed while we were fetching; don't apply
	// stale values to the new account
	if s.account == account {
		s.balance = balance
		s.votingPower = votingPower
	}
	s.mu.Unlock()
	s.logger.Debug(
		"session balances refreshed",
		"account", account,
		"balance", balance,
		"voting_power", votingPower,
		"component", "session",
	)
	return nil
}

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

// Package txsubmit sequences every state-changing ledger action through the
// same contract: submit, await settlement, and only on confirmation refresh
// the read model. Submission is never treated as confirmation; a rejected
// transaction performs no local mutation, and a wait the caller abandons is
// reconciled in the background when the ledger eventually settles it.
package txsubmit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/blinklabs-io/agora/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultSettlementTimeout = 60 * time.Second

var addressRegexp = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Syncer refreshes the read model from the ledger's event log
type Syncer interface {
	Sync(ctx context.Context) error
}

// BalanceRefresher re-fetches session balances after a confirmed action
type BalanceRefresher interface {
	Refresh(ctx context.Context) error
}

// CapabilityGate decides whether an account may attempt admin-only actions
type CapabilityGate interface {
	Allowed(ctx context.Context, account string) bool
}

type OrchestratorConfig struct {
	PromRegistry      prometheus.Registerer
	Logger            *slog.Logger
	Client            ledger.Client
	Syncer            Syncer
	Session           BalanceRefresher
	Gate              CapabilityGate
	SettlementTimeout time.Duration
}

// Orchestrator drives mutating ledger actions. At most one orchestrated
// action runs per logical target entity at a time; the read-model refreshes
// they trigger coalesce inside the syncer.
type Orchestrator struct {
	config  OrchestratorConfig
	client  ledger.Client
	logger  *slog.Logger
	metrics struct {
		txsSubmitted *prometheus.CounterVec
		txsConfirmed prometheus.Counter
		txsRejected  prometheus.Counter
		txsUnknown   prometheus.Counter
	}
	targetLocks   map[string]*targetLock
	targetLocksMu sync.Mutex
	watcherWg     sync.WaitGroup
}

// targetLock serializes actions per target entity. Entries are refcounted
// so the lock map doesn't accumulate a mutex per target ever touched.
type targetLock struct {
	mu   sync.Mutex
	refs int
}

func NewOrchestrator(config OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		config:      config,
		client:      config.Client,
		targetLocks: make(map[string]*targetLock),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		o.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		o.logger = config.Logger
	}
	if o.config.SettlementTimeout <= 0 {
		o.config.SettlementTimeout = DefaultSettlementTimeout
	}
	promautoFactory := promauto.With(config.PromRegistry)
	o.metrics.txsSubmitted = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_txs_submitted_total",
			Help: "total transactions submitted by method",
		},
		[]string{"method"},
	)
	o.metrics.txsConfirmed = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_txs_confirmed_total",
			Help: "total transactions confirmed",
		},
	)
	o.metrics.txsRejected = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_txs_rejected_total",
			Help: "total transactions rejected by the ledger",
		},
	)
	o.metrics.txsUnknown = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_txs_unknown_total",
			Help: "total transactions with locally unknown settlement",
		},
	)
	return o
}

// Propose submits a new governance proposal. The description's first line
// becomes the display title after the created event is ingested.
func (o *Orchestrator) Propose(
	ctx context.Context,
	account string,
	targets []string,
	values []uint64,
	calldatas [][]byte,
	description string,
) error {
	if description == "" {
		return ledger.NewMalformedInputError("description", "must not be empty")
	}
	if len(targets) == 0 {
		return ledger.NewMalformedInputError("targets", "must not be empty")
	}
	if len(targets) != len(values) || len(targets) != len(calldatas) {
		return ledger.NewMalformedInputError(
			"targets",
			"targets, values and calldatas must have equal length",
		)
	}
	for _, target := range targets {
		if !addressRegexp.MatchString(target) {
			return ledger.NewMalformedInputError("targets", "not an address")
		}
	}
	return o.run(
		ctx,
		"propose/"+account,
		ledger.MethodPropose,
		targets,
		values,
		calldatas,
		description,
	)
}

// CastVote votes on an active proposal with the given support value
func (o *Orchestrator) CastVote(
	ctx context.Context,
	account string,
	proposalId string,
	support int,
) error {
	if proposalId == "" {
		return ledger.NewMalformedInputError("proposalId", "must not be empty")
	}
	switch support {
	case ledger.VoteAgainst, ledger.VoteFor, ledger.VoteAbstain:
	default:
		return ledger.NewMalformedInputError(
			"support",
			"must be 0 (against), 1 (for) or 2 (abstain)",
		)
	}
	return o.run(
		ctx,
		"proposal/"+proposalId,
		ledger.MethodCastVote,
		proposalId,
		support,
	)
}

// Queue moves a succeeded proposal into the execution queue
func (o *Orchestrator) Queue(
	ctx context.Context,
	account string,
	proposalId string,
) error {
	if proposalId == "" {
		return ledger.NewMalformedInputError("proposalId", "must not be empty")
	}
	return o.run(ctx, "proposal/"+proposalId, ledger.MethodQueue, proposalId)
}

// Execute executes a queued proposal
func (o *Orchestrator) Execute(
	ctx context.Context,
	account string,
	proposalId string,
) error {
	if proposalId == "" {
		return ledger.NewMalformedInputError("proposalId", "must not be empty")
	}
	return o.run(ctx, "proposal/"+proposalId, ledger.MethodExecute, proposalId)
}

// Mint issues governance tokens to an address. Admin only.
func (o *Orchestrator) Mint(
	ctx context.Context,
	account string,
	to string,
	amount uint64,
) error {
	if !addressRegexp.MatchString(to) {
		return ledger.NewMalformedInputError("to", "not an address")
	}
	if amount == 0 {
		return ledger.NewMalformedInputError("amount", "must be positive")
	}
	if !o.allowed(ctx, account) {
		return fmt.Errorf("mint: %w", ledger.ErrUnauthorized)
	}
	return o.run(ctx, "account/"+to, ledger.MethodMint, to, amount)
}

// Delegate delegates the account's voting power to an address
func (o *Orchestrator) Delegate(
	ctx context.Context,
	account string,
	delegatee string,
) error {
	if !addressRegexp.MatchString(delegatee) {
		return ledger.NewMalformedInputError("delegatee", "not an address")
	}
	return o.run(ctx, "account/"+account, ledger.MethodDelegate, delegatee)
}

// IssueCertificate issues a certificate record. Admin only. The identifier
// is caller-supplied and treated as opaque; uniqueness is enforced by the
// ledger, not locally. The date string is passed through unvalidated.
func (o *Orchestrator) IssueCertificate(
	ctx context.Context,
	account string,
	certId string,
	name string,
	course string,
	grade string,
	date string,
) error {
	if certId == "" {
		return ledger.NewMalformedInputError("certId", "must not be empty")
	}
	if name == "" {
		return ledger.NewMalformedInputError("name", "must not be empty")
	}
	if !o.allowed(ctx, account) {
		return fmt.Errorf("issue certificate: %w", ledger.ErrUnauthorized)
	}
	return o.run(
		ctx,
		"certificate/"+certId,
		ledger.MethodIssue,
		certId,
		name,
		course,
		grade,
		date,
	)
}

// Stop waits for any detached settlement watchers to finish
func (o *Orchestrator) Stop() {
	o.watcherWg.Wait()
}

func (o *Orchestrator) allowed(ctx context.Context, account string) bool {
	if o.config.Gate == nil {
		return false
	}
	return o.config.Gate.Allowed(ctx, account)
}

// run performs the submit / await / refresh sequence for a single action,
// serialized per target entity
func (o *Orchestrator) run(
	ctx context.Context,
	target string,
	method string,
	args ...any,
) error {
	lock := o.lockTarget(target)
	defer o.unlockTarget(target, lock)

	tx, err := o.client.Submit(ctx, method, args...)
	if err != nil {
		// Submission failure: nothing reached the ledger, no refresh
		return fmt.Errorf("submit %s: %w", method, err)
	}
	o.metrics.txsSubmitted.WithLabelValues(method).Inc()
	o.logger.Debug(
		"transaction submitted",
		"method", method,
		"tx_hash", tx.Hash,
		"component", "txsubmit",
	)

	settlement, err := o.await(ctx, tx)
	if err != nil {
		return err
	}
	switch settlement.Status {
	case ledger.SettlementConfirmed:
		o.metrics.txsConfirmed.Inc()
		o.refresh(ctx, tx)
		return nil
	case ledger.SettlementRejected:
		o.metrics.txsRejected.Inc()
		if settlement.Reason != "" {
			return fmt.Errorf("%w: %s", ledger.ErrRejected, settlement.Reason)
		}
		return ledger.ErrRejected
	default:
		o.metrics.txsUnknown.Inc()
		return fmt.Errorf("%s: %w", method, ledger.ErrSettlementUnknown)
	}
}

// await waits for settlement with a bounded local wait. The caller's context
// or the settlement timeout only abandons the local wait; the underlying
// watch keeps running detached so a late confirmation still reconciles the
// read model instead of diverging from ledger truth.
func (o *Orchestrator) await(
	ctx context.Context,
	tx *ledger.PendingTx,
) (ledger.Settlement, error) {
	resultCh := make(chan ledger.Settlement, 1)
	errCh := make(chan error, 1)
	o.watcherWg.Add(1)
	go func() {
		defer o.watcherWg.Done()
		// Deliberately not the caller's context: the transaction is
		// already on the ledger and cannot be retracted
		settlement, err := o.client.AwaitSettlement(context.Background(), tx)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- settlement
	}()

	timer := time.NewTimer(o.config.SettlementTimeout)
	defer timer.Stop()
	select {
	case settlement := <-resultCh:
		return settlement, nil
	case err := <-errCh:
		// Transport loss mid-wait: the outcome is indeterminate, not failed
		o.metrics.txsUnknown.Inc()
		return ledger.Settlement{}, fmt.Errorf(
			"%w: %s",
			ledger.ErrSettlementUnknown,
			err,
		)
	case <-ctx.Done():
		o.detachWatcher(tx, resultCh, errCh)
		o.metrics.txsUnknown.Inc()
		return ledger.Settlement{}, fmt.Errorf(
			"wait cancelled: %w",
			ledger.ErrSettlementUnknown,
		)
	case <-timer.C:
		o.detachWatcher(tx, resultCh, errCh)
		o.metrics.txsUnknown.Inc()
		return ledger.Settlement{}, fmt.Errorf(
			"wait timed out after %s: %w",
			o.config.SettlementTimeout,
			ledger.ErrSettlementUnknown,
		)
	}
}

// detachWatcher keeps consuming an abandoned settlement watch so that a
// stale confirmation still refreshes the read model
func (o *Orchestrator) detachWatcher(
	tx *ledger.PendingTx,
	resultCh <-chan ledger.Settlement,
	errCh <-chan error,
) {
	o.watcherWg.Add(1)
	go func() {
		defer o.watcherWg.Done()
		select {
		case settlement := <-resultCh:
			o.logger.Info(
				"abandoned transaction settled",
				"tx_hash", tx.Hash,
				"status", settlement.Status.String(),
				"component", "txsubmit",
			)
			if settlement.Status == ledger.SettlementConfirmed {
				o.metrics.txsConfirmed.Inc()
				o.refresh(context.Background(), tx)
			}
		case err := <-errCh:
			o.logger.Warn(
				"abandoned transaction watch failed",
				"tx_hash", tx.Hash,
				"error", err,
				"component", "txsubmit",
			)
		}
	}()
}

// refresh brings the read model and session balances up to date after a
// confirmed transaction. Refresh failures are transient by construction
// (the next sync pass reconciles) so they are logged, not surfaced: the
// action itself took effect.
func (o *Orchestrator) refresh(ctx context.Context, tx *ledger.PendingTx) {
	if o.config.Syncer != nil {
		if err := o.config.Syncer.Sync(ctx); err != nil {
			o.logger.Warn(
				"post-confirmation sync failed",
				"tx_hash", tx.Hash,
				"error", err,
				"component", "txsubmit",
			)
		}
	}
	if o.config.Session != nil {
		if err := o.config.Session.Refresh(ctx); err != nil {
			o.logger.Warn(
				"post-confirmation balance refresh failed",
				"tx_hash", tx.Hash,
				"error", err,
				"component", "txsubmit",
			)
		}
	}
}

func (o *Orchestrator) lockTarget(target string) *targetLock {
	o.targetLocksMu.Lock()
	lock, ok := o.targetLocks[target]
	if !ok {
		lock = &targetLock{}
		o.targetLocks[target] = lock
	}
	lock.refs++
	o.targetLocksMu.Unlock()
	lock.mu.Lock()
	return lock
}

func (o *Orchestrator) unlockTarget(target string, lock *targetLock) {
	lock.mu.Unlock()
	o.targetLocksMu.Lock()
	defer o.targetLocksMu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(o.targetLocks, target)
	}
}

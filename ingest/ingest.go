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

package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/agora/event"
	"github.com/blinklabs-io/agora/ledger"
	"github.com/blinklabs-io/agora/readmodel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

const SyncedEventType event.EventType = "ingest.synced"

// SyncedEvent is published on the event bus after each completed sync pass
type SyncedEvent struct {
	Proposals    int
	Certificates int
}

// eventKinds is the set of ledger event kinds folded into the read model
var eventKinds = []ledger.EventKind{
	ledger.EventKindProposalCreated,
	ledger.EventKindCertificateIssued,
}

type IngestorConfig struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	EventBus     *event.EventBus
	Client       ledger.Client
	Store        *readmodel.Store
}

// Ingestor folds ledger events into the read model. Sync passes are
// all-or-nothing: a failed pass leaves the store in its last-good state.
// Concurrent Sync calls coalesce into a single pass whose result all
// callers share.
type Ingestor struct {
	config  IngestorConfig
	client  ledger.Client
	store   *readmodel.Store
	logger  *slog.Logger
	metrics struct {
		syncsTotal   prometheus.Counter
		syncErrors   prometheus.Counter
		eventsFolded *prometheus.CounterVec
	}
	cursors  map[ledger.EventKind]ledger.Position
	flight   *syncFlight
	flightMu sync.Mutex
}

// syncFlight tracks an in-progress sync pass so that concurrent callers can
// share its result
type syncFlight struct {
	done chan struct{}
	err  error
}

func NewIngestor(config IngestorConfig) *Ingestor {
	i := &Ingestor{
		config:  config,
		client:  config.Client,
		store:   config.Store,
		cursors: make(map[ledger.EventKind]ledger.Position),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		i.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		i.logger = config.Logger
	}
	promautoFactory := promauto.With(config.PromRegistry)
	i.metrics.syncsTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_ingest_syncs_total",
			Help: "total completed sync passes",
		},
	)
	i.metrics.syncErrors = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_ingest_sync_errors_total",
			Help: "total failed sync passes",
		},
	)
	i.metrics.eventsFolded = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_ingest_events_folded_total",
			Help: "total ledger events folded into the read model",
		},
		[]string{"kind"},
	)
	return i
}

// Sync brings the read model up to date with the ledger's event log. A call
// arriving while a pass is already in flight joins that pass instead of
// starting another, so concurrent triggers cost one round trip per event
// kind. The context cancels only this caller's wait, not the shared pass.
func (i *Ingestor) Sync(ctx context.Context) error {
	i.flightMu.Lock()
	if flight := i.flight; flight != nil {
		i.flightMu.Unlock()
		select {
		case <-flight.done:
			return flight.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	flight := &syncFlight{
		done: make(chan struct{}),
	}
	i.flight = flight
	i.flightMu.Unlock()

	flight.err = i.doSync(ctx)

	i.flightMu.Lock()
	i.flight = nil
	i.flightMu.Unlock()
	close(flight.done)
	return flight.err
}

// doSync performs a single sync pass. Only one runs at a time.
func (i *Ingestor) doSync(ctx context.Context) error {
	var newProposals []ledger.ProposalCreatedEvent
	var newCerts []ledger.CertificateIssuedEvent
	nextCursors := make(map[ledger.EventKind]ledger.Position)
	// Dedupe by (kind, identifier) within the batch
	seen := make(map[string]bool)
	for _, kind := range eventKinds {
		events, err := i.client.Query(ctx, kind, i.cursors[kind])
		if err != nil {
			i.metrics.syncErrors.Inc()
			return fmt.Errorf("query %s events: %w", kind, err)
		}
		for _, evt := range events {
			dedupeKey := string(evt.Kind()) + "/" + evt.ID()
			if seen[dedupeKey] {
				continue
			}
			seen[dedupeKey] = true
			switch e := evt.(type) {
			case ledger.ProposalCreatedEvent:
				newProposals = append(newProposals, e)
			case ledger.CertificateIssuedEvent:
				newCerts = append(newCerts, e)
			default:
				return fmt.Errorf("unexpected event type %T for kind %s", evt, kind)
			}
			if evt.Position() >= nextCursors[kind] {
				nextCursors[kind] = evt.Position() + 1
			}
		}
	}
	// Refresh lifecycle code and tally for every proposal we are about to
	// fold, plus every known non-terminal proposal. The ledger exposes no
	// "status changed" event, so point reads are the only way a confirmed
	// vote or queue/execute shows up locally.
	proposalRows := make([]readmodel.Proposal, 0, len(newProposals))
	for _, evt := range newProposals {
		title, body := readmodel.SplitDescription(evt.Description)
		row := readmodel.Proposal{
			ProposalID: evt.ProposalID,
			Title:      title,
			Body:       body,
			Proposer:   evt.Proposer,
		}
		if err := i.refreshProposal(ctx, &row); err != nil {
			i.metrics.syncErrors.Inc()
			return err
		}
		proposalRows = append(proposalRows, row)
	}
	existing, err := i.store.Proposals()
	if err != nil {
		i.metrics.syncErrors.Inc()
		return fmt.Errorf("list known proposals: %w", err)
	}
	for _, row := range existing {
		if seen[string(ledger.EventKindProposalCreated)+"/"+row.ProposalID] {
			continue
		}
		if row.State().Terminal() {
			continue
		}
		if err := i.refreshProposal(ctx, &row); err != nil {
			i.metrics.syncErrors.Inc()
			return err
		}
		proposalRows = append(proposalRows, row)
	}
	// Apply the whole batch in one transaction
	err = i.store.Transaction(func(txn *gorm.DB) error {
		for _, row := range proposalRows {
			if err := i.store.UpsertProposal(row, txn); err != nil {
				return err
			}
		}
		for _, evt := range newCerts {
			cert := readmodel.Certificate{
				CertID: evt.CertID,
				Name:   evt.Name,
				Course: evt.Course,
				Grade:  evt.Grade,
				Date:   evt.Date,
			}
			if err := i.store.UpsertCertificate(cert, txn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		i.metrics.syncErrors.Inc()
		return fmt.Errorf("apply sync batch: %w", err)
	}
	// Advance cursors only after the batch is committed
	for kind, cursor := range nextCursors {
		if cursor > i.cursors[kind] {
			i.cursors[kind] = cursor
		}
	}
	i.metrics.syncsTotal.Inc()
	i.metrics.eventsFolded.WithLabelValues(
		string(ledger.EventKindProposalCreated),
	).Add(float64(len(newProposals)))
	i.metrics.eventsFolded.WithLabelValues(
		string(ledger.EventKindCertificateIssued),
	).Add(float64(len(newCerts)))
	i.logger.Debug(
		"sync pass complete",
		"proposals", len(newProposals),
		"certificates", len(newCerts),
		"component", "ingest",
	)
	if i.config.EventBus != nil {
		i.config.EventBus.Publish(
			SyncedEventType,
			event.NewEvent(
				SyncedEventType,
				SyncedEvent{
					Proposals:    len(newProposals),
					Certificates: len(newCerts),
				},
			),
		)
	}
	return nil
}

// refreshProposal updates a proposal row's status code and tally via point
// reads against the ledger
func (i *Ingestor) refreshProposal(
	ctx context.Context,
	row *readmodel.Proposal,
) error {
	stateVal, err := i.client.Call(ctx, ledger.MethodState, row.ProposalID)
	if err != nil {
		return fmt.Errorf("read proposal %s state: %w", row.ProposalID, err)
	}
	statusCode, ok := stateVal.(int)
	if !ok {
		return fmt.Errorf(
			"unexpected state result type %T for proposal %s",
			stateVal,
			row.ProposalID,
		)
	}
	tallyVal, err := i.client.Call(
		ctx,
		ledger.MethodProposalVotes,
		row.ProposalID,
	)
	if err != nil {
		return fmt.Errorf("read proposal %s tally: %w", row.ProposalID, err)
	}
	tally, ok := tallyVal.(ledger.TallyResult)
	if !ok {
		return fmt.Errorf(
			"unexpected tally result type %T for proposal %s",
			tallyVal,
			row.ProposalID,
		)
	}
	row.StatusCode = statusCode
	row.VotesFor = tally.For
	row.VotesAgainst = tally.Against
	row.VotesAbstain = tally.Abstain
	return nil
}

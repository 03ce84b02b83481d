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

package ingest_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/agora/ingest"
	"github.com/blinklabs-io/agora/ledger"
	"github.com/blinklabs-io/agora/readmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIngestor(
	t *testing.T,
	client ledger.Client,
) (*ingest.Ingestor, *readmodel.Store) {
	t.Helper()
	store, err := readmodel.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close() //nolint:errcheck
	})
	ingestor := ingest.NewIngestor(ingest.IngestorConfig{
		Client: client,
		Store:  store,
	})
	return ingestor, store
}

func scriptProposal(
	client *ledger.MockClient,
	proposalId string,
	description string,
	position ledger.Position,
	statusCode int,
	tally ledger.TallyResult,
) {
	client.AppendEvent(ledger.ProposalCreatedEvent{
		ProposalID:  proposalId,
		Description: description,
		LogPosition: position,
	})
	client.SetCallResult(ledger.MethodState, statusCode, proposalId)
	client.SetCallResult(ledger.MethodProposalVotes, tally, proposalId)
}

func TestSyncFoldsEvents(t *testing.T) {
	client := ledger.NewMockClient()
	scriptProposal(
		client,
		"101",
		"Fund the library\nBuy more books",
		0,
		1,
		ledger.TallyResult{For: 100, Against: 40},
	)
	client.AppendEvent(ledger.CertificateIssuedEvent{
		CertID:      "cert-1",
		Name:        "Alice",
		Course:      "Distributed Systems",
		Grade:       "A",
		Date:        "2026-08-01",
		LogPosition: 0,
	})
	ingestor, store := newTestIngestor(t, client)

	require.NoError(t, ingestor.Sync(context.Background()))

	proposal, err := store.ProposalByID("101")
	require.NoError(t, err)
	assert.Equal(t, "Fund the library", proposal.Title)
	assert.Equal(t, "Buy more books", proposal.Body)
	assert.Equal(t, 1, proposal.StatusCode)
	assert.Equal(t, uint64(100), proposal.VotesFor)
	assert.Equal(t, uint64(40), proposal.VotesAgainst)

	cert, err := store.CertificateByID("cert-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", cert.Name)
}

func TestSyncIdempotent(t *testing.T) {
	client := ledger.NewMockClient()
	scriptProposal(
		client,
		"101",
		"Fund the library",
		0,
		0,
		ledger.TallyResult{},
	)
	ingestor, store := newTestIngestor(t, client)

	// Re-running ingestion over the same events must not duplicate or
	// corrupt entries, regardless of batch boundaries
	for i := 0; i < 3; i++ {
		require.NoError(t, ingestor.Sync(context.Background()))
	}
	proposals, err := store.Proposals()
	require.NoError(t, err)
	assert.Len(t, proposals, 1)
}

func TestSyncFailureLeavesStoreIntact(t *testing.T) {
	client := ledger.NewMockClient()
	scriptProposal(
		client,
		"101",
		"Fund the library",
		0,
		0,
		ledger.TallyResult{},
	)
	ingestor, store := newTestIngestor(t, client)
	require.NoError(t, ingestor.Sync(context.Background()))

	// Second pass fails at the transport; the first pass's state survives
	scriptProposal(client, "102", "Another", 1, 0, ledger.TallyResult{})
	client.QueryErr = ledger.ErrUnavailable
	err := ingestor.Sync(context.Background())
	require.ErrorIs(t, err, ledger.ErrUnavailable)

	proposals, listErr := store.Proposals()
	require.NoError(t, listErr)
	assert.Len(t, proposals, 1)

	// Recovery picks up where the failed pass left off
	client.QueryErr = nil
	require.NoError(t, ingestor.Sync(context.Background()))
	proposals, listErr = store.Proposals()
	require.NoError(t, listErr)
	assert.Len(t, proposals, 2)
}

func TestSyncRefreshesKnownProposals(t *testing.T) {
	client := ledger.NewMockClient()
	scriptProposal(
		client,
		"101",
		"Fund the library",
		0,
		1,
		ledger.TallyResult{For: 10},
	)
	ingestor, store := newTestIngestor(t, client)
	require.NoError(t, ingestor.Sync(context.Background()))

	// A vote confirmed elsewhere shows up on the next pass via point reads
	// even though no new events exist
	client.SetCallResult(
		ledger.MethodProposalVotes,
		ledger.TallyResult{For: 110, Against: 40},
		"101",
	)
	client.SetCallResult(ledger.MethodState, 4, "101")
	require.NoError(t, ingestor.Sync(context.Background()))

	proposal, err := store.ProposalByID("101")
	require.NoError(t, err)
	assert.Equal(t, uint64(110), proposal.VotesFor)
	assert.Equal(t, 4, proposal.StatusCode)
}

func TestSyncSkipsTerminalProposals(t *testing.T) {
	client := ledger.NewMockClient()
	scriptProposal(
		client,
		"101",
		"Executed already",
		0,
		7,
		ledger.TallyResult{For: 5},
	)
	ingestor, _ := newTestIngestor(t, client)
	require.NoError(t, ingestor.Sync(context.Background()))
	stateReads := client.QueryCount(ledger.EventKindProposalCreated)
	require.Equal(t, 1, stateReads)

	// Terminal proposals are not re-read on subsequent passes
	client.SetCallError(ledger.MethodState, ledger.ErrUnavailable, "101")
	require.NoError(t, ingestor.Sync(context.Background()))
}

// blockingClient wraps the mock client so a test can hold a sync pass open
// while more Sync calls arrive
type blockingClient struct {
	*ledger.MockClient
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *blockingClient) Query(
	ctx context.Context,
	kind ledger.EventKind,
	from ledger.Position,
) ([]ledger.Event, error) {
	c.once.Do(func() {
		close(c.entered)
		<-c.release
	})
	return c.MockClient.Query(ctx, kind, from)
}

func TestSyncCoalescing(t *testing.T) {
	mock := ledger.NewMockClient()
	scriptProposal(
		mock,
		"101",
		"Fund the library",
		0,
		1,
		ledger.TallyResult{},
	)
	client := &blockingClient{
		MockClient: mock,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	ingestor, store := newTestIngestor(t, client)

	errs := make(chan error, 3)
	go func() {
		errs <- ingestor.Sync(context.Background())
	}()
	// Wait until the first pass is inside Query, then pile on two more
	// callers which must join the in-flight pass
	select {
	case <-client.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for first sync to start")
	}
	for i := 0; i < 2; i++ {
		go func() {
			errs <- ingestor.Sync(context.Background())
		}()
	}
	// Give the joiners a moment to attach before releasing the pass
	time.Sleep(50 * time.Millisecond)
	close(client.release)

	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for sync callers")
		}
	}
	// All three callers shared one pass: one round trip per event kind
	assert.Equal(t, 1, mock.QueryCount(ledger.EventKindProposalCreated))
	assert.Equal(t, 1, mock.QueryCount(ledger.EventKindCertificateIssued))
	// And all of them observe the post-sync snapshot
	proposals, err := store.Proposals()
	require.NoError(t, err)
	assert.Len(t, proposals, 1)
}

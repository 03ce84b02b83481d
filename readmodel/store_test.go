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

package readmodel_test

import (
	"errors"
	"testing"

	"github.com/blinklabs-io/agora/lifecycle"
	"github.com/blinklabs-io/agora/readmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *readmodel.Store {
	t.Helper()
	store, err := readmodel.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close() //nolint:errcheck
	})
	return store
}

func TestUpsertProposalCreateAndUpdate(t *testing.T) {
	store := newTestStore(t)
	err := store.UpsertProposal(
		readmodel.Proposal{
			ProposalID: "12345",
			Title:      "Fund the library",
			Body:       "details",
			StatusCode: 0,
		},
		nil,
	)
	require.NoError(t, err)

	// A later fold for the same identifier refreshes status and tallies
	// but never touches identifier or title/body
	err = store.UpsertProposal(
		readmodel.Proposal{
			ProposalID:   "12345",
			Title:        "SHOULD NOT OVERWRITE",
			Body:         "SHOULD NOT OVERWRITE",
			StatusCode:   1,
			VotesFor:     100,
			VotesAgainst: 40,
		},
		nil,
	)
	require.NoError(t, err)

	proposal, err := store.ProposalByID("12345")
	require.NoError(t, err)
	assert.Equal(t, "Fund the library", proposal.Title)
	assert.Equal(t, "details", proposal.Body)
	assert.Equal(t, 1, proposal.StatusCode)
	assert.Equal(t, uint64(100), proposal.VotesFor)
	assert.Equal(t, uint64(40), proposal.VotesAgainst)
	assert.Equal(t, lifecycle.StateActive, proposal.State())

	proposals, err := store.Proposals()
	require.NoError(t, err)
	assert.Len(t, proposals, 1)
}

func TestProposalDisplayOrder(t *testing.T) {
	store := newTestStore(t)
	for _, proposalId := range []string{"300", "100", "200"} {
		err := store.UpsertProposal(
			readmodel.Proposal{
				ProposalID: proposalId,
				Title:      "p" + proposalId,
			},
			nil,
		)
		require.NoError(t, err)
	}
	proposals, err := store.Proposals()
	require.NoError(t, err)
	require.Len(t, proposals, 3)
	// Ingestion order, not identifier order
	assert.Equal(t, "300", proposals[0].ProposalID)
	assert.Equal(t, "100", proposals[1].ProposalID)
	assert.Equal(t, "200", proposals[2].ProposalID)
}

func TestProposalsByState(t *testing.T) {
	store := newTestStore(t)
	testRows := []readmodel.Proposal{
		{ProposalID: "1", Title: "a", StatusCode: 1},
		{ProposalID: "2", Title: "b", StatusCode: 7},
		{ProposalID: "3", Title: "c", StatusCode: 1},
		{ProposalID: "4", Title: "d", StatusCode: 99},
	}
	for _, row := range testRows {
		require.NoError(t, store.UpsertProposal(row, nil))
	}
	active, err := store.ProposalsByState(lifecycle.StateActive)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	executed, err := store.ProposalsByState(lifecycle.StateExecuted)
	require.NoError(t, err)
	assert.Len(t, executed, 1)
	unknown, err := store.ProposalsByState(lifecycle.StateUnknown)
	require.NoError(t, err)
	require.Len(t, unknown, 1)
	assert.Equal(t, "4", unknown[0].ProposalID)
}

func TestUpsertCertificateImmutable(t *testing.T) {
	store := newTestStore(t)
	err := store.UpsertCertificate(
		readmodel.Certificate{
			CertID: "cert-1",
			Name:   "Alice",
			Course: "Distributed Systems",
			Grade:  "A",
			Date:   "2026-08-01",
		},
		nil,
	)
	require.NoError(t, err)

	// Re-folding the same identifier must not modify the existing record
	err = store.UpsertCertificate(
		readmodel.Certificate{
			CertID: "cert-1",
			Name:   "Mallory",
		},
		nil,
	)
	require.NoError(t, err)

	cert, err := store.CertificateByID("cert-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", cert.Name)
	assert.Equal(t, "Distributed Systems", cert.Course)

	certs, err := store.Certificates()
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}

func TestTransactionRollback(t *testing.T) {
	store := newTestStore(t)
	testErr := errors.New("abort batch")
	err := store.Transaction(func(txn *gorm.DB) error {
		if err := store.UpsertProposal(
			readmodel.Proposal{ProposalID: "1", Title: "a"},
			txn,
		); err != nil {
			return err
		}
		return testErr
	})
	require.ErrorIs(t, err, testErr)

	// The partial batch must not be visible
	_, err = store.ProposalByID("1")
	assert.ErrorIs(t, err, readmodel.ErrProposalNotFound)
}

func TestNotFoundErrors(t *testing.T) {
	store := newTestStore(t)
	_, err := store.ProposalByID("nope")
	assert.ErrorIs(t, err, readmodel.ErrProposalNotFound)
	_, err = store.CertificateByID("nope")
	assert.ErrorIs(t, err, readmodel.ErrCertificateNotFound)
}

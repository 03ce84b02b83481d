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

package agora_test

import (
	"context"
	"testing"

	"github.com/blinklabs-io/agora"
	"github.com/blinklabs-io/agora/ledger"
	"github.com/blinklabs-io/agora/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccount = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func newTestClient() *ledger.MockClient {
	client := ledger.NewMockClient()
	client.AppendEvent(ledger.ProposalCreatedEvent{
		ProposalID:  "101",
		Description: "Fund the library\nBuy more books",
		LogPosition: 0,
	})
	client.SetCallResult(ledger.MethodState, 1, "101")
	client.SetCallResult(
		ledger.MethodProposalVotes,
		ledger.TallyResult{For: 100, Against: 40},
		"101",
	)
	client.SetCallResult(
		ledger.MethodHasRole, true, ledger.AdminRole, testAccount,
	)
	client.SetCallResult(ledger.MethodGetVotes, uint64(250), testAccount)
	client.SetCallResult(ledger.MethodGetVotingPower, uint64(200), testAccount)
	return client
}

func TestNodeRequiresClient(t *testing.T) {
	_, err := agora.New(agora.NewConfig())
	require.Error(t, err)
}

func TestNodeEndToEnd(t *testing.T) {
	client := newTestClient()
	node, err := agora.New(
		agora.NewConfig(
			agora.WithLedgerClient(client),
			agora.WithAccount(testAccount),
		),
	)
	require.NoError(t, err)
	defer func() {
		node.Stop() //nolint:errcheck
	}()
	ctx := context.Background()

	require.NoError(t, node.Ingestor().Sync(ctx))
	proposals, err := node.Store().Proposals()
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, "Fund the library", proposals[0].Title)
	assert.Equal(t, lifecycle.StateActive, proposals[0].State())
	assert.InDelta(t, 100.0/140.0, proposals[0].SupportRatio(), 0.0001)

	require.NoError(t, node.SetAccount(ctx, testAccount))
	assert.Equal(t, uint64(250), node.Session().Balance())
	assert.True(t, node.AccessGate().Allowed(ctx, testAccount))

	// A confirmed vote triggers a refresh; script the post-vote tally
	client.SetCallResult(
		ledger.MethodProposalVotes,
		ledger.TallyResult{For: 300, Against: 40},
		"101",
	)
	err = node.Orchestrator().CastVote(ctx, testAccount, "101", ledger.VoteFor)
	require.NoError(t, err)

	proposal, err := node.Store().ProposalByID("101")
	require.NoError(t, err)
	assert.Equal(t, uint64(300), proposal.VotesFor)
}

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

package txsubmit

import (
	"context"
	"sync"
	"testing"

	"github.com/blinklabs-io/agora/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetLocksPrunedAfterUse(t *testing.T) {
	client := ledger.NewMockClient()
	o := NewOrchestrator(OrchestratorConfig{Client: client})
	ctx := context.Background()
	account := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	for _, proposalId := range []string{"101", "102", "103"} {
		require.NoError(t, o.CastVote(ctx, account, proposalId, ledger.VoteFor))
	}
	o.targetLocksMu.Lock()
	remaining := len(o.targetLocks)
	o.targetLocksMu.Unlock()
	assert.Equal(t, 0, remaining)
}

func TestTargetLocksPrunedUnderContention(t *testing.T) {
	client := ledger.NewMockClient()
	o := NewOrchestrator(OrchestratorConfig{Client: client})
	ctx := context.Background()
	account := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, o.CastVote(ctx, account, "101", ledger.VoteFor))
		}()
	}
	wg.Wait()
	o.targetLocksMu.Lock()
	remaining := len(o.targetLocks)
	o.targetLocksMu.Unlock()
	assert.Equal(t, 0, remaining)
}

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

package ledger

import (
	"context"
)

// Read method names exposed by the governor/certificate contracts
const (
	MethodState          = "state"
	MethodProposalVotes  = "proposalVotes"
	MethodGetVotes       = "getVotes"
	MethodGetVotingPower = "getVotingPower"
	MethodHasRole        = "hasRole"
)

// Write method names
const (
	MethodPropose  = "propose"
	MethodCastVote = "castVote"
	MethodQueue    = "queue"
	MethodExecute  = "execute"
	MethodMint     = "mint"
	MethodDelegate = "delegate"
	MethodIssue    = "issue"
)

// AdminRole is the role identifier checked for elevated capabilities
const AdminRole = "ADMIN_ROLE"

// Vote support values accepted by castVote
const (
	VoteAgainst = 0
	VoteFor     = 1
	VoteAbstain = 2
)

// TallyResult is the decoded result of a proposalVotes read
type TallyResult struct {
	For     uint64
	Against uint64
	Abstain uint64
}

// SettlementStatus is the terminal outcome of a submitted transaction
type SettlementStatus int

const (
	SettlementUnknown SettlementStatus = iota
	SettlementConfirmed
	SettlementRejected
)

func (s SettlementStatus) String() string {
	switch s {
	case SettlementConfirmed:
		return "Confirmed"
	case SettlementRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Settlement reports the outcome of a submitted transaction. Reason is only
// populated for rejections when the ledger provides one.
type Settlement struct {
	Reason string
	Status SettlementStatus
}

// PendingTx is a handle for a transaction accepted for submission but not
// yet settled
type PendingTx struct {
	Hash   string
	Method string
}

// Client provides typed access to the external ledger. Implementations own
// no state beyond their connection; all consistency logic lives above this
// boundary.
//
// Every operation may fail with ErrUnavailable on transport problems, which
// is always retryable. Other failures are not retried automatically.
type Client interface {
	// Query returns all events of the given kind at or after the given
	// log position, in log order
	Query(ctx context.Context, kind EventKind, from Position) ([]Event, error)
	// Call performs a non-mutating contract read
	Call(ctx context.Context, method string, args ...any) (any, error)
	// Submit sends a state-changing request and returns once the ledger
	// has accepted it for processing. Acceptance is not confirmation.
	Submit(ctx context.Context, method string, args ...any) (*PendingTx, error)
	// AwaitSettlement blocks until the transaction settles or the context
	// is cancelled. Cancellation stops the local wait only; it cannot
	// retract a transaction the ledger has already accepted.
	AwaitSettlement(ctx context.Context, tx *PendingTx) (Settlement, error)
}

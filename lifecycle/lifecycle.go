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

// Package lifecycle maps the ledger's raw proposal status codes to the
// canonical local state machine:
//
//	Pending -> Active -> {Defeated | Succeeded}
//	Succeeded -> Queued -> {Executed | Expired}
//	any non-terminal -> Canceled
//
// Transitions are computed by the ledger; the client only renders them.
package lifecycle

// State is the canonical local rendering of a proposal's lifecycle
type State int

const (
	StatePending State = iota
	StateActive
	StateCanceled
	StateDefeated
	StateSucceeded
	StateQueued
	StateExpired
	StateExecuted
	// StateUnknown is returned for any status code outside 0..7 so
	// unrecognized proposals degrade to display-only instead of failing
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateActive:
		return "Active"
	case StateCanceled:
		return "Canceled"
	case StateDefeated:
		return "Defeated"
	case StateSucceeded:
		return "Succeeded"
	case StateQueued:
		return "Queued"
	case StateExpired:
		return "Expired"
	case StateExecuted:
		return "Executed"
	default:
		return "Unknown"
	}
}

// Terminal returns true for states a proposal can never leave
func (s State) Terminal() bool {
	switch s {
	case StateCanceled, StateDefeated, StateExpired, StateExecuted:
		return true
	default:
		return false
	}
}

// Resolve maps a raw ledger status code to its canonical state. It is total:
// any code outside the documented 0..7 range resolves to StateUnknown.
func Resolve(code int) State {
	if code < int(StatePending) || code > int(StateExecuted) {
		return StateUnknown
	}
	return State(code)
}

// Action is a ledger write operation the UI may offer for a proposal
type Action string

const (
	ActionVote    Action = "vote"
	ActionQueue   Action = "queue"
	ActionExecute Action = "execute"
)

// ActionsFor returns the ledger operations available for a proposal in the
// given state. Unknown states offer nothing.
func ActionsFor(s State) []Action {
	switch s {
	case StateActive:
		return []Action{ActionVote}
	case StateSucceeded:
		return []Action{ActionQueue}
	case StateQueued:
		return []Action{ActionExecute}
	default:
		return nil
	}
}

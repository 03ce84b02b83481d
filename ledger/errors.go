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
	"errors"
	"fmt"
)

// ErrUnavailable indicates a transport-level failure talking to the ledger.
// Operations failing with this error are safe to retry at the caller's
// discretion.
var ErrUnavailable = errors.New("ledger unavailable")

// ErrRejected indicates the ledger declined a submitted write. Retrying
// without changing the inputs will fail again.
var ErrRejected = errors.New("transaction rejected by ledger")

// ErrSettlementUnknown indicates the outcome of a submitted write could not
// be determined locally (cancelled wait, network loss mid-wait). The
// transaction may still settle on the ledger; the caller must re-sync and
// inspect resulting state rather than trust this result.
var ErrSettlementUnknown = errors.New("settlement outcome unknown")

// ErrUnauthorized indicates the active account lacks the capability required
// for the attempted action.
var ErrUnauthorized = errors.New("account not authorized")

// MalformedInputError indicates a local precondition failure. The request
// never reached the ledger.
type MalformedInputError struct {
	Field  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input: %s: %s", e.Field, e.Reason)
}

func NewMalformedInputError(field, reason string) *MalformedInputError {
	return &MalformedInputError{Field: field, Reason: reason}
}

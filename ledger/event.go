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

// EventKind identifies a class of ledger log event
type EventKind string

const (
	EventKindProposalCreated   EventKind = "ProposalCreated"
	EventKindCertificateIssued EventKind = "CertificateIssued"
)

// Position is an opaque offset into the ledger's append-only event log.
// Zero means "from the beginning".
type Position uint64

// Event is an immutable fact decoded from the ledger's log. Payloads are
// decoded into named fields at the client boundary so nothing above it
// handles raw positional values.
type Event interface {
	// Kind returns the event class
	Kind() EventKind
	// ID returns the ledger-assigned identifier of the entity the event
	// concerns. (Kind, ID) is the dedupe key during ingestion.
	ID() string
	// Position returns the log position the event was read from
	Position() Position
}

// ProposalCreatedEvent is emitted when a governance proposal is created
type ProposalCreatedEvent struct {
	// ProposalID is the ledger-assigned proposal identifier, rendered as a
	// decimal string since the raw value is an opaque 256-bit integer
	ProposalID  string
	Proposer    string
	Description string
	LogPosition Position
}

func (e ProposalCreatedEvent) Kind() EventKind    { return EventKindProposalCreated }
func (e ProposalCreatedEvent) ID() string         { return e.ProposalID }
func (e ProposalCreatedEvent) Position() Position { return e.LogPosition }

// CertificateIssuedEvent is emitted when a certificate is issued
type CertificateIssuedEvent struct {
	CertID      string
	Name        string
	Course      string
	Grade       string
	Date        string
	LogPosition Position
}

func (e CertificateIssuedEvent) Kind() EventKind    { return EventKindCertificateIssued }
func (e CertificateIssuedEvent) ID() string         { return e.CertID }
func (e CertificateIssuedEvent) Position() Position { return e.LogPosition }

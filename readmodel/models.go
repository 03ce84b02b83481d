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

package readmodel

import (
	"errors"
	"strings"

	"github.com/blinklabs-io/agora/lifecycle"
)

var ErrProposalNotFound = errors.New("proposal not found")

var ErrCertificateNotFound = errors.New("certificate not found")

// UntitledProposal is the display title used when a proposal description
// has an empty first line
const UntitledProposal = "Untitled Proposal"

// Proposal is the read-model projection of a governance proposal. The row ID
// is the ingestion sequence and provides stable display ordering; ProposalID
// is the ledger-assigned identifier and never changes.
type Proposal struct {
	ID           uint   `gorm:"primarykey"`
	ProposalID   string `gorm:"uniqueIndex;size:80;not null"`
	Title        string `gorm:"not null"`
	Body         string
	Proposer     string `gorm:"size:42"`
	StatusCode   int    `gorm:"index;not null"`
	VotesFor     uint64 `gorm:"not null"`
	VotesAgainst uint64 `gorm:"not null"`
	VotesAbstain uint64 `gorm:"not null"`
}

// TableName returns the table name
func (Proposal) TableName() string {
	return "proposals"
}

// State returns the canonical lifecycle state for the proposal's raw status code
func (p Proposal) State() lifecycle.State {
	return lifecycle.Resolve(p.StatusCode)
}

// SupportRatio returns the for/(for+against) ratio used for display. A
// proposal with no for or against votes yet has a ratio of zero.
func (p Proposal) SupportRatio() float64 {
	total := p.VotesFor + p.VotesAgainst
	if total == 0 {
		return 0
	}
	return float64(p.VotesFor) / float64(total)
}

// Certificate is the read-model projection of an issued certificate. Rows
// are append-only and immutable once folded; the CertID is caller-supplied
// at issuance and treated as opaque. The date string is ledger-defined and
// not validated locally.
type Certificate struct {
	ID     uint   `gorm:"primarykey"`
	CertID string `gorm:"uniqueIndex;size:80;not null"`
	Name   string `gorm:"not null"`
	Course string
	Grade  string
	Date   string
}

// TableName returns the table name
func (Certificate) TableName() string {
	return "certificates"
}

// SplitDescription derives a proposal's display title and body from its
// free-text description: the first line is the title and the remainder is
// the body. A description with no line break is both title and body. An
// empty first line falls back to a placeholder title.
func SplitDescription(description string) (title string, body string) {
	title, body, found := strings.Cut(description, "\n")
	if !found {
		body = description
	}
	if title == "" {
		title = UntitledProposal
	}
	return title, body
}

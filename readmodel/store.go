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
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/blinklabs-io/agora/lifecycle"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// storeCounter provides a distinct in-memory database per store so that
// independent stores in one process don't share state
var storeCounter atomic.Uint64

// Store is the session-local, query-optimized projection of ledger facts. It
// is rebuilt entirely from ingested events and holds nothing the ledger
// can't reproduce; only the ingestor writes to it. Backed by an in-memory
// SQLite database, which gives reads a consistent committed snapshot while
// a fold transaction is in progress.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New creates an in-memory read-model store
func New(logger *slog.Logger) (*Store, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// cache=shared allows multiple connections to share the same in-memory database
	connString := fmt.Sprintf(
		"file:agora_readmodel_%d?mode=memory&cache=shared",
		storeCounter.Add(1),
	)
	db, err := gorm.Open(
		sqlite.Open(connString),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("open read model database: %w", err)
	}
	for _, model := range []any{&Proposal{}, &Certificate{}} {
		logger.Debug(
			fmt.Sprintf("creating table: %#v", model),
			"component", "readmodel",
		)
		if err := db.AutoMigrate(model); err != nil {
			return nil, fmt.Errorf("create table schema: %w", err)
		}
	}
	return &Store{
		db:     db,
		logger: logger,
	}, nil
}

// Transaction runs fn inside a single database transaction. The ingestor
// uses this to apply a whole sync batch atomically: any error rolls the
// batch back and leaves the store in its last-good state.
func (s *Store) Transaction(fn func(txn *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// UpsertProposal folds a proposal row into the store, keyed by the ledger
// identifier. An existing row keeps its row ID (display order) and
// immutable fields; only the status code and tallies are refreshed.
func (s *Store) UpsertProposal(proposal Proposal, txn *gorm.DB) error {
	if txn == nil {
		txn = s.db
	}
	var existing Proposal
	result := txn.Where("proposal_id = ?", proposal.ProposalID).
		First(&existing)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		if err := txn.Create(&proposal).Error; err != nil {
			return fmt.Errorf("create proposal: %w", err)
		}
		return nil
	}
	updates := map[string]any{
		"status_code":   proposal.StatusCode,
		"votes_for":     proposal.VotesFor,
		"votes_against": proposal.VotesAgainst,
		"votes_abstain": proposal.VotesAbstain,
	}
	if err := txn.Model(&existing).Updates(updates).Error; err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	return nil
}

// UpsertCertificate folds a certificate row into the store. Certificates
// are immutable once present; a duplicate identifier is a no-op so
// re-ingesting the same events can't corrupt existing rows.
func (s *Store) UpsertCertificate(cert Certificate, txn *gorm.DB) error {
	if txn == nil {
		txn = s.db
	}
	var existing Certificate
	result := txn.Where("cert_id = ?", cert.CertID).First(&existing)
	if result.Error == nil {
		return nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	if err := txn.Create(&cert).Error; err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// Proposals returns all proposals in ingestion order
func (s *Store) Proposals() ([]Proposal, error) {
	ret := []Proposal{}
	result := s.db.Order("id ASC").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// ProposalsByState returns proposals whose lifecycle state matches, in
// ingestion order. StateUnknown matches any status code outside the
// documented range.
func (s *Store) ProposalsByState(
	state lifecycle.State,
) ([]Proposal, error) {
	ret := []Proposal{}
	query := s.db.Order("id ASC")
	if state == lifecycle.StateUnknown {
		query = query.Where(
			"status_code < ? OR status_code > ?",
			int(lifecycle.StatePending),
			int(lifecycle.StateExecuted),
		)
	} else {
		query = query.Where("status_code = ?", int(state))
	}
	result := query.Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// ProposalByID returns the proposal with the given ledger identifier
func (s *Store) ProposalByID(proposalId string) (Proposal, error) {
	var ret Proposal
	result := s.db.Where("proposal_id = ?", proposalId).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ret, ErrProposalNotFound
		}
		return ret, result.Error
	}
	return ret, nil
}

// Certificates returns all certificates in ingestion order
func (s *Store) Certificates() ([]Certificate, error) {
	ret := []Certificate{}
	result := s.db.Order("id ASC").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// CertificateByID returns the certificate with the given identifier
func (s *Store) CertificateByID(certId string) (Certificate, error) {
	var ret Certificate
	result := s.db.Where("cert_id = ?", certId).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ret, ErrCertificateNotFound
		}
		return ret, result.Error
	}
	return ret, nil
}

// Close releases the underlying database connection
func (s *Store) Close() error {
	sqlDb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}

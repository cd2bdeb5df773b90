package store

import (
	"context"
	"sync"

	"github.com/agirails/actp-kernel-sub001/internal/feesink/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/sentinel"
)

// InMemoryLedger holds the sink's accounting record behind a mutex.
type InMemoryLedger struct {
	mu     sync.RWMutex
	ledger models.WithdrawalLedger
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{}
}

func (s *InMemoryLedger) Get(_ context.Context) (*models.WithdrawalLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := s.ledger
	return &cp, nil
}

// Execute runs fn against a working copy and commits it only when fn
// returns nil, so a failed validation never moves the counters.
func (s *InMemoryLedger) Execute(_ context.Context, fn func(ledger *models.WithdrawalLedger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	working := s.ledger
	if err := fn(&working); err != nil {
		return err
	}
	s.ledger = working
	return nil
}

// InMemoryArchive stores archive records keyed by transaction id.
type InMemoryArchive struct {
	mu      sync.RWMutex
	records map[id.TxID]*models.ArchiveRecord
}

func NewInMemoryArchive() *InMemoryArchive {
	return &InMemoryArchive{records: make(map[id.TxID]*models.ArchiveRecord)}
}

// Create inserts the record. Fails with ErrAlreadyUsed when the
// transaction is already archived; records are never overwritten.
func (s *InMemoryArchive) Create(_ context.Context, record *models.ArchiveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.TxID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *record
	s.records[record.TxID] = &cp
	return nil
}

func (s *InMemoryArchive) Get(_ context.Context, txID id.TxID) (*models.ArchiveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[txID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (s *InMemoryArchive) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

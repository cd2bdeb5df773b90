package store

import (
	"context"
	"sync"

	"github.com/agirails/actp-kernel-sub001/internal/kernel/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/sentinel"
)

// InMemory keeps the full transaction history in a map. Execute provides
// the atomic validate-then-mutate section the kernel relies on: fund
// movements run inside the callback, and the mutated record is committed
// only when the callback returns nil.
type InMemory struct {
	mu  sync.RWMutex
	txs map[id.TxID]*models.Transaction
}

func NewInMemory() *InMemory {
	return &InMemory{txs: make(map[id.TxID]*models.Transaction)}
}

// Create inserts a new transaction. Fails with ErrAlreadyUsed on id
// collision; ids are derived from a monotonic nonce so this only fires on a
// derivation bug.
func (s *InMemory) Create(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.txs[tx.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.txs[tx.ID] = tx.Clone()
	return nil
}

func (s *InMemory) Get(_ context.Context, txID id.TxID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[txID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return tx.Clone(), nil
}

// Execute runs fn against a working copy of the transaction under the
// writer lock and commits it only when fn returns nil.
func (s *InMemory) Execute(_ context.Context, txID id.TxID, fn func(tx *models.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[txID]
	if !ok {
		return sentinel.ErrNotFound
	}
	working := tx.Clone()
	if err := fn(working); err != nil {
		return err
	}
	s.txs[txID] = working
	return nil
}

// ListByParty returns every transaction the party participates in.
func (s *InMemory) ListByParty(_ context.Context, party id.PartyID) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Transaction
	for _, tx := range s.txs {
		if tx.IsParty(party) {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

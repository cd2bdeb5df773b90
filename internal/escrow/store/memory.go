package store

import (
	"context"
	"sync"

	"github.com/agirails/actp-kernel-sub001/internal/escrow/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/sentinel"
)

// InMemory keeps active escrow records keyed by escrow key. Only active
// records exist in the map; deletion at zero balance is what makes a key
// reusable.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.EscrowKey]*models.EscrowRecord
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[id.EscrowKey]*models.EscrowRecord)}
}

// Create inserts a new active record. Fails with ErrAlreadyUsed while an
// active record exists under the key.
func (s *InMemory) Create(_ context.Context, record *models.EscrowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.Key]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *record
	s.records[record.Key] = &cp
	return nil
}

func (s *InMemory) Get(_ context.Context, key id.EscrowKey) (*models.EscrowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

// Update overwrites an existing record.
func (s *InMemory) Update(_ context.Context, record *models.EscrowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.Key]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *record
	s.records[record.Key] = &cp
	return nil
}

// Delete removes the record, freeing the key.
func (s *InMemory) Delete(_ context.Context, key id.EscrowKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

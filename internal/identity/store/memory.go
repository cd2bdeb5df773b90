// Package store persists identity registry records.
package store

import (
	"context"
	"sync"

	"github.com/agirails/actp-kernel-sub001/internal/identity/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
)

// InMemory keeps registry records behind a mutex. Records materialize
// lazily: reading an unknown identity yields its self-owned default, so
// there is no explicit registration step.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.PartyID]*models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[id.PartyID]*models.Record)}
}

// Get returns a copy of the identity's record, defaulting when unknown.
func (s *InMemory) Get(_ context.Context, identity id.PartyID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[identity]
	if !ok {
		return models.NewRecord(identity), nil
	}
	return record.Clone(), nil
}

// Execute runs fn on a working copy of the record and commits it only when
// fn returns nil. The nonce check-and-bump for signed operations happens
// inside the callback, so it is atomic with the mutation it protects.
func (s *InMemory) Execute(_ context.Context, identity id.PartyID, fn func(record *models.Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[identity]
	if !ok {
		current = models.NewRecord(identity)
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return err
	}
	s.records[identity] = working
	return nil
}

package store

import (
	"context"
	"sync"

	"github.com/agirails/actp-kernel-sub001/internal/access/models"
)

// InMemory holds the single governance record behind a mutex. Execute gives
// callers an atomic read-modify-write section; a callback error discards the
// mutation, so no partial governance change ever lands.
type InMemory struct {
	mu    sync.RWMutex
	state *models.AccessState
}

func NewInMemory(initial *models.AccessState) *InMemory {
	return &InMemory{state: initial.Clone()}
}

// Get returns a snapshot of the current state.
func (s *InMemory) Get(_ context.Context) (*models.AccessState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

// Execute runs fn against a working copy under the writer lock and commits
// it only when fn returns nil.
func (s *InMemory) Execute(_ context.Context, fn func(state *models.AccessState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.Clone()
	if err := fn(working); err != nil {
		return err
	}
	s.state = working
	return nil
}

package ledger

import (
	"context"
	"sync"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/sentinel"
)

// InMemory is the single-node ledger. A plain mutex serializes transfers,
// which is exactly the total-order guarantee the protocol assumes.
type InMemory struct {
	mu       sync.RWMutex
	balances map[id.PartyID]int64
}

func NewInMemory() *InMemory {
	return &InMemory{balances: make(map[id.PartyID]int64)}
}

func (l *InMemory) Balance(_ context.Context, party id.PartyID) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[party], nil
}

func (l *InMemory) Transfer(_ context.Context, from, to id.PartyID, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "transfer amount must be positive")
	}
	if from.IsNil() || to.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "transfer requires both accounts")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return sentinel.ErrInsufficient
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *InMemory) Mint(_ context.Context, to id.PartyID, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "mint amount must be positive")
	}
	if to.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "mint requires an account")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[to] += amount
	return nil
}

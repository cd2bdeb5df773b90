package models

import (
	"time"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
)

// EscrowRecord is one custody record inside a vault, scoped by escrow key.
//
// Invariants:
//   - at most one active record per key per vault
//   - Remaining never exceeds the original deposit and never goes negative
//   - the record is deleted the moment Remaining reaches zero, which is what
//     frees the key for reuse by a future, unrelated transaction
type EscrowRecord struct {
	Key       id.EscrowKey
	TxID      id.TxID
	Deposited int64
	Remaining int64
	Active    bool
	CreatedAt time.Time
}

package models

import (
	"time"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
)

// State is a transaction lifecycle state.
type State string

const (
	StateInitiated  State = "INITIATED"
	StateQuoted     State = "QUOTED"
	StateCommitted  State = "COMMITTED"
	StateInProgress State = "IN_PROGRESS"
	StateDelivered  State = "DELIVERED"
	StateSettled    State = "SETTLED"
	StateDisputed   State = "DISPUTED"
	StateCancelled  State = "CANCELLED"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateSettled || s == StateCancelled
}

// validEdges is the full transition relation. DISPUTED→SETTLED/CANCELLED
// is mediator resolution; everything else is party-driven.
var validEdges = map[State][]State{
	StateInitiated:  {StateQuoted, StateCancelled},
	StateQuoted:     {StateCommitted, StateCancelled},
	StateCommitted:  {StateInProgress, StateCancelled},
	StateInProgress: {StateDelivered, StateCancelled},
	StateDelivered:  {StateSettled, StateDisputed},
	StateDisputed:   {StateSettled, StateCancelled},
}

// CanTransitionTo reports whether the edge exists in the lifecycle graph.
func (s State) CanTransitionTo(next State) bool {
	for _, v := range validEdges[s] {
		if v == next {
			return true
		}
	}
	return false
}

// EscrowRef links a transaction to its custody record.
type EscrowRef struct {
	Vault id.VaultID
	Key   id.EscrowKey
}

// Transaction is the kernel's aggregate root. Records are never deleted;
// terminal transitions clear the escrow link but keep the rest as history.
//
// Invariants:
//   - Requester != Provider
//   - Amount > 0
//   - FeeRateBps and FeeRecipient are immutable once the state reaches
//     COMMITTED (snapshot taken at escrow link)
//   - Escrow is nil outside COMMITTED..DELIVERED/DISPUTED
type Transaction struct {
	ID        id.TxID
	Requester id.PartyID
	Provider  id.PartyID
	Amount    int64

	CreatedAt   time.Time
	UpdatedAt   time.Time
	Deadline    time.Time
	DeliveredAt time.Time

	DisputeWindow time.Duration
	ServiceHash   id.Hash256
	Metadata      string

	Escrow *EscrowRef

	// Fee snapshot, locked at commit.
	FeeRateBps   uint16
	FeeRecipient id.PartyID

	// CancelRequestedBy tracks the first half of a mutual-agreement
	// cancellation; the counterparty's own cancel call completes it.
	CancelRequestedBy id.PartyID

	State State
}

// NewTransaction validates creation invariants and returns the record in
// INITIATED.
func NewTransaction(txID id.TxID, requester, provider id.PartyID, amount int64, deadline time.Time, disputeWindow time.Duration, serviceHash id.Hash256, metadata string, now time.Time) (*Transaction, error) {
	if txID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "transaction id cannot be zero")
	}
	if requester.IsNil() || provider.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requester and provider are required")
	}
	if requester == provider {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requester and provider must differ")
	}
	if amount <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "amount must be positive")
	}
	if !deadline.After(now) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "deadline must be in the future")
	}
	if disputeWindow <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "dispute window must be positive")
	}
	return &Transaction{
		ID:            txID,
		Requester:     requester,
		Provider:      provider,
		Amount:        amount,
		CreatedAt:     now,
		UpdatedAt:     now,
		Deadline:      deadline,
		DisputeWindow: disputeWindow,
		ServiceHash:   serviceHash,
		Metadata:      metadata,
		State:         StateInitiated,
	}, nil
}

// IsParty reports whether p is the requester or the provider.
func (t *Transaction) IsParty(p id.PartyID) bool {
	return p == t.Requester || p == t.Provider
}

// Counterparty returns the other side, or the nil party for outsiders.
func (t *Transaction) Counterparty(p id.PartyID) id.PartyID {
	switch p {
	case t.Requester:
		return t.Provider
	case t.Provider:
		return t.Requester
	default:
		return id.NilParty
	}
}

// FeeShare computes the fee portion of the amount under the locked rate,
// rounding down. The provider receives Amount − FeeShare at settlement.
// The split form keeps the intermediate product inside int64 for any
// positive amount.
func (t *Transaction) FeeShare() int64 {
	rate := int64(t.FeeRateBps)
	return t.Amount/10_000*rate + t.Amount%10_000*rate/10_000
}

// DisputeDeadline is the moment the dispute window closes; from then on
// either party may settle.
func (t *Transaction) DisputeDeadline() time.Time {
	return t.DeliveredAt.Add(t.DisputeWindow)
}

// transition moves the state along a validated edge and stamps UpdatedAt.
func (t *Transaction) transition(next State, now time.Time) error {
	if !t.State.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeInvalidState, "invalid transition %s -> %s", t.State, next)
	}
	t.State = next
	t.UpdatedAt = now
	return nil
}

// ApplyQuote: INITIATED → QUOTED.
func (t *Transaction) ApplyQuote(now time.Time) error {
	if t.State != StateInitiated {
		return dErrors.Newf(dErrors.CodeInvalidState, "invalid transition %s -> %s", t.State, StateQuoted)
	}
	return t.transition(StateQuoted, now)
}

// ApplyCommit links escrow and locks the fee snapshot: QUOTED → COMMITTED.
func (t *Transaction) ApplyCommit(ref EscrowRef, feeRateBps uint16, feeRecipient id.PartyID, now time.Time) error {
	if t.State != StateQuoted {
		return dErrors.Newf(dErrors.CodeInvalidState, "invalid transition %s -> %s", t.State, StateCommitted)
	}
	if err := t.transition(StateCommitted, now); err != nil {
		return err
	}
	t.Escrow = &ref
	t.FeeRateBps = feeRateBps
	t.FeeRecipient = feeRecipient
	return nil
}

// ApplyStart: COMMITTED → IN_PROGRESS.
func (t *Transaction) ApplyStart(now time.Time) error {
	if t.State != StateCommitted {
		return dErrors.Newf(dErrors.CodeInvalidState, "invalid transition %s -> %s", t.State, StateInProgress)
	}
	return t.transition(StateInProgress, now)
}

// ApplyDeliver records delivery and an optional dispute-window override:
// IN_PROGRESS → DELIVERED.
func (t *Transaction) ApplyDeliver(windowOverride time.Duration, now time.Time) error {
	if t.State != StateInProgress {
		return dErrors.Newf(dErrors.CodeInvalidState, "invalid transition %s -> %s", t.State, StateDelivered)
	}
	if windowOverride < 0 {
		return dErrors.New(dErrors.CodeValidation, "dispute window override cannot be negative")
	}
	if err := t.transition(StateDelivered, now); err != nil {
		return err
	}
	t.DeliveredAt = now
	if windowOverride > 0 {
		t.DisputeWindow = windowOverride
	}
	return nil
}

// ApplySettle clears the escrow link: DELIVERED or DISPUTED → SETTLED.
func (t *Transaction) ApplySettle(now time.Time) error {
	if err := t.transition(StateSettled, now); err != nil {
		return err
	}
	t.Escrow = nil
	return nil
}

// ApplyDispute: DELIVERED → DISPUTED.
func (t *Transaction) ApplyDispute(now time.Time) error {
	return t.transition(StateDisputed, now)
}

// ApplyCancel clears the escrow link: any cancellable state → CANCELLED.
func (t *Transaction) ApplyCancel(now time.Time) error {
	if err := t.transition(StateCancelled, now); err != nil {
		return err
	}
	t.Escrow = nil
	return nil
}

// Clone returns a copy safe to mutate without aliasing the store's record.
func (t *Transaction) Clone() *Transaction {
	cp := *t
	if t.Escrow != nil {
		ref := *t.Escrow
		cp.Escrow = &ref
	}
	return &cp
}

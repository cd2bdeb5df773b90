package models

import (
	"time"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
)

// AuthorityTransferDelay is the fixed timelock between proposing a new
// authority and that party being able to accept. A stolen authority
// credential therefore cannot complete a takeover inside the window.
const AuthorityTransferDelay = 48 * time.Hour

// MediatorApprovalDelay is the timelock between proposing a mediator and
// activation, preventing instant insertion of a colluding mediator.
const MediatorApprovalDelay = 48 * time.Hour

// MaxFeeRateBps caps the protocol fee at 100%.
const MaxFeeRateBps = 10_000

// AccessState is the single governance record.
//
// Invariants:
//   - CurrentAuthority is never nil after construction
//   - PendingAuthority becomes CurrentAuthority only via AcceptAuthority,
//     only after PendingEligibleAt, only called by the pending party
//   - FeeRateBps ≤ MaxFeeRateBps
//   - A mediator is never simultaneously pending and active
type AccessState struct {
	CurrentAuthority  id.PartyID
	PendingAuthority  id.PartyID
	PendingEligibleAt time.Time

	Pauser id.PartyID
	Paused bool

	ApprovedVaults map[id.VaultID]bool
	// Mediators holds activated mediators; PendingMediators maps a proposed
	// mediator to the time its activation becomes eligible.
	Mediators        map[id.PartyID]bool
	PendingMediators map[id.PartyID]time.Time

	FeeRecipient id.PartyID
	FeeRateBps   uint16
}

// NewAccessState seeds governance. The initial authority also starts as
// pauser and fee recipient until reconfigured.
func NewAccessState(authority id.PartyID, feeRateBps uint16) (*AccessState, error) {
	if authority.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "authority cannot be the nil party")
	}
	if feeRateBps > MaxFeeRateBps {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "fee rate cannot exceed 10000 bps")
	}
	return &AccessState{
		CurrentAuthority: authority,
		Pauser:           authority,
		FeeRecipient:     authority,
		FeeRateBps:       feeRateBps,
		ApprovedVaults:   make(map[id.VaultID]bool),
		Mediators:        make(map[id.PartyID]bool),
		PendingMediators: make(map[id.PartyID]time.Time),
	}, nil
}

// Clone returns a deep copy so stores can hand out state without aliasing
// their internal maps.
func (s *AccessState) Clone() *AccessState {
	cp := *s
	cp.ApprovedVaults = make(map[id.VaultID]bool, len(s.ApprovedVaults))
	for k, v := range s.ApprovedVaults {
		cp.ApprovedVaults[k] = v
	}
	cp.Mediators = make(map[id.PartyID]bool, len(s.Mediators))
	for k, v := range s.Mediators {
		cp.Mediators[k] = v
	}
	cp.PendingMediators = make(map[id.PartyID]time.Time, len(s.PendingMediators))
	for k, v := range s.PendingMediators {
		cp.PendingMediators[k] = v
	}
	return &cp
}

// CanAcceptAuthority checks the two-step transfer gate for the given caller
// at the given time.
func (s *AccessState) CanAcceptAuthority(caller id.PartyID, now time.Time) error {
	if s.PendingAuthority.IsNil() {
		return dErrors.New(dErrors.CodeInvalidState, "no pending authority transfer")
	}
	if caller != s.PendingAuthority {
		return dErrors.New(dErrors.CodeUnauthorized, "only the pending authority may accept")
	}
	if now.Before(s.PendingEligibleAt) {
		return dErrors.New(dErrors.CodeInvalidState, "authority transfer not yet eligible")
	}
	return nil
}

// ApplyAcceptAuthority flips the authority and clears pending state. Call
// CanAcceptAuthority first.
func (s *AccessState) ApplyAcceptAuthority() {
	s.CurrentAuthority = s.PendingAuthority
	s.PendingAuthority = id.NilParty
	s.PendingEligibleAt = time.Time{}
}

// Package domain holds the typed identifiers shared across the kernel.
//
// Party-level identities (requester, provider, authority, pauser, uploader,
// mediators) are UUIDs. Protocol-level identifiers (transaction ids, escrow
// keys, service descriptors) are 256-bit values carried as Hash256 and
// rendered as 0x-prefixed hex. Distinct named types keep the compiler from
// letting a transaction id slip into an escrow-key parameter.
package domain

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
)

// PartyID identifies a protocol participant or role holder.
type PartyID uuid.UUID

// NilParty is the zero party, rejected everywhere an identity is required.
var NilParty = PartyID(uuid.Nil)

func (p PartyID) IsNil() bool {
	return uuid.UUID(p) == uuid.Nil
}

func (p PartyID) String() string {
	return uuid.UUID(p).String()
}

// NewParty generates a fresh party identity.
func NewParty() PartyID {
	return PartyID(uuid.New())
}

// ParseParty validates and parses a party identity from its string form.
// IDs must be valid, non-nil UUIDs.
func ParseParty(s string) (PartyID, error) {
	if s == "" {
		return NilParty, dErrors.New(dErrors.CodeInvalidInput, "party id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return NilParty, dErrors.New(dErrors.CodeInvalidInput, "party id must be a valid UUID")
	}
	if u == uuid.Nil {
		return NilParty, dErrors.New(dErrors.CodeInvalidInput, "party id cannot be the nil UUID")
	}
	return PartyID(u), nil
}

// Hash256 is a 256-bit protocol identifier.
type Hash256 [32]byte

// ZeroHash is the zero value, rejected where a real identifier is required.
var ZeroHash Hash256

func (h Hash256) IsZero() bool {
	return h == ZeroHash
}

func (h Hash256) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// ParseHash256 parses a 0x-prefixed (or bare) 64-digit hex string.
func ParseHash256(s string) (Hash256, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != 64 {
		return ZeroHash, dErrors.New(dErrors.CodeInvalidInput, "identifier must be 32 bytes of hex")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ZeroHash, dErrors.New(dErrors.CodeInvalidInput, "identifier must be valid hex")
	}
	var h Hash256
	copy(h[:], raw)
	return h, nil
}

// TxID identifies one transaction for its whole recorded life.
type TxID Hash256

func (t TxID) IsZero() bool { return Hash256(t).IsZero() }

func (t TxID) String() string { return Hash256(t).String() }

// ParseTxID parses a transaction id from its hex form.
func ParseTxID(s string) (TxID, error) {
	h, err := ParseHash256(s)
	if err != nil {
		return TxID(ZeroHash), err
	}
	return TxID(h), nil
}

// EscrowKey scopes one custody record inside a vault. Keys are caller-chosen
// and may be reused after the prior record under the key is fully disbursed.
type EscrowKey Hash256

func (k EscrowKey) IsZero() bool { return Hash256(k).IsZero() }

func (k EscrowKey) String() string { return Hash256(k).String() }

// ParseEscrowKey parses an escrow key from its hex form.
func ParseEscrowKey(s string) (EscrowKey, error) {
	h, err := ParseHash256(s)
	if err != nil {
		return EscrowKey(ZeroHash), err
	}
	return EscrowKey(h), nil
}

// VaultID identifies a deployed escrow vault in the governance allow-list.
type VaultID PartyID

func (v VaultID) IsNil() bool { return PartyID(v).IsNil() }

func (v VaultID) String() string { return PartyID(v).String() }

// ParseVault parses a vault identity from its string form.
func ParseVault(s string) (VaultID, error) {
	p, err := ParseParty(s)
	if err != nil {
		return VaultID(NilParty), err
	}
	return VaultID(p), nil
}

// Package models holds the identity registry records: per-identity
// ownership, delegates and attributes with validity windows, and the
// replay-protection nonce for signed operations.
package models

import (
	"crypto/ed25519"
	"time"

	"github.com/google/uuid"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
)

// DelegateType names the capability a delegate is granted, e.g.
// "sigAuth" or "veriKey". Free-form but never empty.
type DelegateType string

// delegateKey identifies one grant: the same party can hold several
// delegate types on the same identity at once.
type delegateKey struct {
	Type     DelegateType
	Delegate id.PartyID
}

// Attribute is one named claim on an identity, valid until its window ends.
type Attribute struct {
	Name       string
	Value      string
	ValidUntil time.Time
}

// Record is the registry state for one identity. A fresh identity is its
// own owner with a zero nonce; the registry materializes records lazily.
type Record struct {
	ID    id.PartyID
	Owner id.PartyID
	// Nonce counts applied signed operations. Each signed operation must
	// sign the current value and bumps it, so no signature replays.
	Nonce      uint64
	delegates  map[delegateKey]time.Time
	attributes map[string]Attribute
}

// NewRecord returns the default state for an identity: self-owned, empty.
func NewRecord(identity id.PartyID) *Record {
	return &Record{
		ID:         identity,
		Owner:      identity,
		delegates:  make(map[delegateKey]time.Time),
		attributes: make(map[string]Attribute),
	}
}

// Clone deep-copies the record.
func (r *Record) Clone() *Record {
	cp := &Record{
		ID:         r.ID,
		Owner:      r.Owner,
		Nonce:      r.Nonce,
		delegates:  make(map[delegateKey]time.Time, len(r.delegates)),
		attributes: make(map[string]Attribute, len(r.attributes)),
	}
	for k, v := range r.delegates {
		cp.delegates[k] = v
	}
	for k, v := range r.attributes {
		cp.attributes[k] = v
	}
	return cp
}

// SetDelegate grants delegateType to delegate until validUntil.
func (r *Record) SetDelegate(delegateType DelegateType, delegate id.PartyID, validUntil time.Time) {
	r.delegates[delegateKey{Type: delegateType, Delegate: delegate}] = validUntil
}

// RevokeDelegate removes the grant immediately.
func (r *Record) RevokeDelegate(delegateType DelegateType, delegate id.PartyID) {
	delete(r.delegates, delegateKey{Type: delegateType, Delegate: delegate})
}

// IsDelegate reports whether delegate holds an unexpired grant of
// delegateType at the given instant.
func (r *Record) IsDelegate(delegateType DelegateType, delegate id.PartyID, at time.Time) bool {
	validUntil, ok := r.delegates[delegateKey{Type: delegateType, Delegate: delegate}]
	return ok && at.Before(validUntil)
}

// SetAttribute writes the named claim.
func (r *Record) SetAttribute(attr Attribute) {
	r.attributes[attr.Name] = attr
}

// RevokeAttribute removes the named claim immediately.
func (r *Record) RevokeAttribute(name string) {
	delete(r.attributes, name)
}

// Attribute returns the named claim when it exists and is unexpired.
func (r *Record) Attribute(name string, at time.Time) (Attribute, bool) {
	attr, ok := r.attributes[name]
	if !ok || !at.Before(attr.ValidUntil) {
		return Attribute{}, false
	}
	return attr, true
}

// partyNamespace scopes key-derived identities apart from every other
// UUID source in the system.
var partyNamespace = uuid.MustParse("b1a5ed25-5195-4c1e-9e1f-7d8f3e0c2a41")

// PartyFromPublicKey derives the stable identity for an ed25519 key. Signed
// operations authenticate by deriving the signer from the presented key and
// matching it against the record's owner.
func PartyFromPublicKey(pub ed25519.PublicKey) (id.PartyID, error) {
	if len(pub) != ed25519.PublicKeySize {
		return id.NilParty, dErrors.New(dErrors.CodeValidation, "public key must be 32 bytes")
	}
	return id.PartyID(uuid.NewSHA1(partyNamespace, pub)), nil
}

// ValidateDelegateType rejects empty capability names.
func ValidateDelegateType(delegateType DelegateType) error {
	if delegateType == "" {
		return dErrors.New(dErrors.CodeValidation, "delegate type cannot be empty")
	}
	return nil
}

// ValidateAttribute rejects claims with no name.
func ValidateAttribute(attr Attribute) error {
	if attr.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "attribute name cannot be empty")
	}
	return nil
}

// Package service implements the identity registry: self-sovereign
// ownership, delegates and attributes per identity. Every identity starts
// as its own owner; mutations come either from the authenticated owner or
// as ed25519-signed messages carrying the identity's current nonce.
package service

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"log/slog"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/agirails/actp-kernel-sub001/internal/identity/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	audit "github.com/agirails/actp-kernel-sub001/pkg/platform/audit"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

// Store persists registry records. Execute must be atomic per identity:
// the nonce check-and-bump and the mutation it authorizes land together
// or not at all.
type Store interface {
	Get(ctx context.Context, identity id.PartyID) (*models.Record, error)
	Execute(ctx context.Context, identity id.PartyID, fn func(record *models.Record) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	// instance is this registry deployment's identity. It is part of every
	// signed digest, so a signature minted for one deployment can never be
	// replayed against another.
	instance id.PartyID
	store    Store

	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func New(instance id.PartyID, store Store, opts ...Option) *Service {
	s := &Service{instance: instance, store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Owner returns the identity's current owner; an unregistered identity
// owns itself.
func (s *Service) Owner(ctx context.Context, identity id.PartyID) (id.PartyID, error) {
	record, err := s.get(ctx, identity)
	if err != nil {
		return id.NilParty, err
	}
	return record.Owner, nil
}

// Nonce returns the value a signer must include in the next signed
// operation for this identity.
func (s *Service) Nonce(ctx context.Context, identity id.PartyID) (uint64, error) {
	record, err := s.get(ctx, identity)
	if err != nil {
		return 0, err
	}
	return record.Nonce, nil
}

// IsDelegate reports whether delegate currently holds delegateType on the
// identity.
func (s *Service) IsDelegate(ctx context.Context, identity id.PartyID, delegateType models.DelegateType, delegate id.PartyID) (bool, error) {
	record, err := s.get(ctx, identity)
	if err != nil {
		return false, err
	}
	return record.IsDelegate(delegateType, delegate, requestcontext.Now(ctx)), nil
}

// Attribute returns the unexpired claim under name, if any.
func (s *Service) Attribute(ctx context.Context, identity id.PartyID, name string) (models.Attribute, bool, error) {
	record, err := s.get(ctx, identity)
	if err != nil {
		return models.Attribute{}, false, err
	}
	attr, ok := record.Attribute(name, requestcontext.Now(ctx))
	return attr, ok, nil
}

// ChangeOwner hands the identity to newOwner. Current owner only.
func (s *Service) ChangeOwner(ctx context.Context, identity, newOwner id.PartyID) error {
	if newOwner.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "new owner cannot be nil")
	}
	return s.asOwner(ctx, identity, audit.EventOwnerChanged, newOwner.String(), func(record *models.Record) error {
		record.Owner = newOwner
		return nil
	})
}

// ChangeOwnerSigned is ChangeOwner authorized by an ed25519 signature from
// the current owner's key instead of the request actor.
func (s *Service) ChangeOwnerSigned(ctx context.Context, identity, newOwner id.PartyID, pub ed25519.PublicKey, sig []byte) error {
	if newOwner.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "new owner cannot be nil")
	}
	ownerUUID := [16]byte(newOwner)
	return s.asSigner(ctx, identity, pub, sig, audit.EventOwnerChanged, newOwner.String(),
		opChangeOwner, ownerUUID[:], func(record *models.Record) error {
			record.Owner = newOwner
			return nil
		})
}

// AddDelegate grants delegateType to delegate for the validity window.
func (s *Service) AddDelegate(ctx context.Context, identity id.PartyID, delegateType models.DelegateType, delegate id.PartyID, validity time.Duration) error {
	if err := validateDelegateGrant(delegateType, delegate, validity); err != nil {
		return err
	}
	return s.asOwner(ctx, identity, audit.EventDelegateAdded, delegate.String(), func(record *models.Record) error {
		record.SetDelegate(delegateType, delegate, requestcontext.Now(ctx).Add(validity))
		return nil
	})
}

func (s *Service) AddDelegateSigned(ctx context.Context, identity id.PartyID, delegateType models.DelegateType, delegate id.PartyID, validity time.Duration, pub ed25519.PublicKey, sig []byte) error {
	if err := validateDelegateGrant(delegateType, delegate, validity); err != nil {
		return err
	}
	return s.asSigner(ctx, identity, pub, sig, audit.EventDelegateAdded, delegate.String(),
		opAddDelegate, delegateParams(delegateType, delegate, validity), func(record *models.Record) error {
			record.SetDelegate(delegateType, delegate, requestcontext.Now(ctx).Add(validity))
			return nil
		})
}

// RevokeDelegate removes the grant immediately.
func (s *Service) RevokeDelegate(ctx context.Context, identity id.PartyID, delegateType models.DelegateType, delegate id.PartyID) error {
	if err := models.ValidateDelegateType(delegateType); err != nil {
		return err
	}
	return s.asOwner(ctx, identity, audit.EventDelegateRevoked, delegate.String(), func(record *models.Record) error {
		record.RevokeDelegate(delegateType, delegate)
		return nil
	})
}

func (s *Service) RevokeDelegateSigned(ctx context.Context, identity id.PartyID, delegateType models.DelegateType, delegate id.PartyID, pub ed25519.PublicKey, sig []byte) error {
	if err := models.ValidateDelegateType(delegateType); err != nil {
		return err
	}
	return s.asSigner(ctx, identity, pub, sig, audit.EventDelegateRevoked, delegate.String(),
		opRevokeDelegate, delegateParams(delegateType, delegate, 0), func(record *models.Record) error {
			record.RevokeDelegate(delegateType, delegate)
			return nil
		})
}

// SetAttribute writes a named claim valid for the given window.
func (s *Service) SetAttribute(ctx context.Context, identity id.PartyID, name, value string, validity time.Duration) error {
	if err := validateAttributeGrant(name, validity); err != nil {
		return err
	}
	return s.asOwner(ctx, identity, audit.EventAttributeSet, name, func(record *models.Record) error {
		record.SetAttribute(models.Attribute{
			Name:       name,
			Value:      value,
			ValidUntil: requestcontext.Now(ctx).Add(validity),
		})
		return nil
	})
}

func (s *Service) SetAttributeSigned(ctx context.Context, identity id.PartyID, name, value string, validity time.Duration, pub ed25519.PublicKey, sig []byte) error {
	if err := validateAttributeGrant(name, validity); err != nil {
		return err
	}
	return s.asSigner(ctx, identity, pub, sig, audit.EventAttributeSet, name,
		opSetAttribute, attributeParams(name, value, validity), func(record *models.Record) error {
			record.SetAttribute(models.Attribute{
				Name:       name,
				Value:      value,
				ValidUntil: requestcontext.Now(ctx).Add(validity),
			})
			return nil
		})
}

// RevokeAttribute removes the named claim immediately.
func (s *Service) RevokeAttribute(ctx context.Context, identity id.PartyID, name string) error {
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "attribute name cannot be empty")
	}
	return s.asOwner(ctx, identity, audit.EventAttributeRevoked, name, func(record *models.Record) error {
		record.RevokeAttribute(name)
		return nil
	})
}

func (s *Service) RevokeAttributeSigned(ctx context.Context, identity id.PartyID, name string, pub ed25519.PublicKey, sig []byte) error {
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "attribute name cannot be empty")
	}
	return s.asSigner(ctx, identity, pub, sig, audit.EventAttributeRevoked, name,
		opRevokeAttribute, attributeParams(name, "", 0), func(record *models.Record) error {
			record.RevokeAttribute(name)
			return nil
		})
}

// asOwner runs the mutation with the request actor authenticated as the
// identity's current owner.
func (s *Service) asOwner(ctx context.Context, identity id.PartyID, event audit.AuditEvent, reason string, fn func(record *models.Record) error) error {
	if identity.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "identity cannot be nil")
	}
	actor := requestcontext.Actor(ctx)
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "operation requires a calling party")
	}

	err := s.store.Execute(ctx, identity, func(record *models.Record) error {
		if actor != record.Owner {
			return dErrors.New(dErrors.CodeForbidden, "only the identity owner can do this")
		}
		return fn(record)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, audit.Event{Actor: actor, Action: string(event), Reason: reason})
	return nil
}

// asSigner runs the mutation authorized by an ed25519 signature over the
// registry digest. The nonce is checked and bumped inside the store
// callback, atomically with the mutation, so a signature spends exactly
// once.
func (s *Service) asSigner(ctx context.Context, identity id.PartyID, pub ed25519.PublicKey, sig []byte, event audit.AuditEvent, reason string, op string, params []byte, fn func(record *models.Record) error) error {
	if identity.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "identity cannot be nil")
	}
	signer, err := models.PartyFromPublicKey(pub)
	if err != nil {
		return err
	}

	err = s.store.Execute(ctx, identity, func(record *models.Record) error {
		digest := s.digest(identity, record.Nonce, op, params)
		if !ed25519.Verify(pub, digest, sig) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid signature")
		}
		if signer != record.Owner {
			return dErrors.New(dErrors.CodeForbidden, "signature is not from the identity owner")
		}
		record.Nonce++
		return fn(record)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, audit.Event{Actor: signer, Action: string(event), Reason: reason})
	return nil
}

const (
	opChangeOwner     = "changeOwner"
	opAddDelegate     = "addDelegate"
	opRevokeDelegate  = "revokeDelegate"
	opSetAttribute    = "setAttribute"
	opRevokeAttribute = "revokeAttribute"
)

// digest is the signed preimage: registry instance, identity, nonce,
// operation name, then the operation's own parameters.
func (s *Service) digest(identity id.PartyID, nonce uint64, op string, params []byte) []byte {
	h := sha3.New256()
	instanceUUID := [16]byte(s.instance)
	identityUUID := [16]byte(identity)
	h.Write(instanceUUID[:])
	h.Write(identityUUID[:])

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	h.Write(buf[:])
	h.Write([]byte(op))
	h.Write(params)
	return h.Sum(nil)
}

// Digest exposes the signed preimage so off-chain signers and tests can
// produce valid signatures.
func (s *Service) Digest(identity id.PartyID, nonce uint64, op string, params []byte) []byte {
	return s.digest(identity, nonce, op, params)
}

// DelegateParams renders the digest parameters for delegate operations.
func DelegateParams(delegateType models.DelegateType, delegate id.PartyID, validity time.Duration) []byte {
	return delegateParams(delegateType, delegate, validity)
}

// AttributeParams renders the digest parameters for attribute operations.
func AttributeParams(name, value string, validity time.Duration) []byte {
	return attributeParams(name, value, validity)
}

func delegateParams(delegateType models.DelegateType, delegate id.PartyID, validity time.Duration) []byte {
	delegateUUID := [16]byte(delegate)
	out := make([]byte, 0, len(delegateType)+16+8)
	out = append(out, []byte(delegateType)...)
	out = append(out, delegateUUID[:]...)
	out = binary.BigEndian.AppendUint64(out, uint64(validity))
	return out
}

func attributeParams(name, value string, validity time.Duration) []byte {
	out := make([]byte, 0, len(name)+1+len(value)+8)
	out = append(out, []byte(name)...)
	out = append(out, 0)
	out = append(out, []byte(value)...)
	out = binary.BigEndian.AppendUint64(out, uint64(validity))
	return out
}

func validateDelegateGrant(delegateType models.DelegateType, delegate id.PartyID, validity time.Duration) error {
	if err := models.ValidateDelegateType(delegateType); err != nil {
		return err
	}
	if delegate.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "delegate cannot be nil")
	}
	if validity <= 0 {
		return dErrors.New(dErrors.CodeValidation, "validity must be positive")
	}
	return nil
}

func validateAttributeGrant(name string, validity time.Duration) error {
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "attribute name cannot be empty")
	}
	if validity <= 0 {
		return dErrors.New(dErrors.CodeValidation, "validity must be positive")
	}
	return nil
}

func (s *Service) get(ctx context.Context, identity id.PartyID) (*models.Record, error) {
	if identity.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "identity cannot be nil")
	}
	record, err := s.store.Get(ctx, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity record")
	}
	return record, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			slog.String("action", string(event.Action)), slog.Any("error", err))
	}
}

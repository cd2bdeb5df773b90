package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/agirails/actp-kernel-sub001/internal/identity/models"
	"github.com/agirails/actp-kernel-sub001/internal/identity/store"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

const delegateSigning = models.DelegateType("signing")

type IdentitySuite struct {
	suite.Suite

	identity id.PartyID
	other    id.PartyID
	now      time.Time

	svc *Service
}

func TestIdentitySuite(t *testing.T) {
	suite.Run(t, new(IdentitySuite))
}

func (s *IdentitySuite) SetupTest() {
	s.identity = id.NewParty()
	s.other = id.NewParty()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.svc = New(id.NewParty(), store.NewInMemory())
}

func (s *IdentitySuite) as(p id.PartyID) context.Context {
	return requestcontext.WithTime(requestcontext.WithActor(context.Background(), p), s.now)
}

func (s *IdentitySuite) at() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

// keyOwned mints an ed25519 keypair and returns the identity it owns.
func (s *IdentitySuite) keyOwned() (id.PartyID, ed25519.PublicKey, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	identity, err := models.PartyFromPublicKey(pub)
	s.Require().NoError(err)
	return identity, pub, priv
}

// =========================================================================
// Default ownership
// =========================================================================

func (s *IdentitySuite) TestDefaultSelfOwnership() {
	owner, err := s.svc.Owner(context.Background(), s.identity)
	s.Require().NoError(err)
	s.Equal(s.identity, owner, "an unregistered identity owns itself")

	nonce, err := s.svc.Nonce(context.Background(), s.identity)
	s.Require().NoError(err)
	s.Zero(nonce)
}

func (s *IdentitySuite) TestChangeOwner() {
	s.Run("a stranger cannot take the identity", func() {
		err := s.svc.ChangeOwner(s.as(s.other), s.identity, s.other)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("the owner hands it over", func() {
		s.NoError(s.svc.ChangeOwner(s.as(s.identity), s.identity, s.other))

		owner, err := s.svc.Owner(context.Background(), s.identity)
		s.Require().NoError(err)
		s.Equal(s.other, owner)
	})

	s.Run("the previous owner is locked out", func() {
		err := s.svc.ChangeOwner(s.as(s.identity), s.identity, s.identity)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

// =========================================================================
// Delegates
// =========================================================================

func (s *IdentitySuite) TestDelegates() {
	s.Run("grant and check", func() {
		s.NoError(s.svc.AddDelegate(s.as(s.identity), s.identity, delegateSigning, s.other, time.Hour))

		ok, err := s.svc.IsDelegate(s.at(), s.identity, delegateSigning, s.other)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("the grant is capability-scoped", func() {
		ok, err := s.svc.IsDelegate(s.at(), s.identity, models.DelegateType("payments"), s.other)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("the grant expires", func() {
		s.now = s.now.Add(time.Hour + time.Second)
		ok, err := s.svc.IsDelegate(s.at(), s.identity, delegateSigning, s.other)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("revocation is immediate", func() {
		s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.NoError(s.svc.AddDelegate(s.as(s.identity), s.identity, delegateSigning, s.other, time.Hour))
		s.NoError(s.svc.RevokeDelegate(s.as(s.identity), s.identity, delegateSigning, s.other))

		ok, err := s.svc.IsDelegate(s.at(), s.identity, delegateSigning, s.other)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("only the owner may grant", func() {
		err := s.svc.AddDelegate(s.as(s.other), s.identity, delegateSigning, s.other, time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("non-positive validity rejected", func() {
		err := s.svc.AddDelegate(s.as(s.identity), s.identity, delegateSigning, s.other, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =========================================================================
// Attributes
// =========================================================================

func (s *IdentitySuite) TestAttributes() {
	s.Run("set and read", func() {
		s.NoError(s.svc.SetAttribute(s.as(s.identity), s.identity, "endpoint", "https://api.example.com", time.Hour))

		attr, ok, err := s.svc.Attribute(s.at(), s.identity, "endpoint")
		s.Require().NoError(err)
		s.Require().True(ok)
		s.Equal("https://api.example.com", attr.Value)
	})

	s.Run("expired attribute is absent", func() {
		s.now = s.now.Add(2 * time.Hour)
		_, ok, err := s.svc.Attribute(s.at(), s.identity, "endpoint")
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("revocation removes the claim", func() {
		s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.NoError(s.svc.SetAttribute(s.as(s.identity), s.identity, "endpoint", "v2", time.Hour))
		s.NoError(s.svc.RevokeAttribute(s.as(s.identity), s.identity, "endpoint"))

		_, ok, err := s.svc.Attribute(s.at(), s.identity, "endpoint")
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("empty name rejected", func() {
		err := s.svc.SetAttribute(s.as(s.identity), s.identity, "", "v", time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =========================================================================
// Signed operations
// =========================================================================

func (s *IdentitySuite) TestSignedOperations() {
	identity, pub, priv := s.keyOwned()

	s.Run("a valid signature changes the owner and spends the nonce", func() {
		digest := s.svc.Digest(identity, 0, "changeOwner", uuidBytes(s.other))
		sig := ed25519.Sign(priv, digest)

		s.NoError(s.svc.ChangeOwnerSigned(s.at(), identity, s.other, pub, sig))

		owner, err := s.svc.Owner(context.Background(), identity)
		s.Require().NoError(err)
		s.Equal(s.other, owner)

		nonce, err := s.svc.Nonce(context.Background(), identity)
		s.Require().NoError(err)
		s.Equal(uint64(1), nonce)
	})

	s.Run("the spent signature cannot be replayed", func() {
		digest := s.svc.Digest(identity, 0, "changeOwner", uuidBytes(s.other))
		sig := ed25519.Sign(priv, digest)

		err := s.svc.ChangeOwnerSigned(s.at(), identity, s.other, pub, sig)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "stale nonce invalidates the digest")
	})
}

func (s *IdentitySuite) TestSignedDelegate() {
	identity, pub, priv := s.keyOwned()

	params := DelegateParams(delegateSigning, s.other, time.Hour)
	sig := ed25519.Sign(priv, s.svc.Digest(identity, 0, "addDelegate", params))

	s.NoError(s.svc.AddDelegateSigned(s.at(), identity, delegateSigning, s.other, time.Hour, pub, sig))

	ok, err := s.svc.IsDelegate(s.at(), identity, delegateSigning, s.other)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *IdentitySuite) TestSignedAttribute() {
	identity, pub, priv := s.keyOwned()

	params := AttributeParams("endpoint", "v1", time.Hour)
	sig := ed25519.Sign(priv, s.svc.Digest(identity, 0, "setAttribute", params))

	s.NoError(s.svc.SetAttributeSigned(s.at(), identity, "endpoint", "v1", time.Hour, pub, sig))

	attr, ok, err := s.svc.Attribute(s.at(), identity, "endpoint")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal("v1", attr.Value)
}

func (s *IdentitySuite) TestSignedRejections() {
	identity, pub, priv := s.keyOwned()

	s.Run("a signature from a non-owner key is rejected", func() {
		_, strangerPub, strangerPriv := s.keyOwned()

		digest := s.svc.Digest(identity, 0, "changeOwner", uuidBytes(s.other))
		sig := ed25519.Sign(strangerPriv, digest)

		err := s.svc.ChangeOwnerSigned(s.at(), identity, s.other, strangerPub, sig)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("a tampered payload fails verification", func() {
		digest := s.svc.Digest(identity, 0, "changeOwner", uuidBytes(s.other))
		sig := ed25519.Sign(priv, digest)

		// Signed for s.other, submitted for a different new owner.
		err := s.svc.ChangeOwnerSigned(s.at(), identity, id.NewParty(), pub, sig)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("a malformed public key is rejected", func() {
		err := s.svc.ChangeOwnerSigned(s.at(), identity, s.other, []byte{1, 2, 3}, nil)
		s.Error(err)
	})
}

func uuidBytes(p id.PartyID) []byte {
	b := [16]byte(p)
	return b[:]
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/agirails/actp-kernel-sub001/internal/access/models"
	"github.com/agirails/actp-kernel-sub001/internal/access/store"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

type GovernanceSuite struct {
	suite.Suite

	authority id.PartyID
	outsider  id.PartyID
	now       time.Time

	svc *Service
}

func TestGovernanceSuite(t *testing.T) {
	suite.Run(t, new(GovernanceSuite))
}

func (s *GovernanceSuite) SetupTest() {
	s.authority = id.NewParty()
	s.outsider = id.NewParty()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	state, err := models.NewAccessState(s.authority, 250)
	s.Require().NoError(err)
	s.svc = New(store.NewInMemory(state))
}

func (s *GovernanceSuite) as(p id.PartyID) context.Context {
	return requestcontext.WithTime(requestcontext.WithActor(context.Background(), p), s.now)
}

// =========================================================================
// Authority transfer
// =========================================================================

func (s *GovernanceSuite) TestAuthorityTransfer() {
	next := id.NewParty()

	s.Run("only the authority may propose", func() {
		err := s.svc.ProposeAuthority(s.as(s.outsider), next)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("proposal starts the timelock", func() {
		s.NoError(s.svc.ProposeAuthority(s.as(s.authority), next))

		pending, eligibleAt, err := s.svc.PendingAuthority(context.Background())
		s.Require().NoError(err)
		s.Equal(next, pending)
		s.Equal(s.now.Add(models.AuthorityTransferDelay), eligibleAt)
	})

	s.Run("accept before the delay is rejected", func() {
		s.now = s.now.Add(models.AuthorityTransferDelay - time.Minute)
		err := s.svc.AcceptAuthority(s.as(next))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("only the pending party may accept", func() {
		s.now = s.now.Add(2 * time.Minute)
		err := s.svc.AcceptAuthority(s.as(s.outsider))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("accept after the delay flips the authority", func() {
		s.NoError(s.svc.AcceptAuthority(s.as(next)))

		authority, err := s.svc.Authority(context.Background())
		s.Require().NoError(err)
		s.Equal(next, authority)

		pending, _, err := s.svc.PendingAuthority(context.Background())
		s.Require().NoError(err)
		s.True(pending.IsNil(), "pending state cleared")
	})

	s.Run("old authority loses its privileges", func() {
		err := s.svc.ProposeAuthority(s.as(s.authority), s.outsider)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *GovernanceSuite) TestProposalReplacement() {
	first := id.NewParty()
	second := id.NewParty()

	s.Require().NoError(s.svc.ProposeAuthority(s.as(s.authority), first))

	// A later proposal supersedes the first and restarts the delay.
	s.now = s.now.Add(24 * time.Hour)
	s.Require().NoError(s.svc.ProposeAuthority(s.as(s.authority), second))

	pending, eligibleAt, err := s.svc.PendingAuthority(context.Background())
	s.Require().NoError(err)
	s.Equal(second, pending)
	s.Equal(s.now.Add(models.AuthorityTransferDelay), eligibleAt)

	s.now = s.now.Add(models.AuthorityTransferDelay)
	err = s.svc.AcceptAuthority(s.as(first))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "superseded party cannot accept")
}

func (s *GovernanceSuite) TestAcceptWithoutProposal() {
	err := s.svc.AcceptAuthority(s.as(s.outsider))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

// =========================================================================
// Pause control
// =========================================================================

func (s *GovernanceSuite) TestPause() {
	s.Run("authority starts as pauser", func() {
		s.NoError(s.svc.Pause(s.as(s.authority)))

		paused, err := s.svc.IsPaused(context.Background())
		s.Require().NoError(err)
		s.True(paused)
	})

	s.Run("double pause is rejected", func() {
		err := s.svc.Pause(s.as(s.authority))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unpause restores service", func() {
		s.NoError(s.svc.Unpause(s.as(s.authority)))

		paused, err := s.svc.IsPaused(context.Background())
		s.Require().NoError(err)
		s.False(paused)
	})

	s.Run("outsider cannot pause", func() {
		err := s.svc.Pause(s.as(s.outsider))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *GovernanceSuite) TestSetPauser() {
	responder := id.NewParty()

	s.Run("only the authority may rotate the pauser", func() {
		err := s.svc.SetPauser(s.as(s.outsider), responder)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rotation takes effect immediately", func() {
		s.NoError(s.svc.SetPauser(s.as(s.authority), responder))
		s.NoError(s.svc.Pause(s.as(responder)))
	})

	s.Run("authority no longer holds the pause capability", func() {
		err := s.svc.Unpause(s.as(s.authority))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

// =========================================================================
// Vault allow-list
// =========================================================================

func (s *GovernanceSuite) TestVaultApproval() {
	vault := id.VaultID(id.NewParty())

	s.Run("unknown vault is not approved", func() {
		approved, err := s.svc.IsVaultApproved(context.Background(), vault)
		s.Require().NoError(err)
		s.False(approved)
	})

	s.Run("approval is immediate, no timelock", func() {
		s.NoError(s.svc.ApproveVault(s.as(s.authority), vault))

		approved, err := s.svc.IsVaultApproved(context.Background(), vault)
		s.Require().NoError(err)
		s.True(approved)
	})

	s.Run("revocation is immediate", func() {
		s.NoError(s.svc.RevokeVault(s.as(s.authority), vault))

		approved, err := s.svc.IsVaultApproved(context.Background(), vault)
		s.Require().NoError(err)
		s.False(approved)
	})

	s.Run("revoking an unapproved vault is not found", func() {
		err := s.svc.RevokeVault(s.as(s.authority), vault)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("outsider cannot approve", func() {
		err := s.svc.ApproveVault(s.as(s.outsider), vault)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

// =========================================================================
// Mediator set
// =========================================================================

func (s *GovernanceSuite) TestMediatorLifecycle() {
	mediator := id.NewParty()

	s.Run("proposal queues behind the timelock", func() {
		s.NoError(s.svc.ProposeMediator(s.as(s.authority), mediator))

		isMediator, err := s.svc.IsMediator(context.Background(), mediator)
		s.Require().NoError(err)
		s.False(isMediator, "pending mediators hold no power")
	})

	s.Run("activation before the delay is rejected", func() {
		s.now = s.now.Add(models.MediatorApprovalDelay - time.Minute)
		err := s.svc.ActivateMediator(s.as(s.authority), mediator)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("activation after the delay succeeds", func() {
		s.now = s.now.Add(2 * time.Minute)
		s.NoError(s.svc.ActivateMediator(s.as(s.authority), mediator))

		isMediator, err := s.svc.IsMediator(context.Background(), mediator)
		s.Require().NoError(err)
		s.True(isMediator)
	})

	s.Run("re-proposing an active mediator conflicts", func() {
		err := s.svc.ProposeMediator(s.as(s.authority), mediator)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("revocation is immediate", func() {
		s.NoError(s.svc.RevokeMediator(s.as(s.authority), mediator))

		isMediator, err := s.svc.IsMediator(context.Background(), mediator)
		s.Require().NoError(err)
		s.False(isMediator)
	})
}

func (s *GovernanceSuite) TestRevokePendingMediator() {
	mediator := id.NewParty()
	s.Require().NoError(s.svc.ProposeMediator(s.as(s.authority), mediator))

	s.NoError(s.svc.RevokeMediator(s.as(s.authority), mediator))

	err := s.svc.ActivateMediator(s.as(s.authority), mediator)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *GovernanceSuite) TestRevokeUnknownMediator() {
	err := s.svc.RevokeMediator(s.as(s.authority), id.NewParty())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =========================================================================
// Fee configuration
// =========================================================================

func (s *GovernanceSuite) TestFeeConfig() {
	s.Run("authority starts as recipient with the seeded rate", func() {
		cfg, err := s.svc.FeeConfig(context.Background())
		s.Require().NoError(err)
		s.Equal(s.authority, cfg.Recipient)
		s.Equal(uint16(250), cfg.RateBps)
	})

	s.Run("recipient and rate can be reconfigured", func() {
		sink := id.NewParty()
		s.NoError(s.svc.SetFeeRecipient(s.as(s.authority), sink))
		s.NoError(s.svc.SetFeeRate(s.as(s.authority), 500))

		cfg, err := s.svc.FeeConfig(context.Background())
		s.Require().NoError(err)
		s.Equal(sink, cfg.Recipient)
		s.Equal(uint16(500), cfg.RateBps)
	})

	s.Run("rate above 10000 bps is rejected", func() {
		err := s.svc.SetFeeRate(s.as(s.authority), 10_001)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("full-rate fee is the ceiling, and it is allowed", func() {
		s.NoError(s.svc.SetFeeRate(s.as(s.authority), 10_000))
	})

	s.Run("outsider cannot reconfigure", func() {
		err := s.svc.SetFeeRate(s.as(s.outsider), 100)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

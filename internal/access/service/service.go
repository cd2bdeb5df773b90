// Package service implements the governance layer: who holds authority,
// who may pause, which vaults and mediators are trusted, and how fees are
// routed. Privileged changes to the authority itself and to the mediator
// set are gated behind a fixed timelock.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/agirails/actp-kernel-sub001/internal/access/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	audit "github.com/agirails/actp-kernel-sub001/pkg/platform/audit"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

type Store interface {
	Get(ctx context.Context) (*models.AccessState, error)
	Execute(ctx context.Context, fn func(state *models.AccessState) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// FeeConfig is the snapshot the kernel locks into a transaction at commit.
type FeeConfig struct {
	Recipient id.PartyID
	RateBps   uint16
}

type Service struct {
	store          Store
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

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -----------------------------------------------------------------------------
// Authority transfer (two-step + timelock)
// -----------------------------------------------------------------------------

// ProposeAuthority starts a transfer to next. The proposal replaces any
// prior pending proposal and restarts the delay.
func (s *Service) ProposeAuthority(ctx context.Context, next id.PartyID) error {
	actor := requestcontext.Actor(ctx)
	now := requestcontext.Now(ctx)

	if next.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "proposed authority cannot be the nil party")
	}

	err := s.store.Execute(ctx, func(state *models.AccessState) error {
		if actor != state.CurrentAuthority {
			return dErrors.New(dErrors.CodeUnauthorized, "only the authority may propose a transfer")
		}
		state.PendingAuthority = next
		state.PendingEligibleAt = now.Add(models.AuthorityTransferDelay)
		return nil
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, audit.Event{Actor: actor, Action: string(audit.EventAuthorityProposed)})
	return nil
}

// AcceptAuthority completes a transfer. Only the pending party may call,
// and only after the eligibility time has passed.
func (s *Service) AcceptAuthority(ctx context.Context) error {
	actor := requestcontext.Actor(ctx)
	now := requestcontext.Now(ctx)

	err := s.store.Execute(ctx, func(state *models.AccessState) error {
		if err := state.CanAcceptAuthority(actor, now); err != nil {
			return err
		}
		state.ApplyAcceptAuthority()
		return nil
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, audit.Event{Actor: actor, Action: string(audit.EventAuthorityAccepted)})
	return nil
}

// -----------------------------------------------------------------------------
// Pause control
// -----------------------------------------------------------------------------

// SetPauser points the pause capability at a new identity. Authority only;
// no timelock, so an incident responder can be rotated in quickly.
func (s *Service) SetPauser(ctx context.Context, pauser id.PartyID) error {
	if pauser.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "pauser cannot be the nil party")
	}
	err := s.authorityExecute(ctx, func(state *models.AccessState) error {
		state.Pauser = pauser
		return nil
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, audit.Event{Actor: requestcontext.Actor(ctx), Action: string(audit.EventPauserChanged)})
	return nil
}

func (s *Service) Pause(ctx context.Context) error {
	return s.setPaused(ctx, true, audit.EventKernelPaused)
}

func (s *Service) Unpause(ctx context.Context) error {
	return s.setPaused(ctx, false, audit.EventKernelUnpaused)
}

func (s *Service) setPaused(ctx context.Context, paused bool, event audit.AuditEvent) error {
	actor := requestcontext.Actor(ctx)
	err := s.store.Execute(ctx, func(state *models.AccessState) error {
		if actor != state.Pauser {
			return dErrors.New(dErrors.CodeUnauthorized, "only the pauser may pause or unpause")
		}
		if state.Paused == paused {
			return dErrors.New(dErrors.CodeInvalidState, "pause state unchanged")
		}
		state.Paused = paused
		return nil
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, audit.Event{Actor: actor, Action: string(event)})
	return nil
}

// -----------------------------------------------------------------------------
// Vault and mediator allow-lists
// -----------------------------------------------------------------------------

func (s *Service) ApproveVault(ctx context.Context, vault id.VaultID) error {
	if vault.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "vault cannot be the nil identity")
	}
	err := s.authorityExecute(ctx, func(state *models.AccessState) error {
		state.ApprovedVaults[vault] = true
		return nil
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, audit.Event{Actor: requestcontext.Actor(ctx), Action: string(audit.EventVaultApproved)})
	return nil
}

func (s *Service) RevokeVault(ctx context.Context, vault id.VaultID) error {
	err := s.authorityExecute(ctx, func(state *models.AccessState) error {
		if !state.ApprovedVaults[vault] {
			return dErrors.New(dErrors.CodeNotFound, "vault is not approved")
		}
		delete(state.ApprovedVaults, vault)
		return nil
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, audit.Event{Actor: requestcontext.Actor(ctx), Action: string(audit.EventVaultRevoked)})
	return nil
}

// ProposeMediator queues a mediator behind the activation timelock.
func (s *Service) ProposeMediator(ctx context.Context, mediator id.PartyID) error {
	now := requestcontext.Now(ctx)
	if mediator.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "mediator cannot be the nil party")
	}
	err := s.authorityExecute(ctx, func(state *models.AccessState) error {
		if state.Mediators[mediator] {
			return dErrors.New(dErrors.CodeConflict, "mediator is already active")
		}
		state.PendingMediators[mediator] = now.Add(models.MediatorApprovalDelay)
		return nil
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, audit.Event{Actor: requestcontext.Actor(ctx), Action: string(audit.EventMediatorProposed)})
	return nil
}

// ActivateMediator promotes a pending mediator once its timelock has passed.
func (s *Service) ActivateMediator(ctx context.Context, mediator id.PartyID) error {
	now := requestcontext.Now(ctx)
	err := s.authorityExecute(ctx, func(state *models.AccessState) error {
		eligibleAt, ok := state.PendingMediators[mediator]
		if !ok {
			return dErrors.New(dErrors.CodeNotFound, "mediator has no pending approval")
		}
		if now.Before(eligibleAt) {
			return dErrors.New(dErrors.CodeInvalidState, "mediator approval not yet eligible")
		}
		delete(state.PendingMediators, mediator)
		state.Mediators[mediator] = true
		return nil
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, audit.Event{Actor: requestcontext.Actor(ctx), Action: string(audit.EventMediatorActivated)})
	return nil
}

// RevokeMediator removes a mediator, active or pending. Removal is
// immediate: taking power away needs no delay.
func (s *Service) RevokeMediator(ctx context.Context, mediator id.PartyID) error {
	err := s.authorityExecute(ctx, func(state *models.AccessState) error {
		if !state.Mediators[mediator] {
			if _, pending := state.PendingMediators[mediator]; !pending {
				return dErrors.New(dErrors.CodeNotFound, "mediator is not approved or pending")
			}
		}
		delete(state.Mediators, mediator)
		delete(state.PendingMediators, mediator)
		return nil
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, audit.Event{Actor: requestcontext.Actor(ctx), Action: string(audit.EventMediatorRevoked)})
	return nil
}

// -----------------------------------------------------------------------------
// Fee configuration
// -----------------------------------------------------------------------------

// SetFeeRecipient changes where the protocol fee share is routed. Affects
// only transactions that commit after the change; committed transactions
// keep their snapshot.
func (s *Service) SetFeeRecipient(ctx context.Context, recipient id.PartyID) error {
	if recipient.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "fee recipient cannot be the nil party")
	}
	err := s.authorityExecute(ctx, func(state *models.AccessState) error {
		state.FeeRecipient = recipient
		return nil
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, audit.Event{Actor: requestcontext.Actor(ctx), Action: string(audit.EventFeeConfigChanged)})
	return nil
}

// SetFeeRate changes the fee rate for future commits, in basis points.
func (s *Service) SetFeeRate(ctx context.Context, rateBps uint16) error {
	if rateBps > models.MaxFeeRateBps {
		return dErrors.New(dErrors.CodeValidation, "fee rate cannot exceed 10000 bps")
	}
	err := s.authorityExecute(ctx, func(state *models.AccessState) error {
		state.FeeRateBps = rateBps
		return nil
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, audit.Event{Actor: requestcontext.Actor(ctx), Action: string(audit.EventFeeConfigChanged)})
	return nil
}

// -----------------------------------------------------------------------------
// Read accessors (consumed by kernel, vault, sink, transport)
// -----------------------------------------------------------------------------

func (s *Service) State(ctx context.Context) (*models.AccessState, error) {
	return s.store.Get(ctx)
}

func (s *Service) Authority(ctx context.Context) (id.PartyID, error) {
	state, err := s.store.Get(ctx)
	if err != nil {
		return id.NilParty, err
	}
	return state.CurrentAuthority, nil
}

func (s *Service) IsPaused(ctx context.Context) (bool, error) {
	state, err := s.store.Get(ctx)
	if err != nil {
		return false, err
	}
	return state.Paused, nil
}

func (s *Service) IsVaultApproved(ctx context.Context, vault id.VaultID) (bool, error) {
	state, err := s.store.Get(ctx)
	if err != nil {
		return false, err
	}
	return state.ApprovedVaults[vault], nil
}

func (s *Service) IsMediator(ctx context.Context, party id.PartyID) (bool, error) {
	state, err := s.store.Get(ctx)
	if err != nil {
		return false, err
	}
	return state.Mediators[party], nil
}

func (s *Service) FeeConfig(ctx context.Context) (FeeConfig, error) {
	state, err := s.store.Get(ctx)
	if err != nil {
		return FeeConfig{}, err
	}
	return FeeConfig{Recipient: state.FeeRecipient, RateBps: state.FeeRateBps}, nil
}

// PendingAuthority exposes the in-flight transfer, if any.
func (s *Service) PendingAuthority(ctx context.Context) (id.PartyID, time.Time, error) {
	state, err := s.store.Get(ctx)
	if err != nil {
		return id.NilParty, time.Time{}, err
	}
	return state.PendingAuthority, state.PendingEligibleAt, nil
}

// authorityExecute wraps Execute with the authority check shared by every
// privileged mutation that is not separately role-gated.
func (s *Service) authorityExecute(ctx context.Context, fn func(state *models.AccessState) error) error {
	actor := requestcontext.Actor(ctx)
	return s.store.Execute(ctx, func(state *models.AccessState) error {
		if actor != state.CurrentAuthority {
			return dErrors.New(dErrors.CodeUnauthorized, "caller is not the authority")
		}
		return fn(state)
	})
}

func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, event.Action,
			"actor", event.Actor,
			"request_id", requestcontext.RequestID(ctx),
			"log_type", "audit",
		)
	}
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, event)
	}
}

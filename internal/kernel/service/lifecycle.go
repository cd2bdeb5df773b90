package service

import (
	"context"
	"errors"
	"time"

	"github.com/agirails/actp-kernel-sub001/internal/kernel/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	audit "github.com/agirails/actp-kernel-sub001/pkg/platform/audit"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/sentinel"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

// CreateRequest carries the requester's opening terms.
type CreateRequest struct {
	Provider      id.PartyID
	Amount        int64
	Deadline      time.Time
	DisputeWindow time.Duration
	ServiceHash   id.Hash256
	Metadata      string
}

// Create opens a transaction in INITIATED. The context actor is the
// requester.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Transaction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireNotPaused(ctx); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	txID := s.idgen.next(actor, req.Provider, req.Amount, req.Deadline, req.ServiceHash)
	tx, err := models.NewTransaction(txID, actor, req.Provider, req.Amount, req.Deadline, req.DisputeWindow, req.ServiceHash, req.Metadata, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.store.Create(ctx, tx); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "transaction id collision")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create transaction")
	}

	s.emitTransition(ctx, audit.EventTxCreated, tx, actor, "", tx.Amount)
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	return tx, nil
}

// Quote moves INITIATED → QUOTED. Provider only.
func (s *Service) Quote(ctx context.Context, txID id.TxID) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	return s.execute(ctx, txID, audit.EventTxQuoted, actor, func(tx *models.Transaction) error {
		if actor != tx.Provider {
			return dErrors.New(dErrors.CodeUnauthorized, "only the provider may quote")
		}
		return tx.ApplyQuote(now)
	})
}

// LinkEscrow deposits the transaction amount into an approved vault under
// the chosen key and moves QUOTED → COMMITTED, snapshotting the fee
// configuration. Requester only.
func (s *Service) LinkEscrow(ctx context.Context, txID id.TxID, vaultID id.VaultID, key id.EscrowKey) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	approved, err := s.access.IsVaultApproved(ctx, vaultID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check vault approval")
	}
	if !approved {
		return dErrors.New(dErrors.CodeForbidden, "vault is not approved")
	}
	vault, ok := s.vaults[vaultID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "vault is not registered")
	}

	feeCfg, err := s.access.FeeConfig(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read fee configuration")
	}

	return s.execute(ctx, txID, audit.EventTxCommitted, actor, func(tx *models.Transaction) error {
		if actor != tx.Requester {
			return dErrors.New(dErrors.CodeUnauthorized, "only the requester may link escrow")
		}
		if tx.State != models.StateQuoted {
			return dErrors.Newf(dErrors.CodeInvalidState, "invalid transition %s -> %s", tx.State, models.StateCommitted)
		}

		// Deposit first: an "escrow exists" failure must leave the
		// transaction in QUOTED.
		if err := vault.Deposit(ctx, tx.ID, key, tx.Amount); err != nil {
			return err
		}
		return tx.ApplyCommit(models.EscrowRef{Vault: vaultID, Key: key}, feeCfg.RateBps, feeCfg.Recipient, now)
	})
}

// Start moves COMMITTED → IN_PROGRESS. Provider only.
func (s *Service) Start(ctx context.Context, txID id.TxID) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	return s.execute(ctx, txID, audit.EventTxStarted, actor, func(tx *models.Transaction) error {
		if actor != tx.Provider {
			return dErrors.New(dErrors.CodeUnauthorized, "only the provider may start work")
		}
		return tx.ApplyStart(now)
	})
}

// Deliver moves IN_PROGRESS → DELIVERED and records the delivery time. The
// payload may override the dispute window. Provider only.
func (s *Service) Deliver(ctx context.Context, txID id.TxID, windowOverride time.Duration) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	return s.execute(ctx, txID, audit.EventTxDelivered, actor, func(tx *models.Transaction) error {
		if actor != tx.Provider {
			return dErrors.New(dErrors.CodeUnauthorized, "only the provider may mark delivery")
		}
		return tx.ApplyDeliver(windowOverride, now)
	})
}

// Settle moves DELIVERED → SETTLED and disburses the escrow: principal
// minus fee to the provider, fee share to the locked recipient. Either
// party may settle once the dispute window has elapsed; the requester may
// settle earlier to accept immediately.
func (s *Service) Settle(ctx context.Context, txID id.TxID) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	var settled, fee int64
	err = s.execute(ctx, txID, audit.EventTxSettled, actor, func(tx *models.Transaction) error {
		if !tx.IsParty(actor) {
			return dErrors.New(dErrors.CodeUnauthorized, "only a transaction party may settle")
		}
		if tx.State != models.StateDelivered {
			return dErrors.Newf(dErrors.CodeInvalidState, "invalid transition %s -> %s", tx.State, models.StateSettled)
		}
		if actor != tx.Requester && now.Before(tx.DisputeDeadline()) {
			return dErrors.New(dErrors.CodeInvalidState, "dispute window has not elapsed")
		}

		var err error
		settled, fee, err = s.disburse(ctx, tx)
		if err != nil {
			return err
		}
		return tx.ApplySettle(now)
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.AddSettled(settled)
		s.metrics.AddFees(fee)
	}
	return nil
}

// Dispute moves DELIVERED → DISPUTED. Either party, only while the dispute
// window is open. Further transitions wait for mediator resolution.
func (s *Service) Dispute(ctx context.Context, txID id.TxID) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	return s.execute(ctx, txID, audit.EventTxDisputed, actor, func(tx *models.Transaction) error {
		if !tx.IsParty(actor) {
			return dErrors.New(dErrors.CodeUnauthorized, "only a transaction party may dispute")
		}
		if tx.State != models.StateDelivered {
			return dErrors.Newf(dErrors.CodeInvalidState, "invalid transition %s -> %s", tx.State, models.StateDisputed)
		}
		if !now.Before(tx.DisputeDeadline()) {
			return dErrors.New(dErrors.CodeInvalidState, "dispute window has elapsed")
		}
		return tx.ApplyDispute(now)
	})
}

// Resolve is the mediator's verdict on a DISPUTED transaction: release to
// the provider (with fee routing) or refund the requester in full.
func (s *Service) Resolve(ctx context.Context, txID id.TxID, releaseToProvider bool) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	isMediator, err := s.access.IsMediator(ctx, actor)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check mediator approval")
	}
	if !isMediator {
		return dErrors.New(dErrors.CodeUnauthorized, "only an approved mediator may resolve")
	}

	var settled, fee, refunded int64
	err = s.execute(ctx, txID, audit.EventTxResolved, actor, func(tx *models.Transaction) error {
		if tx.State != models.StateDisputed {
			return dErrors.Newf(dErrors.CodeInvalidState, "transaction is not disputed")
		}
		if releaseToProvider {
			var err error
			settled, fee, err = s.disburse(ctx, tx)
			if err != nil {
				return err
			}
			return tx.ApplySettle(now)
		}

		var err error
		refunded, err = s.refund(ctx, tx)
		if err != nil {
			return err
		}
		return tx.ApplyCancel(now)
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.AddSettled(settled)
		s.metrics.AddFees(fee)
		s.metrics.AddRefunded(refunded)
	}
	return nil
}

// Cancel moves a pre-terminal transaction to CANCELLED and refunds the
// full remaining escrow balance to the requester. Permitted unilaterally
// before funds are committed, after the deadline has passed with no
// delivery, or by mutual agreement (each party calls Cancel once).
//
// Cancel deliberately skips the pause check: the emergency-unwind policy
// keeps refund paths open while the kernel is paused.
func (s *Service) Cancel(ctx context.Context, txID id.TxID) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	var refunded int64
	var requestedOnly bool
	var oldState models.State
	var result *models.Transaction
	err = s.store.Execute(ctx, txID, func(tx *models.Transaction) error {
		oldState = tx.State
		if !tx.IsParty(actor) {
			return dErrors.New(dErrors.CodeUnauthorized, "only a transaction party may cancel")
		}

		switch tx.State {
		case models.StateInitiated, models.StateQuoted:
			// Nothing committed yet; either party walks away freely.
		case models.StateCommitted, models.StateInProgress:
			expired := now.After(tx.Deadline)
			mutual := !tx.CancelRequestedBy.IsNil() && tx.CancelRequestedBy == tx.Counterparty(actor)
			if !expired && !mutual {
				if tx.CancelRequestedBy == actor {
					return dErrors.New(dErrors.CodeInvalidState, "cancellation already requested, awaiting counterparty")
				}
				// First half of a mutual cancellation: record and wait.
				tx.CancelRequestedBy = actor
				tx.UpdatedAt = now
				requestedOnly = true
				result = tx.Clone()
				return nil
			}
		case models.StateDelivered:
			return dErrors.New(dErrors.CodeInvalidState, "delivered transactions settle or dispute, not cancel")
		case models.StateDisputed:
			return dErrors.New(dErrors.CodeInvalidState, "disputed transactions await mediator resolution")
		default:
			return dErrors.Newf(dErrors.CodeInvalidState, "invalid transition %s -> %s", tx.State, models.StateCancelled)
		}

		var err error
		refunded, err = s.refund(ctx, tx)
		if err != nil {
			return err
		}
		if err := tx.ApplyCancel(now); err != nil {
			return err
		}
		result = tx.Clone()
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "transaction not found")
		}
		return err
	}

	if requestedOnly {
		s.emitTransition(ctx, audit.EventTxCancelRequested, result, actor, oldState, 0)
		return nil
	}
	s.emitTransition(ctx, audit.EventTxCancelled, result, actor, oldState, refunded)
	if s.metrics != nil {
		s.metrics.AddRefunded(refunded)
	}
	return nil
}

// disburse releases principal minus fee to the provider and the fee share
// to the locked recipient. The vault balance backing both releases was
// validated at deposit, so a second-release failure after the first
// succeeded indicates a conservation bug, not a caller error.
func (s *Service) disburse(ctx context.Context, tx *models.Transaction) (settled, fee int64, err error) {
	if tx.Escrow == nil {
		return 0, 0, dErrors.New(dErrors.CodeInvalidState, "transaction has no linked escrow")
	}
	vault, err := s.vault(tx.Escrow)
	if err != nil {
		return 0, 0, err
	}

	fee = tx.FeeShare()
	settled = tx.Amount - fee

	// At a 10000 bps fee the provider share is zero and has no release.
	if settled > 0 {
		if err := vault.Release(ctx, s.self, tx.Escrow.Key, tx.Provider, settled); err != nil {
			return 0, 0, err
		}
	}
	if fee > 0 {
		if err := vault.Release(ctx, s.self, tx.Escrow.Key, tx.FeeRecipient, fee); err != nil {
			return 0, 0, err
		}
		if sink, ok := s.sinks[tx.FeeRecipient]; ok {
			if err := sink.ReceiveFunds(ctx, s.self, fee); err != nil {
				return 0, 0, err
			}
		}
	}
	return settled, fee, nil
}

// refund returns the entire remaining balance to the requester. A
// transaction without escrow (cancelled before commit) refunds nothing.
func (s *Service) refund(ctx context.Context, tx *models.Transaction) (int64, error) {
	if tx.Escrow == nil {
		return 0, nil
	}
	vault, err := s.vault(tx.Escrow)
	if err != nil {
		return 0, err
	}
	if err := vault.Refund(ctx, s.self, tx.Escrow.Key, tx.Requester); err != nil {
		return 0, err
	}
	return tx.Amount, nil
}

// execute wraps the store's atomic section with not-found translation and
// the transition audit emit.
func (s *Service) execute(ctx context.Context, txID id.TxID, event audit.AuditEvent, actor id.PartyID, fn func(tx *models.Transaction) error) error {
	var oldState models.State
	var result *models.Transaction

	err := s.store.Execute(ctx, txID, func(tx *models.Transaction) error {
		oldState = tx.State
		if err := fn(tx); err != nil {
			return err
		}
		result = tx.Clone()
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "transaction not found")
		}
		return err
	}

	s.emitTransition(ctx, event, result, actor, oldState, result.Amount)
	return nil
}

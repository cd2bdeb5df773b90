// Package service implements the transaction kernel: the orchestrating
// state machine that owns the lifecycle, validates every transition,
// instructs the vault to release or refund, and routes fee splits.
package service

import (
	"context"
	"errors"
	"log/slog"

	accessservice "github.com/agirails/actp-kernel-sub001/internal/access/service"
	kernelmetrics "github.com/agirails/actp-kernel-sub001/internal/kernel/metrics"
	"github.com/agirails/actp-kernel-sub001/internal/kernel/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	audit "github.com/agirails/actp-kernel-sub001/pkg/platform/audit"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/sentinel"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

// Store persists transactions. Execute must be atomic: the callback's
// mutation lands only when it returns nil, and no other call interleaves
// with it on the same record.
type Store interface {
	Create(ctx context.Context, tx *models.Transaction) error
	Get(ctx context.Context, txID id.TxID) (*models.Transaction, error)
	Execute(ctx context.Context, txID id.TxID, fn func(tx *models.Transaction) error) error
	ListByParty(ctx context.Context, party id.PartyID) ([]*models.Transaction, error)
}

// Vault is the kernel-facing escrow capability. The kernel passes its own
// identity as caller; the vault rejects anyone else for Release/Refund.
type Vault interface {
	Deposit(ctx context.Context, txID id.TxID, key id.EscrowKey, amount int64) error
	Release(ctx context.Context, caller id.PartyID, key id.EscrowKey, to id.PartyID, amount int64) error
	Refund(ctx context.Context, caller id.PartyID, key id.EscrowKey, to id.PartyID) error
	HasActive(ctx context.Context, key id.EscrowKey) (bool, error)
}

// Access is the governance view the kernel consults on every mutation.
type Access interface {
	IsPaused(ctx context.Context) (bool, error)
	IsVaultApproved(ctx context.Context, vault id.VaultID) (bool, error)
	IsMediator(ctx context.Context, party id.PartyID) (bool, error)
	FeeConfig(ctx context.Context) (accessservice.FeeConfig, error)
}

// FeeSink receives the accounting notification after the vault has moved
// the fee share onto the sink's ledger account.
type FeeSink interface {
	ReceiveFunds(ctx context.Context, caller id.PartyID, amount int64) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	// self is the kernel's own identity: the vault's authorized caller and
	// the fee sink's expected funder.
	self id.PartyID

	store  Store
	access Access
	vaults map[id.VaultID]Vault
	sinks  map[id.PartyID]FeeSink

	idgen *idGenerator

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *kernelmetrics.Metrics
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

func WithMetrics(m *kernelmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs the kernel. Vaults and sinks are registered afterwards,
// before the transport is wired.
func New(self id.PartyID, store Store, access Access, opts ...Option) *Service {
	s := &Service{
		self:   self,
		store:  store,
		access: access,
		vaults: make(map[id.VaultID]Vault),
		sinks:  make(map[id.PartyID]FeeSink),
		idgen:  newIDGenerator(self),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Self returns the kernel identity other components authorize against.
func (s *Service) Self() id.PartyID {
	return s.self
}

// RegisterVault makes a vault handle reachable by id. Governance approval
// is checked per call, not at registration.
func (s *Service) RegisterVault(vaultID id.VaultID, vault Vault) {
	s.vaults[vaultID] = vault
}

// RegisterSink wires the accounting surface for a fee recipient.
func (s *Service) RegisterSink(recipient id.PartyID, sink FeeSink) {
	s.sinks[recipient] = sink
}

// GetTransaction returns the read view, consumed by the fee sink for
// terminal-state validation and by the transport.
func (s *Service) GetTransaction(ctx context.Context, txID id.TxID) (*models.Transaction, error) {
	tx, err := s.store.Get(ctx, txID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "transaction not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transaction")
	}
	return tx, nil
}

// ListByParty returns the transactions a party participates in.
func (s *Service) ListByParty(ctx context.Context, party id.PartyID) ([]*models.Transaction, error) {
	if party.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "party is required")
	}
	txs, err := s.store.ListByParty(ctx, party)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list transactions")
	}
	return txs, nil
}

// requireActor resolves the calling party or fails with an authorization
// error; every mutating entry point starts here.
func requireActor(ctx context.Context) (id.PartyID, error) {
	actor := requestcontext.Actor(ctx)
	if actor.IsNil() {
		return id.NilParty, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	return actor, nil
}

// requireNotPaused blocks mutations while the kernel is paused. Cancel
// skips this check so refunds stay reachable during an emergency pause.
func (s *Service) requireNotPaused(ctx context.Context) error {
	paused, err := s.access.IsPaused(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read pause state")
	}
	if paused {
		return dErrors.New(dErrors.CodeInvalidState, "kernel is paused")
	}
	return nil
}

func (s *Service) vault(ref *models.EscrowRef) (Vault, error) {
	vault, ok := s.vaults[ref.Vault]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "escrow vault is not registered")
	}
	return vault, nil
}

// emitTransition records a lifecycle event to the structured log, the audit
// pipeline, and metrics.
func (s *Service) emitTransition(ctx context.Context, event audit.AuditEvent, tx *models.Transaction, actor id.PartyID, oldState models.State, amount int64) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event),
			"tx_id", tx.ID,
			"actor", actor,
			"old_state", string(oldState),
			"new_state", string(tx.State),
			"request_id", requestcontext.RequestID(ctx),
			"log_type", "audit",
		)
	}
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			Actor:    actor,
			TxID:     tx.ID,
			Action:   string(event),
			OldState: string(oldState),
			NewState: string(tx.State),
			Amount:   amount,
		})
	}
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(tx.State))
	}
}

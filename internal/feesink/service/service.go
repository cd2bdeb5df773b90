// Package service implements the fee sink: an archival treasury that
// receives the kernel's fee split, lets a designated operator withdraw
// under a daily cap, and anchors terminal transactions to external storage.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/agirails/actp-kernel-sub001/internal/feesink/models"
	kernelmodels "github.com/agirails/actp-kernel-sub001/internal/kernel/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	audit "github.com/agirails/actp-kernel-sub001/pkg/platform/audit"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/sentinel"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

// LedgerStore persists the withdrawal accounting record. Execute commits
// the callback's mutation only when it returns nil.
type LedgerStore interface {
	Get(ctx context.Context) (*models.WithdrawalLedger, error)
	Execute(ctx context.Context, fn func(ledger *models.WithdrawalLedger) error) error
}

// ArchiveStore persists anchor records, at most one per transaction.
type ArchiveStore interface {
	Create(ctx context.Context, record *models.ArchiveRecord) error
	Get(ctx context.Context, txID id.TxID) (*models.ArchiveRecord, error)
	Count(ctx context.Context) (int64, error)
}

// TransactionReader is the kernel's read view, consulted to confirm a
// transaction is terminal before anchoring it.
type TransactionReader interface {
	GetTransaction(ctx context.Context, txID id.TxID) (*kernelmodels.Transaction, error)
}

// OwnerResolver yields the governance authority, the only party allowed to
// rotate the operator.
type OwnerResolver interface {
	Authority(ctx context.Context) (id.PartyID, error)
}

type Transferer interface {
	Transfer(ctx context.Context, from, to id.PartyID, amount int64) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is one fee sink instance, bound to its own ledger account.
type Service struct {
	// account is the sink's ledger account; vault releases land here before
	// ReceiveFunds records them.
	account id.PartyID
	// kernel is the only caller ReceiveFunds accepts.
	kernel   id.PartyID
	dailyCap int64

	mu       sync.RWMutex
	operator id.PartyID

	// withdrawing is the reentrancy guard around the accounting-then-transfer
	// sequence in Withdraw.
	withdrawing atomic.Bool

	store    LedgerStore
	archive  ArchiveStore
	funds    Transferer
	txReader TransactionReader
	owner    OwnerResolver

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

// New constructs the sink. operator is the initial uploader identity;
// dailyCap bounds any calendar day's total withdrawals.
func New(account, kernel, operator id.PartyID, dailyCap int64, store LedgerStore, archive ArchiveStore, funds Transferer, txReader TransactionReader, owner OwnerResolver, opts ...Option) *Service {
	s := &Service{
		account:  account,
		kernel:   kernel,
		dailyCap: dailyCap,
		operator: operator,
		store:    store,
		archive:  archive,
		funds:    funds,
		txReader: txReader,
		owner:    owner,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Account returns the sink's ledger account.
func (s *Service) Account() id.PartyID {
	return s.account
}

// Operator returns the current uploader identity.
func (s *Service) Operator() id.PartyID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operator
}

// ReceiveFunds records a fee arrival. The value itself has already been
// moved onto the sink account by the vault; only the kernel may report it.
func (s *Service) ReceiveFunds(ctx context.Context, caller id.PartyID, amount int64) error {
	if caller != s.kernel {
		return dErrors.New(dErrors.CodeForbidden, "only the kernel can report received funds")
	}
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "received amount must be positive")
	}

	err := s.store.Execute(ctx, func(ledger *models.WithdrawalLedger) error {
		ledger.CumulativeReceived += amount
		return nil
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record received funds")
	}

	s.logAudit(ctx, audit.Event{
		Actor:  caller,
		Action: string(audit.EventFundsReceived),
		Amount: amount,
	})
	return nil
}

// Withdraw pays amount from the sink account to the target, charged against
// the operator's daily cap. The accounting update commits before the value
// moves; a failed transfer rolls the counters back.
func (s *Service) Withdraw(ctx context.Context, to id.PartyID, amount int64) error {
	actor := requestcontext.Actor(ctx)
	if actor != s.Operator() {
		return dErrors.New(dErrors.CodeForbidden, "only the operator can withdraw")
	}
	if to.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "withdrawal target cannot be nil")
	}
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "withdrawal amount must be positive")
	}

	if !s.withdrawing.CompareAndSwap(false, true) {
		return dErrors.New(dErrors.CodeConflict, "withdrawal already in progress")
	}
	defer s.withdrawing.Store(false)

	now := requestcontext.Now(ctx)
	err := s.store.Execute(ctx, func(ledger *models.WithdrawalLedger) error {
		ledger.Rollover(now)
		if ledger.DayWithdrawn+amount > s.dailyCap {
			return dErrors.New(dErrors.CodeResourceExhausted, "daily withdrawal cap exceeded")
		}
		if amount > ledger.Available() {
			return dErrors.New(dErrors.CodeResourceExhausted, "insufficient sink balance")
		}
		ledger.DayWithdrawn += amount
		ledger.CumulativeSpent += amount
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeResourceExhausted) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update withdrawal accounting")
	}

	if err := s.funds.Transfer(ctx, s.account, to, amount); err != nil {
		// Undo the accounting so a transfer fault cannot burn cap headroom.
		undoErr := s.store.Execute(ctx, func(ledger *models.WithdrawalLedger) error {
			ledger.Rollover(now)
			ledger.DayWithdrawn -= amount
			ledger.CumulativeSpent -= amount
			return nil
		})
		if undoErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to roll back withdrawal accounting",
				slog.Int64("amount", amount), slog.Any("error", undoErr))
		}
		if errors.Is(err, sentinel.ErrInsufficient) {
			return dErrors.New(dErrors.CodeResourceExhausted, "insufficient sink balance")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer withdrawal")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "withdrawal paid",
			slog.String("to", to.String()),
			slog.Int64("amount", amount))
	}
	s.logAudit(ctx, audit.Event{
		Actor:  actor,
		Action: string(audit.EventFundsWithdrawn),
		Amount: amount,
	})
	return nil
}

// AnchorRecord pins a terminal transaction to external storage. One record
// per transaction, immutable once written.
func (s *Service) AnchorRecord(ctx context.Context, txID id.TxID, externalRef string) error {
	actor := requestcontext.Actor(ctx)
	if actor != s.Operator() {
		return dErrors.New(dErrors.CodeForbidden, "only the operator can anchor records")
	}
	if err := models.ValidateExternalRef(externalRef); err != nil {
		return err
	}

	tx, err := s.txReader.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if !tx.State.IsTerminal() {
		return dErrors.Newf(dErrors.CodeInvalidState, "transaction %s is not terminal", tx.State)
	}

	record := &models.ArchiveRecord{
		TxID:        txID,
		ExternalRef: externalRef,
		ArchivedAt:  requestcontext.Now(ctx),
	}
	if err := s.archive.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.New(dErrors.CodeConflict, "transaction already archived")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create archive record")
	}

	s.logAudit(ctx, audit.Event{
		Actor:  actor,
		TxID:   txID,
		Action: string(audit.EventRecordAnchored),
		Reason: externalRef,
	})
	return nil
}

// SetOperator rotates the uploader identity. Governance authority only,
// effective immediately.
func (s *Service) SetOperator(ctx context.Context, operator id.PartyID) error {
	actor := requestcontext.Actor(ctx)
	owner, err := s.owner.Authority(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve governance authority")
	}
	if actor != owner {
		return dErrors.New(dErrors.CodeForbidden, "only the governance authority can set the operator")
	}
	if operator.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "operator cannot be nil")
	}

	s.mu.Lock()
	s.operator = operator
	s.mu.Unlock()

	s.logAudit(ctx, audit.Event{
		Actor:  actor,
		Action: string(audit.EventOperatorChanged),
		Reason: operator.String(),
	})
	return nil
}

// Ledger returns the accounting snapshot.
func (s *Service) Ledger(ctx context.Context) (*models.WithdrawalLedger, error) {
	ledger, err := s.store.Get(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load withdrawal ledger")
	}
	ledger.Rollover(requestcontext.Now(ctx))
	return ledger, nil
}

// Archive returns the anchor record for a transaction, if any.
func (s *Service) Archive(ctx context.Context, txID id.TxID) (*models.ArchiveRecord, error) {
	record, err := s.archive.Get(ctx, txID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "archive record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load archive record")
	}
	return record, nil
}

// ArchivedCount returns how many transactions have been anchored.
func (s *Service) ArchivedCount(ctx context.Context) (int64, error) {
	count, err := s.archive.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count archive records")
	}
	return count, nil
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

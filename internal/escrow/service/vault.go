// Package service implements the escrow vault: single-use-while-active
// custody records and exactly-once disbursement. The vault never calls back
// into the kernel; it only knows the one caller identity allowed to move
// funds out.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/agirails/actp-kernel-sub001/internal/escrow/models"
	"github.com/agirails/actp-kernel-sub001/internal/ledger"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/sentinel"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, record *models.EscrowRecord) error
	Get(ctx context.Context, key id.EscrowKey) (*models.EscrowRecord, error)
	Update(ctx context.Context, record *models.EscrowRecord) error
	Delete(ctx context.Context, key id.EscrowKey) error
}

// Vault custodies value for transactions. Funds live on the vault's own
// ledger account; records track how much of that balance belongs to which
// escrow key.
type Vault struct {
	// mu serializes all mutating calls. The protocol assumes a single
	// sequential ledger; this lock is that assumption made concrete.
	mu sync.Mutex

	id      id.VaultID
	account id.PartyID
	store   Store
	ledger  ledger.Ledger

	// authorizedCaller is the kernel identity. Release and Refund reject
	// every other caller.
	authorizedCaller id.PartyID

	logger *slog.Logger
}

type Option func(*Vault)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Vault) {
		v.logger = logger
	}
}

// NewVault constructs a vault bound to one authorized caller for life.
func NewVault(vaultID id.VaultID, account id.PartyID, store Store, lgr ledger.Ledger, authorizedCaller id.PartyID, opts ...Option) *Vault {
	v := &Vault{
		id:               vaultID,
		account:          account,
		store:            store,
		ledger:           lgr,
		authorizedCaller: authorizedCaller,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Vault) ID() id.VaultID {
	return v.id
}

// Deposit pulls amount from the context actor's account into vault custody
// and opens an active record under key. Fails with "escrow exists" while an
// active record holds the key.
func (v *Vault) Deposit(ctx context.Context, txID id.TxID, key id.EscrowKey, amount int64) error {
	if key.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "escrow key cannot be zero")
	}
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "deposit amount must be positive")
	}
	depositor := requestcontext.Actor(ctx)
	if depositor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "deposit requires a calling party")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.store.Get(ctx, key); err == nil {
		return dErrors.New(dErrors.CodeConflict, "escrow exists")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check escrow key")
	}

	if err := v.ledger.Transfer(ctx, depositor, v.account, amount); err != nil {
		if errors.Is(err, sentinel.ErrInsufficient) {
			return dErrors.New(dErrors.CodeResourceExhausted, "insufficient balance for deposit")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to move deposit")
	}

	record := &models.EscrowRecord{
		Key:       key,
		TxID:      txID,
		Deposited: amount,
		Remaining: amount,
		Active:    true,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := v.store.Create(ctx, record); err != nil {
		// Undo the pull so a store fault cannot strand the depositor's funds.
		_ = v.ledger.Transfer(ctx, v.account, depositor, amount)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create escrow record")
	}

	if v.logger != nil {
		v.logger.InfoContext(ctx, "escrow deposit",
			"vault", v.id, "key", key, "tx_id", txID, "amount", amount)
	}
	return nil
}

// Release pays amount from the record to the recipient. Kernel caller only.
// The record is deleted at zero remaining, freeing the key.
func (v *Vault) Release(ctx context.Context, caller id.PartyID, key id.EscrowKey, to id.PartyID, amount int64) error {
	if err := v.requireKernel(caller); err != nil {
		return err
	}
	if to.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "release recipient cannot be the nil party")
	}
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "release amount must be positive")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	record, err := v.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no active escrow under key")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load escrow record")
	}
	if amount > record.Remaining {
		return dErrors.New(dErrors.CodeResourceExhausted, "release exceeds remaining escrow balance")
	}

	if err := v.ledger.Transfer(ctx, v.account, to, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to move released funds")
	}

	record.Remaining -= amount
	if record.Remaining == 0 {
		if err := v.store.Delete(ctx, key); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to close escrow record")
		}
	} else {
		if err := v.store.Update(ctx, record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update escrow record")
		}
	}

	if v.logger != nil {
		v.logger.InfoContext(ctx, "escrow release",
			"vault", v.id, "key", key, "to", to, "amount", amount, "remaining", record.Remaining)
	}
	return nil
}

// Refund pays the entire remaining balance to the recipient and deletes the
// record. Kernel caller only.
func (v *Vault) Refund(ctx context.Context, caller id.PartyID, key id.EscrowKey, to id.PartyID) error {
	if err := v.requireKernel(caller); err != nil {
		return err
	}
	if to.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "refund recipient cannot be the nil party")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	record, err := v.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no active escrow under key")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load escrow record")
	}

	if err := v.ledger.Transfer(ctx, v.account, to, record.Remaining); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to move refunded funds")
	}
	if err := v.store.Delete(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to close escrow record")
	}

	if v.logger != nil {
		v.logger.InfoContext(ctx, "escrow refund",
			"vault", v.id, "key", key, "to", to, "amount", record.Remaining)
	}
	return nil
}

// Remaining reports the undisbursed balance under key, zero when no active
// record exists.
func (v *Vault) Remaining(ctx context.Context, key id.EscrowKey) (int64, error) {
	record, err := v.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load escrow record")
	}
	return record.Remaining, nil
}

// HasActive reports whether the key is currently in use.
func (v *Vault) HasActive(ctx context.Context, key id.EscrowKey) (bool, error) {
	_, err := v.store.Get(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check escrow key")
}

func (v *Vault) requireKernel(caller id.PartyID) error {
	if caller != v.authorizedCaller {
		return dErrors.New(dErrors.CodeForbidden, "caller is not the kernel")
	}
	return nil
}

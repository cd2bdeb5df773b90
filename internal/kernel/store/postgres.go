package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agirails/actp-kernel-sub001/internal/kernel/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/sentinel"
)

// Schema is the transactions table. Applied by deployment tooling; tests
// apply it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS transactions (
    id                  TEXT PRIMARY KEY,
    requester           UUID NOT NULL,
    provider            UUID NOT NULL,
    amount              BIGINT NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL,
    deadline            TIMESTAMPTZ NOT NULL,
    delivered_at        TIMESTAMPTZ,
    dispute_window_ns   BIGINT NOT NULL,
    service_hash        TEXT NOT NULL,
    metadata            TEXT NOT NULL DEFAULT '',
    escrow_vault        UUID,
    escrow_key          TEXT,
    fee_rate_bps        INT NOT NULL DEFAULT 0,
    fee_recipient       UUID,
    cancel_requested_by UUID,
    state               TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS transactions_requester_idx ON transactions (requester);
CREATE INDEX IF NOT EXISTS transactions_provider_idx ON transactions (provider);
`

// Postgres persists transactions in a single table. Execute takes a row
// lock for the duration of the callback, giving the same atomic
// validate-then-mutate section as the in-memory store.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const insertSQL = `
INSERT INTO transactions (
    id, requester, provider, amount, created_at, updated_at, deadline,
    delivered_at, dispute_window_ns, service_hash, metadata,
    escrow_vault, escrow_key, fee_rate_bps, fee_recipient,
    cancel_requested_by, state
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO NOTHING`

func (s *Postgres) Create(ctx context.Context, tx *models.Transaction) error {
	res, err := s.db.ExecContext(ctx, insertSQL, flatten(tx)...)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

const selectSQL = `
SELECT id, requester, provider, amount, created_at, updated_at, deadline,
       delivered_at, dispute_window_ns, service_hash, metadata,
       escrow_vault, escrow_key, fee_rate_bps, fee_recipient,
       cancel_requested_by, state
FROM transactions`

func (s *Postgres) Get(ctx context.Context, txID id.TxID) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx, selectSQL+` WHERE id = $1`, txID.String())
	tx, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return tx, err
}

func (s *Postgres) Execute(ctx context.Context, txID id.TxID, fn func(tx *models.Transaction) error) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	row := dbtx.QueryRowContext(ctx, selectSQL+` WHERE id = $1 FOR UPDATE`, txID.String())
	record, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := fn(record); err != nil {
		return err
	}

	const updateSQL = `
UPDATE transactions SET
    requester=$2, provider=$3, amount=$4, created_at=$5, updated_at=$6,
    deadline=$7, delivered_at=$8, dispute_window_ns=$9, service_hash=$10,
    metadata=$11, escrow_vault=$12, escrow_key=$13, fee_rate_bps=$14,
    fee_recipient=$15, cancel_requested_by=$16, state=$17
WHERE id=$1`
	if _, err := dbtx.ExecContext(ctx, updateSQL, flatten(record)...); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return dbtx.Commit()
}

func (s *Postgres) ListByParty(ctx context.Context, party id.PartyID) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, selectSQL+` WHERE requester = $1 OR provider = $1 ORDER BY created_at`, party.String())
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		tx, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func flatten(tx *models.Transaction) []any {
	var deliveredAt *time.Time
	if !tx.DeliveredAt.IsZero() {
		t := tx.DeliveredAt
		deliveredAt = &t
	}
	var escrowVault, escrowKey *string
	if tx.Escrow != nil {
		v := tx.Escrow.Vault.String()
		k := tx.Escrow.Key.String()
		escrowVault, escrowKey = &v, &k
	}
	var feeRecipient *string
	if !tx.FeeRecipient.IsNil() {
		r := tx.FeeRecipient.String()
		feeRecipient = &r
	}
	var cancelBy *string
	if !tx.CancelRequestedBy.IsNil() {
		c := tx.CancelRequestedBy.String()
		cancelBy = &c
	}
	return []any{
		tx.ID.String(), tx.Requester.String(), tx.Provider.String(), tx.Amount,
		tx.CreatedAt, tx.UpdatedAt, tx.Deadline, deliveredAt,
		int64(tx.DisputeWindow), tx.ServiceHash.String(), tx.Metadata,
		escrowVault, escrowKey, int(tx.FeeRateBps), feeRecipient,
		cancelBy, string(tx.State),
	}
}

func scan(row scanner) (*models.Transaction, error) {
	var (
		txID, requester, provider, serviceHash, state, metadata string
		amount, disputeNS                                       int64
		createdAt, updatedAt, deadline                          time.Time
		deliveredAt                                             sql.NullTime
		escrowVault, escrowKey, feeRecipient, cancelBy          sql.NullString
		feeRateBps                                              int
	)
	if err := row.Scan(&txID, &requester, &provider, &amount, &createdAt, &updatedAt,
		&deadline, &deliveredAt, &disputeNS, &serviceHash, &metadata,
		&escrowVault, &escrowKey, &feeRateBps, &feeRecipient, &cancelBy, &state); err != nil {
		return nil, err
	}

	parsedID, err := id.ParseTxID(txID)
	if err != nil {
		return nil, fmt.Errorf("corrupt tx id %q: %w", txID, err)
	}
	req, err := id.ParseParty(requester)
	if err != nil {
		return nil, fmt.Errorf("corrupt requester: %w", err)
	}
	prov, err := id.ParseParty(provider)
	if err != nil {
		return nil, fmt.Errorf("corrupt provider: %w", err)
	}
	hash, err := id.ParseHash256(serviceHash)
	if err != nil {
		return nil, fmt.Errorf("corrupt service hash: %w", err)
	}

	tx := &models.Transaction{
		ID:            parsedID,
		Requester:     req,
		Provider:      prov,
		Amount:        amount,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
		Deadline:      deadline,
		DisputeWindow: time.Duration(disputeNS),
		ServiceHash:   hash,
		Metadata:      metadata,
		FeeRateBps:    uint16(feeRateBps),
		State:         models.State(state),
	}
	if deliveredAt.Valid {
		tx.DeliveredAt = deliveredAt.Time
	}
	if escrowVault.Valid && escrowKey.Valid {
		vault, err := id.ParseVault(escrowVault.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt escrow vault: %w", err)
		}
		key, err := id.ParseEscrowKey(escrowKey.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt escrow key: %w", err)
		}
		tx.Escrow = &models.EscrowRef{Vault: vault, Key: key}
	}
	if feeRecipient.Valid {
		r, err := id.ParseParty(feeRecipient.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt fee recipient: %w", err)
		}
		tx.FeeRecipient = r
	}
	if cancelBy.Valid {
		c, err := id.ParseParty(cancelBy.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt cancel marker: %w", err)
		}
		tx.CancelRequestedBy = c
	}
	return tx, nil
}

package handler

import (
	"time"

	"github.com/agirails/actp-kernel-sub001/internal/kernel/models"
)

// TransactionResponse is the read view of one transaction.
type TransactionResponse struct {
	ID        string `json:"id"`
	Requester string `json:"requester"`
	Provider  string `json:"provider"`
	Amount    int64  `json:"amount"`
	State     string `json:"state"`

	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	Deadline    string `json:"deadline"`
	DeliveredAt string `json:"delivered_at,omitempty"`

	DisputeWindowSeconds int64  `json:"dispute_window_seconds"`
	ServiceHash          string `json:"service_hash"`
	Metadata             string `json:"metadata,omitempty"`

	EscrowVault string `json:"escrow_vault,omitempty"`
	EscrowKey   string `json:"escrow_key,omitempty"`

	FeeRateBps   uint16 `json:"fee_rate_bps,omitempty"`
	FeeRecipient string `json:"fee_recipient,omitempty"`
}

func FromTransaction(tx *models.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:                   tx.ID.String(),
		Requester:            tx.Requester.String(),
		Provider:             tx.Provider.String(),
		Amount:               tx.Amount,
		State:                string(tx.State),
		CreatedAt:            tx.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:            tx.UpdatedAt.Format(time.RFC3339Nano),
		Deadline:             tx.Deadline.Format(time.RFC3339Nano),
		DisputeWindowSeconds: int64(tx.DisputeWindow / time.Second),
		ServiceHash:          tx.ServiceHash.String(),
		Metadata:             tx.Metadata,
	}
	if !tx.DeliveredAt.IsZero() {
		resp.DeliveredAt = tx.DeliveredAt.Format(time.RFC3339Nano)
	}
	if tx.Escrow != nil {
		resp.EscrowVault = tx.Escrow.Vault.String()
		resp.EscrowKey = tx.Escrow.Key.String()
	}
	if !tx.FeeRecipient.IsNil() {
		resp.FeeRateBps = tx.FeeRateBps
		resp.FeeRecipient = tx.FeeRecipient.String()
	}
	return resp
}

func FromTransactions(txs []*models.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, FromTransaction(tx))
	}
	return out
}

package handler

import (
	"time"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
)

// CreateTransactionRequest opens a transaction. Amounts are integral value
// units; the dispute window is given in seconds.
type CreateTransactionRequest struct {
	Provider             string `json:"provider"`
	Amount               int64  `json:"amount"`
	Deadline             string `json:"deadline"`
	DisputeWindowSeconds int64  `json:"dispute_window_seconds"`
	ServiceHash          string `json:"service_hash"`
	Metadata             string `json:"metadata,omitempty"`
}

func (r CreateTransactionRequest) ParsedProvider() (id.PartyID, error) {
	return id.ParseParty(r.Provider)
}

func (r CreateTransactionRequest) ParsedDeadline() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, r.Deadline)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, "deadline must be RFC 3339")
	}
	return t, nil
}

func (r CreateTransactionRequest) ParsedServiceHash() (id.Hash256, error) {
	return id.ParseHash256(r.ServiceHash)
}

type LinkEscrowRequest struct {
	Vault string `json:"vault"`
	Key   string `json:"key"`
}

func (r LinkEscrowRequest) ParsedVault() (id.VaultID, error) {
	return id.ParseVault(r.Vault)
}

func (r LinkEscrowRequest) ParsedKey() (id.EscrowKey, error) {
	return id.ParseEscrowKey(r.Key)
}

type DeliverRequest struct {
	// DisputeWindowSeconds optionally shortens the window agreed at
	// creation; zero keeps it.
	DisputeWindowSeconds int64 `json:"dispute_window_seconds,omitempty"`
}

type ResolveRequest struct {
	ReleaseToProvider bool `json:"release_to_provider"`
}

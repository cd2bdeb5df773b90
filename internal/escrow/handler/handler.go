// Package handler exposes the read-only escrow surface. Deposits, releases
// and refunds go through the kernel; the transport only answers how much a
// custody record still holds.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/httputil"
)

// Vault is the read surface of one deployed vault.
type Vault interface {
	Remaining(ctx context.Context, key id.EscrowKey) (int64, error)
}

type Handler struct {
	vaults map[id.VaultID]Vault
}

func New() *Handler {
	return &Handler{vaults: make(map[id.VaultID]Vault)}
}

// RegisterVault makes a vault readable by id.
func (h *Handler) RegisterVault(vaultID id.VaultID, vault Vault) {
	h.vaults[vaultID] = vault
}

// Register mounts the escrow read endpoint.
func (h *Handler) Register(r chi.Router) {
	r.Get("/escrow/{vault}/{key}", h.HandleRemaining)
}

type remainingResponse struct {
	Vault     string `json:"vault"`
	Key       string `json:"key"`
	Remaining int64  `json:"remaining"`
}

func (h *Handler) HandleRemaining(w http.ResponseWriter, r *http.Request) {
	vaultID, err := id.ParseVault(chi.URLParam(r, "vault"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	key, err := id.ParseEscrowKey(chi.URLParam(r, "key"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	vault, ok := h.vaults[vaultID]
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown vault"))
		return
	}
	remaining, err := vault.Remaining(r.Context(), key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, remainingResponse{
		Vault:     vaultID.String(),
		Key:       key.String(),
		Remaining: remaining,
	})
}

// Package handler exposes the governance endpoints. Every mutation is
// authorized inside the service against the request actor, so the handlers
// stay thin parse-call-respond wrappers.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agirails/actp-kernel-sub001/internal/access/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/httputil"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

type Service interface {
	ProposeAuthority(ctx context.Context, next id.PartyID) error
	AcceptAuthority(ctx context.Context) error
	SetPauser(ctx context.Context, pauser id.PartyID) error
	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
	ApproveVault(ctx context.Context, vault id.VaultID) error
	RevokeVault(ctx context.Context, vault id.VaultID) error
	ProposeMediator(ctx context.Context, mediator id.PartyID) error
	ActivateMediator(ctx context.Context, mediator id.PartyID) error
	RevokeMediator(ctx context.Context, mediator id.PartyID) error
	SetFeeRecipient(ctx context.Context, recipient id.PartyID) error
	SetFeeRate(ctx context.Context, rateBps uint16) error
	State(ctx context.Context) (*models.AccessState, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the governance endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Route("/gov", func(r chi.Router) {
		r.Get("/", h.HandleState)
		r.Post("/authority/propose", h.HandleProposeAuthority)
		r.Post("/authority/accept", h.HandleAcceptAuthority)
		r.Post("/pauser", h.HandleSetPauser)
		r.Post("/pause", h.action(h.service.Pause))
		r.Post("/unpause", h.action(h.service.Unpause))
		r.Post("/vaults/approve", h.vaultAction(h.service.ApproveVault))
		r.Post("/vaults/revoke", h.vaultAction(h.service.RevokeVault))
		r.Post("/mediators/propose", h.partyAction(h.service.ProposeMediator))
		r.Post("/mediators/activate", h.partyAction(h.service.ActivateMediator))
		r.Post("/mediators/revoke", h.partyAction(h.service.RevokeMediator))
		r.Post("/fees", h.HandleSetFees)
	})
}

type partyRequest struct {
	Party string `json:"party"`
}

type vaultRequest struct {
	Vault string `json:"vault"`
}

type feesRequest struct {
	Recipient string  `json:"recipient,omitempty"`
	RateBps   *uint16 `json:"rate_bps,omitempty"`
}

// StateResponse is the public governance snapshot.
type StateResponse struct {
	Authority         string   `json:"authority"`
	PendingAuthority  string   `json:"pending_authority,omitempty"`
	PendingEligibleAt string   `json:"pending_eligible_at,omitempty"`
	Pauser            string   `json:"pauser"`
	Paused            bool     `json:"paused"`
	ApprovedVaults    []string `json:"approved_vaults"`
	Mediators         []string `json:"mediators"`
	FeeRecipient      string   `json:"fee_recipient"`
	FeeRateBps        uint16   `json:"fee_rate_bps"`
}

func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.State(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := StateResponse{
		Authority:      state.CurrentAuthority.String(),
		Pauser:         state.Pauser.String(),
		Paused:         state.Paused,
		ApprovedVaults: make([]string, 0, len(state.ApprovedVaults)),
		Mediators:      make([]string, 0, len(state.Mediators)),
		FeeRecipient:   state.FeeRecipient.String(),
		FeeRateBps:     state.FeeRateBps,
	}
	if !state.PendingAuthority.IsNil() {
		resp.PendingAuthority = state.PendingAuthority.String()
		resp.PendingEligibleAt = state.PendingEligibleAt.Format(time.RFC3339Nano)
	}
	for vault := range state.ApprovedVaults {
		resp.ApprovedVaults = append(resp.ApprovedVaults, vault.String())
	}
	for mediator := range state.Mediators {
		resp.Mediators = append(resp.Mediators, mediator.String())
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleProposeAuthority(w http.ResponseWriter, r *http.Request) {
	h.partyAction(h.service.ProposeAuthority)(w, r)
}

func (h *Handler) HandleAcceptAuthority(w http.ResponseWriter, r *http.Request) {
	h.action(h.service.AcceptAuthority)(w, r)
}

func (h *Handler) HandleSetPauser(w http.ResponseWriter, r *http.Request) {
	h.partyAction(h.service.SetPauser)(w, r)
}

func (h *Handler) HandleSetFees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[feesRequest](w, r)
	if !ok {
		return
	}

	if req.Recipient != "" {
		recipient, err := id.ParseParty(req.Recipient)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if err := h.service.SetFeeRecipient(ctx, recipient); err != nil {
			h.logError(ctx, "set fee recipient failed", err)
			httputil.WriteError(w, err)
			return
		}
	}
	if req.RateBps != nil {
		if err := h.service.SetFeeRate(ctx, *req.RateBps); err != nil {
			h.logError(ctx, "set fee rate failed", err)
			httputil.WriteError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) action(fn func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			h.logError(r.Context(), "governance action failed", err)
			httputil.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) partyAction(fn func(ctx context.Context, party id.PartyID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := httputil.Decode[partyRequest](w, r)
		if !ok {
			return
		}
		party, err := id.ParseParty(req.Party)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if err := fn(r.Context(), party); err != nil {
			h.logError(r.Context(), "governance action failed", err)
			httputil.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) vaultAction(fn func(ctx context.Context, vault id.VaultID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := httputil.Decode[vaultRequest](w, r)
		if !ok {
			return
		}
		vault, err := id.ParseVault(req.Vault)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if err := fn(r.Context(), vault); err != nil {
			h.logError(r.Context(), "governance action failed", err)
			httputil.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		slog.Any("error", err),
		slog.String("request_id", requestcontext.RequestID(ctx)))
}

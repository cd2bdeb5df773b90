// Package handler wires the transaction lifecycle endpoints to the kernel
// service. The request actor comes from the auth middleware; handlers never
// trust identities from the body.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agirails/actp-kernel-sub001/internal/kernel/models"
	"github.com/agirails/actp-kernel-sub001/internal/kernel/service"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/httputil"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

// Service is the kernel surface the transport needs.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Transaction, error)
	Quote(ctx context.Context, txID id.TxID) error
	LinkEscrow(ctx context.Context, txID id.TxID, vaultID id.VaultID, key id.EscrowKey) error
	Start(ctx context.Context, txID id.TxID) error
	Deliver(ctx context.Context, txID id.TxID, windowOverride time.Duration) error
	Settle(ctx context.Context, txID id.TxID) error
	Dispute(ctx context.Context, txID id.TxID) error
	Resolve(ctx context.Context, txID id.TxID, releaseToProvider bool) error
	Cancel(ctx context.Context, txID id.TxID) error
	GetTransaction(ctx context.Context, txID id.TxID) (*models.Transaction, error)
	ListByParty(ctx context.Context, party id.PartyID) ([]*models.Transaction, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the transaction endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Route("/tx", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Route("/{txID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Post("/quote", h.transition(h.quote))
			r.Post("/escrow", h.HandleLinkEscrow)
			r.Post("/start", h.transition(h.start))
			r.Post("/deliver", h.HandleDeliver)
			r.Post("/settle", h.transition(h.settle))
			r.Post("/dispute", h.transition(h.dispute))
			r.Post("/resolve", h.HandleResolve)
			r.Post("/cancel", h.transition(h.cancel))
		})
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[CreateTransactionRequest](w, r)
	if !ok {
		return
	}
	provider, err := req.ParsedProvider()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	deadline, err := req.ParsedDeadline()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	serviceHash, err := req.ParsedServiceHash()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	tx, err := h.service.Create(ctx, service.CreateRequest{
		Provider:      provider,
		Amount:        req.Amount,
		Deadline:      deadline,
		DisputeWindow: time.Duration(req.DisputeWindowSeconds) * time.Second,
		ServiceHash:   serviceHash,
		Metadata:      req.Metadata,
	})
	if err != nil {
		h.logError(ctx, "transaction create failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, FromTransaction(tx))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	txID, err := id.ParseTxID(chi.URLParam(r, "txID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tx, err := h.service.GetTransaction(r.Context(), txID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTransaction(tx))
}

// HandleList returns the transactions the calling party participates in.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	if actor.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	txs, err := h.service.ListByParty(ctx, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTransactions(txs))
}

func (h *Handler) HandleLinkEscrow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID, err := id.ParseTxID(chi.URLParam(r, "txID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[LinkEscrowRequest](w, r)
	if !ok {
		return
	}
	vault, err := req.ParsedVault()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	key, err := req.ParsedKey()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.LinkEscrow(ctx, txID, vault, key); err != nil {
		h.logError(ctx, "escrow link failed", err)
		httputil.WriteError(w, err)
		return
	}
	h.respondWithTransaction(w, r, txID)
}

func (h *Handler) HandleDeliver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID, err := id.ParseTxID(chi.URLParam(r, "txID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// Body is optional: a bare deliver keeps the agreed window.
	var override time.Duration
	if r.ContentLength > 0 {
		req, ok := httputil.Decode[DeliverRequest](w, r)
		if !ok {
			return
		}
		override = time.Duration(req.DisputeWindowSeconds) * time.Second
	}

	if err := h.service.Deliver(ctx, txID, override); err != nil {
		h.logError(ctx, "deliver failed", err)
		httputil.WriteError(w, err)
		return
	}
	h.respondWithTransaction(w, r, txID)
}

func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID, err := id.ParseTxID(chi.URLParam(r, "txID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[ResolveRequest](w, r)
	if !ok {
		return
	}

	if err := h.service.Resolve(ctx, txID, req.ReleaseToProvider); err != nil {
		h.logError(ctx, "resolve failed", err)
		httputil.WriteError(w, err)
		return
	}
	h.respondWithTransaction(w, r, txID)
}

// transition adapts the bodyless lifecycle calls to one handler shape.
func (h *Handler) transition(fn func(ctx context.Context, txID id.TxID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		txID, err := id.ParseTxID(chi.URLParam(r, "txID"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if err := fn(ctx, txID); err != nil {
			h.logError(ctx, "transition failed", err)
			httputil.WriteError(w, err)
			return
		}
		h.respondWithTransaction(w, r, txID)
	}
}

func (h *Handler) quote(ctx context.Context, txID id.TxID) error   { return h.service.Quote(ctx, txID) }
func (h *Handler) start(ctx context.Context, txID id.TxID) error   { return h.service.Start(ctx, txID) }
func (h *Handler) settle(ctx context.Context, txID id.TxID) error  { return h.service.Settle(ctx, txID) }
func (h *Handler) dispute(ctx context.Context, txID id.TxID) error { return h.service.Dispute(ctx, txID) }
func (h *Handler) cancel(ctx context.Context, txID id.TxID) error  { return h.service.Cancel(ctx, txID) }

func (h *Handler) respondWithTransaction(w http.ResponseWriter, r *http.Request, txID id.TxID) {
	tx, err := h.service.GetTransaction(r.Context(), txID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTransaction(tx))
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		slog.Any("error", err),
		slog.String("request_id", requestcontext.RequestID(ctx)))
}

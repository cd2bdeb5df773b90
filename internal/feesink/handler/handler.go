// Package handler exposes the fee sink's accounting surface.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agirails/actp-kernel-sub001/internal/feesink/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/httputil"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

type Service interface {
	Withdraw(ctx context.Context, to id.PartyID, amount int64) error
	AnchorRecord(ctx context.Context, txID id.TxID, externalRef string) error
	SetOperator(ctx context.Context, operator id.PartyID) error
	Ledger(ctx context.Context) (*models.WithdrawalLedger, error)
	Archive(ctx context.Context, txID id.TxID) (*models.ArchiveRecord, error)
	ArchivedCount(ctx context.Context) (int64, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the sink endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Route("/sink", func(r chi.Router) {
		r.Post("/withdraw", h.HandleWithdraw)
		r.Post("/anchor", h.HandleAnchor)
		r.Post("/operator", h.HandleSetOperator)
		r.Get("/ledger", h.HandleLedger)
		r.Get("/archive/{txID}", h.HandleArchive)
	})
}

type withdrawRequest struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type anchorRequest struct {
	TxID        string `json:"tx_id"`
	ExternalRef string `json:"external_ref"`
}

type operatorRequest struct {
	Operator string `json:"operator"`
}

type ledgerResponse struct {
	CumulativeReceived int64  `json:"cumulative_received"`
	CumulativeSpent    int64  `json:"cumulative_spent"`
	DayWithdrawn       int64  `json:"day_withdrawn"`
	Day                string `json:"day"`
	Available          int64  `json:"available"`
	ArchivedCount      int64  `json:"archived_count"`
}

type archiveResponse struct {
	TxID        string `json:"tx_id"`
	ExternalRef string `json:"external_ref"`
	ArchivedAt  string `json:"archived_at"`
}

func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[withdrawRequest](w, r)
	if !ok {
		return
	}
	to, err := id.ParseParty(req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Withdraw(ctx, to, req.Amount); err != nil {
		h.logError(ctx, "withdrawal failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleAnchor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[anchorRequest](w, r)
	if !ok {
		return
	}
	txID, err := id.ParseTxID(req.TxID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.AnchorRecord(ctx, txID, req.ExternalRef); err != nil {
		h.logError(ctx, "anchor failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) HandleSetOperator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[operatorRequest](w, r)
	if !ok {
		return
	}
	operator, err := id.ParseParty(req.Operator)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.SetOperator(ctx, operator); err != nil {
		h.logError(ctx, "set operator failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ledger, err := h.service.Ledger(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	count, err := h.service.ArchivedCount(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ledgerResponse{
		CumulativeReceived: ledger.CumulativeReceived,
		CumulativeSpent:    ledger.CumulativeSpent,
		DayWithdrawn:       ledger.DayWithdrawn,
		Day:                ledger.Day,
		Available:          ledger.Available(),
		ArchivedCount:      count,
	})
}

func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	txID, err := id.ParseTxID(chi.URLParam(r, "txID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.Archive(r.Context(), txID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, archiveResponse{
		TxID:        record.TxID.String(),
		ExternalRef: record.ExternalRef,
		ArchivedAt:  record.ArchivedAt.Format(time.RFC3339Nano),
	})
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		slog.Any("error", err),
		slog.String("request_id", requestcontext.RequestID(ctx)))
}

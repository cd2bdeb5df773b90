// Package handler exposes the identity registry. Signed variants carry an
// ed25519 public key and signature in base64; unsigned variants authorize
// against the request actor.
package handler

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agirails/actp-kernel-sub001/internal/identity/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/httputil"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

type Service interface {
	Owner(ctx context.Context, identity id.PartyID) (id.PartyID, error)
	Nonce(ctx context.Context, identity id.PartyID) (uint64, error)
	IsDelegate(ctx context.Context, identity id.PartyID, delegateType models.DelegateType, delegate id.PartyID) (bool, error)
	ChangeOwner(ctx context.Context, identity, newOwner id.PartyID) error
	ChangeOwnerSigned(ctx context.Context, identity, newOwner id.PartyID, pub ed25519.PublicKey, sig []byte) error
	AddDelegate(ctx context.Context, identity id.PartyID, delegateType models.DelegateType, delegate id.PartyID, validity time.Duration) error
	AddDelegateSigned(ctx context.Context, identity id.PartyID, delegateType models.DelegateType, delegate id.PartyID, validity time.Duration, pub ed25519.PublicKey, sig []byte) error
	RevokeDelegate(ctx context.Context, identity id.PartyID, delegateType models.DelegateType, delegate id.PartyID) error
	SetAttribute(ctx context.Context, identity id.PartyID, name, value string, validity time.Duration) error
	RevokeAttribute(ctx context.Context, identity id.PartyID, name string) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the registry endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Route("/identity/{identity}", func(r chi.Router) {
		r.Get("/owner", h.HandleOwner)
		r.Get("/nonce", h.HandleNonce)
		r.Get("/delegates/{type}/{delegate}", h.HandleIsDelegate)
		r.Post("/owner", h.HandleChangeOwner)
		r.Post("/delegates", h.HandleAddDelegate)
		r.Delete("/delegates", h.HandleRevokeDelegate)
		r.Post("/attributes", h.HandleSetAttribute)
		r.Delete("/attributes", h.HandleRevokeAttribute)
	})
}

type changeOwnerRequest struct {
	NewOwner string `json:"new_owner"`
	// PublicKey and Signature switch the call to the signed variant.
	PublicKey string `json:"public_key,omitempty"`
	Signature string `json:"signature,omitempty"`
}

type delegateRequest struct {
	Type            string `json:"type"`
	Delegate        string `json:"delegate"`
	ValiditySeconds int64  `json:"validity_seconds,omitempty"`
	PublicKey       string `json:"public_key,omitempty"`
	Signature       string `json:"signature,omitempty"`
}

type attributeRequest struct {
	Name            string `json:"name"`
	Value           string `json:"value,omitempty"`
	ValiditySeconds int64  `json:"validity_seconds,omitempty"`
}

func (h *Handler) HandleOwner(w http.ResponseWriter, r *http.Request) {
	identity, err := id.ParseParty(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	owner, err := h.service.Owner(r.Context(), identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"owner": owner.String()})
}

func (h *Handler) HandleNonce(w http.ResponseWriter, r *http.Request) {
	identity, err := id.ParseParty(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	nonce, err := h.service.Nonce(r.Context(), identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"nonce": nonce})
}

func (h *Handler) HandleIsDelegate(w http.ResponseWriter, r *http.Request) {
	identity, err := id.ParseParty(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	delegate, err := id.ParseParty(chi.URLParam(r, "delegate"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ok, err := h.service.IsDelegate(r.Context(), identity, models.DelegateType(chi.URLParam(r, "type")), delegate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"delegate": ok})
}

func (h *Handler) HandleChangeOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, err := id.ParseParty(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[changeOwnerRequest](w, r)
	if !ok {
		return
	}
	newOwner, err := id.ParseParty(req.NewOwner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if req.PublicKey != "" || req.Signature != "" {
		pub, sig, err := decodeKeyAndSig(req.PublicKey, req.Signature)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		err = h.service.ChangeOwnerSigned(ctx, identity, newOwner, pub, sig)
	} else {
		err = h.service.ChangeOwner(ctx, identity, newOwner)
	}
	if err != nil {
		h.logError(ctx, "owner change failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleAddDelegate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, err := id.ParseParty(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[delegateRequest](w, r)
	if !ok {
		return
	}
	delegate, err := id.ParseParty(req.Delegate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	validity := time.Duration(req.ValiditySeconds) * time.Second

	if req.PublicKey != "" || req.Signature != "" {
		pub, sig, err := decodeKeyAndSig(req.PublicKey, req.Signature)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		err = h.service.AddDelegateSigned(ctx, identity, models.DelegateType(req.Type), delegate, validity, pub, sig)
		if err != nil {
			h.logError(ctx, "delegate add failed", err)
			httputil.WriteError(w, err)
			return
		}
	} else if err := h.service.AddDelegate(ctx, identity, models.DelegateType(req.Type), delegate, validity); err != nil {
		h.logError(ctx, "delegate add failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRevokeDelegate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, err := id.ParseParty(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[delegateRequest](w, r)
	if !ok {
		return
	}
	delegate, err := id.ParseParty(req.Delegate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RevokeDelegate(ctx, identity, models.DelegateType(req.Type), delegate); err != nil {
		h.logError(ctx, "delegate revoke failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSetAttribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, err := id.ParseParty(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[attributeRequest](w, r)
	if !ok {
		return
	}
	validity := time.Duration(req.ValiditySeconds) * time.Second
	if err := h.service.SetAttribute(ctx, identity, req.Name, req.Value, validity); err != nil {
		h.logError(ctx, "attribute set failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRevokeAttribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, err := id.ParseParty(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[attributeRequest](w, r)
	if !ok {
		return
	}
	if err := h.service.RevokeAttribute(ctx, identity, req.Name); err != nil {
		h.logError(ctx, "attribute revoke failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeKeyAndSig(pubB64, sigB64 string) (ed25519.PublicKey, []byte, error) {
	pub, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		return nil, nil, dErrors.New(dErrors.CodeBadRequest, "public key must be base64")
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, nil, dErrors.New(dErrors.CodeBadRequest, "signature must be base64")
	}
	return ed25519.PublicKey(pub), sig, nil
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		slog.Any("error", err),
		slog.String("request_id", requestcontext.RequestID(ctx)))
}

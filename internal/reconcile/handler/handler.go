package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	billing "billtrack/internal/billing/models"
	"billtrack/internal/reconcile/models"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	"billtrack/pkg/platform/httputil"
	"billtrack/pkg/requestcontext"
)

// TokenHeader carries the shared secret gateways sign callbacks with.
const TokenHeader = "X-Callback-Token"

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Reconciler

type Reconciler interface {
	ApplyEvent(ctx context.Context, ev models.Event) (*billing.Document, error)
	ApplyCallback(ctx context.Context, ev models.Event) (*billing.Document, error)
}

type Handler struct {
	reconciler Reconciler
	token      []byte
	logger     *slog.Logger
}

// New builds the webhook handler. With an empty token every callback is
// rejected.
func New(reconciler Reconciler, token string, logger *slog.Logger) *Handler {
	return &Handler{reconciler: reconciler, token: []byte(token), logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/callbacks", h.HandleCallback)
}

type callbackRequest struct {
	DocumentID        string    `json:"document_id"`
	Kind              string    `json:"kind"`
	Timestamp         time.Time `json:"timestamp"`
	ExternalReference string    `json:"external_reference"`
	Reason            string    `json:"reason"`
	Source            string    `json:"source"`
}

type callbackResponse struct {
	DocumentID     id.DocumentID  `json:"document_id"`
	DocumentNumber string         `json:"document_number"`
	Status         billing.Status `json:"status"`
}

// HandleCallback serves POST /callbacks. Stale events are acknowledged with
// 200 and orphans with 202 so gateways stop redelivering them.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if !h.authorized(r) {
		h.logger.WarnContext(ctx, "callback rejected: bad token", "request_id", requestID, "client_ip", requestcontext.ClientIP(ctx))
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid callback token"))
		return
	}

	var req callbackRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode callback", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	ev, err := req.toEvent()
	if err != nil {
		h.logger.WarnContext(ctx, "invalid callback", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	var doc *billing.Document
	if ev.DocumentID.IsNil() {
		doc, err = h.reconciler.ApplyCallback(ctx, ev)
	} else {
		doc, err = h.reconciler.ApplyEvent(ctx, ev)
	}
	if err != nil {
		if dErrors.Is(err, dErrors.CodeStaleEvent) || dErrors.Is(err, dErrors.CodeOrphanEvent) {
			h.logger.InfoContext(ctx, "callback acknowledged without change", "request_id", requestID, "reason", string(dErrors.CodeOf(err)))
		} else {
			h.logger.WarnContext(ctx, "callback rejected", "request_id", requestID, "error", err)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, callbackResponse{
		DocumentID:     doc.ID,
		DocumentNumber: doc.Number,
		Status:         doc.Status,
	})
}

func (h *Handler) authorized(r *http.Request) bool {
	if len(h.token) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get(TokenHeader)), h.token) == 1
}

func (req callbackRequest) toEvent() (models.Event, error) {
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		return models.Event{}, err
	}
	ev := models.Event{
		Kind:              kind,
		Timestamp:         req.Timestamp,
		ExternalReference: req.ExternalReference,
		Reason:            req.Reason,
		Source:            "webhook",
	}
	if req.Source != "" {
		ev.Source = "webhook:" + req.Source
	}
	if req.DocumentID != "" {
		docID, err := id.ParseDocumentID(req.DocumentID)
		if err != nil {
			return models.Event{}, dErrors.New(dErrors.CodeValidation, "document_id must be a UUID")
		}
		ev.DocumentID = docID
	}
	return ev, ev.Validate()
}

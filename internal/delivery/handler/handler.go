package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"billtrack/internal/billing/models"
	"billtrack/internal/delivery/dispatcher"
	"billtrack/internal/delivery/tracking"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	"billtrack/pkg/platform/httputil"
	"billtrack/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Dispatcher,Tracking

type Dispatcher interface {
	Dispatch(ctx context.Context, actor id.Actor, docID id.DocumentID, ch models.Channel, payload dispatcher.Payload) (*models.DeliveryAttempt, error)
}

type Tracking interface {
	Lookup(ctx context.Context, actor id.Actor, trackingNumber string) (*tracking.Status, error)
}

type Handler struct {
	dispatcher Dispatcher
	tracking   Tracking
	logger     *slog.Logger
}

func New(d Dispatcher, t Tracking, logger *slog.Logger) *Handler {
	return &Handler{dispatcher: d, tracking: t, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/documents/{id}/dispatch", h.HandleDispatch)
	r.Get("/deliveries/{trackingNumber}/status", h.HandleStatus)
}

type dispatchRequest struct {
	Channel string `json:"channel"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Notes   string `json:"notes"`
}

// failedDispatchResponse carries the recorded attempt alongside the error so
// the caller can retry it manually.
type failedDispatchResponse struct {
	Error            string                  `json:"error"`
	ErrorDescription string                  `json:"error_description"`
	Attempt          *models.DeliveryAttempt `json:"attempt"`
}

// HandleDispatch serves POST /documents/{id}/dispatch.
func (h *Handler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid document id"))
		return
	}
	var req dispatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode dispatch request", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	ch, err := models.ParseChannel(req.Channel)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	attempt, err := h.dispatcher.Dispatch(ctx, requestcontext.Actor(ctx), docID, ch, dispatcher.Payload{
		Subject: req.Subject,
		Body:    req.Body,
		Notes:   req.Notes,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "dispatch failed",
			"request_id", requestID,
			"document_id", docID.String(),
			"channel", ch.String(),
			"error", err,
		)
		if attempt != nil {
			httputil.WriteJSON(w, httputil.StatusFor(dErrors.CodeOf(err)), failedDispatchResponse{
				Error:            string(dErrors.CodeOf(err)),
				ErrorDescription: dErrors.MessageOf(err),
				Attempt:          attempt,
			})
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, attempt)
}

// HandleStatus serves GET /deliveries/{trackingNumber}/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trackingNumber := chi.URLParam(r, "trackingNumber")

	status, err := h.tracking.Lookup(ctx, requestcontext.Actor(ctx), trackingNumber)
	if err != nil {
		h.logger.WarnContext(ctx, "delivery status lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"tracking_number", trackingNumber,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

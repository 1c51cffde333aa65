package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"billtrack/internal/billing/models"
	"billtrack/internal/billing/service"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	"billtrack/pkg/platform/httputil"
	"billtrack/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the billing surface the handler needs.
type Service interface {
	CreateBill(ctx context.Context, actor id.Actor, in models.BillInput) (*models.Bill, *models.Document, error)
	GetBill(ctx context.Context, actor id.Actor, billID id.BillID) (*service.BillView, error)
	ListBills(ctx context.Context, actor id.Actor, electionType models.ElectionType) ([]service.BillView, error)
	GetDocument(ctx context.Context, actor id.Actor, docID id.DocumentID) (*models.Document, error)
	CancelDocument(ctx context.Context, actor id.Actor, docID id.DocumentID) (*models.Document, error)
}

// Handler serves bill and document endpoints. Routes expect RequireAuth to
// have placed the actor in the request context.
type Handler struct {
	service  Service
	logger   *slog.Logger
	location *time.Location
}

func New(service Service, logger *slog.Logger, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: service, logger: logger, location: loc}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/bills", h.HandleCreateBill)
	r.Get("/bills", h.HandleListBills)
	r.Get("/bills/{id}", h.HandleGetBill)
	r.Get("/documents/{id}", h.HandleGetDocument)
	r.Post("/documents/{id}/cancel", h.HandleCancelDocument)
}

func (h *Handler) HandleCreateBill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req createBillRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid create bill request", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	in, err := req.toInput(h.location)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid create bill request", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	bill, doc, err := h.service.CreateBill(ctx, requestcontext.Actor(ctx), in)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create bill", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createBillResponse{Bill: bill, Document: doc})
}

func (h *Handler) HandleListBills(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	views, err := h.service.ListBills(ctx, requestcontext.Actor(ctx), models.ElectionType(r.URL.Query().Get("type")))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to list bills", "request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"bills": views, "count": len(views)})
}

func (h *Handler) HandleGetBill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	billID, err := id.ParseBillID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid bill id"))
		return
	}
	view, err := h.service.GetBill(ctx, requestcontext.Actor(ctx), billID)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to get bill", "request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid document id"))
		return
	}
	doc, err := h.service.GetDocument(ctx, requestcontext.Actor(ctx), docID)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to get document", "request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) HandleCancelDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid document id"))
		return
	}
	doc, err := h.service.CancelDocument(ctx, requestcontext.Actor(ctx), docID)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to cancel document", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"billtrack/internal/ledger/models"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	"billtrack/pkg/platform/httputil"
	"billtrack/pkg/requestcontext"
)

const dateLayout = "2006-01-02"

// Service is the ledger surface the handler needs.
type Service interface {
	ReportFor(ctx context.Context, actor id.Actor, start, end time.Time) (models.Report, error)
}

type Handler struct {
	service  Service
	logger   *slog.Logger
	location *time.Location
}

// New builds the handler. Report dates are interpreted in loc.
func New(service Service, logger *slog.Logger, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: service, logger: logger, location: loc}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/income/report", h.HandleReport)
}

// HandleReport serves GET /income/report?start_date=YYYY-MM-DD&end_date=YYYY-MM-DD.
// Both dates are inclusive calendar days.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	start, end, err := h.parsePeriod(r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid report period", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	report, err := h.service.ReportFor(ctx, requestcontext.Actor(ctx), start, end)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to build income report", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) parsePeriod(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	if q.Get("start_date") == "" || q.Get("end_date") == "" {
		return time.Time{}, time.Time{}, dErrors.New(dErrors.CodeValidation, "start_date and end_date are required")
	}
	start, err := time.ParseInLocation(dateLayout, q.Get("start_date"), h.location)
	if err != nil {
		return time.Time{}, time.Time{}, dErrors.New(dErrors.CodeValidation, "start_date must be YYYY-MM-DD")
	}
	end, err := time.ParseInLocation(dateLayout, q.Get("end_date"), h.location)
	if err != nil {
		return time.Time{}, time.Time{}, dErrors.New(dErrors.CodeValidation, "end_date must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, dErrors.New(dErrors.CodeValidation, "end_date must not be before start_date")
	}
	return start, end.AddDate(0, 0, 1), nil
}

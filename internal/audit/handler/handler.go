// Package handler serves the admin audit trail.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	audit "billtrack/pkg/platform/audit"
	"billtrack/pkg/platform/httputil"
	"billtrack/pkg/requestcontext"
)

// Service reads events back from the audit store.
type Service interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error)
	ListBySubject(ctx context.Context, subject string) ([]audit.Event, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the routes. Callers are expected to have applied the admin
// role check already.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/audit", h.HandleList)
}

type eventResponse struct {
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	Device    string    `json:"device,omitempty"`
}

type listResponse struct {
	Events []eventResponse `json:"events"`
}

// HandleList serves GET /admin/audit?user_id=<uuid> or ?subject=<number>.
// Exactly one filter is required.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	q := r.URL.Query()
	userParam, subject := q.Get("user_id"), q.Get("subject")

	var (
		events []audit.Event
		err    error
	)
	switch {
	case (userParam == "") == (subject == ""):
		err = dErrors.New(dErrors.CodeValidation, "exactly one of user_id or subject is required")
	case userParam != "":
		var userID id.UserID
		userID, err = id.ParseUserID(userParam)
		if err != nil {
			err = dErrors.New(dErrors.CodeValidation, "user_id must be a UUID")
			break
		}
		events, err = h.service.ListByUser(ctx, userID)
	default:
		events, err = h.service.ListBySubject(ctx, subject)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "failed to list audit events", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	resp := listResponse{Events: make([]eventResponse, 0, len(events))}
	for _, e := range events {
		out := eventResponse{
			Category:  string(e.Category),
			Timestamp: e.Timestamp,
			Subject:   e.Subject,
			Action:    e.Action,
			Reason:    e.Reason,
			RequestID: e.RequestID,
			ClientIP:  e.ClientIP,
			Device:    e.Device,
		}
		if !e.UserID.IsNil() {
			out.UserID = e.UserID.String()
		}
		resp.Events = append(resp.Events, out)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

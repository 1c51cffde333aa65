package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"billtrack/internal/auth/models"
	"billtrack/internal/auth/service"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	"billtrack/pkg/platform/httputil"
	"billtrack/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type Service interface {
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	CreateUser(ctx context.Context, actor id.Actor, in models.CreateUserInput) (*models.User, error)
	BulkCreateUsers(ctx context.Context, actor id.Actor, rows []models.CreateUserInput) (*service.BulkResult, error)
	Me(ctx context.Context, actor id.Actor) (*models.User, error)
	ChangePassword(ctx context.Context, actor id.Actor, current, next string) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts routes that need no token.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
}

// Register mounts routes for authenticated users.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me", h.HandleMe)
	r.Post("/me/password", h.HandleChangePassword)
}

// RegisterAdmin mounts administrator routes. Callers guard them with the
// admin role middleware; the service checks the role again.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/users", h.HandleCreateUser)
	r.Post("/admin/users/bulk", h.HandleBulkCreateUsers)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createUserRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Authority string `json:"authority"`
	Team      string `json:"team"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func (req createUserRequest) input(role id.Role) models.CreateUserInput {
	return models.CreateUserInput{
		Username:  req.Username,
		Password:  req.Password,
		Name:      req.Name,
		Role:      role,
		Authority: req.Authority,
		Team:      req.Team,
		Email:     req.Email,
		Phone:     req.Phone,
	}
}

type bulkCreateUsersRequest struct {
	Users []createUserRequest `json:"users"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode login request", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "username and password are required"))
		return
	}

	res, err := h.service.Login(ctx, req.Username, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "login failed", "request_id", requestID, "username", req.Username, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.service.Me(ctx, requestcontext.Actor(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to load current user", "request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req changePasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode password change", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.ChangePassword(ctx, requestcontext.Actor(ctx), req.CurrentPassword, req.NewPassword); err != nil {
		h.logger.WarnContext(ctx, "password change failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req createUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode create user request", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	role, err := id.ParseRole(req.Role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	user, err := h.service.CreateUser(ctx, requestcontext.Actor(ctx), req.input(role))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create user", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, user)
}

// HandleBulkCreateUsers serves POST /admin/users/bulk. Rows are created
// independently; rejected rows come back in errors with their index.
func (h *Handler) HandleBulkCreateUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req bulkCreateUsersRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode bulk user request", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	rows := make([]models.CreateUserInput, 0, len(req.Users))
	for _, u := range req.Users {
		// an unknown role is left for the per-row validation to report
		role, err := id.ParseRole(u.Role)
		if err != nil {
			role = id.Role(u.Role)
		}
		rows = append(rows, u.input(role))
	}

	res, err := h.service.BulkCreateUsers(ctx, requestcontext.Actor(ctx), rows)
	if err != nil {
		h.logger.WarnContext(ctx, "bulk user import failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

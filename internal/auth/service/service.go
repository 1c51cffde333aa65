// Package service authenticates staff accounts and manages them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"billtrack/internal/auth/models"
	"billtrack/internal/policy"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	audit "billtrack/pkg/platform/audit"
	"billtrack/pkg/platform/sentinel"
	"billtrack/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UserStore,TokenIssuer

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID id.UserID, hash string) error
	Count(ctx context.Context) (int, error)
}

type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, role id.Role, expiresIn time.Duration) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	defaultTokenTTL = 8 * time.Hour

	// MaxBulkUsers caps one BulkCreateUsers call.
	MaxBulkUsers = 500
)

// dummyUser is compared against when the username is unknown so both
// failure paths cost one bcrypt comparison.
var dummyUser = sync.OnceValue(func() *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	return &models.User{PasswordHash: string(hash)}
})

type LoginResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        *models.User `json:"user"`
}

// RowError reports why one row of a bulk import was skipped. Row is the
// zero-based index in the submitted list.
type RowError struct {
	Row      int    `json:"row"`
	Username string `json:"username"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

type BulkResult struct {
	CreatedCount int        `json:"created_count"`
	Errors       []RowError `json:"errors"`
}

type Service struct {
	users          UserStore
	tokens         TokenIssuer
	tokenTTL       time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = p }
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

func New(users UserStore, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{users: users, tokens: tokens, tokenTTL: defaultTokenTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login checks the credentials and issues an access token. Every failure
// reports the same error so usernames cannot be enumerated.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	invalid := dErrors.New(dErrors.CodeUnauthorized, "invalid username or password")

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if user == nil {
		dummyUser().CheckPassword(password)
		s.emit(ctx, audit.Event{Subject: username, Action: string(audit.EventLoginFailed), Reason: "unknown_user"})
		return nil, invalid
	}
	if !user.CheckPassword(password) {
		s.emit(ctx, audit.Event{UserID: user.ID, Subject: username, Action: string(audit.EventLoginFailed), Reason: "bad_password"})
		return nil, invalid
	}
	if !user.Active {
		s.emit(ctx, audit.Event{UserID: user.ID, Subject: username, Action: string(audit.EventLoginFailed), Reason: "inactive"})
		return nil, invalid
	}

	token, err := s.tokens.GenerateAccessToken(user.ID, user.Role, s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	s.emit(ctx, audit.Event{UserID: user.ID, Subject: username, Action: string(audit.EventLoginSucceeded)})
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String(), "role", user.Role.String())

	return &LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
		User:        user,
	}, nil
}

// CreateUser adds a staff account. Only admins may call it.
func (s *Service) CreateUser(ctx context.Context, actor id.Actor, in models.CreateUserInput) (*models.User, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		s.emit(ctx, audit.Event{UserID: actor.UserID, Action: string(audit.EventAccessDenied), Reason: "create_user"})
		return nil, err
	}
	return s.createUser(ctx, actor, in)
}

// BulkCreateUsers creates each row independently. A row that fails
// validation or reuses a username or email is reported in the result and
// does not stop the rest.
func (s *Service) BulkCreateUsers(ctx context.Context, actor id.Actor, rows []models.CreateUserInput) (*BulkResult, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		s.emit(ctx, audit.Event{UserID: actor.UserID, Action: string(audit.EventAccessDenied), Reason: "bulk_create_users"})
		return nil, err
	}
	if len(rows) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "users must not be empty")
	}
	if len(rows) > MaxBulkUsers {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d users per request", MaxBulkUsers))
	}

	res := &BulkResult{Errors: []RowError{}}
	for i, in := range rows {
		if _, err := s.createUser(ctx, actor, in); err != nil {
			code := dErrors.CodeOf(err)
			msg := dErrors.MessageOf(err)
			if code == dErrors.CodeInternal {
				s.logger.ErrorContext(ctx, "bulk user row failed", "row", i, "username", in.Username, "error", err)
				msg = "internal error"
			}
			res.Errors = append(res.Errors, RowError{Row: i, Username: in.Username, Code: string(code), Message: msg})
			continue
		}
		res.CreatedCount++
	}
	s.logger.InfoContext(ctx, "bulk user import finished",
		"submitted", len(rows),
		"created", res.CreatedCount,
		"rejected", len(res.Errors),
	)
	return res, nil
}

func (s *Service) createUser(ctx context.Context, actor id.Actor, in models.CreateUserInput) (*models.User, error) {
	user, err := models.NewUser(in, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, user); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "username or email already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	s.emit(ctx, audit.Event{UserID: actor.UserID, Subject: user.Username, Action: string(audit.EventUserCreated), Reason: user.Role.String()})
	return user, nil
}

// checkUnique names the clashing field. The store's own uniqueness check
// still decides under concurrent creates.
func (s *Service) checkUnique(ctx context.Context, user *models.User) error {
	_, err := s.users.FindByUsername(ctx, user.Username)
	if err == nil {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("username %s already exists", user.Username))
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up username")
	}
	if user.Email == "" {
		return nil
	}
	_, err = s.users.FindByEmail(ctx, user.Email)
	if err == nil {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("email %s already exists", user.Email))
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up email")
	}
	return nil
}

// Me returns the account behind actor.
func (s *Service) Me(ctx context.Context, actor id.Actor) (*models.User, error) {
	user, err := s.users.FindByID(ctx, actor.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// ChangePassword replaces the actor's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, actor id.Actor, current, next string) error {
	user, err := s.Me(ctx, actor)
	if err != nil {
		return err
	}
	if !user.CheckPassword(current) {
		return dErrors.New(dErrors.CodeUnauthorized, "current password is incorrect")
	}
	hash, err := models.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update password")
	}
	s.logger.InfoContext(ctx, "password changed", "user_id", user.ID.String())
	return nil
}

// SeedAdmin creates the first admin when no user exists yet. It reports
// whether an account was created.
func (s *Service) SeedAdmin(ctx context.Context, username, password string) (bool, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	user, err := models.NewUser(models.CreateUserInput{
		Username: username,
		Password: password,
		Name:     "ผู้ดูแลระบบ",
		Role:     id.RoleAdmin,
	}, requestcontext.Now(ctx))
	if err != nil {
		return false, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "seeded admin account", "username", user.Username)
	return true, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"billtrack/internal/auth/models"
	"billtrack/internal/auth/service/mocks"
	userstore "billtrack/internal/auth/store/user"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	audit "billtrack/pkg/platform/audit"
	auditmemory "billtrack/pkg/platform/audit/store/memory"
	"billtrack/pkg/platform/sentinel"
	"billtrack/pkg/requestcontext"
)

type auditRecorder struct{ store *auditmemory.InMemoryStore }

func (a auditRecorder) Emit(ctx context.Context, event audit.Event) error {
	return a.store.Append(ctx, event)
}

type AuthServiceSuite struct {
	suite.Suite
	ctx    context.Context
	ctrl   *gomock.Controller
	tokens *mocks.MockTokenIssuer
	users  *userstore.InMemory
	audit  *auditmemory.InMemoryStore
	svc    *Service
	admin  id.Actor
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC))
	s.ctrl = gomock.NewController(s.T())
	s.tokens = mocks.NewMockTokenIssuer(s.ctrl)
	s.users = userstore.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	s.svc = New(s.users, s.tokens,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(auditRecorder{store: s.audit}),
		WithTokenTTL(time.Hour),
	)
	s.admin = id.Actor{UserID: id.NewUserID(), Role: id.RoleAdmin}
}

func (s *AuthServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *AuthServiceSuite) officer(password string) *models.User {
	u, err := s.svc.CreateUser(s.ctx, s.admin, models.CreateUserInput{
		Username: "officer1", Password: password, Name: "เจ้าหน้าที่", Role: id.RoleOfficer,
	})
	s.Require().NoError(err)
	return u
}

func (s *AuthServiceSuite) actions() []string {
	events, err := s.audit.ListRecent(s.ctx, 100)
	s.Require().NoError(err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *AuthServiceSuite) TestLogin() {
	u := s.officer("officer-pass")

	s.Run("valid credentials issue a token", func() {
		s.tokens.EXPECT().GenerateAccessToken(u.ID, id.RoleOfficer, time.Hour).Return("signed", nil)

		res, err := s.svc.Login(s.ctx, "officer1", "officer-pass")
		s.Require().NoError(err)
		s.Equal("signed", res.AccessToken)
		s.Equal("Bearer", res.TokenType)
		s.Equal(3600, res.ExpiresIn)
		s.Equal(u.ID, res.User.ID)
	})

	s.Run("wrong password and unknown user look the same", func() {
		_, errBad := s.svc.Login(s.ctx, "officer1", "nope-nope")
		_, errUnknown := s.svc.Login(s.ctx, "ghost", "officer-pass")
		s.True(dErrors.Is(errBad, dErrors.CodeUnauthorized))
		s.Equal(dErrors.MessageOf(errBad), dErrors.MessageOf(errUnknown))
	})

	s.Run("token failure is internal", func() {
		s.tokens.EXPECT().GenerateAccessToken(gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("no key"))
		_, err := s.svc.Login(s.ctx, "officer1", "officer-pass")
		s.True(dErrors.Is(err, dErrors.CodeInternal))
	})

	s.Contains(s.actions(), string(audit.EventLoginSucceeded))
	s.Contains(s.actions(), string(audit.EventLoginFailed))
}

func (s *AuthServiceSuite) TestCreateUser() {
	s.Run("admin only", func() {
		_, err := s.svc.CreateUser(s.ctx, id.Actor{UserID: id.NewUserID(), Role: id.RoleManager}, models.CreateUserInput{
			Username: "x", Password: "long-enough", Name: "x", Role: id.RoleViewer,
		})
		s.True(dErrors.Is(err, dErrors.CodeForbidden))
		s.Contains(s.actions(), string(audit.EventAccessDenied))
	})

	s.Run("duplicate username conflicts", func() {
		s.officer("officer-pass")
		_, err := s.svc.CreateUser(s.ctx, s.admin, models.CreateUserInput{
			Username: "OFFICER1", Password: "officer-pass", Name: "ซ้ำ", Role: id.RoleOfficer,
		})
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})

	s.Run("validation errors pass through", func() {
		_, err := s.svc.CreateUser(s.ctx, s.admin, models.CreateUserInput{Username: "y", Password: "short", Name: "y", Role: id.RoleStaff})
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})
}

func (s *AuthServiceSuite) TestCreateUserEmailConflict() {
	_, err := s.svc.CreateUser(s.ctx, s.admin, models.CreateUserInput{
		Username: "first", Password: "first-pass", Name: "หนึ่ง", Role: id.RoleStaff, Email: "shared@example.go.th",
	})
	s.Require().NoError(err)

	_, err = s.svc.CreateUser(s.ctx, s.admin, models.CreateUserInput{
		Username: "second", Password: "second-pass", Name: "สอง", Role: id.RoleStaff, Email: "shared@example.go.th",
	})
	s.True(dErrors.Is(err, dErrors.CodeConflict))
	s.Contains(dErrors.MessageOf(err), "email")
}

func (s *AuthServiceSuite) TestBulkCreateUsers() {
	s.officer("officer-pass")
	_, err := s.svc.CreateUser(s.ctx, s.admin, models.CreateUserInput{
		Username: "taken-mail", Password: "taken-pass", Name: "มีอีเมล", Role: id.RoleStaff, Email: "taken@example.go.th",
	})
	s.Require().NoError(err)

	res, err := s.svc.BulkCreateUsers(s.ctx, s.admin, []models.CreateUserInput{
		{Username: "fresh1", Password: "fresh-pass", Name: "ใหม่หนึ่ง", Role: id.RoleOfficer, Email: "fresh1@example.go.th"},
		{Username: "officer1", Password: "officer-pass", Name: "ซ้ำชื่อ", Role: id.RoleOfficer},
		{Username: "fresh2", Password: "fresh-pass", Name: "ซ้ำอีเมล", Role: id.RoleStaff, Email: "TAKEN@example.go.th"},
		{Username: "fresh1", Password: "fresh-pass", Name: "ซ้ำในชุด", Role: id.RoleStaff},
		{Username: "fresh3", Password: "short", Name: "รหัสสั้น", Role: id.RoleStaff},
		{Username: "fresh4", Password: "fresh-pass", Name: "ใหม่สี่", Role: id.RoleViewer},
	})
	s.Require().NoError(err)
	s.Equal(2, res.CreatedCount)
	s.Require().Len(res.Errors, 4)

	rows := map[int]RowError{}
	for _, e := range res.Errors {
		rows[e.Row] = e
	}
	s.Equal(string(dErrors.CodeConflict), rows[1].Code)
	s.Contains(rows[1].Message, "username")
	s.Equal(string(dErrors.CodeConflict), rows[2].Code)
	s.Contains(rows[2].Message, "email")
	s.Equal(string(dErrors.CodeConflict), rows[3].Code)
	s.Equal("fresh1", rows[3].Username)
	s.Equal(string(dErrors.CodeValidation), rows[4].Code)

	for _, username := range []string{"fresh1", "fresh4"} {
		_, err := s.users.FindByUsername(s.ctx, username)
		s.NoError(err, username)
	}
}

func (s *AuthServiceSuite) TestBulkCreateUsersRejectsWholeRequest() {
	s.Run("admin only", func() {
		_, err := s.svc.BulkCreateUsers(s.ctx, id.Actor{UserID: id.NewUserID(), Role: id.RoleManager}, []models.CreateUserInput{
			{Username: "x", Password: "long-enough", Name: "x", Role: id.RoleViewer},
		})
		s.True(dErrors.Is(err, dErrors.CodeForbidden))
		s.Contains(s.actions(), string(audit.EventAccessDenied))
	})

	s.Run("empty list", func() {
		_, err := s.svc.BulkCreateUsers(s.ctx, s.admin, nil)
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("too many rows", func() {
		_, err := s.svc.BulkCreateUsers(s.ctx, s.admin, make([]models.CreateUserInput, MaxBulkUsers+1))
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})
}

func (s *AuthServiceSuite) TestBulkCreateUsersStoreFailure() {
	store := mocks.NewMockUserStore(s.ctrl)
	svc := New(store, s.tokens, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	store.EXPECT().FindByUsername(gomock.Any(), "ok").Return(nil, sentinel.ErrNotFound)
	store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	store.EXPECT().FindByUsername(gomock.Any(), "down").Return(nil, errors.New("connection refused"))

	res, err := svc.BulkCreateUsers(s.ctx, s.admin, []models.CreateUserInput{
		{Username: "ok", Password: "long-enough", Name: "ok", Role: id.RoleViewer},
		{Username: "down", Password: "long-enough", Name: "down", Role: id.RoleViewer},
	})
	s.Require().NoError(err)
	s.Equal(1, res.CreatedCount)
	s.Require().Len(res.Errors, 1)
	s.Equal(string(dErrors.CodeInternal), res.Errors[0].Code)
	s.Equal("internal error", res.Errors[0].Message)
	s.NotContains(res.Errors[0].Message, "connection refused")
}

func (s *AuthServiceSuite) TestChangePassword() {
	u := s.officer("officer-pass")
	actor := u.Actor()

	err := s.svc.ChangePassword(s.ctx, actor, "wrong-current", "brand-new-pass")
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))

	err = s.svc.ChangePassword(s.ctx, actor, "officer-pass", "tiny")
	s.True(dErrors.Is(err, dErrors.CodeValidation))

	s.Require().NoError(s.svc.ChangePassword(s.ctx, actor, "officer-pass", "brand-new-pass"))
	stored, err := s.svc.Me(s.ctx, actor)
	s.Require().NoError(err)
	s.True(stored.CheckPassword("brand-new-pass"))
}

func (s *AuthServiceSuite) TestSeedAdmin() {
	created, err := s.svc.SeedAdmin(s.ctx, "admin", "initial-admin-pass")
	s.Require().NoError(err)
	s.True(created)

	created, err = s.svc.SeedAdmin(s.ctx, "admin2", "initial-admin-pass")
	s.Require().NoError(err)
	s.False(created, "seeding only happens on an empty store")

	admin, err := s.users.FindByUsername(s.ctx, "admin")
	s.Require().NoError(err)
	s.Equal(id.RoleAdmin, admin.Role)
}

func (s *AuthServiceSuite) TestMeUnknownUser() {
	_, err := s.svc.Me(s.ctx, id.Actor{UserID: id.NewUserID(), Role: id.RoleViewer})
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

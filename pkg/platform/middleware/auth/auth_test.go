package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	id "billtrack/pkg/domain"
	"billtrack/pkg/requestcontext"
)

type stubValidator struct {
	claims *Claims
	err    error
}

func (v stubValidator) ValidateToken(string) (*Claims, error) { return v.claims, v.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequireAuth(t *testing.T) {
	userID := id.NewUserID()
	var seen id.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.Actor(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name      string
		header    string
		validator stubValidator
		status    int
	}{
		{"missing header", "", stubValidator{}, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", stubValidator{}, http.StatusUnauthorized},
		{"invalid token", "Bearer bad", stubValidator{err: errors.New("expired")}, http.StatusUnauthorized},
		{"bad subject", "Bearer t", stubValidator{claims: &Claims{UserID: "nope", Role: "admin"}}, http.StatusUnauthorized},
		{"bad role", "Bearer t", stubValidator{claims: &Claims{UserID: userID.String(), Role: "root"}}, http.StatusUnauthorized},
		{"valid", "Bearer t", stubValidator{claims: &Claims{UserID: userID.String(), Role: "officer"}}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			RequireAuth(tc.validator, discardLogger())(next).ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
	assert.Equal(t, id.Actor{UserID: userID, Role: id.RoleOfficer}, seen)
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := RequireRole(discardLogger(), id.RoleAdmin)(next)

	req := httptest.NewRequest(http.MethodPost, "/admin/users", nil)
	req = req.WithContext(requestcontext.WithActor(req.Context(), id.Actor{UserID: id.NewUserID(), Role: id.RoleManager}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(requestcontext.WithActor(req.Context(), id.Actor{UserID: id.NewUserID(), Role: id.RoleAdmin}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "billtrack-test"
)

var issuedAt = time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)

func fixedClock(at time.Time) Option {
	return WithClock(func() time.Time { return at })
}

func TestRoundTrip(t *testing.T) {
	svc := NewJWTService(testKey, testIssuer, fixedClock(issuedAt))
	officer := id.NewUserID()

	token, err := svc.GenerateAccessToken(officer, id.RoleOfficer, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, officer.String(), claims.Subject)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, issuedAt.Add(time.Hour), claims.ExpiresAt.Time.UTC())

	actor, err := claims.Actor()
	require.NoError(t, err)
	assert.Equal(t, id.Actor{UserID: officer, Role: id.RoleOfficer}, actor)

	mw, err := svc.Validator().ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "officer", mw.Role)
}

func TestExpiry(t *testing.T) {
	issuer := NewJWTService(testKey, testIssuer, fixedClock(issuedAt))
	token, err := issuer.GenerateAccessToken(id.NewUserID(), id.RoleStaff, time.Minute)
	require.NoError(t, err)

	late := issuedAt.Add(90 * time.Second)

	_, err = NewJWTService(testKey, testIssuer, fixedClock(late)).ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, "token has expired", dErrors.MessageOf(err))

	_, err = NewJWTService(testKey, testIssuer, fixedClock(late), WithLeeway(time.Minute)).ValidateToken(token)
	assert.NoError(t, err, "leeway covers skew")
}

func TestRejected(t *testing.T) {
	svc := NewJWTService(testKey, testIssuer)
	user := id.NewUserID()

	mint := func(key, issuer string) string {
		token, err := NewJWTService(key, issuer).GenerateAccessToken(user, id.RoleAdmin, time.Hour)
		require.NoError(t, err)
		return token
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: user.String(), Role: "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: user.String(),
		Role:   "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testKey))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not.a.token",
		"wrong key":    mint("another-key", testIssuer),
		"wrong issuer": mint(testKey, "someone-else"),
		"alg none":     unsigned,
		"unknown role": badRole,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
		})
	}
}

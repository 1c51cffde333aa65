// Package jwttoken signs and verifies the HS256 access tokens issued at
// login and by `billtrackctl token`.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	authmw "billtrack/pkg/platform/middleware/auth"
)

// Claims carries the actor in both a private claim and sub so downstream
// consumers that only read registered claims still see the user.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Actor parses the identity claims. Tokens minted before a role was
// retired fail here rather than deep inside a policy check.
func (c *Claims) Actor() (id.Actor, error) {
	userID, err := id.ParseUserID(c.UserID)
	if err != nil {
		return id.Actor{}, err
	}
	role, err := id.ParseRole(c.Role)
	if err != nil {
		return id.Actor{}, err
	}
	return id.Actor{UserID: userID, Role: role}, nil
}

type JWTService struct {
	key    []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

type Option func(*JWTService)

// WithLeeway tolerates clock skew between replicas when checking exp/iat.
func WithLeeway(d time.Duration) Option {
	return func(s *JWTService) { s.leeway = d }
}

// WithClock replaces time.Now for issuing and verification.
func WithClock(now func() time.Time) Option {
	return func(s *JWTService) { s.now = now }
}

func NewJWTService(signingKey, issuer string, opts ...Option) *JWTService {
	s := &JWTService{key: []byte(signingKey), issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *JWTService) GenerateAccessToken(userID id.UserID, role id.Role, expiresIn time.Duration) (string, error) {
	issued := s.now()
	claims := Claims{
		UserID: userID.String(),
		Role:   role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(expiresIn)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign access token")
	}
	return signed, nil
}

var errUnexpectedAlg = errors.New("unexpected signing method")

// ValidateToken verifies signature, issuer, expiry and the identity claims.
// Every failure is CodeUnauthorized; only expiry gets its own message.
func (s *JWTService) ValidateToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, errUnexpectedAlg
			}
			return s.key, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
	case err != nil:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if _, err := claims.Actor(); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Validator adapts the service to the auth middleware, which stays free of
// the JWT library.
func (s *JWTService) Validator() authmw.TokenValidator {
	return middlewareValidator{s}
}

type middlewareValidator struct{ svc *JWTService }

func (v middlewareValidator) ValidateToken(raw string) (*authmw.Claims, error) {
	claims, err := v.svc.ValidateToken(raw)
	if err != nil {
		return nil, err
	}
	return &authmw.Claims{UserID: claims.UserID, Role: claims.Role}, nil
}

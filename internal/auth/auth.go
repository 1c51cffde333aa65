// Package auth owns staff accounts, password login and access token issue.
package auth

import (
	"log/slog"

	"billtrack/internal/auth/handler"
	"billtrack/internal/auth/service"
)

type Service = service.Service

type Handler = handler.Handler

func NewService(users service.UserStore, tokens service.TokenIssuer, opts ...service.Option) *Service {
	return service.New(users, tokens, opts...)
}

func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}

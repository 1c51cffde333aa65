// Package billing ties bill creation and the document lifecycle to their
// HTTP surface.
package billing

import (
	"log/slog"
	"time"

	"billtrack/internal/billing/handler"
	"billtrack/internal/billing/service"
	txcontext "billtrack/pkg/platform/tx"
)

// Service exposes bill and document use cases.
type Service = service.Service

// Handler wires HTTP endpoints to the billing service.
type Handler = handler.Handler

// NewService constructs the billing service with required dependencies.
func NewService(bills service.BillStore, documents service.DocumentStore, numbers service.NumberGenerator, tx txcontext.Runner, opts ...service.Option) *Service {
	return service.New(bills, documents, numbers, tx, opts...)
}

// NewHandler constructs the bill and document routes.
func NewHandler(s *Service, logger *slog.Logger, loc *time.Location) *Handler {
	return handler.New(s, logger, loc)
}

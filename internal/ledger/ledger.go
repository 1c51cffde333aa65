// Package ledger records income for paid documents and reports on it.
package ledger

import (
	"log/slog"
	"time"

	"billtrack/internal/ledger/handler"
	"billtrack/internal/ledger/service"
)

type Service = service.Service

type Handler = handler.Handler

func NewService(records service.Store, bills service.BillLookup, opts ...service.Option) *Service {
	return service.New(records, bills, opts...)
}

func NewHandler(s *Service, logger *slog.Logger, loc *time.Location) *Handler {
	return handler.New(s, logger, loc)
}

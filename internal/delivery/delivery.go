// Package delivery hands documents to their channels and follows the
// shipments until the reconciler learns they arrived.
package delivery

import (
	"log/slog"

	"billtrack/internal/delivery/dispatcher"
	"billtrack/internal/delivery/handler"
	"billtrack/internal/delivery/poller"
	"billtrack/internal/delivery/tracking"
)

type Dispatcher = dispatcher.Dispatcher

type Poller = poller.Poller

type Handler = handler.Handler

func NewDispatcher(documents dispatcher.DocumentStore, bills dispatcher.BillLookup, numbers dispatcher.NumberGenerator, senders dispatcher.Senders, opts ...dispatcher.Option) *Dispatcher {
	return dispatcher.New(documents, bills, numbers, senders, opts...)
}

func NewPoller(documents poller.DocumentStore, tracker poller.Tracker, r poller.Reconciler, opts ...poller.Option) *Poller {
	return poller.New(documents, tracker, r, opts...)
}

// NewHandler constructs the dispatch and delivery status routes. tracker may
// be nil when no postal API is configured.
func NewHandler(d *Dispatcher, documents tracking.DocumentStore, tracker tracking.Tracker, logger *slog.Logger) *Handler {
	return handler.New(d, tracking.New(documents, tracker, logger), logger)
}

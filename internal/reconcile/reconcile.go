// Package reconcile merges delivery and payment signals from gateways into
// the document lifecycle, from webhooks, Kafka topics and the postal poller.
package reconcile

import (
	"log/slog"

	"billtrack/internal/reconcile/handler"
	"billtrack/internal/reconcile/orphan"
	"billtrack/internal/reconcile/service"
)

type Reconciler = service.Reconciler

type RetryWorker = service.RetryWorker

type Handler = handler.Handler

func NewReconciler(documents service.DocumentStore, ledger service.Ledger, queue orphan.Queue, opts ...service.Option) *Reconciler {
	return service.New(documents, ledger, queue, opts...)
}

func NewRetryWorker(r *Reconciler, queue orphan.Queue, opts ...service.WorkerOption) *RetryWorker {
	return service.NewRetryWorker(r, queue, opts...)
}

// NewHandler constructs the webhook route guarded by the shared callback token.
func NewHandler(r *Reconciler, token string, logger *slog.Logger) *Handler {
	return handler.New(r, token, logger)
}

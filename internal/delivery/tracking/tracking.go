// Package tracking answers "where is this delivery" for a tracking number,
// combining the stored attempt with a live postal lookup when one exists.
package tracking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"billtrack/internal/billing/models"
	"billtrack/internal/delivery/channel"
	"billtrack/internal/policy"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	"billtrack/pkg/platform/sentinel"
)

type DocumentStore interface {
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Document, error)
}

type Tracker interface {
	Track(ctx context.Context, ref string) (channel.TrackingStatus, error)
}

// Status is the combined view of one delivery attempt.
type Status struct {
	TrackingNumber    string                  `json:"tracking_number"`
	DocumentID        id.DocumentID           `json:"document_id"`
	DocumentNumber    string                  `json:"document_number"`
	DocumentStatus    models.Status           `json:"document_status"`
	Channel           models.Channel          `json:"channel"`
	AttemptStatus     models.AttemptStatus    `json:"attempt_status"`
	ExternalReference string                  `json:"external_reference,omitempty"`
	FailureReason     string                  `json:"failure_reason,omitempty"`
	SentAt            *time.Time              `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time              `json:"delivered_at,omitempty"`
	Carrier           *channel.TrackingStatus `json:"carrier,omitempty"`
	CarrierError      string                  `json:"carrier_error,omitempty"`
}

type Service struct {
	documents DocumentStore
	tracker   Tracker
	logger    *slog.Logger
}

// New builds the lookup. tracker may be nil when no postal API is configured.
func New(documents DocumentStore, tracker Tracker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{documents: documents, tracker: tracker, logger: logger}
}

// Lookup returns the attempt behind trackingNumber. Documents the actor may
// not view are reported as not found.
func (s *Service) Lookup(ctx context.Context, actor id.Actor, trackingNumber string) (*Status, error) {
	if trackingNumber == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tracking number is required")
	}
	doc, err := s.documents.FindByTrackingNumber(ctx, trackingNumber)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "tracking number not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up tracking number")
	}
	if !policy.CanView(actor, doc.CreatedBy) {
		return nil, dErrors.New(dErrors.CodeNotFound, "tracking number not found")
	}
	attempt := doc.AttemptByTrackingNumber(trackingNumber)
	if attempt == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document has no attempt for tracking number")
	}

	status := &Status{
		TrackingNumber:    trackingNumber,
		DocumentID:        doc.ID,
		DocumentNumber:    doc.Number,
		DocumentStatus:    doc.Status,
		Channel:           attempt.Channel,
		AttemptStatus:     attempt.Status,
		ExternalReference: attempt.ExternalReference,
		FailureReason:     attempt.FailureReason,
		SentAt:            attempt.SentAt,
		DeliveredAt:       attempt.DeliveredAt,
	}

	if s.tracker != nil && attempt.Channel == models.ChannelPost && attempt.ExternalReference != "" {
		carrier, err := s.tracker.Track(ctx, attempt.ExternalReference)
		if err != nil {
			s.logger.WarnContext(ctx, "postal tracking lookup failed", "tracking_number", trackingNumber, "error", err)
			status.CarrierError = err.Error()
		} else {
			status.Carrier = &carrier
		}
	}
	return status, nil
}

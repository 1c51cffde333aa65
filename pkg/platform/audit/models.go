package audit

import (
	"time"

	id "billtrack/pkg/domain"
)

// EventCategory classifies audit events for retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers money and lifecycle facts that must be kept
	// for financial audit (bills raised, income recorded, cancellations).
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers authentication and access decisions.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine delivery and reconciliation activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from service logic to capture key actions. It stays
// transport-agnostic so stores and the outbox relay can fan it out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// UserID is the acting user; nil for system actors (poller, callbacks).
	UserID id.UserID
	// Subject identifies the affected entity, e.g. a document or bill number.
	Subject   string
	Action    string
	Reason    string
	RequestID string
	ClientIP  string
	Device    string
}

type AuditEvent string

const (
	// Users
	EventUserCreated    AuditEvent = "user_created"
	EventLoginSucceeded AuditEvent = "login_succeeded"
	EventLoginFailed    AuditEvent = "login_failed"
	EventAccessDenied   AuditEvent = "access_denied"

	// Bills and documents
	EventBillCreated       AuditEvent = "bill_created"
	EventDocumentCancelled AuditEvent = "document_cancelled"

	// Delivery
	EventDocumentDispatched AuditEvent = "document_dispatched"
	EventDispatchFailed     AuditEvent = "dispatch_failed"

	// Reconciliation
	EventDeliveryConfirmed AuditEvent = "delivery_confirmed"
	EventDeliveryFailed    AuditEvent = "delivery_failed"
	EventPaymentConfirmed  AuditEvent = "payment_confirmed"
	EventIncomeRecorded    AuditEvent = "income_recorded"
	EventStaleEvent        AuditEvent = "stale_event_discarded"
	EventOrphanDiscarded   AuditEvent = "orphan_event_discarded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventUserCreated:       CategoryCompliance,
	EventBillCreated:       CategoryCompliance,
	EventDocumentCancelled: CategoryCompliance,
	EventPaymentConfirmed:  CategoryCompliance,
	EventIncomeRecorded:    CategoryCompliance,

	EventLoginSucceeded: CategorySecurity,
	EventLoginFailed:    CategorySecurity,
	EventAccessDenied:   CategorySecurity,

	EventDocumentDispatched: CategoryOperations,
	EventDispatchFailed:     CategoryOperations,
	EventDeliveryConfirmed:  CategoryOperations,
	EventDeliveryFailed:     CategoryOperations,
	EventStaleEvent:         CategoryOperations,
	EventOrphanDiscarded:    CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

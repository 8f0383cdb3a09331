package audit

import (
	"context"
	"time"

	dErrors "obconsent/pkg/domain-errors"
)

// EventCategory classifies audit events by retention and routing needs.
type EventCategory string

const (
	// CategoryCompliance covers consent decisions. These need guaranteed persistence.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers failed or suspicious consent activity.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine flow activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    string
	ConsentID string
	ClientID  string
	// Subject is the authorization resource the action applied to, when any.
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

type AuditEvent string

const (
	EventConsentAuthorized    AuditEvent = "consent_authorized"
	EventConsentRejected      AuditEvent = "consent_rejected"
	EventConsentPersistFailed AuditEvent = "consent_persist_failed"
	EventSessionRegistered    AuditEvent = "authorize_session_registered"
	EventConsentScopeInjected AuditEvent = "consent_scope_injected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventConsentAuthorized:    CategoryCompliance,
	EventConsentRejected:      CategoryCompliance,
	EventConsentPersistFailed: CategorySecurity,
	EventSessionRegistered:    CategoryOperations,
	EventConsentScopeInjected: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// ComplianceEvent captures a consent decision that must be persisted before
// the surrounding operation may succeed.
type ComplianceEvent struct {
	Timestamp time.Time
	UserID    string
	ConsentID string
	ClientID  string
	Subject   string
	Action    AuditEvent
	Decision  string
	RequestID string
}

// Category returns CategoryCompliance (always).
func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// Validate reports the first missing field a regulator would need.
func (e ComplianceEvent) Validate() error {
	switch {
	case e.UserID == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "compliance event requires a user")
	case e.ConsentID == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "compliance event requires a consent")
	case e.Action == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "compliance event requires an action")
	}
	return nil
}

// ToEvent converts to the storage Event.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:  CategoryCompliance,
		Timestamp: e.Timestamp,
		UserID:    e.UserID,
		ConsentID: e.ConsentID,
		ClientID:  e.ClientID,
		Subject:   e.Subject,
		Action:    string(e.Action),
		Decision:  e.Decision,
		RequestID: e.RequestID,
	}
}

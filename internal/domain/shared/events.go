package shared

import (
	"encoding/json"
	"time"
)

// EventType names what happened, "<aggregate>.<past tense verb>".
type EventType string

const (
	EventApplicationSubmitted EventType = "application.submitted"
	EventApplicationDecided   EventType = "application.decided"
	EventApplicationCompleted EventType = "application.completed"

	// The aggregate of report events is the parent application.
	EventReportCreated EventType = "report.created"
	EventReportUpdated EventType = "report.updated"
	EventReportDeleted EventType = "report.deleted"
)

// Event is a fact emitted after a successful state change. Payload is the
// JSON-ready body handed to the bus and the broker.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
	Payload() map[string]interface{}
}

// BaseEvent carries the envelope fields; concrete events embed it.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{Type: eventType, Timestamp: time.Now().UTC(), AggregateId: aggregateID, Version: 1}
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// Base is promoted to every embedding event.
func (e BaseEvent) Base() BaseEvent { return e }

// WithCorrelationID ties the event to the request that caused it.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Application Events
// ═══════════════════════════════════════════════════════════════════════════

// ApplicationSubmittedEvent is emitted when an applicant submits an application.
type ApplicationSubmittedEvent struct {
	BaseEvent
	ApplicantID string `json:"applicant_id"`
	ProgramID   string `json:"program_id"`
	ArtisanID   string `json:"artisan_id"`
}

// Payload implements Event interface.
func (e ApplicationSubmittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"applicant_id": e.ApplicantID,
		"program_id":   e.ProgramID,
		"artisan_id":   e.ArtisanID,
	}
}

// NewApplicationSubmittedEvent creates a new ApplicationSubmittedEvent.
func NewApplicationSubmittedEvent(applicationID, applicantID, programID, artisanID string) ApplicationSubmittedEvent {
	return ApplicationSubmittedEvent{
		BaseEvent:   NewBaseEvent(EventApplicationSubmitted, applicationID),
		ApplicantID: applicantID,
		ProgramID:   programID,
		ArtisanID:   artisanID,
	}
}

// ApplicationDecidedEvent is emitted when an artisan approves or rejects an application.
type ApplicationDecidedEvent struct {
	BaseEvent
	ArtisanID   string `json:"artisan_id"`
	ApplicantID string `json:"applicant_id"`
	ProgramID   string `json:"program_id"`
	Status      string `json:"status"`
}

// Payload implements Event interface.
func (e ApplicationDecidedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"artisan_id":   e.ArtisanID,
		"applicant_id": e.ApplicantID,
		"program_id":   e.ProgramID,
		"status":       e.Status,
	}
}

// NewApplicationDecidedEvent creates a new ApplicationDecidedEvent.
func NewApplicationDecidedEvent(applicationID, artisanID, applicantID, programID, status string) ApplicationDecidedEvent {
	return ApplicationDecidedEvent{
		BaseEvent:   NewBaseEvent(EventApplicationDecided, applicationID),
		ArtisanID:   artisanID,
		ApplicantID: applicantID,
		ProgramID:   programID,
		Status:      status,
	}
}

// ApplicationCompletedEvent is emitted when a mentorship is concluded.
type ApplicationCompletedEvent struct {
	BaseEvent
	ArtisanID   string `json:"artisan_id"`
	ApplicantID string `json:"applicant_id"`
	ProgramID   string `json:"program_id"`
}

// Payload implements Event interface.
func (e ApplicationCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"artisan_id":   e.ArtisanID,
		"applicant_id": e.ApplicantID,
		"program_id":   e.ProgramID,
	}
}

// NewApplicationCompletedEvent creates a new ApplicationCompletedEvent.
func NewApplicationCompletedEvent(applicationID, artisanID, applicantID, programID string) ApplicationCompletedEvent {
	return ApplicationCompletedEvent{
		BaseEvent:   NewBaseEvent(EventApplicationCompleted, applicationID),
		ArtisanID:   artisanID,
		ApplicantID: applicantID,
		ProgramID:   programID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Report Events
// ═══════════════════════════════════════════════════════════════════════════

// ReportEvent is emitted when a progress report is created, updated or deleted.
// The aggregate is the parent application.
type ReportEvent struct {
	BaseEvent
	ReportID    string `json:"report_id"`
	ApplicantID string `json:"applicant_id"`
	WeekNumber  int    `json:"week_number"`
}

// Payload implements Event interface.
func (e ReportEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"report_id":    e.ReportID,
		"applicant_id": e.ApplicantID,
		"week_number":  e.WeekNumber,
	}
}

// NewReportEvent creates a new ReportEvent of the given type.
func NewReportEvent(eventType EventType, applicationID, reportID, applicantID string, week int) ReportEvent {
	return ReportEvent{
		BaseEvent:   NewBaseEvent(eventType, applicationID),
		ReportID:    reportID,
		ApplicantID: applicantID,
		WeekNumber:  week,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope marshals the payload. Version and CorrelationID come
// from the embedded BaseEvent when there is one.
func NewEventEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}

	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if b, ok := event.(interface{ Base() BaseEvent }); ok {
		env.Version = b.Base().Version
		env.CorrelationID = b.Base().CorrelationID
	}
	return env, nil
}

// EventHandler errors are logged by the bus, never returned to the publisher.
type EventHandler func(event Event) error

// EventPublisher is what command handlers depend on.
type EventPublisher interface {
	Publish(event Event) error
}

type EventBus interface {
	EventPublisher
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

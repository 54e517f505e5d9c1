// Package appointments turns appointments.created log records into typed events and persists them
// idempotently by business event id.
package appointments

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventTypeCreated is the event_type producers attach to new bookings.
const EventTypeCreated = "appointments.created"

// ErrStore marks failures of the backing store. The consumer treats them as fatal.
var ErrStore = errors.New("appointments: store failure")

// AppointmentCreatedEvent is one successfully decoded appointments.created record.
type AppointmentCreatedEvent struct {
	EventID         string
	EventType       string
	OccurredAt      time.Time
	AppointmentID   string
	UserID          string
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	Email           string
	PhoneE164       string
	NotifyEmail     bool
	NotifySMS       bool
	SourceTopic     string
	SourcePartition int32
	SourceOffset    int64
	RawPayload      json.RawMessage
}

// EndsBeforeStart reports whether the producer sent an inverted time range.
func (e AppointmentCreatedEvent) EndsBeforeStart() bool {
	return e.EndTime.Before(e.StartTime)
}

// StoredRecord is a persisted event row.
type StoredRecord struct {
	AppointmentCreatedEvent

	ID         int64
	ReceivedAt time.Time

	// Inserted is true when the upsert created the row rather than refreshing it.
	Inserted bool
}

// String renders a one-line summary for logs.
func (e AppointmentCreatedEvent) String() string {
	return fmt.Sprintf("%s@%s[%d]:%d", e.EventID, e.SourceTopic, e.SourcePartition, e.SourceOffset)
}

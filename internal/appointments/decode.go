package appointments

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DecodeReason classifies why a record was rejected.
type DecodeReason string

const (
	ReasonInvalidEncoding      DecodeReason = "invalid-encoding"
	ReasonInvalidJSON          DecodeReason = "invalid-json"
	ReasonMissingRequiredField DecodeReason = "missing-required-field"
)

// DecodeError rejects a whole record. Nothing from a rejected record is stored.
type DecodeError struct {
	Reason DecodeReason
	Field  string
	// EventID is set when the envelope parsed far enough to carry one.
	EventID string
	Err     error
}

func (e *DecodeError) Error() string {
	msg := "appointments: decode: " + string(e.Reason)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeReasonOf returns the reason carried by err, or "" when err is not a *DecodeError.
func DecodeReasonOf(err error) DecodeReason {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return decodeErr.Reason
	}
	return ""
}

// Decode validates a raw record value and maps it to an AppointmentCreatedEvent.
func Decode(raw []byte, topic string, partition int32, offset int64) (AppointmentCreatedEvent, error) {
	if !utf8.Valid(raw) {
		return AppointmentCreatedEvent{}, &DecodeError{Reason: ReasonInvalidEncoding, Err: errors.New("value is not valid UTF-8")}
	}

	if !json.Valid(raw) {
		return AppointmentCreatedEvent{}, &DecodeError{Reason: ReasonInvalidJSON, Err: errors.New("value is not valid JSON")}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return AppointmentCreatedEvent{}, &DecodeError{Reason: ReasonInvalidJSON, Err: err}
	}
	if payload == nil {
		return AppointmentCreatedEvent{}, &DecodeError{Reason: ReasonInvalidJSON, Err: errors.New("payload is not a JSON object")}
	}
	// Postgres text and jsonb columns cannot hold U+0000.
	if containsNUL(payload) {
		return AppointmentCreatedEvent{}, &DecodeError{Reason: ReasonInvalidEncoding, Err: errors.New("value contains a NUL character")}
	}

	appointment := objectField(payload, "appointment")
	notify := objectField(payload, "notify")

	evt := AppointmentCreatedEvent{
		EventID:         stringField(payload, "event_id"),
		EventType:       stringField(payload, "event_type"),
		AppointmentID:   stringField(appointment, "appointment_id"),
		UserID:          stringField(appointment, "user_id"),
		DurationMinutes: intField(appointment, "duration_minutes"),
		Email:           stringField(appointment, "email"),
		PhoneE164:       stringField(appointment, "phone_e164"),
		NotifyEmail:     boolField(notify, "email"),
		NotifySMS:       boolField(notify, "sms"),
		SourceTopic:     topic,
		SourcePartition: partition,
		SourceOffset:    offset,
		RawPayload:      append(json.RawMessage(nil), bytes.TrimSpace(raw)...),
	}

	if evt.EventID == "" {
		return AppointmentCreatedEvent{}, rejectField(evt, "event_id", nil)
	}
	if evt.AppointmentID == "" {
		return AppointmentCreatedEvent{}, rejectField(evt, "appointment.appointment_id", nil)
	}

	var err error
	if evt.OccurredAt, err = timeField(payload, "occurred_at"); err != nil {
		return AppointmentCreatedEvent{}, rejectField(evt, "occurred_at", err)
	}
	if evt.StartTime, err = timeField(appointment, "start_time"); err != nil {
		return AppointmentCreatedEvent{}, rejectField(evt, "appointment.start_time", err)
	}
	if evt.EndTime, err = timeField(appointment, "end_time"); err != nil {
		return AppointmentCreatedEvent{}, rejectField(evt, "appointment.end_time", err)
	}

	return evt, nil
}

func containsNUL(v any) bool {
	switch val := v.(type) {
	case string:
		return strings.IndexByte(val, 0) >= 0
	case map[string]any:
		for k, nested := range val {
			if strings.IndexByte(k, 0) >= 0 || containsNUL(nested) {
				return true
			}
		}
	case []any:
		for _, nested := range val {
			if containsNUL(nested) {
				return true
			}
		}
	}
	return false
}

func rejectField(evt AppointmentCreatedEvent, field string, err error) *DecodeError {
	decodeErr := missing(field, err)
	decodeErr.EventID = evt.EventID
	return decodeErr
}

func missing(field string, err error) *DecodeError {
	return &DecodeError{Reason: ReasonMissingRequiredField, Field: field, Err: err}
}

// objectField returns the nested object at key, or an empty map when absent or not an object.
func objectField(m map[string]any, key string) map[string]any {
	if nested, ok := m[key].(map[string]any); ok {
		return nested
	}
	return map[string]any{}
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func timeField(m map[string]any, key string) (time.Time, error) {
	raw, ok := m[key].(string)
	if !ok {
		return time.Time{}, ErrNoTimestamp
	}
	return ParseTimestamp(raw)
}

func intField(m map[string]any, key string) int {
	var n float64
	switch v := m[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			n = float64(i)
		} else if f, err := v.Float64(); err == nil {
			n = f
		}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		n = f
	default:
		return 0
	}
	if math.IsNaN(n) || n <= 0 {
		return 0
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

func boolField(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	default:
		return false
	}
}

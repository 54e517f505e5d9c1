package appointments

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullPayload = `{
	"event_id": "evt-123",
	"event_type": "appointments.created",
	"occurred_at": "2025-06-01T12:00:00.123456789Z",
	"notify": {"email": true, "sms": false},
	"appointment": {
		"appointment_id": "appt-9",
		"user_id": "user-4",
		"start_time": "2025-06-10T09:00:00+02:00",
		"end_time": "2025-06-10T09:30:00+02:00",
		"duration_minutes": 30,
		"email": "guest@example.com",
		"phone_e164": "+15551234567"
	},
	"channel": "web"
}`

func TestDecodeFullPayload(t *testing.T) {
	evt, err := Decode([]byte(fullPayload), "appointments.created", 2, 41)
	require.NoError(t, err)

	assert.Equal(t, "evt-123", evt.EventID)
	assert.Equal(t, EventTypeCreated, evt.EventType)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 123456000, time.UTC), evt.OccurredAt)
	assert.Equal(t, "appt-9", evt.AppointmentID)
	assert.Equal(t, "user-4", evt.UserID)
	assert.Equal(t, time.Date(2025, 6, 10, 7, 0, 0, 0, time.UTC), evt.StartTime)
	assert.Equal(t, time.Date(2025, 6, 10, 7, 30, 0, 0, time.UTC), evt.EndTime)
	assert.Equal(t, 30, evt.DurationMinutes)
	assert.Equal(t, "guest@example.com", evt.Email)
	assert.Equal(t, "+15551234567", evt.PhoneE164)
	assert.True(t, evt.NotifyEmail)
	assert.False(t, evt.NotifySMS)
	assert.Equal(t, "appointments.created", evt.SourceTopic)
	assert.Equal(t, int32(2), evt.SourcePartition)
	assert.Equal(t, int64(41), evt.SourceOffset)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(evt.RawPayload, &raw))
	assert.Equal(t, "web", raw["channel"], "unmodeled fields survive in the raw payload")
}

func TestDecodeRequiredFieldsOnly(t *testing.T) {
	body := `{"event_id":"evt-1","occurred_at":"2025-06-01T12:00:00Z",
		"appointment":{"appointment_id":"a-1","start_time":"2025-06-02T10:00:00Z","end_time":"2025-06-02T11:00:00Z"}}`

	evt, err := Decode([]byte(body), "appointments.created", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, "", evt.EventType)
	assert.Equal(t, "", evt.UserID)
	assert.Equal(t, "", evt.Email)
	assert.Equal(t, "", evt.PhoneE164)
	assert.Equal(t, 0, evt.DurationMinutes)
	assert.False(t, evt.NotifyEmail)
	assert.False(t, evt.NotifySMS)
	assert.JSONEq(t, body, string(evt.RawPayload))
}

func TestDecodeMissingRequiredField(t *testing.T) {
	base := func() map[string]any {
		return map[string]any{
			"event_id":    "evt-1",
			"occurred_at": "2025-06-01T12:00:00Z",
			"appointment": map[string]any{
				"appointment_id": "a-1",
				"start_time":     "2025-06-02T10:00:00Z",
				"end_time":       "2025-06-02T11:00:00Z",
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(m map[string]any)
		field  string
	}{
		{"event id", func(m map[string]any) { delete(m, "event_id") }, "event_id"},
		{"empty event id", func(m map[string]any) { m["event_id"] = "" }, "event_id"},
		{"appointment id", func(m map[string]any) { delete(m["appointment"].(map[string]any), "appointment_id") }, "appointment.appointment_id"},
		{"occurred at", func(m map[string]any) { delete(m, "occurred_at") }, "occurred_at"},
		{"start time", func(m map[string]any) { delete(m["appointment"].(map[string]any), "start_time") }, "appointment.start_time"},
		{"end time", func(m map[string]any) { delete(m["appointment"].(map[string]any), "end_time") }, "appointment.end_time"},
		{"unparseable start", func(m map[string]any) { m["appointment"].(map[string]any)["start_time"] = "soon" }, "appointment.start_time"},
		{"null occurred at", func(m map[string]any) { m["occurred_at"] = nil }, "occurred_at"},
		{"appointment missing", func(m map[string]any) { delete(m, "appointment") }, "appointment.appointment_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(m)
			raw, err := json.Marshal(m)
			require.NoError(t, err)

			_, err = Decode(raw, "appointments.created", 0, 5)
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %v", err)
			assert.Equal(t, ReasonMissingRequiredField, decodeErr.Reason)
			assert.Equal(t, tt.field, decodeErr.Field)
			if tt.field != "event_id" {
				assert.Equal(t, "evt-1", decodeErr.EventID)
			}
		})
	}
}

func TestDecodeInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		reason DecodeReason
	}{
		{"invalid utf8", []byte{0xff, 0xfe, '{', '}'}, ReasonInvalidEncoding},
		{"not json", []byte("{not json"), ReasonInvalidJSON},
		{"array", []byte(`[1,2,3]`), ReasonInvalidJSON},
		{"null", []byte(`null`), ReasonInvalidJSON},
		{"trailing data", []byte(`{"event_id":"x"}}`), ReasonInvalidJSON},
		{"empty", []byte{}, ReasonInvalidJSON},
		{"escaped nul in value", []byte(`{"event_id":"e\u0000x","appointment":{"appointment_id":"a"}}`), ReasonInvalidEncoding},
		{"escaped nul in nested array", []byte(`{"event_id":"e","tags":["ok","\u0000"]}`), ReasonInvalidEncoding},
		{"escaped nul in key", []byte(`{"event_id":"e","k\u0000":1}`), ReasonInvalidEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw, "t", 0, 0)
			require.Error(t, err)
			assert.Equal(t, tt.reason, DecodeReasonOf(err))
		})
	}
}

func TestDecodeLooseFieldTypes(t *testing.T) {
	body := `{"event_id":12345,"occurred_at":"2025-06-01T12:00:00Z",
		"notify":{"email":"true","sms":1},
		"appointment":{"appointment_id":"a-1","start_time":"2025-06-02T10:00:00Z","end_time":"2025-06-02T11:00:00Z",
			"duration_minutes":"45","user_id":null}}`

	evt, err := Decode([]byte(body), "t", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "12345", evt.EventID)
	assert.Equal(t, 45, evt.DurationMinutes)
	assert.True(t, evt.NotifyEmail)
	assert.True(t, evt.NotifySMS)
	assert.Equal(t, "", evt.UserID)
}

func TestDecodeNonObjectNestedDefaultsToEmpty(t *testing.T) {
	body := `{"event_id":"e","occurred_at":"2025-06-01T12:00:00Z","notify":"yes",
		"appointment":{"appointment_id":"a","start_time":"2025-06-02T10:00:00Z","end_time":"2025-06-02T11:00:00Z"}}`
	evt, err := Decode([]byte(body), "t", 0, 0)
	require.NoError(t, err)
	assert.False(t, evt.NotifyEmail)
	assert.False(t, evt.NotifySMS)
}

func TestDecodeDurationEdgeCases(t *testing.T) {
	tests := map[string]int{
		`30`:     30,
		`30.9`:   30,
		`-5`:     0,
		`"abc"`:  0,
		`null`:   0,
		`true`:   0,
		`" 15 "`: 15,
	}
	for value, want := range tests {
		t.Run(value, func(t *testing.T) {
			body := `{"event_id":"e","occurred_at":"2025-06-01T12:00:00Z","appointment":{"appointment_id":"a",
				"start_time":"2025-06-02T10:00:00Z","end_time":"2025-06-02T11:00:00Z","duration_minutes":` + value + `}}`
			evt, err := Decode([]byte(body), "t", 0, 0)
			require.NoError(t, err)
			assert.Equal(t, want, evt.DurationMinutes)
		})
	}
}

func TestDecodeKeepsInvertedRange(t *testing.T) {
	body := `{"event_id":"e","occurred_at":"2025-06-01T12:00:00Z","appointment":{"appointment_id":"a",
		"start_time":"2025-06-02T11:00:00Z","end_time":"2025-06-02T10:00:00Z","duration_minutes":90}}`
	evt, err := Decode([]byte(body), "t", 0, 0)
	require.NoError(t, err)
	assert.True(t, evt.EndsBeforeStart())
	assert.Equal(t, 90, evt.DurationMinutes)
}

func TestDecodeErrorMessage(t *testing.T) {
	err := missing("occurred_at", ErrNoTimestamp)
	assert.Equal(t, "appointments: decode: missing-required-field (occurred_at): appointments: no timestamp", err.Error())
	assert.ErrorIs(t, err, ErrNoTimestamp)
	assert.Equal(t, DecodeReason(""), DecodeReasonOf(errors.New("other")))
}

package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent(eventID string, occurredAt time.Time) AppointmentCreatedEvent {
	return AppointmentCreatedEvent{
		EventID:         eventID,
		EventType:       EventTypeCreated,
		OccurredAt:      occurredAt,
		AppointmentID:   "appt-" + eventID,
		UserID:          "user-1",
		StartTime:       occurredAt.Add(24 * time.Hour),
		EndTime:         occurredAt.Add(25 * time.Hour),
		DurationMinutes: 60,
		NotifyEmail:     true,
		SourceTopic:     "appointments.created",
		SourcePartition: 1,
		SourceOffset:    10,
		RawPayload:      []byte(`{"event_id":"` + eventID + `"}`),
	}
}

func TestPostgresStoreUpsertInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	occurred := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	evt := sampleEvent("evt-1", occurred)
	received := time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO appointment_events").
		WithArgs(
			"evt-1", EventTypeCreated, occurred, "appointments.created", int32(1), int64(10),
			"appt-evt-1", "user-1", evt.StartTime, evt.EndTime, 60,
			"", "", true, false, []byte(`{"event_id":"evt-1"}`),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "received_at", "inserted"}).AddRow(int64(7), received, true))

	rec, err := store.Upsert(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.ID)
	assert.True(t, rec.Inserted)
	assert.True(t, received.Equal(rec.ReceivedAt))
	assert.Equal(t, "evt-1", rec.EventID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpsertKeepsReceivedAtOutOfUpdate(t *testing.T) {
	assert.NotContains(t, upsertEventSQL, "received_at =")
	assert.Contains(t, upsertEventSQL, "ON CONFLICT (event_id) DO UPDATE")
}

func TestPostgresStoreUpsertEmptyPayload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	evt := sampleEvent("evt-2", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	evt.RawPayload = nil

	args := make([]any, 16)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	args[15] = []byte("{}")
	mock.ExpectQuery("INSERT INTO appointment_events").
		WithArgs(args...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "received_at", "inserted"}).AddRow(int64(8), time.Now(), false))

	rec, err := store.Upsert(context.Background(), evt)
	require.NoError(t, err)
	assert.False(t, rec.Inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	boom := errors.New("connection reset")
	mock.ExpectQuery("INSERT INTO appointment_events").WillReturnError(boom)

	_, err = store.Upsert(context.Background(), sampleEvent("evt-3", time.Now().UTC()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, boom)
}

func TestPostgresStoreListRecent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	newer := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	older := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	cols := []string{
		"id", "event_id", "event_type", "occurred_at", "kafka_topic", "kafka_partition", "kafka_offset",
		"appointment_id", "user_id", "start_time", "end_time", "duration_minutes",
		"email", "phone_e164", "notify_email", "notify_sms", "payload", "received_at",
	}
	rows := pgxmock.NewRows(cols).
		AddRow(int64(3), "evt-3", EventTypeCreated, newer, "appointments.created", int32(0), int64(12),
			"a-3", "u", newer, newer.Add(time.Hour), 60, "x@example.com", "+1555", true, true, []byte(`{}`), newer).
		AddRow(int64(2), "evt-2", EventTypeCreated, older, "appointments.created", int32(0), int64(11),
			"a-2", "u", older, older.Add(time.Hour), 30, "", "", false, false, []byte(`{}`), older)
	mock.ExpectQuery("SELECT id, event_id").WithArgs(2).WillReturnRows(rows)

	records, err := store.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "evt-3", records[0].EventID)
	assert.Equal(t, "evt-2", records[1].EventID)
	assert.Equal(t, int64(12), records[0].SourceOffset)
	assert.True(t, records[0].NotifySMS)
	assert.JSONEq(t, `{}`, string(records[0].RawPayload))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListRecentDefaultLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	mock.ExpectQuery("SELECT id, event_id").WithArgs(DefaultListLimit).WillReturnRows(pgxmock.NewRows([]string{"id"}))

	records, err := store.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListRecentQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	mock.ExpectQuery("SELECT id, event_id").WithArgs(5).WillReturnError(errors.New("boom"))

	_, err = store.ListRecent(context.Background(), 5)
	assert.ErrorIs(t, err, ErrStore)
}

func TestMemoryStoreUpsertIsIdempotent(t *testing.T) {
	first := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := first
	store := NewMemoryStore().WithClock(func() time.Time { return clock })

	evt := sampleEvent("evt-1", first)
	evt.DurationMinutes = 30
	rec1, err := store.Upsert(context.Background(), evt)
	require.NoError(t, err)
	assert.True(t, rec1.Inserted)

	clock = first.Add(time.Hour)
	evt.DurationMinutes = 45
	rec2, err := store.Upsert(context.Background(), evt)
	require.NoError(t, err)
	assert.False(t, rec2.Inserted)

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, rec1.ID, rec2.ID)
	assert.Equal(t, 45, rec2.DurationMinutes)
	assert.True(t, first.Equal(rec2.ReceivedAt), "received_at keeps the first ingestion time")

	records, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 45, records[0].DurationMinutes)
	assert.True(t, first.Equal(records[0].ReceivedAt))
}

func TestMemoryStoreListRecentOrdering(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"evt-a", "evt-b", "evt-c"} {
		_, err := store.Upsert(context.Background(), sampleEvent(id, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	records, err := store.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "evt-c", records[0].EventID)
	assert.Equal(t, "evt-b", records[1].EventID)
}

func TestMemoryStoreListRecentTieBreaksByID(t *testing.T) {
	store := NewMemoryStore()
	same := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"evt-a", "evt-b"} {
		_, err := store.Upsert(context.Background(), sampleEvent(id, same))
		require.NoError(t, err)
	}

	records, err := store.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "evt-b", records[0].EventID)
	assert.Equal(t, "evt-a", records[1].EventID)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().Upsert(ctx, sampleEvent("evt", time.Now()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStoreReturnsPayloadCopies(t *testing.T) {
	store := NewMemoryStore()
	evt := sampleEvent("evt-1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	want := string(evt.RawPayload)

	inserted, err := store.Upsert(context.Background(), evt)
	require.NoError(t, err)
	inserted.RawPayload[0] = 'X'

	updated, err := store.Upsert(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, want, string(updated.RawPayload))
	updated.RawPayload[0] = 'Y'

	records, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, want, string(records[0].RawPayload))
	records[0].RawPayload[0] = 'Z'

	again, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, want, string(again[0].RawPayload))
}

package appointments

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultListLimit is used by ListRecent when the caller passes a non-positive limit.
	DefaultListLimit = 100
)

// Store is the idempotent event store shared by the consumer and the admin read API.
type Store interface {
	Upsert(ctx context.Context, evt AppointmentCreatedEvent) (StoredRecord, error)
	ListRecent(ctx context.Context, limit int) ([]StoredRecord, error)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists events in the appointment_events table.
type PostgresStore struct {
	db     querier
	tracer trace.Tracer
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return newPostgresStoreWithQuerier(pool)
}

func newPostgresStoreWithQuerier(db querier) *PostgresStore {
	if db == nil {
		panic("appointments: querier required")
	}
	return &PostgresStore{
		db:     db,
		tracer: otel.Tracer("portfolio.internal.appointments.store"),
	}
}

// received_at is left out of the update set so it keeps the first ingestion time.
const upsertEventSQL = `
	INSERT INTO appointment_events (
		event_id, event_type, occurred_at, kafka_topic, kafka_partition, kafka_offset,
		appointment_id, user_id, start_time, end_time, duration_minutes,
		email, phone_e164, notify_email, notify_sms, payload
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (event_id) DO UPDATE SET
		event_type = EXCLUDED.event_type,
		occurred_at = EXCLUDED.occurred_at,
		kafka_topic = EXCLUDED.kafka_topic,
		kafka_partition = EXCLUDED.kafka_partition,
		kafka_offset = EXCLUDED.kafka_offset,
		appointment_id = EXCLUDED.appointment_id,
		user_id = EXCLUDED.user_id,
		start_time = EXCLUDED.start_time,
		end_time = EXCLUDED.end_time,
		duration_minutes = EXCLUDED.duration_minutes,
		email = EXCLUDED.email,
		phone_e164 = EXCLUDED.phone_e164,
		notify_email = EXCLUDED.notify_email,
		notify_sms = EXCLUDED.notify_sms,
		payload = EXCLUDED.payload
	RETURNING id, received_at, (xmax = 0) AS inserted
`

const listRecentSQL = `
	SELECT id, event_id, event_type, occurred_at, kafka_topic, kafka_partition, kafka_offset,
		appointment_id, user_id, start_time, end_time, duration_minutes,
		email, phone_e164, notify_email, notify_sms, payload, received_at
	FROM appointment_events
	ORDER BY occurred_at DESC, id DESC
	LIMIT $1
`

// Upsert inserts the event or refreshes the existing row with the same event id.
func (s *PostgresStore) Upsert(ctx context.Context, evt AppointmentCreatedEvent) (StoredRecord, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.upsert", trace.WithAttributes(
		attribute.String("event_id", evt.EventID),
	))
	defer span.End()

	payload := []byte(evt.RawPayload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	rec := StoredRecord{AppointmentCreatedEvent: evt}
	err := s.db.QueryRow(ctx, upsertEventSQL,
		evt.EventID,
		evt.EventType,
		evt.OccurredAt,
		evt.SourceTopic,
		evt.SourcePartition,
		evt.SourceOffset,
		evt.AppointmentID,
		evt.UserID,
		evt.StartTime,
		evt.EndTime,
		evt.DurationMinutes,
		evt.Email,
		evt.PhoneE164,
		evt.NotifyEmail,
		evt.NotifySMS,
		payload,
	).Scan(&rec.ID, &rec.ReceivedAt, &rec.Inserted)
	if err != nil {
		span.RecordError(err)
		return StoredRecord{}, fmt.Errorf("%w: upsert %s: %w", ErrStore, evt.EventID, err)
	}
	rec.ReceivedAt = rec.ReceivedAt.UTC()
	return rec, nil
}

// ListRecent returns up to limit events, newest occurred_at first.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]StoredRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	ctx, span := s.tracer.Start(ctx, "appointments.list_recent")
	defer span.End()

	rows, err := s.db.Query(ctx, listRecentSQL, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: list recent: %w", ErrStore, err)
	}
	defer rows.Close()

	records := make([]StoredRecord, 0, limit)
	for rows.Next() {
		var rec StoredRecord
		var payload []byte
		if err := rows.Scan(
			&rec.ID,
			&rec.EventID,
			&rec.EventType,
			&rec.OccurredAt,
			&rec.SourceTopic,
			&rec.SourcePartition,
			&rec.SourceOffset,
			&rec.AppointmentID,
			&rec.UserID,
			&rec.StartTime,
			&rec.EndTime,
			&rec.DurationMinutes,
			&rec.Email,
			&rec.PhoneE164,
			&rec.NotifyEmail,
			&rec.NotifySMS,
			&payload,
			&rec.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan event: %w", ErrStore, err)
		}
		rec.RawPayload = append([]byte(nil), payload...)
		rec.OccurredAt = rec.OccurredAt.UTC()
		rec.StartTime = rec.StartTime.UTC()
		rec.EndTime = rec.EndTime.UTC()
		rec.ReceivedAt = rec.ReceivedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list recent: %w", ErrStore, err)
	}
	return records, nil
}

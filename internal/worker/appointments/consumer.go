// Package appointmentsworker consumes appointment-created events from the log and persists them.
package appointmentsworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/portfolio-bff/internal/appointments"
	"github.com/wolfman30/portfolio-bff/internal/archive"
	"github.com/wolfman30/portfolio-bff/internal/eventlog"
	"github.com/wolfman30/portfolio-bff/internal/observability/metrics"
	"github.com/wolfman30/portfolio-bff/pkg/logging"
)

var consumerTracer = otel.Tracer("portfolio.internal.worker.appointments")

// OutcomeStored labels records that were persisted and committed.
const OutcomeStored = "stored"

// Config is fixed for the lifetime of a Consumer.
type Config struct {
	Topic          string
	GroupID        string
	PollTimeout    time.Duration
	MaxPollRecords int
	// MaxMessages stops the loop after that many persisted events. Zero means run until cancelled.
	MaxMessages int
}

func (c Config) withDefaults() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.MaxPollRecords <= 0 {
		c.MaxPollRecords = 10
	}
	if c.MaxMessages < 0 {
		c.MaxMessages = 0
	}
	return c
}

type progressRecorder interface {
	Record(ctx context.Context, rec eventlog.Record, eventID string) error
}

type rejectArchiver interface {
	ArchiveRejected(ctx context.Context, record archive.RejectedRecord) (string, error)
}

// Consumer runs the poll, decode, upsert, commit loop on a single goroutine.
type Consumer struct {
	client   eventlog.Client
	store    appointments.Store
	logger   *logging.Logger
	cfg      Config
	metrics  *metrics.IngestMetrics
	progress progressRecorder
	archive  rejectArchiver

	persisted int
}

func New(client eventlog.Client, store appointments.Store, logger *logging.Logger, cfg Config) *Consumer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Consumer{
		client: client,
		store:  store,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
}

func (c *Consumer) WithMetrics(m *metrics.IngestMetrics) *Consumer {
	c.metrics = m
	return c
}

func (c *Consumer) WithProgress(p progressRecorder) *Consumer {
	c.progress = p
	return c
}

func (c *Consumer) WithArchive(a rejectArchiver) *Consumer {
	c.archive = a
	return c
}

// Persisted is the number of events stored since the consumer started.
func (c *Consumer) Persisted() int {
	return c.persisted
}

// Run blocks until ctx is cancelled, MaxMessages events are persisted, or a fatal error occurs.
// Store, poll and commit failures are fatal. Cancellation returns nil.
func (c *Consumer) Run(ctx context.Context) error {
	if c.client == nil || c.store == nil {
		return errors.New("appointmentsworker: client and store are required")
	}
	c.logger.Info("appointment consumer started",
		"topic", c.cfg.Topic,
		"group_id", c.cfg.GroupID,
		"poll_timeout", c.cfg.PollTimeout.String(),
		"max_poll_records", c.cfg.MaxPollRecords,
		"max_messages", c.cfg.MaxMessages,
	)

	for {
		if ctx.Err() != nil {
			c.logger.Info("appointment consumer stopped", "reason", "cancelled", "persisted", c.persisted)
			return nil
		}

		records, err := c.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("appointment consumer stopped", "reason", "cancelled", "persisted", c.persisted)
				return nil
			}
			c.logger.Error("poll failed", "error", err)
			return fmt.Errorf("appointmentsworker: poll: %w", err)
		}

		for _, rec := range records {
			if ctx.Err() != nil {
				c.logger.Info("appointment consumer stopped", "reason", "cancelled", "persisted", c.persisted)
				return nil
			}
			stored, err := c.handle(ctx, rec)
			if err != nil {
				return err
			}
			if !stored {
				continue
			}
			c.persisted++
			if c.cfg.MaxMessages > 0 && c.persisted >= c.cfg.MaxMessages {
				c.logger.Info("appointment consumer stopped", "reason", "max messages reached", "persisted", c.persisted)
				return nil
			}
		}
	}
}

func (c *Consumer) poll(ctx context.Context) ([]eventlog.Record, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()
	return c.client.Poll(pollCtx, c.cfg.MaxPollRecords)
}

// handle processes one record. It reports whether the record was persisted and committed.
func (c *Consumer) handle(ctx context.Context, rec eventlog.Record) (bool, error) {
	ctx, span := consumerTracer.Start(ctx, "appointments.consume")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.destination", rec.Topic),
		attribute.Int("messaging.partition", int(rec.Partition)),
		attribute.Int64("messaging.offset", rec.Offset),
	)

	evt, err := appointments.Decode(rec.Value, rec.Topic, rec.Partition, rec.Offset)
	if err != nil {
		span.RecordError(err)
		c.skip(ctx, rec, err)
		return false, nil
	}
	span.SetAttributes(attribute.String("portfolio.event_id", evt.EventID))

	// The record in hand finishes even if shutdown starts now.
	work := context.WithoutCancel(ctx)

	start := time.Now()
	stored, err := c.store.Upsert(work, evt)
	c.metrics.ObserveUpsert(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		c.metrics.ObserveRecord(rec.Topic, "store-error")
		c.logger.Error("store failed",
			"error", err,
			"event_id", evt.EventID,
			"partition", rec.Partition,
			"offset", rec.Offset,
		)
		return false, fmt.Errorf("appointmentsworker: store %s: %w", rec, err)
	}

	err = c.client.Commit(work, rec)
	c.metrics.ObserveCommit(rec.Topic, rec.Partition, rec.Offset+1, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		c.logger.Error("offset commit failed",
			"error", err,
			"event_id", evt.EventID,
			"partition", rec.Partition,
			"offset", rec.Offset,
		)
		return false, fmt.Errorf("appointmentsworker: commit %s: %w", rec, err)
	}

	if c.progress != nil {
		if err := c.progress.Record(work, rec, evt.EventID); err != nil {
			c.logger.Warn("progress update failed", "error", err, "partition", rec.Partition, "offset", rec.Offset)
		}
	}

	c.metrics.ObserveRecord(rec.Topic, OutcomeStored)
	c.logger.Info("appointment event stored",
		"event_id", evt.EventID,
		"appointment_id", evt.AppointmentID,
		"row_id", stored.ID,
		"inserted", stored.Inserted,
		"partition", rec.Partition,
		"offset", rec.Offset,
	)
	if evt.EndsBeforeStart() {
		c.logger.Warn("appointment ends before it starts",
			"event_id", evt.EventID,
			"start_time", evt.StartTime,
			"end_time", evt.EndTime,
		)
	}
	return true, nil
}

// skip logs a rejected record and, when configured, archives it. The offset is not committed.
func (c *Consumer) skip(ctx context.Context, rec eventlog.Record, decodeErr error) {
	reason := string(appointments.DecodeReasonOf(decodeErr))
	if reason == "" {
		reason = "unknown"
	}
	var eventID string
	var de *appointments.DecodeError
	if errors.As(decodeErr, &de) {
		eventID = de.EventID
	}

	c.metrics.ObserveRecord(rec.Topic, reason)
	c.logger.Warn("skipping record",
		"event_id", eventID,
		"reason", reason,
		"error", decodeErr,
		"topic", rec.Topic,
		"partition", rec.Partition,
		"offset", rec.Offset,
	)

	if c.archive == nil {
		return
	}
	key, err := c.archive.ArchiveRejected(context.WithoutCancel(ctx), archive.RejectedRecord{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Reason:    reason,
		Detail:    decodeErr.Error(),
		Value:     rec.Value,
	})
	if err != nil {
		c.logger.Warn("rejected record archive failed", "error", err, "partition", rec.Partition, "offset", rec.Offset)
		return
	}
	if key != "" {
		c.logger.Debug("rejected record archived", "s3_key", key)
	}
}

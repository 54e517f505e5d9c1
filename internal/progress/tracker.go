// Package progress records the last committed position per partition in Redis so the admin API
// can report consumer progress without talking to the broker.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/portfolio-bff/internal/eventlog"
)

// PartitionProgress is the last record committed on one partition.
type PartitionProgress struct {
	Topic           string    `json:"topic"`
	Partition       int32     `json:"partition"`
	CommittedOffset int64     `json:"committedOffset"`
	LastEventID     string    `json:"lastEventId"`
	CommittedAt     time.Time `json:"committedAt"`
}

// Tracker stores progress in a single Redis hash keyed by partition.
// A nil Tracker is valid and does nothing.
type Tracker struct {
	redis *redis.Client
	topic string
	key   string
	now   func() time.Time
}

// NewTracker returns nil when client is nil.
func NewTracker(client *redis.Client, groupID, topic string) *Tracker {
	if client == nil {
		return nil
	}
	return &Tracker{
		redis: client,
		topic: topic,
		key:   Key(groupID, topic),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Key is the Redis hash holding progress for a group and topic.
func Key(groupID, topic string) string {
	return fmt.Sprintf("portfolio:consumer:%s:%s", groupID, topic)
}

// Record stores rec as the committed position for its partition. The stored offset is the next
// offset to read, matching the broker's committed offset.
func (t *Tracker) Record(ctx context.Context, rec eventlog.Record, eventID string) error {
	if t == nil {
		return nil
	}
	data, err := json.Marshal(PartitionProgress{
		Topic:           rec.Topic,
		Partition:       rec.Partition,
		CommittedOffset: rec.Offset + 1,
		LastEventID:     eventID,
		CommittedAt:     t.now(),
	})
	if err != nil {
		return fmt.Errorf("progress: marshal: %w", err)
	}
	field := strconv.FormatInt(int64(rec.Partition), 10)
	if err := t.redis.HSet(ctx, t.key, field, data).Err(); err != nil {
		return fmt.Errorf("progress: hset %s: %w", t.key, err)
	}
	return nil
}

// Snapshot returns all tracked partitions ordered by partition number.
func (t *Tracker) Snapshot(ctx context.Context) ([]PartitionProgress, error) {
	if t == nil {
		return nil, nil
	}
	fields, err := t.redis.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("progress: hgetall %s: %w", t.key, err)
	}

	out := make([]PartitionProgress, 0, len(fields))
	for field, raw := range fields {
		var p PartitionProgress
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("progress: unmarshal partition %s: %w", field, err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Partition < out[j].Partition })
	return out, nil
}

// Topic is the topic this tracker reports on.
func (t *Tracker) Topic() string {
	if t == nil {
		return ""
	}
	return t.topic
}

// Enabled reports whether progress is backed by Redis.
func (t *Tracker) Enabled() bool {
	return t != nil && strings.TrimSpace(t.key) != ""
}

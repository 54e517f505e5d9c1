// Package eventlog abstracts the partitioned, offset-addressed log the consumer reads from.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrClosed is returned by clients used after Close.
var ErrClosed = errors.New("eventlog: client closed")

// Record is one message read from a topic partition.
type Record struct {
	Topic       string
	Partition   int32
	Offset      int64
	LeaderEpoch int32
	Key         []byte
	Value       []byte
	Timestamp   time.Time
}

// String identifies the record position for logs.
func (r Record) String() string {
	return fmt.Sprintf("%s[%d]@%d", r.Topic, r.Partition, r.Offset)
}

// Client polls records and commits consumed positions for a consumer group.
//
// Poll blocks until records are available or ctx is done; a done ctx with nothing fetched returns
// an empty batch and no error. Commit marks the record, and everything before it on the same
// partition, as consumed.
type Client interface {
	Poll(ctx context.Context, maxRecords int) ([]Record, error)
	Commit(ctx context.Context, rec Record) error
	Close() error
}

// OffsetReset selects where a group without a committed offset starts reading.
type OffsetReset string

const (
	OffsetEarliest OffsetReset = "earliest"
	OffsetLatest   OffsetReset = "latest"
)

// ParseOffsetReset accepts "earliest" or "latest" in any case.
func ParseOffsetReset(value string) (OffsetReset, error) {
	switch OffsetReset(strings.ToLower(strings.TrimSpace(value))) {
	case OffsetEarliest:
		return OffsetEarliest, nil
	case OffsetLatest:
		return OffsetLatest, nil
	default:
		return "", fmt.Errorf("eventlog: unknown offset reset %q (want earliest or latest)", value)
	}
}

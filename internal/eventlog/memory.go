package eventlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryLog is an in-process Client over a single topic. It keeps a read position and a committed
// position per partition so tests can simulate a consumer restart with Rewind.
type MemoryLog struct {
	mu         sync.Mutex
	topic      string
	partitions map[int32][]Record
	positions  map[int32]int64
	committed  map[int32]int64
	commits    []Record
	notify     chan struct{}
	closed     bool
}

func NewMemoryLog(topic string) *MemoryLog {
	return &MemoryLog{
		topic:      topic,
		partitions: make(map[int32][]Record),
		positions:  make(map[int32]int64),
		committed:  make(map[int32]int64),
		notify:     make(chan struct{}),
	}
}

// Append writes value to the end of partition and returns the stored record.
func (l *MemoryLog) Append(partition int32, key, value []byte) Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{
		Topic:     l.topic,
		Partition: partition,
		Offset:    int64(len(l.partitions[partition])),
		Key:       append([]byte(nil), key...),
		Value:     append([]byte(nil), value...),
		Timestamp: time.Now().UTC(),
	}
	l.partitions[partition] = append(l.partitions[partition], rec)
	if !l.closed {
		close(l.notify)
		l.notify = make(chan struct{})
	}
	return rec
}

func (l *MemoryLog) Poll(ctx context.Context, maxRecords int) ([]Record, error) {
	if maxRecords <= 0 {
		maxRecords = 1
	}
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return nil, ErrClosed
		}
		batch := l.collectLocked(maxRecords)
		wait := l.notify
		l.mu.Unlock()

		if len(batch) > 0 {
			return batch, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-wait:
		}
	}
}

func (l *MemoryLog) collectLocked(max int) []Record {
	ids := make([]int32, 0, len(l.partitions))
	for id := range l.partitions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var batch []Record
	for _, id := range ids {
		records := l.partitions[id]
		for l.positions[id] < int64(len(records)) && len(batch) < max {
			batch = append(batch, records[l.positions[id]])
			l.positions[id]++
		}
	}
	return batch
}

func (l *MemoryLog) Commit(_ context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if rec.Topic != l.topic {
		return fmt.Errorf("eventlog: commit %s: unknown topic", rec)
	}
	if rec.Offset < 0 || rec.Offset >= int64(len(l.partitions[rec.Partition])) {
		return fmt.Errorf("eventlog: commit %s: offset out of range", rec)
	}
	if next := rec.Offset + 1; next > l.committed[rec.Partition] {
		l.committed[rec.Partition] = next
	}
	l.commits = append(l.commits, rec)
	return nil
}

// Committed returns the next offset the group would resume from on partition.
func (l *MemoryLog) Committed(partition int32) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committed[partition]
}

// Commits returns every record passed to Commit, in call order.
func (l *MemoryLog) Commits() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.commits...)
}

// Rewind moves every read position back to the committed offset, as a restarted consumer would.
func (l *MemoryLog) Rewind() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range l.positions {
		l.positions[id] = l.committed[id]
	}
}

func (l *MemoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.notify)
	}
	return nil
}

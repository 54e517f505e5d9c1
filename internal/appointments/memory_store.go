package appointments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same upsert semantics as PostgresStore.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[string]*StoredRecord
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*StoredRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source used for received_at.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *MemoryStore) Upsert(ctx context.Context, evt AppointmentCreatedEvent) (StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return StoredRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	evt.RawPayload = append([]byte(nil), evt.RawPayload...)
	if existing, ok := s.byID[evt.EventID]; ok {
		existing.AppointmentCreatedEvent = evt
		existing.Inserted = false
		return existing.snapshot(), nil
	}

	s.nextID++
	rec := &StoredRecord{
		AppointmentCreatedEvent: evt,
		ID:                      s.nextID,
		ReceivedAt:              s.now().UTC().Truncate(time.Microsecond),
		Inserted:                true,
	}
	s.byID[evt.EventID] = rec
	return rec.snapshot(), nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.RLock()
	records := make([]StoredRecord, 0, len(s.byID))
	for _, rec := range s.byID {
		out := rec.snapshot()
		out.Inserted = false
		records = append(records, out)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if !records[i].OccurredAt.Equal(records[j].OccurredAt) {
			return records[i].OccurredAt.After(records[j].OccurredAt)
		}
		return records[i].ID > records[j].ID
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// snapshot copies the row so callers cannot mutate the stored payload.
func (r *StoredRecord) snapshot() StoredRecord {
	out := *r
	out.RawPayload = append([]byte(nil), r.RawPayload...)
	return out
}

// Len returns the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

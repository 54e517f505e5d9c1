package eventlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig configures a KafkaClient.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	OffsetReset OffsetReset
	// ClientID is reported to brokers; defaults to the group id.
	ClientID string
}

// KafkaClient implements Client on a franz-go consumer group with auto-commit disabled.
type KafkaClient struct {
	client *kgo.Client
}

// NewKafkaClient builds the group consumer. Brokers are contacted lazily; call Ping to fail fast.
func NewKafkaClient(cfg KafkaConfig) (*KafkaClient, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("eventlog: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("eventlog: topic is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("eventlog: consumer group is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = cfg.GroupID
	}

	client, err := kgo.NewClient(kafkaOptions(cfg, clientID)...)
	if err != nil {
		return nil, fmt.Errorf("eventlog: create kafka client: %w", err)
	}
	return &KafkaClient{client: client}, nil
}

func kafkaOptions(cfg KafkaConfig, clientID string) []kgo.Opt {
	start := kgo.NewOffset().AtEnd()
	if cfg.OffsetReset == OffsetEarliest {
		start = kgo.NewOffset().AtStart()
	}
	return []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(start),
		kgo.DisableAutoCommit(),
		// Partitions are not revoked while a polled batch is being stored and committed.
		kgo.BlockRebalanceOnPoll(),
	}
}

// Ping checks that at least one broker is reachable.
func (c *KafkaClient) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx); err != nil {
		return fmt.Errorf("eventlog: ping brokers: %w", err)
	}
	return nil
}

func (c *KafkaClient) Poll(ctx context.Context, maxRecords int) ([]Record, error) {
	if maxRecords <= 0 {
		maxRecords = 1
	}
	// A new poll means the previous batch is fully handled.
	c.client.AllowRebalance()
	fetches := c.client.PollRecords(ctx, maxRecords)
	if fetches.IsClientClosed() {
		return nil, ErrClosed
	}
	for _, fetchErr := range fetches.Errors() {
		if errors.Is(fetchErr.Err, context.Canceled) || errors.Is(fetchErr.Err, context.DeadlineExceeded) {
			continue
		}
		return nil, fmt.Errorf("eventlog: fetch %s[%d]: %w", fetchErr.Topic, fetchErr.Partition, fetchErr.Err)
	}
	if fetches.NumRecords() == 0 {
		return nil, nil
	}

	records := make([]Record, 0, fetches.NumRecords())
	fetches.EachRecord(func(r *kgo.Record) {
		records = append(records, Record{
			Topic:       r.Topic,
			Partition:   r.Partition,
			Offset:      r.Offset,
			LeaderEpoch: r.LeaderEpoch,
			Key:         r.Key,
			Value:       r.Value,
			Timestamp:   r.Timestamp,
		})
	})
	return records, nil
}

// Commit synchronously commits offset+1 for the record's partition.
func (c *KafkaClient) Commit(ctx context.Context, rec Record) error {
	err := c.client.CommitRecords(ctx, &kgo.Record{
		Topic:       rec.Topic,
		Partition:   rec.Partition,
		Offset:      rec.Offset,
		LeaderEpoch: rec.LeaderEpoch,
	})
	if err != nil {
		return fmt.Errorf("eventlog: commit %s: %w", rec, err)
	}
	return nil
}

// Close leaves the group and releases connections.
func (c *KafkaClient) Close() error {
	c.client.AllowRebalance()
	c.client.Close()
	return nil
}

// Package archive keeps a copy of log records the consumer could not decode so operators can
// reconcile them later.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// RejectedRecord is a skipped log record plus the reason it was skipped.
type RejectedRecord struct {
	Topic      string    `json:"topic"`
	Partition  int32     `json:"partition"`
	Offset     int64     `json:"offset"`
	Reason     string    `json:"reason"`
	Detail     string    `json:"detail,omitempty"`
	Value      []byte    `json:"value"`
	ValueText  string    `json:"value_text,omitempty"`
	RejectedAt time.Time `json:"rejected_at"`
}

// ManifestEntry is one line of the monthly rejection manifest.
type ManifestEntry struct {
	S3Key      string `json:"s3_key"`
	Topic      string `json:"topic"`
	Partition  int32  `json:"partition"`
	Offset     int64  `json:"offset"`
	Reason     string `json:"reason"`
	RejectedAt string `json:"rejected_at"`
}

// Store archives rejected records to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		bucket:   strings.TrimSpace(bucket),
		s3Client: s3Client,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// RejectedKey depends only on the record position, so a redelivered bad record overwrites its
// earlier copy.
func RejectedKey(topic string, partition int32, offset int64) string {
	return fmt.Sprintf("rejected-records/v1/%s/p%d-o%d.json", topic, partition, offset)
}

// ArchiveRejected writes the record as JSON and appends it to the monthly manifest.
func (s *Store) ArchiveRejected(ctx context.Context, record RejectedRecord) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if record.RejectedAt.IsZero() {
		record.RejectedAt = s.now()
	}
	if record.ValueText == "" && utf8.Valid(record.Value) {
		record.ValueText = string(record.Value)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("archive: marshal record: %w", err)
	}

	key := RejectedKey(record.Topic, record.Partition, record.Offset)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("archived rejected record to S3",
		"s3_key", key,
		"topic", record.Topic,
		"partition", record.Partition,
		"offset", record.Offset,
		"reason", record.Reason,
	)

	entry := ManifestEntry{
		S3Key:      key,
		Topic:      record.Topic,
		Partition:  record.Partition,
		Offset:     record.Offset,
		Reason:     record.Reason,
		RejectedAt: record.RejectedAt.Format(time.RFC3339),
	}
	if err := s.AppendManifest(ctx, entry); err != nil {
		// The record itself is archived; a missing manifest line only affects listing.
		s.logger.Warn("failed to append rejection manifest", "error", err, "s3_key", key)
	}
	return key, nil
}

// AppendManifest appends a JSONL line to the monthly manifest file unless that month already
// lists entry.S3Key. Uses read-modify-write since S3 doesn't support append; the single consumer
// is the only writer.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := s.now()
	manifestKey := fmt.Sprintf("rejected-records/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(getResp.Body)
		getResp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	if manifestHasKey(existing, entry.S3Key) {
		s.logger.Debug("manifest already lists key", "key", manifestKey, "s3_key", entry.S3Key)
		return nil
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func manifestHasKey(manifest []byte, key string) bool {
	for _, line := range bytes.Split(manifest, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var entry ManifestEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.S3Key == key {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}

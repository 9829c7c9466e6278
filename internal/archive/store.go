// Package archive keeps a copy of every raw adapter fetch in S3 so a sync run
// can be inspected or replayed later.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/sameday-sync/internal/platform"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ErrNotFound is returned by Load when the key does not exist.
var ErrNotFound = errors.New("archive: object not found")

// FetchRecord is one adapter fetch as archived.
type FetchRecord struct {
	Version      string                    `json:"version"`
	RunID        string                    `json:"run_id"`
	ProviderID   string                    `json:"provider_id"`
	Platform     string                    `json:"platform"`
	SyncType     string                    `json:"sync_type"`
	WindowStart  time.Time                 `json:"window_start"`
	WindowEnd    time.Time                 `json:"window_end"`
	UpdatedSince *time.Time                `json:"updated_since,omitempty"`
	FetchedAt    time.Time                 `json:"fetched_at"`
	Count        int                       `json:"count"`
	Appointments []platform.RawAppointment `json:"appointments"`
}

// ManifestEntry is one line in the monthly JSONL manifest.
type ManifestEntry struct {
	RunID      string `json:"run_id"`
	ProviderID string `json:"provider_id"`
	Platform   string `json:"platform"`
	S3Key      string `json:"s3_key"`
	Count      int    `json:"count"`
	FetchedAt  string `json:"fetched_at"`
}

const recordVersion = "1.0"

// Store writes fetch records to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// Key is the object key a record is stored under.
func Key(record *FetchRecord) string {
	t := record.FetchedAt.UTC()
	return fmt.Sprintf("fetches/v1/%s/%s/%d/%02d/%02d/%s.json",
		record.Platform, record.ProviderID, t.Year(), t.Month(), t.Day(), record.RunID)
}

// ArchiveFetch writes record as JSON and appends it to the manifest. It
// returns the object key, or "" when archival is disabled.
func (s *Store) ArchiveFetch(ctx context.Context, record *FetchRecord) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if record == nil {
		return "", errors.New("archive: record required")
	}
	if record.FetchedAt.IsZero() {
		record.FetchedAt = time.Now().UTC()
	}
	if record.Version == "" {
		record.Version = recordVersion
	}
	record.Count = len(record.Appointments)

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("archive: marshal record: %w", err)
	}

	key := Key(record)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("archived fetch to S3",
		"run_id", record.RunID,
		"provider_id", record.ProviderID,
		"platform", record.Platform,
		"s3_key", key,
		"count", record.Count,
	)

	entry := ManifestEntry{
		RunID:      record.RunID,
		ProviderID: record.ProviderID,
		Platform:   record.Platform,
		S3Key:      key,
		Count:      record.Count,
		FetchedAt:  record.FetchedAt.UTC().Format(time.RFC3339),
	}
	if err := s.AppendManifest(ctx, record.FetchedAt, entry); err != nil {
		// the record itself is already stored
		s.logger.Warn("failed to append manifest", "error", err, "run_id", record.RunID)
	}
	return key, nil
}

// Load reads a previously archived record.
func (s *Store) Load(ctx context.Context, key string) (*FetchRecord, error) {
	if !s.Enabled() {
		return nil, ErrNotFound
	}
	data, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	var record FetchRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", key, err)
	}
	return &record, nil
}

// AppendManifest appends a JSONL line to the monthly manifest file.
// S3 has no append, so this is a read-modify-write.
func (s *Store) AppendManifest(ctx context.Context, at time.Time, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	at = at.UTC()
	manifestKey := fmt.Sprintf("fetches/v1/manifests/%d-%02d.jsonl", at.Year(), at.Month())

	existing, err := s.get(ctx, manifestKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
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

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("archive: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	return data, nil
}

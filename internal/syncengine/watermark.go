package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	watermarkPrefix      = "sync:watermark:"
	maxWatermarkAttempts = 25
)

// WatermarkStore keeps per-pair sync watermarks in Redis.
type WatermarkStore struct {
	client *redis.Client
}

var _ Watermarks = (*WatermarkStore)(nil)

// NewWatermarkStore creates a Redis-backed watermark store.
func NewWatermarkStore(client *redis.Client) *WatermarkStore {
	if client == nil {
		panic("syncengine: redis client cannot be nil")
	}
	return &WatermarkStore{client: client}
}

func watermarkKey(providerID, platformName string) string {
	return fmt.Sprintf("%s%s:%s", watermarkPrefix, providerID, platformName)
}

// Get returns the stored watermark and whether one exists.
func (s *WatermarkStore) Get(ctx context.Context, providerID, platformName string) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, watermarkKey(providerID, platformName)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("syncengine: get watermark: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("syncengine: parse watermark %q: %w", raw, err)
	}
	return at, true, nil
}

// Set stores at as the watermark. Older values never replace newer ones: the
// compare and the write run in one WATCH/MULTI transaction, retried when a
// concurrent writer touches the key first.
func (s *WatermarkStore) Set(ctx context.Context, providerID, platformName string, at time.Time) error {
	key := watermarkKey(providerID, platformName)
	value := at.UTC().Format(time.RFC3339Nano)

	advance := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			// An unparseable value is overwritten.
			if current, perr := time.Parse(time.RFC3339Nano, raw); perr == nil && !at.After(current) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatermarkAttempts; attempt++ {
		err := s.client.Watch(ctx, advance, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("syncengine: set watermark: %w", err)
		}
		return nil
	}
	return fmt.Errorf("syncengine: set watermark: %w", redis.TxFailedErr)
}

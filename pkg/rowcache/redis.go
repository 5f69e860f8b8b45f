package rowcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/azuminxx/simple-redger-sub000/pkg/metrics"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
)

// Redis keeps the row cache in one hash per store so several API replicas share it.
type Redis struct {
	rdb    *redis.Client
	prefix string
	logger ectologger.Logger
}

// NewRedis creates a Redis-backed row cache
func NewRedis(rdb *redis.Client, prefix string, logger ectologger.Logger) *Redis {
	if prefix == "" {
		prefix = "ledgerlink"
	}
	return &Redis{rdb: rdb, prefix: prefix, logger: logger}
}

func (r *Redis) hashKey(store models.Store) string {
	return fmt.Sprintf("%s:rows:%s", r.prefix, store)
}

func (r *Redis) Put(ctx context.Context, rows []models.RawRow) error {
	pipe := r.rdb.Pipeline()
	queued := 0
	for _, row := range rows {
		key, ok := KeyOf(row)
		if !ok {
			continue
		}
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to encode row %s: %w", row.Ref(), err)
		}
		pipe.HSet(ctx, r.hashKey(key.Store), key.PK, data)
		queued++
	}
	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to write rows to cache")
		return fmt.Errorf("failed to write rows to cache: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, store models.Store, pk string) (*models.RawRow, bool, error) {
	data, err := r.rdb.HGet(ctx, r.hashKey(store), pk).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheLookup(false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached row: %w", err)
	}

	var row models.RawRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached row: %w", err)
	}
	metrics.RecordCacheLookup(true)
	return &row, true, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	hashKeys := make([]string, 0, len(models.Stores))
	for _, store := range models.Stores {
		hashKeys = append(hashKeys, r.hashKey(store))
	}
	if err := r.rdb.Del(ctx, hashKeys...).Err(); err != nil {
		return fmt.Errorf("failed to clear row cache: %w", err)
	}
	return nil
}

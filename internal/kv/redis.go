// Package kv stores the content snapshot and the visitor log in Redis.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"folio/internal/content"
	"folio/internal/visit"
)

const (
	KeyContent = "portfolio_content"
	KeyVisits  = "visitor_logs"
)

// RedisStore keeps the snapshot as one JSON value and the visitor log as a
// capped list, newest first.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

// LoadSnapshot reports false when nothing has been saved yet.
func (s *RedisStore) LoadSnapshot(ctx context.Context) (content.Snapshot, bool, error) {
	raw, err := s.client.Get(ctx, s.key(KeyContent)).Bytes()
	if errors.Is(err, redis.Nil) {
		return content.EmptySnapshot(), false, nil
	}
	if err != nil {
		return content.Snapshot{}, false, fmt.Errorf("load content: %w", err)
	}
	var snap content.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return content.Snapshot{}, false, fmt.Errorf("decode content: %w", err)
	}
	return snap.Normalize(), true, nil
}

func (s *RedisStore) SaveSnapshot(ctx context.Context, snap content.Snapshot) error {
	data, err := json.Marshal(snap.Normalize())
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	if err := s.client.Set(ctx, s.key(KeyContent), data, 0).Err(); err != nil {
		return fmt.Errorf("save content: %w", err)
	}
	return nil
}

// AppendVisit pushes entry to the head of the log and trims it to
// visit.MaxEntries.
func (s *RedisStore) AppendVisit(ctx context.Context, entry visit.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode visit: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key(KeyVisits), data)
	pipe.LTrim(ctx, s.key(KeyVisits), 0, visit.MaxEntries-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append visit: %w", err)
	}
	return nil
}

// ListVisits returns up to limit entries, newest first. Entries that no
// longer decode are skipped.
func (s *RedisStore) ListVisits(ctx context.Context, limit int) ([]visit.Entry, error) {
	if limit <= 0 {
		limit = visit.DefaultLimit
	}
	raw, err := s.client.LRange(ctx, s.key(KeyVisits), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	entries := make([]visit.Entry, 0, len(raw))
	for _, item := range raw {
		var entry visit.Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

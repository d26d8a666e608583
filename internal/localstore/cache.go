package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// DefaultMaxBytes is the largest serialized document Cache will write.
const DefaultMaxBytes = 4 * 1024 * 1024

var ErrTooLarge = errors.New("data too large to store locally")

// Cache reads and writes JSON documents over a Backend. Corrupted entries
// are deleted on read; oversized writes are refused whole.
type Cache struct {
	backend  Backend
	maxBytes int
	logger   *zap.Logger
}

func NewCache(backend Backend, maxBytes int, logger *zap.Logger) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{backend: backend, maxBytes: maxBytes, logger: logger}
}

// Load decodes key into target. It reports false when the key is absent,
// unreadable or corrupted; corrupted entries are removed.
func (c *Cache) Load(ctx context.Context, key string, target any) bool {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Error("local storage read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok || len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, target); err != nil {
		c.logger.Warn("clearing corrupted local entry", zap.String("key", key), zap.Error(err))
		if err := c.backend.Delete(ctx, key); err != nil {
			c.logger.Error("failed to remove corrupted entry", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return true
}

// Save encodes value under key.
func (c *Cache) Save(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("local storage serialization failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if len(data) > c.maxBytes {
		c.logger.Warn("local storage write refused",
			zap.String("key", key), zap.Int("bytes", len(data)), zap.Int("max_bytes", c.maxBytes))
		return ErrTooLarge
	}
	if err := c.backend.Set(ctx, key, data); err != nil {
		c.logger.Error("local storage write failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (c *Cache) Remove(ctx context.Context, key string) error {
	if err := c.backend.Delete(ctx, key); err != nil {
		c.logger.Error("local storage delete failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

package positions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"sniper-trading-bot/internal/logging"
)

const (
	positionKeyPrefix = "sniper:position"
	positionSetKey    = "sniper:positions:list"

	// Positions close within hours; the long TTL is for crash recovery
	positionTTL = 7 * 24 * time.Hour

	redisOpTimeout = 2 * time.Second
)

// RedisStore persists position state so strategy latches (pt1_taken, stop
// levels) survive restarts. When Redis is down it degrades to an in-memory
// map and keeps trading; writes are replayed when the connection recovers.
type RedisStore struct {
	client    *redis.Client
	fallback  map[string]PositionUpdateData
	mu        sync.RWMutex
	available atomic.Bool
	logger    *logging.Logger
}

// NewRedisStore creates a store. A nil client means memory-only mode.
func NewRedisStore(client *redis.Client) *RedisStore {
	s := &RedisStore{
		client:   client,
		fallback: make(map[string]PositionUpdateData),
		logger:   logging.Default().WithComponent("position-store"),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			s.logger.Warn("Redis unavailable at startup, using in-memory fallback", "error", err.Error())
		} else {
			s.available.Store(true)
		}
	}
	return s
}

func positionKey(symbol string) string {
	return fmt.Sprintf("%s:%s", positionKeyPrefix, symbol)
}

// Save writes position state; Redis failures fall back to memory silently
func (s *RedisStore) Save(pos *PositionUpdateData) {
	if pos == nil {
		return
	}

	s.mu.Lock()
	s.fallback[pos.Symbol] = *pos
	s.mu.Unlock()

	if s.client == nil || !s.available.Load() {
		return
	}

	data, err := json.Marshal(pos)
	if err != nil {
		s.logger.Error("Failed to marshal position", "symbol", pos.Symbol, "error", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, positionKey(pos.Symbol), data, positionTTL)
	pipe.SAdd(ctx, positionSetKey, pos.Symbol)
	pipe.Expire(ctx, positionSetKey, positionTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("Redis write failed, in-memory copy kept", "symbol", pos.Symbol, "error", err.Error())
		s.available.Store(false)
	}
}

// Delete removes a position from both tiers
func (s *RedisStore) Delete(symbol string) {
	s.mu.Lock()
	delete(s.fallback, symbol)
	s.mu.Unlock()

	if s.client == nil || !s.available.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, positionKey(symbol))
	pipe.SRem(ctx, positionSetKey, symbol)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("Redis delete failed", "symbol", symbol, "error", err.Error())
		s.available.Store(false)
	}
}

// LoadAll returns all persisted positions, Redis first then fallback
func (s *RedisStore) LoadAll() (map[string]PositionUpdateData, error) {
	if s.client != nil && s.available.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout*2)
		defer cancel()

		symbols, err := s.client.SMembers(ctx, positionSetKey).Result()
		if err != nil && err != redis.Nil {
			s.available.Store(false)
			return s.fallbackCopy(), nil
		}

		out := make(map[string]PositionUpdateData, len(symbols))
		for _, symbol := range symbols {
			data, err := s.client.Get(ctx, positionKey(symbol)).Result()
			if err != nil {
				continue
			}
			var pos PositionUpdateData
			if err := json.Unmarshal([]byte(data), &pos); err != nil {
				s.logger.Warn("Skipping corrupt position record", "symbol", symbol)
				continue
			}
			out[symbol] = pos
		}
		return out, nil
	}

	return s.fallbackCopy(), nil
}

func (s *RedisStore) fallbackCopy() map[string]PositionUpdateData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]PositionUpdateData, len(s.fallback))
	for k, v := range s.fallback {
		out[k] = v
	}
	return out
}

// CheckConnection pings Redis and resyncs the fallback on recovery
func (s *RedisStore) CheckConnection(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("no redis client configured")
	}

	if err := s.client.Ping(ctx).Err(); err != nil {
		s.available.Store(false)
		return fmt.Errorf("redis ping failed: %w", err)
	}

	wasDown := !s.available.Load()
	s.available.Store(true)

	if wasDown {
		s.logger.Info("Redis connection recovered, resyncing positions")
		for _, pos := range s.fallbackCopy() {
			p := pos
			s.Save(&p)
		}
	}
	return nil
}

// IsAvailable reports current Redis availability
func (s *RedisStore) IsAvailable() bool {
	return s.available.Load()
}

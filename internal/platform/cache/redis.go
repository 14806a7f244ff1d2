package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"tle_zone_contest/internal/domain/model"
	"tle_zone_contest/internal/platform/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RankingCache stores final ranking snapshots of ended contests. An entry is
// identified by contest version and by how many events the table was built from,
// so a verdict graded after the end lands under a new key.
type RankingCache interface {
	GetFinal(ctx context.Context, contestID string, version int64, eventCount int) (*model.RankingSnapshot, error)
	PutFinal(ctx context.Context, snapshot *model.RankingSnapshot) error
}

func Connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
	return rdb, nil
}

type redisRankingCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRankingCache keys entries as prefix + contestID + ":" + version + ":" + eventCount.
// Superseded entries are left to expire.
func NewRedisRankingCache(rdb *redis.Client, prefix string, ttl time.Duration) RankingCache {
	return &redisRankingCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *redisRankingCache) key(contestID string, version int64, eventCount int) string {
	return fmt.Sprintf("%s%s:%d:%d", c.prefix, contestID, version, eventCount)
}

// GetFinal returns (nil, nil) on a cache miss.
func (c *redisRankingCache) GetFinal(ctx context.Context, contestID string, version int64, eventCount int) (*model.RankingSnapshot, error) {
	raw, err := c.rdb.Get(ctx, c.key(contestID, version, eventCount)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redisRankingCache.GetFinal: %w", err)
	}

	var snapshot model.RankingSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("redisRankingCache.GetFinal: decoding snapshot: %w", err)
	}
	return &snapshot, nil
}

// PutFinal writes only if no entry exists. Compute is deterministic, so an existing
// entry under the same key holds the same table.
func (c *redisRankingCache) PutFinal(ctx context.Context, snapshot *model.RankingSnapshot) error {
	if snapshot == nil || !snapshot.Final {
		return fmt.Errorf("redisRankingCache.PutFinal: snapshot is not final")
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("redisRankingCache.PutFinal: encoding snapshot: %w", err)
	}
	if err := c.rdb.SetNX(ctx, c.key(snapshot.ContestID, snapshot.ContestVersion, snapshot.EventCount), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redisRankingCache.PutFinal: %w", err)
	}
	return nil
}

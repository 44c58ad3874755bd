package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisVersionKey   = "rbac:caps:version"
	redisEpochPrefix  = "rbac:caps:epoch:"
	redisEntryPrefix  = "rbac:caps:entry:"
	CatalogChannel    = "rbac.catalog"
	minEpochRetention = time.Hour
)

// RedisCache is a Cache shared by every process talking to the same Redis.
type RedisCache struct {
	client *redis.Client
	maxTTL time.Duration
}

// NewRedisCache builds a Redis backed cache. maxTTL bounds how long epoch
// counters are retained and must be at least the TTL passed to Set.
func NewRedisCache(client *redis.Client, maxTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, maxTTL: maxTTL}
}

// Key implements Cache.
func (c *RedisCache) Key(ctx context.Context, revision string, userID int64) (string, error) {
	vals, err := c.client.MGet(ctx, redisVersionKey, epochKey(userID)).Result()
	if err != nil {
		return "", err
	}
	version := parseCounter(vals[0])
	epoch := parseCounter(vals[1])
	return fmt.Sprintf("%s%d:%s:%d:%d", redisEntryPrefix, version, revision, userID, epoch), nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (CachedCapabilities, bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedCapabilities{}, false, nil
	}
	if err != nil {
		return CachedCapabilities{}, false, err
	}
	var value CachedCapabilities
	if err := json.Unmarshal(payload, &value); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return CachedCapabilities{}, false, nil
	}
	return value, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value CachedCapabilities, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

// Invalidate implements Cache. The epoch key outlives every entry written
// under the previous epoch.
func (c *RedisCache) Invalidate(ctx context.Context, userID int64) error {
	retention := 2 * c.maxTTL
	if retention < minEpochRetention {
		retention = minEpochRetention
	}
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, epochKey(userID))
	pipe.Expire(ctx, epochKey(userID), retention)
	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateAll implements Cache and notifies listeners on CatalogChannel.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	ver, err := c.client.Incr(ctx, redisVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, CatalogChannel, strconv.FormatInt(ver, 10)).Err()
}

// Listen calls onChange for every catalog invalidation published by any
// process until ctx is done.
func (c *RedisCache) Listen(ctx context.Context, logger *slog.Logger, onChange func(context.Context)) {
	if logger == nil {
		logger = slog.Default()
	}
	pubsub := c.client.Subscribe(ctx, CatalogChannel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				logger.Debug("rbac catalog changed", slog.String("version", msg.Payload))
				onChange(ctx)
			}
		}
	}()
}

func epochKey(userID int64) string {
	return redisEpochPrefix + strconv.FormatInt(userID, 10)
}

func parseCounter(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var _ Cache = (*RedisCache)(nil)

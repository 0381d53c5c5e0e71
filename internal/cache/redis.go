// Package cache holds VersionCache implementations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mailtpl/internal/models"
	"mailtpl/internal/ports"
)

const keyPrefix = "mailtpl:tpl:"

// ConnectRedis opens a client and verifies it answers a PING.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisVersionCache stores version lists keyed by a per-template generation
// token. Invalidate replaces the token with a fresh random one, so entries
// written under an older token are never read again and expire on their TTL.
// Tokens are never reused: a generation key lost to eviction yields a new
// token, not an old one.
type RedisVersionCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

var _ ports.VersionCache = (*RedisVersionCache)(nil)

func NewRedisVersionCache(rdb redis.Cmdable, ttl time.Duration) *RedisVersionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisVersionCache{rdb: rdb, ttl: ttl}
}

func genKey(templateID string) string {
	return keyPrefix + templateID + ":gen"
}

func listKey(templateID, gen string) string {
	return keyPrefix + templateID + ":versions:" + gen
}

// generation returns the current token for templateID, creating one when
// none exists. fresh is true when the token was just created.
func (c *RedisVersionCache) generation(ctx context.Context, templateID string) (gen string, fresh bool, err error) {
	key := genKey(templateID)
	gen, err = c.rdb.Get(ctx, key).Result()
	if err == nil {
		return gen, false, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", false, fmt.Errorf("read generation: %w", err)
	}

	candidate := uuid.NewString()
	created, err := c.rdb.SetNX(ctx, key, candidate, 0).Result()
	if err != nil {
		return "", false, fmt.Errorf("create generation: %w", err)
	}
	if created {
		return candidate, true, nil
	}
	// Another reader created it first.
	gen, err = c.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", false, fmt.Errorf("read generation: %w", err)
	}
	return gen, false, nil
}

func (c *RedisVersionCache) Lookup(ctx context.Context, templateID string) ([]models.TemplateVersion, string, bool, error) {
	gen, fresh, err := c.generation(ctx, templateID)
	if err != nil {
		return nil, "", false, err
	}
	if fresh {
		return nil, gen, false, nil
	}

	data, err := c.rdb.Get(ctx, listKey(templateID, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, fmt.Errorf("read versions: %w", err)
	}

	var versions []models.TemplateVersion
	if err := json.Unmarshal(data, &versions); err != nil {
		// Treat a corrupt entry as a miss; the next Store overwrites it.
		return nil, gen, false, nil
	}
	return versions, gen, true, nil
}

func (c *RedisVersionCache) Store(ctx context.Context, templateID, token string, versions []models.TemplateVersion) error {
	if token == "" {
		return errors.New("empty cache token")
	}
	data, err := json.Marshal(versions)
	if err != nil {
		return fmt.Errorf("encode versions: %w", err)
	}
	if err := c.rdb.Set(ctx, listKey(templateID, token), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("write versions: %w", err)
	}
	return nil
}

func (c *RedisVersionCache) Invalidate(ctx context.Context, templateID string) error {
	if err := c.rdb.Set(ctx, genKey(templateID), uuid.NewString(), 0).Err(); err != nil {
		return fmt.Errorf("replace generation: %w", err)
	}
	return nil
}

// Noop is used when no Redis address is configured.
type Noop struct{}

var _ ports.VersionCache = Noop{}

func (Noop) Lookup(context.Context, string) ([]models.TemplateVersion, string, bool, error) {
	return nil, "", false, nil
}

func (Noop) Store(context.Context, string, string, []models.TemplateVersion) error { return nil }

func (Noop) Invalidate(context.Context, string) error { return nil }

// Package cache is a Redis-backed read cache for notes and the tag list.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/tagnotes/internal/notes"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long an entry may outlive a missed invalidation.
	DefaultTTL = 5 * time.Minute

	// DefaultPrefix namespaces all keys written by this package.
	DefaultPrefix = "tagnotes:"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// RedisCache implements notes.Cache on Redis.
// Notes are stored as JSON under "<prefix>note:<id>", the tag list under
// "<prefix>tags". Each entry has a generation counter under "<prefix>gen:..."
// that Invalidate bumps; a fill is dropped when the counter moved after the
// filler read it, so a slow reader cannot put back what a writer removed.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ notes.Cache = (*RedisCache)(nil)

// fillScript sets KEYS[1] only while KEYS[2] still holds generation ARGV[1].
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if not gen then gen = '0' end
if gen ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DisableIdentity: true,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.Prefix, cfg.TTL), nil
}

// New wraps an existing client. Empty prefix and zero ttl take defaults.
func New(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// NoteKey returns the cache key for note id.
func (c *RedisCache) NoteKey(id int64) string {
	return c.prefix + "note:" + strconv.FormatInt(id, 10)
}

// TagsKey returns the cache key for the tag list.
func (c *RedisCache) TagsKey() string {
	return c.prefix + "tags"
}

func (c *RedisCache) genKey(key string) string {
	return c.prefix + "gen:" + strings.TrimPrefix(key, c.prefix)
}

// genTTL outlives any entry by a wide margin. A filler slower than this
// could store a stale entry for one ttl.
func (c *RedisCache) genTTL() time.Duration {
	return 2 * c.ttl
}

func (c *RedisCache) GetNote(ctx context.Context, id int64) (*notes.Note, int64, bool, error) {
	var note notes.Note
	gen, hit, err := c.getJSON(ctx, c.NoteKey(id), &note)
	if err != nil || !hit {
		return nil, gen, false, err
	}
	return &note, gen, true, nil
}

func (c *RedisCache) SetNote(ctx context.Context, note *notes.Note, gen int64) error {
	return c.fill(ctx, c.NoteKey(note.ID), note, gen)
}

func (c *RedisCache) GetTags(ctx context.Context) ([]string, int64, bool, error) {
	var tags []string
	gen, hit, err := c.getJSON(ctx, c.TagsKey(), &tags)
	if err != nil || !hit {
		return nil, gen, false, err
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, gen, true, nil
}

func (c *RedisCache) SetTags(ctx context.Context, tags []string, gen int64) error {
	return c.fill(ctx, c.TagsKey(), tags, gen)
}

// Invalidate removes the note entry and the tag list and bumps both
// generations in one transaction.
func (c *RedisCache) Invalidate(ctx context.Context, id int64) error {
	noteGen, tagsGen := c.genKey(c.NoteKey(id)), c.genKey(c.TagsKey())
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, c.NoteKey(id), c.TagsKey())
		p.Incr(ctx, noteGen)
		p.PExpire(ctx, noteGen, c.genTTL())
		p.Incr(ctx, tagsGen)
		p.PExpire(ctx, tagsGen, c.genTTL())
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate note %d: %w", id, err)
	}
	return nil
}

// Ping checks if Redis is available
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// getJSON reads key and its generation in one round trip. A corrupt entry
// is dropped and reported as a miss.
func (c *RedisCache) getJSON(ctx context.Context, key string, dest any) (gen int64, hit bool, err error) {
	vals, err := c.client.MGet(ctx, key, c.genKey(key)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if g, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(g, 10, 64); err != nil {
			return 0, false, fmt.Errorf("cache generation %s: %w", key, err)
		}
	}
	raw, ok := vals[0].(string)
	if !ok {
		return gen, false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return gen, false, nil
	}
	return gen, true, nil
}

func (c *RedisCache) fill(ctx context.Context, key string, value any, gen int64) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	err = fillScript.Run(ctx, c.client, []string{key, c.genKey(key)},
		strconv.FormatInt(gen, 10), b, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

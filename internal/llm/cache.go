package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores completion texts by key.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache is a Cache backed by Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to the Redis server at url (redis://host:port/db).
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client, prefix: "examgen:completion:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachingProvider serves Cacheable requests from a Cache.
type CachingProvider struct {
	inner Provider
	cache Cache
	ttl   time.Duration
}

// WithCache wraps a Provider with a completion cache.
func WithCache(p Provider, c Cache, ttl time.Duration) Provider {
	return &CachingProvider{inner: p, cache: c, ttl: ttl}
}

func (c *CachingProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if !req.Cacheable || req.Image != nil {
		return c.inner.Complete(ctx, req)
	}

	key := cacheKey(req)
	text, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "completion cache read failed", "error", err)
	}
	if ok {
		if rejectErr := accept(req, text); rejectErr == nil {
			slog.DebugContext(ctx, "completion cache hit", "purpose", req.Purpose)
			return &Response{Text: text, Model: req.Model, Cached: true}, nil
		}
		slog.DebugContext(ctx, "ignoring rejected cache entry", "purpose", req.Purpose)
	}

	resp, err := c.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if rejectErr := accept(req, resp.Text); rejectErr != nil {
		slog.DebugContext(ctx, "completion not cached", "purpose", req.Purpose, "reason", rejectErr)
		return resp, nil
	}
	if err := c.cache.Set(ctx, key, resp.Text, c.ttl); err != nil {
		slog.WarnContext(ctx, "completion cache write failed", "error", err)
	}
	return resp, nil
}

func (c *CachingProvider) Name() string { return c.inner.Name() }

func accept(req Request, text string) error {
	if req.Accept == nil {
		return nil
	}
	return req.Accept(text)
}

func cacheKey(req Request) string {
	h := sha256.New()
	for _, part := range []string{
		req.Model,
		req.System,
		req.Prompt,
		strconv.FormatFloat(req.Temperature, 'g', -1, 64),
		strconv.Itoa(req.MaxTokens),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

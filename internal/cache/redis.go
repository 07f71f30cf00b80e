package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var Client *redis.Client

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
	parseRedisURL = redis.ParseURL
)

func InitRedis(ctx context.Context) {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		addr = "localhost:6379"
	}

	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := parseRedisURL(addr)
		if err != nil {
			log.Fatalf("failed to parse REDIS_URL: %v", err)
		}
		opts = parsed
	}

	Client = newRedisClient(opts)
	if err := pingRedis(ctx, Client); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")
}

// RedisClient is the slice of go-redis used by the backend.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisBackend persists each store as one Redis hash, keyed
// mintwatch:cache:<name> with one field per cache key. An alternative to
// FileBackend for deployments that already run Redis.
type RedisBackend struct {
	client  RedisClient
	timeout time.Duration
}

func NewRedisBackend(client RedisClient) *RedisBackend {
	return &RedisBackend{client: client, timeout: 5 * time.Second}
}

func (b *RedisBackend) key(name string) string {
	return "mintwatch:cache:" + name
}

func (b *RedisBackend) Load(name string) (map[string]Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	fields, err := b.client.HGetAll(ctx, b.key(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read %s: %w", b.key(name), err)
	}

	entries := make(map[string]Entry, len(fields))
	for k, v := range fields {
		var entry Entry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, fmt.Errorf("decode redis cache %s field %s: %w", b.key(name), k, err)
		}
		entries[k] = entry
	}
	return entries, nil
}

// Save rewrites the hash from scratch so fields pruned from the store do not
// linger in Redis.
func (b *RedisBackend) Save(name string, entries map[string]Entry) error {
	values := make([]interface{}, 0, 2*len(entries))
	for k, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode cache %s entry %s: %w", name, k, err)
		}
		values = append(values, k, data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.client.Del(ctx, b.key(name)).Err(); err != nil {
		return fmt.Errorf("redis clear %s: %w", b.key(name), err)
	}
	if len(values) == 0 {
		return nil
	}
	if err := b.client.HSet(ctx, b.key(name), values...).Err(); err != nil {
		return fmt.Errorf("redis write %s: %w", b.key(name), err)
	}
	return nil
}

package flags

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Provider answers feature-flag lookups. Lookups are read once per engine
// invocation; failures default to disabled.
type Provider interface {
	IsEnabled(ctx context.Context, name string) bool
}

// RedisProvider reads flags from redis keys "flag:<name>". Any value other
// than "1"/"true" (or a missing key, or an error) means disabled.
type RedisProvider struct {
	c *redis.Client
}

func NewRedis(addr string) *RedisProvider {
	return &RedisProvider{
		c: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (p *RedisProvider) IsEnabled(ctx context.Context, name string) bool {
	val, err := p.c.Get(ctx, "flag:"+name).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		slog.Warn("flag lookup failed", "flag", name, "error", err.Error())
		return false
	}
	return val == "1" || val == "true"
}

// Static is a fixed in-memory provider for tests and local runs.
type Static map[string]bool

func (s Static) IsEnabled(_ context.Context, name string) bool {
	return s[name]
}

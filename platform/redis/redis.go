// Package redis provides Redis connection infrastructure.
// This is part of the platform layer and contains no business logic.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"conversa_backend/platform/config"

	"github.com/redis/go-redis/v9"
)

// NewClient creates a Redis client from the configured URL and verifies
// connectivity with a short ping.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	if opt.TLSConfig != nil && cfg.GetRedisTLSInsecure() {
		opt.TLSConfig.InsecureSkipVerify = true
	}

	// Conservative retry settings for a shared connection pool
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return client, nil
}

// TLSConfigFromURL extracts a TLS config for clients that take raw
// connection options (such as the task queue), honoring the insecure flag.
func TLSConfigFromURL(redisURL string, insecure bool) (*tls.Config, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if insecure {
			clone.InsecureSkipVerify = true
		}
		return clone, nil
	}
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}, nil
	}
	return nil, nil
}

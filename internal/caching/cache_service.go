package caching

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type CacheService interface {
	// Webhook event dedupe fast path. Best-effort: on a cache miss the
	// durable check in Postgres decides.
	SeenWebhookEvent(ctx context.Context, provider, eventID string) (bool, error)
	MarkWebhookEventSeen(ctx context.Context, provider, eventID string, ttl time.Duration) error

	// Generic string operations
	SetString(ctx context.Context, key string, value string, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis://host:port and rediss://host:port forms as well
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	}

	return &redisCacheService{client: client}
}

func NewRedisCacheServiceWithClient(client *redis.Client) CacheService {
	return &redisCacheService{client: client}
}

func webhookEventKey(provider, eventID string) string {
	return fmt.Sprintf("subledger:webhook:seen:%s:%s", provider, eventID)
}

func (r *redisCacheService) SeenWebhookEvent(ctx context.Context, provider, eventID string) (bool, error) {
	n, err := r.client.Exists(ctx, webhookEventKey(provider, eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *redisCacheService) MarkWebhookEventSeen(ctx context.Context, provider, eventID string, ttl time.Duration) error {
	return r.client.Set(ctx, webhookEventKey(provider, eventID), "1", ttl).Err()
}

func (r *redisCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCacheService) GetString(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("key not found: %s", key)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *redisCacheService) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

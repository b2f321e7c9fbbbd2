package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"smartops-chat/internal/domain"
)

// ResponseCache guarda respuestas de IA por response_id delante del store.
// Nunca es la fuente de verdad: un miss siempre cae al repositorio.
type ResponseCache interface {
	Get(ctx context.Context, responseID string) (domain.Message, bool, error)
	Put(ctx context.Context, message domain.Message) error
}

type lruResponseCache struct {
	items *lru.Cache[string, domain.Message]
}

// NewLRUResponseCache crea un cache en memoria acotado a size entradas.
func NewLRUResponseCache(size int) ResponseCache {
	if size <= 0 {
		size = 256
	}
	items, err := lru.New[string, domain.Message](size)
	if err != nil {
		// solo falla con size <= 0
		panic(err)
	}
	return &lruResponseCache{items: items}
}

func (c *lruResponseCache) Get(_ context.Context, responseID string) (domain.Message, bool, error) {
	msg, ok := c.items.Get(responseID)
	return msg, ok, nil
}

func (c *lruResponseCache) Put(_ context.Context, message domain.Message) error {
	if strings.TrimSpace(message.ResponseID) == "" {
		return nil
	}
	c.items.Add(message.ResponseID, message)
	return nil
}

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisResponseCache struct {
	client redisKV
	ttl    time.Duration
	prefix string
}

func NewRedisResponseCache(client *redis.Client, ttl time.Duration) ResponseCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisResponseCache{
		client: client,
		ttl:    ttl,
		prefix: "chat:response:",
	}
}

func (c *redisResponseCache) Get(ctx context.Context, responseID string) (domain.Message, bool, error) {
	if strings.TrimSpace(responseID) == "" {
		return domain.Message{}, false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	raw, err := c.client.Get(ctx, c.prefix+responseID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Message{}, false, nil
	}
	if err != nil {
		return domain.Message{}, false, err
	}

	var msg domain.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// valor corrupto: se borra y cuenta como miss
		_ = c.client.Del(ctx, c.prefix+responseID).Err()
		return domain.Message{}, false, nil
	}
	return msg, true, nil
}

func (c *redisResponseCache) Put(ctx context.Context, message domain.Message) error {
	if strings.TrimSpace(message.ResponseID) == "" {
		return nil
	}
	b, err := json.Marshal(message)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return c.client.Set(ctx, c.prefix+message.ResponseID, b, c.ttl).Err()
}

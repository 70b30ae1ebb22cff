// Package throttle ограничивает частоту повторной отправки одноразовых кодов.
package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "livrini:otp-cooldown:"

// RedisThrottle реализует окно ожидания через SET NX EX: первый вызов в окне разрешён, остальные нет.
type RedisThrottle struct {
	client   *redis.Client
	cooldown time.Duration
}

// NewRedisClient создаёт клиент Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisThrottle создаёт ограничитель с указанным окном ожидания.
func NewRedisThrottle(client *redis.Client, cooldown time.Duration) *RedisThrottle {
	return &RedisThrottle{client: client, cooldown: cooldown}
}

// Allow сообщает, можно ли выполнить действие для key сейчас, и открывает новое окно, если можно.
func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, error) {
	if t.cooldown <= 0 {
		return true, nil
	}

	ok, err := t.client.SetNX(ctx, keyFor(key), "1", t.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Reset снимает окно ожидания для key.
func (t *RedisThrottle) Reset(ctx context.Context, key string) error {
	if err := t.client.Del(ctx, keyFor(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func keyFor(key string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(key))
}

// Noop пропускает все вызовы. Используется, когда Redis не настроен.
type Noop struct{}

// Allow всегда разрешает действие.
func (Noop) Allow(context.Context, string) (bool, error) { return true, nil }

// Reset ничего не делает.
func (Noop) Reset(context.Context, string) error { return nil }

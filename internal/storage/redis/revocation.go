// redis реализует storage.RevocationRegistry: отозванные jti хранятся
// как ключи с TTL и исчезают сами, когда токен истёк бы естественным образом.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/storage"
)

// DefaultPrefix — префикс ключей реестра по умолчанию.
const DefaultPrefix = "auth:revoked:"

// Registry — реестр отзыва поверх Redis.
type Registry struct {
	rdb    goredis.UniversalClient
	prefix string
}

// New создаёт клиент Redis из URL (например, redis://:pass@host:6379/0)
// и проверяет соединение. Пустой prefix заменяется на DefaultPrefix.
func New(ctx context.Context, redisURL, prefix string) (*Registry, error) {
	const op = "storage.redis.New"

	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := goredis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	return NewWithClient(rdb, prefix), nil
}

// NewWithClient оборачивает готовый клиент (используется в тестах и при
// совместном использовании клиента).
func NewWithClient(rdb goredis.UniversalClient, prefix string) *Registry {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Registry{rdb: rdb, prefix: prefix}
}

// key — <prefix><token_type>:<jti>.
func (r *Registry) key(jti string, tokenType models.TokenType) string {
	return r.prefix + string(tokenType) + ":" + jti
}

// Revoke помечает (tokenType, jti) отозванным на ttl.
// ttl <= 0 — токен уже истёк, защищать нечего: no-op.
// Повторный вызов перезаписывает метку и не является ошибкой.
func (r *Registry) Revoke(ctx context.Context, jti string, tokenType models.TokenType, ttl time.Duration) error {
	const op = "storage.redis.Revoke"

	if ttl <= 0 {
		return nil
	}

	if err := r.rdb.Set(ctx, r.key(jti, tokenType), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	return nil
}

// IsRevoked проверяет наличие метки. Ошибка означает, что ответ неизвестен;
// политику (fail-open/fail-closed) выбирает вызывающий.
func (r *Registry) IsRevoked(ctx context.Context, jti string, tokenType models.TokenType) (bool, error) {
	const op = "storage.redis.IsRevoked"

	n, err := r.rdb.Exists(ctx, r.key(jti, tokenType)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	return n > 0, nil
}

// Ping проверяет доступность Redis (readiness).
func (r *Registry) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close закрывает клиент Redis.
func (r *Registry) Close() error { return r.rdb.Close() }

var _ storage.RevocationRegistry = (*Registry)(nil)

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMiss indica que la clave no existe o ya expiro.
	ErrMiss = errors.New("cache miss")
	// ErrUnavailable envuelve cualquier falla del backend.
	ErrUnavailable = errors.New("cache unavailable")
)

// Cache es el almacenamiento compartido clave/valor con expiracion por clave.
type Cache interface {
	// Increment suma uno a key de forma atomica. El TTL se fija solo cuando
	// el contador nace; incrementos posteriores no lo extienden.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// CompareAndSwap reemplaza el valor solo si el actual es igual a old.
	CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error)
	Ping(ctx context.Context) error
}

// HashKey deriva una clave estable a partir de partes arbitrarias.
func HashKey(prefix string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return prefix + hex.EncodeToString(sum[:])
}

func GetJSON[T any](ctx context.Context, c Cache, key string) (T, error) {
	var out T
	raw, err := c.Get(ctx, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return out, nil
}

func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}

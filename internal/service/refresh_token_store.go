package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"authcore/internal/cache"
)

// RefreshTokenStore guarda el unico jti de refresh vigente por usuario.
type RefreshTokenStore interface {
	// Store registra jti como vigente y descarta cualquier anterior.
	Store(ctx context.Context, userID, jti string, ttl time.Duration) error
	// Rotate reemplaza oldJTI por newJTI solo si oldJTI sigue vigente.
	Rotate(ctx context.Context, userID, oldJTI, newJTI string, ttl time.Duration) (bool, error)
	// Current devuelve el jti vigente o "" si no hay ninguno.
	Current(ctx context.Context, userID string) (string, error)
	Revoke(ctx context.Context, userID string) error
}

type cacheRefreshTokenStore struct {
	cache  cache.Cache
	prefix string
}

func NewCacheRefreshTokenStore(c cache.Cache) RefreshTokenStore {
	if c == nil {
		return nil
	}
	return &cacheRefreshTokenStore{
		cache:  c,
		prefix: "auth:refresh:",
	}
}

// NewMemoryRefreshTokenStore sirve para desarrollo y tests; no sobrevive reinicios.
func NewMemoryRefreshTokenStore() RefreshTokenStore {
	return NewCacheRefreshTokenStore(cache.NewMemoryCache())
}

func (s *cacheRefreshTokenStore) Store(ctx context.Context, userID, jti string, ttl time.Duration) error {
	userID, jti = strings.TrimSpace(userID), strings.TrimSpace(jti)
	if userID == "" || jti == "" {
		return nil
	}
	return s.cache.Set(ctx, s.prefix+userID, []byte(jti), fallbackTTL(ttl))
}

func (s *cacheRefreshTokenStore) Rotate(ctx context.Context, userID, oldJTI, newJTI string, ttl time.Duration) (bool, error) {
	userID, oldJTI, newJTI = strings.TrimSpace(userID), strings.TrimSpace(oldJTI), strings.TrimSpace(newJTI)
	if userID == "" || oldJTI == "" || newJTI == "" {
		return false, nil
	}
	return s.cache.CompareAndSwap(ctx, s.prefix+userID, []byte(oldJTI), []byte(newJTI), fallbackTTL(ttl))
}

func (s *cacheRefreshTokenStore) Current(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", nil
	}
	raw, err := s.cache.Get(ctx, s.prefix+userID)
	if errors.Is(err, cache.ErrMiss) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *cacheRefreshTokenStore) Revoke(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	return s.cache.Delete(ctx, s.prefix+userID)
}

func fallbackTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 7 * 24 * time.Hour
	}
	return ttl
}

package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"authcore/internal/cache"
	"authcore/internal/domain"
	"authcore/internal/repository"
)

// SessionCache memoriza el perfil publico del usuario autenticado. Ante miss
// o falla del cache se consulta el registro; el cache nunca decide nada.
type SessionCache struct {
	logger  *zap.Logger
	cache   cache.Cache
	users   repository.UserRepository
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

func NewSessionCache(logger *zap.Logger, c cache.Cache, users repository.UserRepository, ttl, timeout time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionCache{
		logger:  logger,
		cache:   c,
		users:   users,
		ttl:     ttl,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func sessionKey(userID string) string {
	return cache.HashKey("session:", userID)
}

// Remember guarda el blob de sesion. Las fallas solo se registran.
func (s *SessionCache) Remember(ctx context.Context, user domain.User) {
	if s == nil || s.cache == nil {
		return
	}
	session := domain.NewSession(user, s.now())
	err := callDependencyErr(ctx, s.timeout, "cache", func(ctx context.Context) error {
		return cache.SetJSON(ctx, s.cache, sessionKey(user.ID), session, s.ttl)
	})
	if err != nil {
		s.logger.Warn("cache session failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// Lookup devuelve la sesion cacheada o la reconstruye desde el registro.
func (s *SessionCache) Lookup(ctx context.Context, userID string) (domain.Session, error) {
	if s.cache != nil {
		session, err := callDependency(ctx, s.timeout, "cache", func(ctx context.Context) (domain.Session, error) {
			return cache.GetJSON[domain.Session](ctx, s.cache, sessionKey(userID))
		})
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("read cached session failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	user, err := callDependency(ctx, s.timeout, "user store", func(ctx context.Context) (domain.User, error) {
		return s.users.GetByID(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Session{}, ErrTokenInvalid
		}
		return domain.Session{}, err
	}
	s.Remember(ctx, user)
	return domain.NewSession(user, s.now()), nil
}

// Forget invalida la sesion cacheada de userID.
func (s *SessionCache) Forget(ctx context.Context, userID string) {
	if s == nil || s.cache == nil {
		return
	}
	err := callDependencyErr(ctx, s.timeout, "cache", func(ctx context.Context) error {
		return s.cache.Delete(ctx, sessionKey(userID))
	})
	if err != nil {
		s.logger.Warn("forget cached session failed", zap.String("user_id", userID), zap.Error(err))
	}
}

package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"authcore/internal/cache"
)

// OperationClass agrupa operaciones que comparten cuota.
type OperationClass string

const (
	ClassLogin      OperationClass = "login"
	ClassOTPVerify  OperationClass = "otp-verify"
	ClassOTPRequest OperationClass = "otp-request"
	ClassRefresh    OperationClass = "refresh"
)

// RatePolicy es un par ventana/umbral de ventana fija.
type RatePolicy struct {
	Window time.Duration
	Max    int
}

type RatePolicies map[OperationClass]RatePolicy

// RateDecision es el resultado de un chequeo. Degraded indica que el cache
// no respondio y se dejo pasar la operacion.
type RateDecision struct {
	Allowed   bool
	Remaining int
	Count     int64
	Degraded  bool
}

// Limiter limita la frecuencia de operaciones por clave.
type Limiter interface {
	Check(ctx context.Context, key string, window time.Duration, max int) RateDecision
}

// RateLimiter cuenta en ventana fija sobre el cache compartido.
type RateLimiter struct {
	logger  *zap.Logger
	cache   cache.Cache
	prefix  string
	timeout time.Duration
}

func NewRateLimiter(logger *zap.Logger, c cache.Cache, timeout time.Duration) *RateLimiter {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RateLimiter{
		logger:  logger,
		cache:   c,
		prefix:  "rl:",
		timeout: timeout,
	}
}

// Check incrementa el contador de key. Si el cache falla, deja pasar.
func (l *RateLimiter) Check(ctx context.Context, key string, window time.Duration, max int) RateDecision {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return RateDecision{Allowed: false, Remaining: 0}
	}
	if l == nil || l.cache == nil {
		return RateDecision{Allowed: true, Remaining: max, Degraded: true}
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	count, err := l.cache.Increment(ctx, l.prefix+normalizedKey, window)
	if err != nil {
		l.logger.Warn("rate limiter degraded, failing open",
			zap.String("key", normalizedKey),
			zap.Error(err),
		)
		return RateDecision{Allowed: true, Remaining: max, Degraded: true}
	}
	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateDecision{
		Allowed:   count <= int64(max),
		Remaining: remaining,
		Count:     count,
	}
}

// RateKey compone la clave de un contador a partir de la clase y el sujeto.
func RateKey(class OperationClass, subject string) string {
	return string(class) + ":" + subject
}

// enforce aplica la politica de class sobre subject y traduce el rechazo a
// *RateLimitError.
func enforce(ctx context.Context, limiter Limiter, policies RatePolicies, class OperationClass, subject string) error {
	if limiter == nil {
		return nil
	}
	policy, ok := policies[class]
	if !ok {
		return nil
	}
	decision := limiter.Check(ctx, RateKey(class, subject), policy.Window, policy.Max)
	if !decision.Allowed {
		return &RateLimitError{Class: class, Remaining: decision.Remaining}
	}
	return nil
}

func DefaultRatePolicies() RatePolicies {
	return RatePolicies{
		ClassLogin:      {Window: 15 * time.Minute, Max: 10},
		ClassOTPVerify:  {Window: 15 * time.Minute, Max: 5},
		ClassOTPRequest: {Window: 10 * time.Minute, Max: 3},
		ClassRefresh:    {Window: time.Minute, Max: 30},
	}
}

package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger es cualquier dependencia que pueda reportar si responde.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapta una funcion a Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler reporta el estado del registro de usuarios y del cache.
// Sin base el servicio esta caido; sin cache solo degradado.
type HealthHandler struct {
	logger  *zap.Logger
	store   Pinger
	cache   Pinger
	timeout time.Duration
}

func NewHealthHandler(logger *zap.Logger, store, cache Pinger, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{logger: logger, store: store, cache: cache, timeout: timeout}
}

// Healthz maneja GET /healthz.
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := "ok"
	checks := gin.H{"store": "ok", "cache": "ok"}
	code := http.StatusOK

	if h.cache == nil {
		checks["cache"] = "disabled"
	} else if err := h.cache.Ping(ctx); err != nil {
		h.logger.Warn("cache health check failed", zap.Error(err))
		checks["cache"] = "unavailable"
		status = "degraded"
	}
	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Error("store health check failed", zap.Error(err))
			checks["store"] = "unavailable"
			status = "down"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{"status": status, "checks": checks})
}

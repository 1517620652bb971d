package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"authcore/internal/service"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// Mensajes estables por tipo de falla. Email inexistente y password
// incorrecta comparten mensaje.
var errorMappings = []errorMapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{service.ErrEmailNotVerified, http.StatusForbidden, "email not verified"},
	{service.ErrRateLimited, http.StatusTooManyRequests, "too many requests"},
	{service.ErrNoActiveOTP, http.StatusBadRequest, "no active otp"},
	{service.ErrOTPExpired, http.StatusBadRequest, "otp expired"},
	{service.ErrInvalidOTP, http.StatusBadRequest, "invalid otp"},
	{service.ErrTokenExpired, http.StatusUnauthorized, "token expired"},
	{service.ErrTokenInvalid, http.StatusUnauthorized, "invalid token"},
	{service.ErrInvalidEmail, http.StatusBadRequest, "invalid email"},
	{service.ErrWeakPassword, http.StatusBadRequest, "password does not meet requirements"},
	{service.ErrEmailTaken, http.StatusConflict, "email already registered"},
	{service.ErrDependencyTimeout, http.StatusGatewayTimeout, "upstream timeout"},
	{service.ErrDependencyUnavailable, http.StatusServiceUnavailable, "service unavailable"},
}

// writeError traduce err a status + mensaje. Lo no clasificado es 500.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		body := gin.H{"error": m.message}
		var rlErr *service.RateLimitError
		if errors.As(err, &rlErr) {
			body["remaining"] = rlErr.Remaining
		}
		if m.status >= http.StatusInternalServerError {
			logger.Error(op+" failed", zap.Error(err))
		}
		c.JSON(m.status, body)
		return
	}
	logger.Error(op+" failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"authcore/internal/service"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/auth"
)

// CookieConfig controla los atributos de las cookies de sesion.
type CookieConfig struct {
	Domain string
	Secure bool
}

func (cfg CookieConfig) setTokens(c *gin.Context, pair service.TokenPair, now time.Time) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessCookieName, pair.AccessToken, maxAge(pair.AccessExpiresAt, now), "/", cfg.Domain, cfg.Secure, true)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, pair.RefreshToken, maxAge(pair.RefreshExpiresAt, now), refreshCookiePath, cfg.Domain, cfg.Secure, true)
}

func (cfg CookieConfig) clearTokens(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessCookieName, "", -1, "/", cfg.Domain, cfg.Secure, true)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, cfg.Domain, cfg.Secure, true)
}

func maxAge(expiresAt, now time.Time) int {
	if expiresAt.IsZero() {
		return 0
	}
	secs := int(expiresAt.Sub(now).Seconds())
	if secs < 1 {
		return -1
	}
	return secs
}

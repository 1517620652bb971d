package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"authcore/internal/service"
)

// AuthHandler expone el flujo de login en dos pasos, registro y sesion.
type AuthHandler struct {
	logger   *zap.Logger
	login    *service.LoginService
	users    *service.UserService
	tokens   *service.JWTService
	sessions *service.SessionCache
	cookies  CookieConfig
	now      func() time.Time
}

func NewAuthHandler(
	logger *zap.Logger,
	login *service.LoginService,
	users *service.UserService,
	tokens *service.JWTService,
	sessions *service.SessionCache,
	cookies CookieConfig,
) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		login:    login,
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		cookies:  cookies,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required"`
		Password    string `json:"password" binding:"required"`
		DisplayName string `json:"displayName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeError(c, h.logger, "register", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// RequestVerification maneja POST /auth/verify/request. Responde igual
// exista o no la cuenta.
func (h *AuthHandler) RequestVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.users.RequestVerification(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.logger, "request verification", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "verification_requested"})
}

// ConfirmVerification maneja POST /auth/verify/confirm.
func (h *AuthHandler) ConfirmVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		OTP   string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	user, err := h.users.ConfirmEmail(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		writeError(c, h.logger, "confirm verification", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// LoginStepOne maneja POST /auth/login/step1.
func (h *AuthHandler) LoginStepOne(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if _, err := h.login.StepOne(c.Request.Context(), req.Email, req.Password, c.ClientIP()); err != nil {
		writeError(c, h.logger, "login step1", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "otp_required"})
}

// LoginStepTwo maneja POST /auth/login/step2.
func (h *AuthHandler) LoginStepTwo(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		OTP   string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.login.StepTwo(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		writeError(c, h.logger, "login step2", err)
		return
	}
	h.cookies.setTokens(c, res.Tokens, h.now())
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  res.Tokens.AccessToken,
		"refreshToken": res.Tokens.RefreshToken,
		"expiresIn":    res.Tokens.ExpiresIn,
		"user":         res.User,
	})
}

// RefreshToken maneja POST /auth/token/refresh. El token llega en el body
// o en la cookie de refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token := refreshTokenFromRequest(c)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	pair, err := h.login.Refresh(c.Request.Context(), token, c.ClientIP())
	if err != nil {
		writeError(c, h.logger, "token refresh", err)
		return
	}
	h.cookies.setTokens(c, pair, h.now())
	c.JSON(http.StatusOK, pair)
}

// Logout maneja POST /auth/logout. La identidad sale del access token; si
// no hay uno valido, del refresh token.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()

	var err error
	if claims, ok := h.identityFromAccess(c); ok {
		err = h.login.Logout(ctx, claims.UserID)
	} else if token := refreshTokenFromRequest(c); token != "" {
		err = h.login.LogoutByRefreshToken(ctx, token)
	} else {
		err = service.ErrTokenInvalid
	}
	if err != nil {
		writeError(c, h.logger, "logout", err)
		return
	}
	h.cookies.clearTokens(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me maneja GET /auth/me. Requiere JWTAuthMiddleware.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	session, err := h.sessions.Lookup(c.Request.Context(), claims.UserID)
	if err != nil {
		writeError(c, h.logger, "session lookup", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *AuthHandler) identityFromAccess(c *gin.Context) (service.Claims, bool) {
	token := accessTokenFromRequest(c)
	if token == "" {
		return service.Claims{}, false
	}
	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		return service.Claims{}, false
	}
	return claims, true
}

// refreshTokenFromRequest acepta {"refreshToken": ...} o la cookie.
func refreshTokenFromRequest(c *gin.Context) string {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	if token := strings.TrimSpace(req.RefreshToken); token != "" {
		return token
	}
	if cookie, err := c.Cookie(refreshCookieName); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

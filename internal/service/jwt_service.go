package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"authcore/internal/domain"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// JWTService emite, valida y rota tokens JWT.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	store      RefreshTokenStore
	timeout    time.Duration
	now        func() time.Time
}

type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	ExpiresIn        int64     `json:"expiresIn"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

type Claims struct {
	UserID        string `json:"uid"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	TokenType     string `json:"typ"`
	jwt.RegisteredClaims
}

type JWTOption func(*JWTService)

func WithIssuer(issuer string) JWTOption {
	return func(s *JWTService) {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = issuer
		}
	}
}

func WithJWTClock(now func() time.Time) JWTOption {
	return func(s *JWTService) { s.now = now }
}

func WithStoreTimeout(timeout time.Duration) JWTOption {
	return func(s *JWTService) { s.timeout = timeout }
}

// NewJWTService recibe el secreto de firma explicitamente; no hay estado global.
func NewJWTService(secret string, accessTTL, refreshTTL time.Duration, store RefreshTokenStore, opts ...JWTOption) *JWTService {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	if store == nil {
		store = NewMemoryRefreshTokenStore()
	}
	svc := &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "authcore",
		store:      store,
		timeout:    defaultDependencyTimeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// IssueAccessToken firma un token de acceso. Cada llamada lleva su propio jti,
// asi que dos tokens del mismo usuario nunca coinciden.
func (s *JWTService) IssueAccessToken(user domain.User) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrTokenInvalid
	}
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := s.sign(claimsFromUser(user), tokenTypeAccess, uuid.NewString(), now, expiresAt)
	return token, expiresAt, err
}

// IssueRefreshToken firma un refresh token y lo deja como el unico vigente.
func (s *JWTService) IssueRefreshToken(ctx context.Context, user domain.User) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrTokenInvalid
	}
	now := s.now()
	jti := uuid.NewString()
	expiresAt := now.Add(s.refreshTTL)
	token, err := s.sign(claimsFromUser(user), tokenTypeRefresh, jti, now, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	err = callDependencyErr(ctx, s.timeout, "refresh store", func(ctx context.Context) error {
		return s.store.Store(ctx, user.ID, jti, s.refreshTTL)
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *JWTService) IssuePair(ctx context.Context, user domain.User) (TokenPair, error) {
	access, accessExp, err := s.IssueAccessToken(user)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.IssueRefreshToken(ctx, user)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        int64(s.accessTTL.Seconds()),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ValidateAccessToken verifica firma, emisor y expiracion. No tiene efectos.
func (s *JWTService) ValidateAccessToken(accessToken string) (Claims, error) {
	claims, err := s.parseTyped(accessToken, tokenTypeAccess)
	if err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// Refresh canjea un refresh token vigente por un par nuevo. El token usado
// queda invalidado; reusarlo devuelve ErrTokenInvalid.
func (s *JWTService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.parseTyped(refreshToken, tokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.ID == "" {
		return TokenPair{}, ErrTokenInvalid
	}

	user := domain.User{
		ID:          claims.UserID,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
	}
	now := s.now()
	if claims.EmailVerified {
		user.EmailVerifiedAt = &now
	}

	newJTI := uuid.NewString()
	refreshExp := now.Add(s.refreshTTL)
	refresh, err := s.sign(claimsFromUser(user), tokenTypeRefresh, newJTI, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	access, accessExp, err := s.IssueAccessToken(user)
	if err != nil {
		return TokenPair{}, err
	}

	rotated, err := callDependency(ctx, s.timeout, "refresh store", func(ctx context.Context) (bool, error) {
		return s.store.Rotate(ctx, user.ID, claims.ID, newJTI, s.refreshTTL)
	})
	if err != nil {
		return TokenPair{}, err
	}
	if !rotated {
		return TokenPair{}, ErrTokenInvalid
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        int64(s.accessTTL.Seconds()),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Revoke invalida cualquier refresh token pendiente de userID.
func (s *JWTService) Revoke(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrTokenInvalid
	}
	return callDependencyErr(ctx, s.timeout, "refresh store", func(ctx context.Context) error {
		return s.store.Revoke(ctx, userID)
	})
}

// SubjectFromRefreshToken devuelve el usuario de un refresh token bien firmado,
// aunque ya no este vigente. Se usa en logout.
func (s *JWTService) SubjectFromRefreshToken(refreshToken string) (string, error) {
	claims, err := s.parseTyped(refreshToken, tokenTypeRefresh)
	if err != nil && !errors.Is(err, ErrTokenExpired) {
		return "", err
	}
	if errors.Is(err, ErrTokenExpired) {
		claims, err = s.parseUnverifiedExpiry(refreshToken)
		if err != nil {
			return "", err
		}
	}
	return claims.UserID, nil
}

func (s *JWTService) parseTyped(tokenString, tokenType string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrTokenInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrTokenInvalid
	}
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenType {
		return Claims{}, ErrTokenInvalid
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *JWTService) sign(base Claims, tokenType, jti string, now, expiresAt time.Time) (string, error) {
	claims := base
	claims.TokenType = tokenType
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    s.issuer,
		Subject:   base.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) parseToken(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

// parseUnverifiedExpiry valida la firma ignorando la expiracion.
func (s *JWTService) parseUnverifiedExpiry(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || claims.TokenType != tokenTypeRefresh || !s.isValidClaims(claims) {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" {
		return false
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}

func claimsFromUser(user domain.User) Claims {
	return Claims{
		UserID:        user.ID,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		EmailVerified: user.EmailVerified(),
	}
}

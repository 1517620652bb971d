package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"authcore/internal/domain"
	"authcore/internal/password"
	"authcore/internal/repository"
)

// CredentialVerifier valida email/password contra el hash almacenado.
type CredentialVerifier struct {
	logger    *zap.Logger
	users     repository.UserRepository
	hasher    password.Hasher
	timeout   time.Duration
	dummyHash string
}

func NewCredentialVerifier(logger *zap.Logger, users repository.UserRepository, hasher password.Hasher, timeout time.Duration) *CredentialVerifier {
	v := &CredentialVerifier{
		logger:  logger,
		users:   users,
		hasher:  hasher,
		timeout: timeout,
	}
	// Hash de relleno para que un email desconocido cueste lo mismo que uno real.
	if hash, err := hasher.Hash("authcore-timing-equalizer"); err == nil {
		v.dummyHash = hash
	}
	return v
}

// Verify devuelve el registro si la password coincide y el email esta verificado.
// Email inexistente y password incorrecta producen el mismo ErrInvalidCredentials.
func (v *CredentialVerifier) Verify(ctx context.Context, emailAddr, plain string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || plain == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := callDependency(ctx, v.timeout, "user store", func(ctx context.Context) (domain.User, error) {
		return v.users.GetByEmail(ctx, emailAddr)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			v.burnTime(plain)
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		v.burnTime(plain)
		return domain.User{}, ErrInvalidCredentials
	}

	ok, err := v.hasher.Verify(plain, user.PasswordHash)
	if err != nil {
		v.logger.Warn("stored password hash unreadable", zap.String("user_id", user.ID), zap.Error(err))
		return domain.User{}, ErrInvalidCredentials
	}
	if !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	if !user.EmailVerified() {
		return domain.User{}, ErrEmailNotVerified
	}
	return user, nil
}

func (v *CredentialVerifier) burnTime(plain string) {
	if v.dummyHash != "" {
		_, _ = v.hasher.Verify(plain, v.dummyHash)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

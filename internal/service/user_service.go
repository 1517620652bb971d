package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"authcore/internal/domain"
	"authcore/internal/password"
	"authcore/internal/repository"
)

const (
	minPasswordLength = 8
	maxPasswordBytes  = 72
)

// UserService coordina registro y verificacion de email.
type UserService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	hasher   password.Hasher
	otp      *OTPService
	limiter  Limiter
	policies RatePolicies
	timeout  time.Duration
	now      func() time.Time
}

func NewUserService(
	logger *zap.Logger,
	users repository.UserRepository,
	hasher password.Hasher,
	otp *OTPService,
	limiter Limiter,
	policies RatePolicies,
	timeout time.Duration,
) *UserService {
	if policies == nil {
		policies = DefaultRatePolicies()
	}
	return &UserService{
		logger:   logger,
		users:    users,
		hasher:   hasher,
		otp:      otp,
		limiter:  limiter,
		policies: policies,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

// Register crea la cuenta sin verificar.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	emailAddr := normalizeEmail(input.Email)
	if !isValidEmail(emailAddr) {
		return domain.User{}, ErrInvalidEmail
	}
	if !isAcceptablePassword(input.Password) {
		return domain.User{}, ErrWeakPassword
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	err = callDependencyErr(ctx, s.timeout, "user store", func(ctx context.Context) error {
		return s.users.Create(ctx, user)
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}
	return user, nil
}

// RequestVerification envia un OTP de verificacion. No revela si la cuenta
// existe ni si ya estaba verificada.
func (s *UserService) RequestVerification(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return ErrInvalidEmail
	}
	if err := enforce(ctx, s.limiter, s.policies, ClassOTPRequest, emailAddr); err != nil {
		return err
	}

	user, err := callDependency(ctx, s.timeout, "user store", func(ctx context.Context) (domain.User, error) {
		return s.users.GetByEmail(ctx, emailAddr)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if user.EmailVerified() {
		return nil
	}
	_, err = s.otp.Issue(ctx, user, OTPPurposeVerifyEmail)
	return err
}

// ConfirmEmail consume el OTP y marca el email como verificado.
func (s *UserService) ConfirmEmail(ctx context.Context, emailAddr, code string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return domain.User{}, ErrNoActiveOTP
	}
	if err := enforce(ctx, s.limiter, s.policies, ClassOTPVerify, emailAddr); err != nil {
		return domain.User{}, err
	}

	user, err := callDependency(ctx, s.timeout, "user store", func(ctx context.Context) (domain.User, error) {
		return s.users.GetByEmail(ctx, emailAddr)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrNoActiveOTP
		}
		return domain.User{}, err
	}

	user, err = s.otp.VerifyUser(ctx, user, OTPPurposeVerifyEmail, code)
	if err != nil {
		return domain.User{}, err
	}

	verifiedAt := s.now()
	err = callDependencyErr(ctx, s.timeout, "user store", func(ctx context.Context) error {
		return s.users.MarkEmailVerified(ctx, user.ID, verifiedAt)
	})
	if err != nil {
		return domain.User{}, err
	}
	if user.EmailVerifiedAt == nil {
		user.EmailVerifiedAt = &verifiedAt
	}
	return user, nil
}

func isValidEmail(emailAddr string) bool {
	if emailAddr == "" || len(emailAddr) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(emailAddr)
	return err == nil && addr.Address == emailAddr
}

func isAcceptablePassword(plain string) bool {
	return utf8.RuneCountInString(plain) >= minPasswordLength && len(plain) <= maxPasswordBytes
}

package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"authcore/internal/domain"
	"authcore/internal/email"
	"authcore/internal/repository"
)

const (
	defaultOTPTTL = 10 * time.Minute
	otpDigits     = 6
	otpMin        = 100000
	otpSpan       = 900000
)

// OTPPurpose liga el codigo a su flujo: forma parte del material hasheado,
// asi un codigo de verificacion no completa un login ni al reves.
type OTPPurpose string

const (
	OTPPurposeLogin       OTPPurpose = "login"
	OTPPurposeVerifyEmail OTPPurpose = "verify-email"
)

// OTPIssue describe un codigo emitido. Delivered es false si el correo no
// pudo despacharse; el codigo queda guardado igualmente.
type OTPIssue struct {
	ExpiresAt time.Time
	Delivered bool
}

// OTPService genera, guarda hasheados y verifica codigos de un solo uso.
type OTPService struct {
	logger          *zap.Logger
	users           repository.UserRepository
	sender          email.Sender
	ttl             time.Duration
	timeout         time.Duration
	requireDelivery bool
	now             func() time.Time
	generate        func() (string, error)
}

type OTPOption func(*OTPService)

func WithOTPClock(now func() time.Time) OTPOption {
	return func(s *OTPService) { s.now = now }
}

// WithCodeGenerator reemplaza el generador aleatorio. Pensado para tests.
func WithCodeGenerator(generate func() (string, error)) OTPOption {
	return func(s *OTPService) { s.generate = generate }
}

// WithRequireDelivery hace que Issue falle si el correo no sale.
func WithRequireDelivery(require bool) OTPOption {
	return func(s *OTPService) { s.requireDelivery = require }
}

func NewOTPService(logger *zap.Logger, users repository.UserRepository, sender email.Sender, ttl, timeout time.Duration, opts ...OTPOption) *OTPService {
	if ttl <= 0 {
		ttl = defaultOTPTTL
	}
	s := &OTPService{
		logger:   logger,
		users:    users,
		sender:   sender,
		ttl:      ttl,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
		generate: generateOTPCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue reemplaza el OTP vigente de user y despacha el codigo por correo.
// Dos emisiones concurrentes se pisan; solo la ultima es valida.
func (s *OTPService) Issue(ctx context.Context, user domain.User, purpose OTPPurpose) (OTPIssue, error) {
	code, err := s.generate()
	if err != nil {
		return OTPIssue{}, fmt.Errorf("generate otp: %w", err)
	}
	hash, err := hashOTP(purpose, code)
	if err != nil {
		return OTPIssue{}, fmt.Errorf("hash otp: %w", err)
	}
	expiresAt := s.now().Add(s.ttl)

	err = callDependencyErr(ctx, s.timeout, "user store", func(ctx context.Context) error {
		return s.users.UpdateOTP(ctx, user.ID, hash, expiresAt)
	})
	if err != nil {
		return OTPIssue{}, err
	}

	issue := OTPIssue{ExpiresAt: expiresAt}
	subject, body := otpMessage(purpose, code, expiresAt)
	err = callDependencyErr(ctx, s.timeout, "email", func(ctx context.Context) error {
		if s.sender == nil {
			return errors.New("email sender not configured")
		}
		return s.sender.Send(ctx, user.Email, subject, body)
	})
	if err != nil {
		s.logger.Warn("send otp failed", zap.Error(err), zap.String("email", user.Email), zap.String("purpose", string(purpose)))
		if s.requireDelivery {
			return issue, err
		}
		return issue, nil
	}
	issue.Delivered = true
	return issue, nil
}

// Verify carga el registro de userID y delega en VerifyUser.
func (s *OTPService) Verify(ctx context.Context, userID string, purpose OTPPurpose, code string) (domain.User, error) {
	if !isValidOTPCode(strings.TrimSpace(code)) {
		return domain.User{}, ErrInvalidOTP
	}
	user, err := callDependency(ctx, s.timeout, "user store", func(ctx context.Context) (domain.User, error) {
		return s.users.GetByID(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrNoActiveOTP
		}
		return domain.User{}, err
	}
	return s.VerifyUser(ctx, user, purpose, code)
}

// VerifyUser compara code contra el OTP de un registro ya cargado. Un exito
// consume el OTP; un codigo incorrecto o de otro proposito lo deja intacto.
func (s *OTPService) VerifyUser(ctx context.Context, user domain.User, purpose OTPPurpose, code string) (domain.User, error) {
	code = strings.TrimSpace(code)
	if !isValidOTPCode(code) {
		return domain.User{}, ErrInvalidOTP
	}
	if !user.HasActiveOTP() {
		return domain.User{}, ErrNoActiveOTP
	}
	hash := user.OtpCodeHash
	if s.now().After(*user.OtpExpiresAt) {
		if _, err := s.clear(ctx, user.ID, hash); err != nil {
			s.logger.Warn("clear expired otp failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		return domain.User{}, ErrOTPExpired
	}
	if !verifyOTP(purpose, code, hash) {
		return domain.User{}, ErrInvalidOTP
	}

	cleared, err := s.clear(ctx, user.ID, hash)
	if err != nil {
		return domain.User{}, err
	}
	if !cleared {
		// Otra verificacion consumio el codigo primero.
		return domain.User{}, ErrNoActiveOTP
	}
	user.OtpCodeHash = ""
	user.OtpExpiresAt = nil
	return user, nil
}

func (s *OTPService) clear(ctx context.Context, userID, hash string) (bool, error) {
	return callDependency(ctx, s.timeout, "user store", func(ctx context.Context) (bool, error) {
		return s.users.ClearOTP(ctx, userID, hash)
	})
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}

func hashOTP(purpose OTPPurpose, code string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	saltStr := base64.StdEncoding.EncodeToString(salt)
	return saltStr + ":" + otpDigest(saltStr, purpose, code), nil
}

func verifyOTP(purpose OTPPurpose, code, stored string) bool {
	saltStr, expectedHash, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	hash := otpDigest(saltStr, purpose, code)
	return subtle.ConstantTimeCompare([]byte(hash), []byte(expectedHash)) == 1
}

func otpDigest(salt string, purpose OTPPurpose, code string) string {
	sum := sha256.Sum256([]byte(salt + ":" + string(purpose) + ":" + code))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func isValidOTPCode(code string) bool {
	if len(code) != otpDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func otpMessage(purpose OTPPurpose, code string, expiresAt time.Time) (string, string) {
	subject := "Your login code"
	intro := "Use this code to finish signing in"
	if purpose == OTPPurposeVerifyEmail {
		subject = "Verify your email"
		intro = "Use this code to verify your email address"
	}
	body := fmt.Sprintf(
		"%s: %s\nIt expires at %s UTC.\nIf you did not request it, ignore this message.\n",
		intro,
		code,
		expiresAt.UTC().Format(time.RFC3339),
	)
	return subject, body
}

package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"authcore/internal/domain"
	"authcore/internal/repository"
)

// LoginState es la posicion de un intento de login.
type LoginState string

const (
	StateStart              LoginState = "START"
	StateCredentialsPending LoginState = "CREDENTIALS_PENDING"
	StateOTPPending         LoginState = "OTP_PENDING"
	StateAuthenticated      LoginState = "AUTHENTICATED"
	StateFailed             LoginState = "FAILED"
)

type StepOneResult struct {
	State     LoginState
	OTP       OTPIssue
	FailedAt  LoginState
	FailCause error
}

type StepTwoResult struct {
	State     LoginState
	User      domain.User
	Tokens    TokenPair
	FailedAt  LoginState
	FailCause error
}

// LoginService secuencia credenciales, OTP y tokens. No guarda estado entre
// pasos: el paso dos se reconstruye desde los campos OTP del registro.
type LoginService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	credentials *CredentialVerifier
	otp         *OTPService
	tokens      *JWTService
	limiter     Limiter
	policies    RatePolicies
	sessions    *SessionCache
	tracer      trace.Tracer
}

func NewLoginService(
	logger *zap.Logger,
	users repository.UserRepository,
	credentials *CredentialVerifier,
	otp *OTPService,
	tokens *JWTService,
	limiter Limiter,
	policies RatePolicies,
	sessions *SessionCache,
) *LoginService {
	if policies == nil {
		policies = DefaultRatePolicies()
	}
	return &LoginService{
		logger:      logger,
		users:       users,
		credentials: credentials,
		otp:         otp,
		tokens:      tokens,
		limiter:     limiter,
		policies:    policies,
		sessions:    sessions,
		tracer:      otel.Tracer("authcore/service/login"),
	}
}

// StepOne valida credenciales y emite el OTP. La cuota de login se cuenta
// por IP y, si no hay IP, por email.
func (s *LoginService) StepOne(ctx context.Context, emailAddr, plainPassword, clientIP string) (StepOneResult, error) {
	ctx, span := s.tracer.Start(ctx, "login.step1")
	defer span.End()

	emailAddr = normalizeEmail(emailAddr)
	subject := strings.TrimSpace(clientIP)
	if subject == "" {
		subject = emailAddr
	}

	if err := enforce(ctx, s.limiter, s.policies, ClassLogin, subject); err != nil {
		return s.failStepOne(span, StateStart, err)
	}

	user, err := s.credentials.Verify(ctx, emailAddr, plainPassword)
	if err != nil {
		return s.failStepOne(span, StateCredentialsPending, err)
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	issue, err := s.otp.Issue(ctx, user, OTPPurposeLogin)
	if err != nil {
		return s.failStepOne(span, StateCredentialsPending, err)
	}
	if !issue.Delivered {
		span.AddEvent("otp delivery failed")
	}

	span.SetAttributes(attribute.String("login.state", string(StateOTPPending)))
	return StepOneResult{State: StateOTPPending, OTP: issue}, nil
}

// StepTwo verifica el OTP y, si es correcto, emite el par de tokens.
func (s *LoginService) StepTwo(ctx context.Context, emailAddr, code string) (StepTwoResult, error) {
	ctx, span := s.tracer.Start(ctx, "login.step2")
	defer span.End()

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return s.failStepTwo(span, StateOTPPending, ErrNoActiveOTP)
	}

	if err := enforce(ctx, s.limiter, s.policies, ClassOTPVerify, emailAddr); err != nil {
		return s.failStepTwo(span, StateOTPPending, err)
	}

	user, err := callDependency(ctx, s.otp.timeout, "user store", func(ctx context.Context) (domain.User, error) {
		return s.users.GetByEmail(ctx, emailAddr)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = ErrNoActiveOTP
		}
		return s.failStepTwo(span, StateOTPPending, err)
	}

	// Sin email verificado no hay login, aunque exista un OTP activo.
	if !user.EmailVerified() {
		return s.failStepTwo(span, StateOTPPending, ErrEmailNotVerified)
	}

	user, err = s.otp.VerifyUser(ctx, user, OTPPurposeLogin, code)
	if err != nil {
		return s.failStepTwo(span, StateOTPPending, err)
	}

	tokens, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		return s.failStepTwo(span, StateAuthenticated, err)
	}
	s.sessions.Remember(ctx, user)

	span.SetAttributes(
		attribute.String("user.id", user.ID),
		attribute.String("login.state", string(StateAuthenticated)),
	)
	return StepTwoResult{State: StateAuthenticated, User: user, Tokens: tokens}, nil
}

// Refresh rota el refresh token. La cuota se cuenta por IP.
func (s *LoginService) Refresh(ctx context.Context, refreshToken, clientIP string) (TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "token.refresh")
	defer span.End()

	subject := strings.TrimSpace(clientIP)
	if subject != "" {
		if err := enforce(ctx, s.limiter, s.policies, ClassRefresh, subject); err != nil {
			recordFailure(span, err)
			return TokenPair{}, err
		}
	}
	pair, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		recordFailure(span, err)
		return TokenPair{}, err
	}
	return pair, nil
}

// Logout revoca el refresh token vigente y olvida la sesion cacheada.
func (s *LoginService) Logout(ctx context.Context, userID string) error {
	ctx, span := s.tracer.Start(ctx, "logout")
	defer span.End()

	if err := s.tokens.Revoke(ctx, userID); err != nil {
		recordFailure(span, err)
		return err
	}
	s.sessions.Forget(ctx, userID)
	return nil
}

// LogoutByRefreshToken resuelve el usuario del token y delega en Logout.
func (s *LoginService) LogoutByRefreshToken(ctx context.Context, refreshToken string) error {
	userID, err := s.tokens.SubjectFromRefreshToken(refreshToken)
	if err != nil {
		return err
	}
	return s.Logout(ctx, userID)
}

func (s *LoginService) failStepOne(span trace.Span, at LoginState, err error) (StepOneResult, error) {
	recordFailure(span, err)
	s.logFailure("login step1 failed", at, err)
	return StepOneResult{State: StateFailed, FailedAt: at, FailCause: err}, err
}

func (s *LoginService) failStepTwo(span trace.Span, at LoginState, err error) (StepTwoResult, error) {
	recordFailure(span, err)
	s.logFailure("login step2 failed", at, err)
	return StepTwoResult{State: StateFailed, FailedAt: at, FailCause: err}, err
}

func (s *LoginService) logFailure(msg string, at LoginState, err error) {
	level := s.logger.Info
	if errors.Is(err, ErrDependencyTimeout) || errors.Is(err, ErrDependencyUnavailable) {
		level = s.logger.Error
	}
	level(msg, zap.String("state", string(at)), zap.Error(err))
}

func recordFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("login.state", string(StateFailed)))
}

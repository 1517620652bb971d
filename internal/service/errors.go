package service

import (
	"errors"
	"fmt"
)

// Taxonomia de fallas. Todas son recuperables desde el punto de vista del
// llamador y se comparan con errors.Is.
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrEmailNotVerified      = errors.New("email not verified")
	ErrRateLimited           = errors.New("rate limited")
	ErrNoActiveOTP           = errors.New("no active otp")
	ErrOTPExpired            = errors.New("otp expired")
	ErrInvalidOTP            = errors.New("invalid otp")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenInvalid          = errors.New("token invalid")
	ErrDependencyTimeout     = errors.New("dependency timeout")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	ErrInvalidEmail = errors.New("invalid email")
	ErrWeakPassword = errors.New("password does not meet requirements")
	ErrEmailTaken   = errors.New("email already registered")
)

// RateLimitError acompaña a ErrRateLimited con el estado del contador.
type RateLimitError struct {
	Class     OperationClass
	Remaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s", e.Class)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"authcore/internal/cache"
)

func newTestUserService(repo *mockUserRepo, sender *mockEmailSender, codes ...string) *UserService {
	opts := []OTPOption{}
	if len(codes) > 0 {
		opts = append(opts, WithCodeGenerator(sequenceCodes(codes...)))
	}
	otp := NewOTPService(zap.NewNop(), repo, sender, 10*time.Minute, time.Second, opts...)
	limiter := NewRateLimiter(zap.NewNop(), cache.NewMemoryCache(), time.Second)
	return NewUserService(zap.NewNop(), repo, testHasher(), otp, limiter, DefaultRatePolicies(), time.Second)
}

func TestUserService_Register(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestUserService(repo, &mockEmailSender{})
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Email: " New@Example.com ", Password: "Secret123!", DisplayName: " Ana "})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == "" || user.Email != "new@example.com" || user.DisplayName != "Ana" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.EmailVerified() {
		t.Fatalf("new accounts start unverified")
	}
	stored := repo.get(user.ID)
	if stored.PasswordHash == "" || stored.PasswordHash == "Secret123!" {
		t.Fatalf("expected hashed password, got %q", stored.PasswordHash)
	}

	if _, err := svc.Register(ctx, RegisterInput{Email: "new@example.com", Password: "Another123!"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestUserService_RegisterValidation(t *testing.T) {
	svc := newTestUserService(newMockUserRepo(), &mockEmailSender{})
	tests := []struct {
		name  string
		input RegisterInput
		want  error
	}{
		{"missing email", RegisterInput{Password: "Secret123!"}, ErrInvalidEmail},
		{"malformed email", RegisterInput{Email: "not-an-email", Password: "Secret123!"}, ErrInvalidEmail},
		{"display name in address", RegisterInput{Email: "Ana <ana@example.com>", Password: "Secret123!"}, ErrInvalidEmail},
		{"short password", RegisterInput{Email: "a@example.com", Password: "short"}, ErrWeakPassword},
		{"long password", RegisterInput{Email: "a@example.com", Password: strings.Repeat("x", 73)}, ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tt.input); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestUserService_VerificationFlow(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	svc := newTestUserService(repo, sender, "654321")
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Email: "new@example.com", Password: "Secret123!"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.RequestVerification(ctx, "new@example.com"); err != nil {
		t.Fatalf("request verification: %v", err)
	}
	if sender.sent != 1 || !strings.Contains(sender.lastBody, "654321") || sender.lastSubj != "Verify your email" {
		t.Fatalf("expected verification mail, got %d %q %q", sender.sent, sender.lastSubj, sender.lastBody)
	}

	if _, err := svc.ConfirmEmail(ctx, "new@example.com", "111111"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
	confirmed, err := svc.ConfirmEmail(ctx, "new@example.com", "654321")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !confirmed.EmailVerified() || !repo.get(user.ID).EmailVerified() {
		t.Fatalf("expected email verified")
	}
	if _, err := svc.ConfirmEmail(ctx, "new@example.com", "654321"); !errors.Is(err, ErrNoActiveOTP) {
		t.Fatalf("expected ErrNoActiveOTP on reuse, got %v", err)
	}

	// ya verificado: no se envia nada y no se revela el estado
	if err := svc.RequestVerification(ctx, "new@example.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if sender.sent != 1 {
		t.Fatalf("expected no further mail, got %d", sender.sent)
	}
}

func TestUserService_ConfirmEmailRejectsLoginCode(t *testing.T) {
	repo := newMockUserRepo()
	user := seedUser(repo, "u1", "new@example.com", "Secret123!", false)
	svc := newTestUserService(repo, &mockEmailSender{})
	loginOTP := NewOTPService(zap.NewNop(), repo, &mockEmailSender{}, 10*time.Minute, time.Second,
		WithCodeGenerator(sequenceCodes("483920")),
	)
	ctx := context.Background()

	if _, err := loginOTP.Issue(ctx, user, OTPPurposeLogin); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.ConfirmEmail(ctx, "new@example.com", "483920"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP for login code, got %v", err)
	}
	if repo.get("u1").EmailVerified() {
		t.Fatalf("expected account to stay unverified")
	}
	if !repo.get("u1").HasActiveOTP() {
		t.Fatalf("expected login otp left intact")
	}
}

func TestUserService_RequestVerificationUnknownEmail(t *testing.T) {
	sender := &mockEmailSender{}
	svc := newTestUserService(newMockUserRepo(), sender)

	if err := svc.RequestVerification(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if sender.sent != 0 {
		t.Fatalf("expected no mail for unknown email")
	}
	if err := svc.RequestVerification(context.Background(), "bad"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestUserService_RequestVerificationRateLimited(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", "new@example.com", "Secret123!", false)
	svc := newTestUserService(repo, &mockEmailSender{})
	ctx := context.Background()

	max := DefaultRatePolicies()[ClassOTPRequest].Max
	for i := 0; i < max; i++ {
		if err := svc.RequestVerification(ctx, "new@example.com"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	err := svc.RequestVerification(ctx, "new@example.com")
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if rlErr.Class != ClassOTPRequest {
		t.Fatalf("unexpected class %q", rlErr.Class)
	}
}

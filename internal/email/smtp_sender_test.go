package email

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewSMTPSender_Validation(t *testing.T) {
	if _, err := NewSMTPSender("", 587, "", "", "noreply@example.com", "", false); err == nil {
		t.Fatalf("expected error without host")
	}
	if _, err := NewSMTPSender("smtp.example.com", 587, "", "", " ", "", false); err == nil {
		t.Fatalf("expected error without from")
	}
	s, err := NewSMTPSender("smtp.example.com", 0, "", "", "noreply@example.com", "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.port != 587 {
		t.Fatalf("expected default port 587, got %d", s.port)
	}
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("noreply@example.com", "Auth", "user@example.com", "Your login code", "Code: 483920\n")
	if !strings.Contains(msg, "From: Auth <noreply@example.com>\r\n") {
		t.Fatalf("missing from header: %q", msg)
	}
	if !strings.Contains(msg, "Subject: Your login code\r\n") {
		t.Fatalf("missing subject header: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nCode: 483920\n") {
		t.Fatalf("body not separated from headers: %q", msg)
	}
}

func TestSMTPSender_RespectsContext(t *testing.T) {
	// 192.0.2.0/24 es TEST-NET-1, nunca enruta.
	s, err := NewSMTPSender("192.0.2.1", 25, "", "", "noreply@example.com", "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := s.Send(ctx, "user@example.com", "s", "b"); err == nil {
		t.Fatalf("expected dial error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("send ignored context deadline")
	}
}

func TestDisabledAndLogSenders(t *testing.T) {
	if err := NewDisabledSender("").Send(context.Background(), "a@b.c", "s", "b"); err == nil {
		t.Fatalf("expected disabled sender error")
	}
	if err := NewLogSender(zap.NewNop()).Send(context.Background(), "a@b.c", "s", "b"); err != nil {
		t.Fatalf("expected log sender success, got %v", err)
	}
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"authcore/internal/cache"
)

func TestSessionCache_RememberAndLookup(t *testing.T) {
	repo := newMockUserRepo()
	user := seedUser(repo, "u1", "user@example.com", "Secret123!", true)
	mem := cache.NewMemoryCache()
	sessions := NewSessionCache(zap.NewNop(), mem, repo, time.Hour, time.Second)
	ctx := context.Background()

	sessions.Remember(ctx, user)
	if _, err := mem.Get(ctx, sessionKey("u1")); err != nil {
		t.Fatalf("expected session cached, got %v", err)
	}

	// el cache responde aunque el registro no este disponible
	repo.err = errors.New("db down")
	session, err := sessions.Lookup(ctx, "u1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if session.UserID != "u1" || session.Email != "user@example.com" || !session.EmailVerified {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestSessionCache_MissFallsBackToStore(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", "user@example.com", "Secret123!", false)
	mem := cache.NewMemoryCache()
	sessions := NewSessionCache(zap.NewNop(), mem, repo, time.Hour, time.Second)
	ctx := context.Background()

	session, err := sessions.Lookup(ctx, "u1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if session.EmailVerified {
		t.Fatalf("expected unverified session")
	}
	if _, err := mem.Get(ctx, sessionKey("u1")); err != nil {
		t.Fatalf("expected lookup to repopulate cache, got %v", err)
	}

	if _, err := sessions.Lookup(ctx, "ghost"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for unknown user, got %v", err)
	}
}

func TestSessionCache_CacheOutageFallsBack(t *testing.T) {
	m, c := newMiniredisCache(t)
	repo := newMockUserRepo()
	seedUser(repo, "u1", "user@example.com", "Secret123!", true)
	sessions := NewSessionCache(zap.NewNop(), c, repo, time.Hour, time.Second)

	m.SetError("LOADING")
	session, err := sessions.Lookup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("expected fallback to store, got %v", err)
	}
	if session.UserID != "u1" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestSessionCache_Forget(t *testing.T) {
	repo := newMockUserRepo()
	user := seedUser(repo, "u1", "user@example.com", "Secret123!", true)
	mem := cache.NewMemoryCache()
	sessions := NewSessionCache(zap.NewNop(), mem, repo, time.Hour, time.Second)
	ctx := context.Background()

	sessions.Remember(ctx, user)
	sessions.Forget(ctx, "u1")
	if _, err := mem.Get(ctx, sessionKey("u1")); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected miss after forget, got %v", err)
	}

	var nilSessions *SessionCache
	nilSessions.Remember(ctx, user)
	nilSessions.Forget(ctx, "u1")
}

package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"authcore/internal/domain"
	"authcore/internal/password"
	"authcore/internal/repository"
)

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
	err          error
	delay        time.Duration
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

// wait simula un store lento respetando la cancelacion del contexto.
func (m *mockUserRepo) wait(ctx context.Context) error {
	if m.delay <= 0 {
		return m.err
	}
	select {
	case <-time.After(m.delay):
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockUserRepo) Create(ctx context.Context, user domain.User) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.usersByEmail[user.Email]; ok {
		return repository.ErrEmailTaken
	}
	m.usersByID[user.ID] = user
	if user.Email != "" {
		m.usersByEmail[user.Email] = user.ID
	}
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	if err := m.wait(ctx); err != nil {
		return domain.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	if err := m.wait(ctx); err != nil {
		return domain.User{}, err
	}
	m.mu.Lock()
	id, ok := m.usersByEmail[email]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *mockUserRepo) UpdateOTP(ctx context.Context, id, otpHash string, otpExpiresAt time.Time) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.OtpCodeHash = otpHash
	user.OtpExpiresAt = &otpExpiresAt
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) ClearOTP(ctx context.Context, id, expectedHash string) (bool, error) {
	if err := m.wait(ctx); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return false, nil
	}
	if expectedHash != "" && user.OtpCodeHash != expectedHash {
		return false, nil
	}
	user.OtpCodeHash = ""
	user.OtpExpiresAt = nil
	m.usersByID[id] = user
	return true, nil
}

func (m *mockUserRepo) MarkEmailVerified(ctx context.Context, id string, verifiedAt time.Time) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if user.EmailVerifiedAt == nil {
		user.EmailVerifiedAt = &verifiedAt
	}
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) get(id string) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usersByID[id]
}

type mockEmailSender struct {
	mu       sync.Mutex
	lastTo   string
	lastSubj string
	lastBody string
	sent     int
	err      error
}

func (m *mockEmailSender) Send(_ context.Context, toEmail, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTo = toEmail
	m.lastSubj = subject
	m.lastBody = body
	m.sent++
	return m.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequenceCodes devuelve los codigos en orden y repite el ultimo.
func sequenceCodes(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code, nil
	}
}

func testHasher() password.Hasher {
	b := password.NewBcrypt(bcrypt.MinCost)
	return &password.Multi{Primary: b, Bcrypt: b, Argon2: password.NewArgon2(password.DefaultArgon2Params())}
}

func seedUser(repo *mockUserRepo, id, emailAddr, plain string, verified bool) domain.User {
	hash, err := testHasher().Hash(plain)
	if err != nil {
		panic(err)
	}
	user := domain.User{
		ID:           id,
		Email:        emailAddr,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if verified {
		at := time.Now().UTC()
		user.EmailVerifiedAt = &at
	}
	if err := repo.Create(context.Background(), user); err != nil {
		panic(err)
	}
	return user
}

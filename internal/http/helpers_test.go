package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"authcore/internal/cache"
	"authcore/internal/domain"
	"authcore/internal/password"
	"authcore/internal/repository"
	"authcore/internal/service"
)

type memoryUserRepo struct {
	mu      sync.Mutex
	byID    map[string]domain.User
	byEmail map[string]string
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{byID: map[string]domain.User{}, byEmail: map[string]string{}}
}

func (m *memoryUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[user.Email]; ok {
		return repository.ErrEmailTaken
	}
	m.byID[user.ID] = user
	m.byEmail[user.Email] = user.ID
	return nil
}

func (m *memoryUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (m *memoryUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	id, ok := m.byEmail[email]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *memoryUserRepo) UpdateOTP(_ context.Context, id, hash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.OtpCodeHash, user.OtpExpiresAt = hash, &expiresAt
	m.byID[id] = user
	return nil
}

func (m *memoryUserRepo) ClearOTP(_ context.Context, id, expectedHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok || (expectedHash != "" && user.OtpCodeHash != expectedHash) {
		return false, nil
	}
	user.OtpCodeHash, user.OtpExpiresAt = "", nil
	m.byID[id] = user
	return true, nil
}

func (m *memoryUserRepo) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if user.EmailVerifiedAt == nil {
		user.EmailVerifiedAt = &at
	}
	m.byID[id] = user
	return nil
}

type captureSender struct {
	mu   sync.Mutex
	sent int
}

func (s *captureSender) Send(context.Context, string, string, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return nil
}

type testServer struct {
	router *gin.Engine
	repo   *memoryUserRepo
	sender *captureSender
	jwt    *service.JWTService
}

// newTestServer arma el stack completo con cache en memoria y codigos fijos.
func newTestServer(t *testing.T, codes ...string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	repo := newMemoryUserRepo()
	sender := &captureSender{}
	mem := cache.NewMemoryCache()
	b := password.NewBcrypt(bcrypt.MinCost)
	hasher := &password.Multi{Primary: b, Bcrypt: b, Argon2: password.NewArgon2(password.DefaultArgon2Params())}

	i := 0
	generate := func() (string, error) {
		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code, nil
	}

	limiter := service.NewRateLimiter(logger, mem, time.Second)
	policies := service.DefaultRatePolicies()
	otp := service.NewOTPService(logger, repo, sender, 10*time.Minute, time.Second, service.WithCodeGenerator(generate))
	jwtSvc := service.NewJWTService("secret", time.Hour, 24*time.Hour, service.NewCacheRefreshTokenStore(mem))
	sessions := service.NewSessionCache(logger, mem, repo, time.Hour, time.Second)
	credentials := service.NewCredentialVerifier(logger, repo, hasher, time.Second)
	login := service.NewLoginService(logger, repo, credentials, otp, jwtSvc, limiter, policies, sessions)
	users := service.NewUserService(logger, repo, hasher, otp, limiter, policies, time.Second)

	authH := NewAuthHandler(logger, login, users, jwtSvc, sessions, CookieConfig{Secure: true})
	healthH := NewHealthHandler(logger, nil, mem, time.Second)
	return &testServer{
		router: NewRouter(logger, authH, healthH, jwtSvc),
		repo:   repo,
		sender: sender,
		jwt:    jwtSvc,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func cookieFrom(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value}) }
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withIP(ip string) func(*http.Request) {
	return func(r *http.Request) { r.RemoteAddr = ip + ":1234" }
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"tle_zone_contest/internal/common/security"

	"github.com/go-chi/jwtauth/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := GetUserIDFromContext(r.Context())
		role, _ := GetUserRoleFromContext(r.Context())
		w.Write([]byte(userID + "|" + role))
	})
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticator(t *testing.T) {
	security.InitJWT([]byte("test-secret"))
	h := jwtauth.Verifier(security.TokenAuth)(Authenticator(echoIdentity()))

	token, err := security.GenerateToken("alice", "user", time.Hour)
	require.NoError(t, err)
	rec := serve(h, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice|user", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "not-a-jwt").Code)

	expired, err := security.GenerateToken("alice", "user", -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(h, expired).Code)
}

func TestIdentify(t *testing.T) {
	security.InitJWT([]byte("test-secret"))
	h := jwtauth.Verifier(security.TokenAuth)(Identify(echoIdentity()))

	rec := serve(h, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "|", rec.Body.String())

	token, err := security.GenerateToken("root", "admin", time.Hour)
	require.NoError(t, err)
	rec = serve(h, token)
	assert.Equal(t, "root|admin", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(h, "garbage").Code)
}

func TestWebhookSecret(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	guarded := WebhookSecret("s3cret")(ok)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set(WebhookSecretHeader, "s3cret")
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	open := WebhookSecret("")(ok)
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(60, 2, zerolog.Nop())
	defer rl.Stop()
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/join", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	assert.True(t, rl.Allow("ip:10.0.0.2"))
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(60, 1, zerolog.Nop())
	defer rl.Stop()

	assert.True(t, rl.Allow("user:alice"))
	assert.False(t, rl.Allow("user:alice"))
	assert.True(t, rl.Allow("user:bob"))

	rl.mu.Lock()
	rl.clients["user:bob"].lastSeen = time.Now().Add(-time.Minute)
	rl.mu.Unlock()

	rl.sweep(time.Now().Add(rl.idle - 30*time.Second))
	rl.mu.Lock()
	assert.Len(t, rl.clients, 1)
	_, kept := rl.clients["user:alice"]
	rl.mu.Unlock()
	assert.True(t, kept)

	// A swept client starts over with a full bucket.
	assert.True(t, rl.Allow("user:bob"))

	rl.Stop()
	rl.Stop()
}

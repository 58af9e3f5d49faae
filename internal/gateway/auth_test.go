package gateway

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soyeahso/colloquy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"secret-token", "secret-token", true},
		{"secret-token", "wrong-token!", false},
		{"short", "much-longer-string", false},
		{"", "", true},
		{"", "something", false},
		{"something", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeEqual(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

// --- ResolveAuth tests ---

func TestResolveAuth_FromConfig(t *testing.T) {
	auth := ResolveAuth(config.GatewayAuth{Mode: "token", Token: "my-token"})
	assert.Equal(t, "token", auth.Mode)
	assert.Equal(t, "my-token", auth.Token)
}

func TestResolveAuth_DefaultMode(t *testing.T) {
	assert.Equal(t, "token", ResolveAuth(config.GatewayAuth{Token: "t"}).Mode)
	assert.Equal(t, "password", ResolveAuth(config.GatewayAuth{Password: "p"}).Mode)
}

func TestResolveAuth_FromEnv(t *testing.T) {
	t.Setenv("COLLOQUY_GATEWAY_TOKEN", "env-token")
	t.Setenv("COLLOQUY_GATEWAY_PASSWORD", "env-pass")

	auth := ResolveAuth(config.GatewayAuth{Mode: "token"})
	assert.Equal(t, "env-token", auth.Token)
	assert.Equal(t, "env-pass", auth.Password)
}

func TestResolveAuth_ConfigOverridesEnv(t *testing.T) {
	t.Setenv("COLLOQUY_GATEWAY_TOKEN", "env-token")
	auth := ResolveAuth(config.GatewayAuth{Mode: "token", Token: "config-token"})
	assert.Equal(t, "config-token", auth.Token)
}

// --- Authorize tests ---

func TestAuthorize(t *testing.T) {
	tokenAuth := ResolvedAuth{Mode: "token", Token: "secret"}
	passAuth := ResolvedAuth{Mode: "password", Password: "pass123"}

	tests := []struct {
		name       string
		server     ResolvedAuth
		client     *ConnectAuth
		wantOK     bool
		wantMethod string
		wantReason string
	}{
		{"token ok", tokenAuth, &ConnectAuth{Token: "secret"}, true, "token", ""},
		{"token mismatch", tokenAuth, &ConnectAuth{Token: "wrong"}, false, "", "token_mismatch"},
		{"token empty", tokenAuth, &ConnectAuth{}, false, "", "token required"},
		{"token not configured", ResolvedAuth{Mode: "token"}, &ConnectAuth{Token: "x"}, false, "", "server token not configured"},
		{"password ok", passAuth, &ConnectAuth{Password: "pass123"}, true, "password", ""},
		{"password mismatch", passAuth, &ConnectAuth{Password: "nope"}, false, "", "password_mismatch"},
		{"password empty", passAuth, &ConnectAuth{Token: "secret"}, false, "", "password required"},
		{"password not configured", ResolvedAuth{Mode: "password"}, &ConnectAuth{Password: "x"}, false, "", "server password not configured"},
		{"nil credentials", tokenAuth, nil, false, "", "no credentials provided"},
		{"unknown mode", ResolvedAuth{Mode: "oauth"}, &ConnectAuth{Token: "x"}, false, "", "unknown auth mode: oauth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Authorize(tt.server, tt.client)
			assert.Equal(t, tt.wantOK, got.OK)
			assert.Equal(t, tt.wantMethod, got.Method)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestBearerAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/discussions", nil)
	assert.Nil(t, bearerAuth(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Nil(t, bearerAuth(req))

	req.Header.Set("Authorization", "Bearer s3cret")
	creds := bearerAuth(req)
	require.NotNil(t, creds)
	assert.True(t, Authorize(ResolvedAuth{Mode: "token", Token: "s3cret"}, creds).OK)
	assert.True(t, Authorize(ResolvedAuth{Mode: "password", Password: "s3cret"}, creds).OK)
}

// --- authRateLimiter tests ---

// clockLimiter returns a limiter whose clock only moves when advance is called.
func clockLimiter() (*authRateLimiter, func(time.Duration)) {
	l := newAuthRateLimiter()
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, func(d time.Duration) { now = now.Add(d) }
}

func TestAuthRateLimiter_BlocksAfterMaxFailures(t *testing.T) {
	limiter, _ := clockLimiter()
	assert.True(t, limiter.allow("192.168.1.1:12345"))

	for range authMaxFailures - 1 {
		limiter.recordFailure("192.168.1.1:12345")
	}
	assert.True(t, limiter.allow("192.168.1.1:12345"))

	limiter.recordFailure("192.168.1.1:54321")
	assert.False(t, limiter.allow("192.168.1.1:12345"), "failures are counted per host, not per port")
	assert.True(t, limiter.allow("192.168.1.2:12345"))
}

func TestAuthRateLimiter_IPWithoutPort(t *testing.T) {
	limiter, _ := clockLimiter()
	for range authMaxFailures {
		limiter.recordFailure("192.168.1.1")
	}
	assert.False(t, limiter.allow("192.168.1.1"))
	assert.False(t, limiter.allow("192.168.1.1:80"))
}

func TestAuthRateLimiter_WindowExpires(t *testing.T) {
	limiter, advance := clockLimiter()
	for range authMaxFailures {
		limiter.recordFailure("10.0.0.7:1")
	}
	advance(authFailureWindow - time.Second)
	assert.False(t, limiter.allow("10.0.0.7:1"))

	advance(time.Second)
	assert.True(t, limiter.allow("10.0.0.7:1"))

	// A failure after expiry starts a fresh window.
	limiter.recordFailure("10.0.0.7:1")
	assert.True(t, limiter.allow("10.0.0.7:1"))
}

func TestAuthRateLimiter_EvictsWhenFull(t *testing.T) {
	limiter, advance := clockLimiter()
	limiter.recordFailure("10.0.0.1")
	advance(time.Second)
	for i := range authMaxHosts - 1 {
		limiter.hosts[fmt.Sprintf("host-%d", i)] = &failureWindow{first: limiter.now(), count: 1}
	}
	require.Len(t, limiter.hosts, authMaxHosts)

	limiter.recordFailure("10.0.0.2")
	assert.Len(t, limiter.hosts, authMaxHosts)
	assert.NotContains(t, limiter.hosts, "10.0.0.1", "oldest window is evicted")
	assert.Contains(t, limiter.hosts, "10.0.0.2")
}

// --- checkWebSocketOrigin tests ---

func originRequest(origin string) *http.Request {
	req := httptest.NewRequest("GET", "/ws", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCheckWebSocketOrigin(t *testing.T) {
	assert.True(t, checkWebSocketOrigin(nil)(originRequest("")))
	assert.False(t, checkWebSocketOrigin(nil)(originRequest("http://evil.com")))
	assert.True(t, checkWebSocketOrigin([]string{"*"})(originRequest("http://anything.com")))

	check := checkWebSocketOrigin([]string{"http://one.com", "http://two.com"})
	assert.True(t, check(originRequest("http://one.com")))
	assert.True(t, check(originRequest("http://two.com")))
	assert.False(t, check(originRequest("http://three.com")))
}

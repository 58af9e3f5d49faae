package gateway

import (
	"cmp"
	"crypto/sha256"
	"crypto/subtle"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/colloquy/internal/config"
)

// AuthResult is the verdict on a set of client credentials.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"` // token or password
	Reason string `json:"reason,omitempty"`
}

func denied(reason string) AuthResult {
	return AuthResult{Reason: reason}
}

// ResolvedAuth is the gateway auth config with environment fallbacks applied.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth fills empty credentials from COLLOQUY_GATEWAY_TOKEN and
// COLLOQUY_GATEWAY_PASSWORD. Without an explicit mode, a configured
// password selects password auth and anything else token auth.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{
		Mode:     cfg.Mode,
		Token:    cmp.Or(cfg.Token, os.Getenv("COLLOQUY_GATEWAY_TOKEN")),
		Password: cmp.Or(cfg.Password, os.Getenv("COLLOQUY_GATEWAY_PASSWORD")),
	}
	if auth.Mode == "" {
		auth.Mode = "token"
		if auth.Password != "" {
			auth.Mode = "password"
		}
	}
	return auth
}

// Authorize checks client credentials against the gateway's. Only the
// credential matching the server's mode is looked at.
func Authorize(server ResolvedAuth, client *ConnectAuth) AuthResult {
	if client == nil {
		return denied("no credentials provided")
	}

	var want, got string
	switch server.Mode {
	case "token":
		want, got = server.Token, client.Token
	case "password":
		want, got = server.Password, client.Password
	default:
		return denied("unknown auth mode: " + server.Mode)
	}

	switch {
	case want == "":
		return denied("server " + server.Mode + " not configured")
	case got == "":
		return denied(server.Mode + " required")
	case !safeEqual(got, want):
		return denied(server.Mode + "_mismatch")
	}
	return AuthResult{OK: true, Method: server.Mode}
}

// bearerAuth reads an "Authorization: Bearer <secret>" header. The secret
// is offered as both token and password; Authorize picks by mode.
func bearerAuth(r *http.Request) *ConnectAuth {
	secret, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || secret == "" {
		return nil
	}
	return &ConnectAuth{Token: secret, Password: secret}
}

// safeEqual compares digests so neither content nor length leaks through
// timing.
func safeEqual(a, b string) bool {
	da, db := sha256.Sum256([]byte(a)), sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}

const (
	authFailureWindow = 5 * time.Minute
	authMaxFailures   = 10
	authMaxHosts      = 10000
)

// failureWindow counts failures since first.
type failureWindow struct {
	first time.Time
	count int
}

// authRateLimiter blocks hosts with too many failed handshakes inside a
// fixed window. Expired windows are pruned when the host table fills up.
type authRateLimiter struct {
	mu    sync.Mutex
	hosts map[string]*failureWindow
	now   func() time.Time
}

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{
		hosts: make(map[string]*failureWindow),
		now:   time.Now,
	}
}

// remoteHost strips the port so failures are counted per host.
func remoteHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func (l *authRateLimiter) expired(w *failureWindow, now time.Time) bool {
	return now.Sub(w.first) >= authFailureWindow
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	host := remoteHost(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.hosts[host]
	if !ok {
		return true
	}
	if l.expired(w, l.now()) {
		delete(l.hosts, host)
		return true
	}
	return w.count < authMaxFailures
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := remoteHost(remoteAddr)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.hosts[host]
	if ok && l.expired(w, now) {
		w.first, w.count = now, 0
	}
	if !ok {
		if len(l.hosts) >= authMaxHosts {
			l.evict(now)
		}
		w = &failureWindow{first: now}
		l.hosts[host] = w
	}
	w.count++
}

// evict drops expired windows, or the oldest one when none has expired.
func (l *authRateLimiter) evict(now time.Time) {
	var oldest string
	for host, w := range l.hosts {
		if l.expired(w, now) {
			delete(l.hosts, host)
			continue
		}
		if oldest == "" || w.first.Before(l.hosts[oldest].first) {
			oldest = host
		}
	}
	if len(l.hosts) >= authMaxHosts && oldest != "" {
		delete(l.hosts, oldest)
	}
}

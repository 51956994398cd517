package mcp

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"codewarden/internal/apperr"
	"codewarden/internal/config"
	"codewarden/internal/logging"
)

// Admission gates HTTP requests before dispatch: API keys, IP allow-list,
// per-IP token bucket, global connection cap. stdio bypasses it entirely.
type Admission struct {
	keys       map[string]bool
	allowedIPs map[string]bool
	maxConns   int64
	active     atomic.Int64

	rate float64
	per  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

// bucket is a classic token bucket: refill is computed lazily on each take.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewAdmission builds the gate from config.
func NewAdmission(cfg *config.Config) *Admission {
	a := &Admission{
		keys:       make(map[string]bool),
		allowedIPs: make(map[string]bool),
		maxConns:   int64(cfg.MaxConnections),
		rate:       float64(cfg.RateLimit),
		per:        cfg.RatePeriod,
		buckets:    make(map[string]*bucket),
	}
	for _, k := range cfg.APIKeys {
		a.keys[k] = true
	}
	for _, ip := range cfg.AllowedIPs {
		a.allowedIPs[ip] = true
	}
	return a
}

// Check runs key, IP, and rate checks for one request. A non-nil error is one
// of Unauthorized or RateLimited.
func (a *Admission) Check(r *http.Request) error {
	if len(a.keys) > 0 {
		key := bearerToken(r.Header.Get("Authorization"))
		if key == "" || !a.keys[key] {
			logging.Get(logging.CategoryAdmission).Warn("Rejected request from %s: bad API key", remoteIP(r))
			return apperr.New(apperr.KindUnauthorized, "invalid or missing API key")
		}
	}

	ip := remoteIP(r)
	if len(a.allowedIPs) > 0 && !a.allowedIPs[ip] {
		logging.Get(logging.CategoryAdmission).Warn("Rejected request from %s: IP not allowed", ip)
		return apperr.New(apperr.KindUnauthorized, "IP address not allowed")
	}

	if a.rate > 0 && !a.take(ip) {
		logging.Get(logging.CategoryAdmission).Warn("Rate limited %s", ip)
		return apperr.New(apperr.KindRateLimited, "rate limit exceeded")
	}
	return nil
}

// take consumes one token from ip's bucket, refilling at rate/per.
func (a *Admission) take(ip string) bool {
	a.mu.Lock()
	b, ok := a.buckets[ip]
	if !ok {
		b = &bucket{tokens: a.rate, lastRefill: time.Now()}
		a.buckets[ip] = b
	}
	a.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * a.rate / a.per.Seconds()
	if b.tokens > a.rate {
		b.tokens = a.rate
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfterSeconds is the advisory wait reported on 429.
func (a *Admission) RetryAfterSeconds() int {
	return int(a.per.Seconds())
}

// Acquire claims a connection slot; false means the cap is reached.
func (a *Admission) Acquire() bool {
	if a.active.Add(1) > a.maxConns {
		a.active.Add(-1)
		return false
	}
	return true
}

// Release frees a slot claimed by Acquire.
func (a *Admission) Release() {
	a.active.Add(-1)
}

// ActiveConnections returns the current in-flight count.
func (a *Admission) ActiveConnections() int64 {
	return a.active.Load()
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

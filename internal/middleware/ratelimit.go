// Package middleware provides HTTP middleware for the SIEM.
package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"hostline-siem/internal/config"
)

// RateLimiter implements a fixed-window rate limiter with per-IP
// tracking and periodic cleanup of idle entries.
type RateLimiter struct {
	cfg         config.RateLimitConfig
	clients     map[string]*clientState
	mu          sync.Mutex
	exemptPaths map[string]bool
	stopCleanup chan struct{}
	logger      *slog.Logger
}

type clientState struct {
	count     int
	windowEnd time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
func NewRateLimiter(cfg config.RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	exemptPaths := make(map[string]bool)
	for _, path := range cfg.ExemptPaths {
		exemptPaths[path] = true
	}

	cleanup := cfg.CleanupPeriod
	if cleanup <= 0 {
		cleanup = 5 * time.Minute
	}
	cfg.CleanupPeriod = cleanup

	rl := &RateLimiter{
		cfg:         cfg,
		clients:     make(map[string]*clientState),
		exemptPaths: exemptPaths,
		stopCleanup: make(chan struct{}),
		logger:      logger,
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request from the given IP is within the limit
// and returns the window reset time.
func (rl *RateLimiter) Allow(ip string) (bool, time.Time) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[ip]
	if !ok || now.After(client.windowEnd) {
		client = &clientState{windowEnd: now.Add(rl.cfg.WindowSize)}
		rl.clients[ip] = client
	}

	if client.count >= rl.cfg.RequestsPerIP {
		return false, client.windowEnd
	}
	client.count++
	return true, client.windowEnd
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	now := time.Now()
	rl.mu.Lock()
	for ip, client := range rl.clients {
		if now.After(client.windowEnd) {
			delete(rl.clients, ip)
		}
	}
	rl.mu.Unlock()
}

// Stop terminates the cleanup loop.
func (rl *RateLimiter) Stop() {
	close(rl.stopCleanup)
}

// Middleware enforces the rate limit per client IP. Exempt paths bypass
// the limiter entirely.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled || rl.exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		allowed, reset := rl.Allow(ip)
		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(reset).Seconds())+1))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

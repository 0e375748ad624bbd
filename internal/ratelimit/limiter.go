package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
)

const (
	cleanupInterval = 5 * time.Minute
	// Identifiers whose newest request is older than this are purged.
	idleRetention = 10 * time.Minute
)

// Decision is the outcome of a limiter check. FailedOpen marks decisions
// where the limiter itself errored and defaulted to allow; callers can log
// or count those separately from genuine allows.
type Decision struct {
	Allowed    bool
	Remaining  int
	FailedOpen bool
}

// Limiter implements a sliding-window rate limiter per identifier (IP or
// user id). Availability is prioritized over strict limiting: any internal
// failure yields an allow with FailedOpen set.
type Limiter struct {
	Configuration *config.Config
	logger        *logger.Logger

	// Map of identifier -> accepted request timestamps inside the window
	windows      map[string][]time.Time
	windowsMutex sync.Mutex

	// Cleanup goroutine control
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}

	now func() time.Time // injectable clock for tests
}

// NewLimiter creates a new rate limiter
func NewLimiter(configuration *config.Config, logger *logger.Logger) *Limiter {
	rateLimiter := &Limiter{
		Configuration: configuration,
		logger:        logger,
		windows:       make(map[string][]time.Time),
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		now:           time.Now,
	}

	// Start cleanup goroutine
	go rateLimiter.cleanup()

	return rateLimiter
}

// Check applies the sliding-window rule for the identifier: timestamps older
// than window are dropped, and the request is accepted only while fewer than
// maxRequests accepted calls remain in the window.
func (rateLimiter *Limiter) Check(identifier string, maxRequests int, window time.Duration) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			rateLimiter.logger.Errorf("Rate limiter internal error, failing open: %v", r)
			decision = Decision{Allowed: true, FailedOpen: true}
		}
	}()

	if !rateLimiter.Configuration.RateLimitEnabled {
		return Decision{Allowed: true, Remaining: maxRequests}
	}

	currentTime := rateLimiter.now()
	cutoff := currentTime.Add(-window)

	rateLimiter.windowsMutex.Lock()
	defer rateLimiter.windowsMutex.Unlock()

	timestamps := rateLimiter.windows[identifier]
	live := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	if len(live) >= maxRequests {
		rateLimiter.windows[identifier] = live
		return Decision{Allowed: false}
	}

	live = append(live, currentTime)
	rateLimiter.windows[identifier] = live
	return Decision{Allowed: true, Remaining: maxRequests - len(live)}
}

// Allow checks a request against the configured default limit.
func (rateLimiter *Limiter) Allow(identifier string) bool {
	decision := rateLimiter.Check(identifier, rateLimiter.Configuration.RateLimitRequests, rateLimiter.Configuration.RateLimitWindow)
	return decision.Allowed
}

// GetClientIP extracts the real client IP from the request
func (rateLimiter *Limiter) GetClientIP(request *http.Request) string {
	// Check X-Forwarded-For header
	if xForwardedFor := request.Header.Get("X-Forwarded-For"); xForwardedFor != "" {
		if clientIP := net.ParseIP(xForwardedFor); clientIP != nil {
			return clientIP.String()
		}
		// If multiple IPs, take the first one
		if host, _, err := net.SplitHostPort(xForwardedFor); err == nil {
			if clientIP := net.ParseIP(host); clientIP != nil {
				return clientIP.String()
			}
		}
	}

	// Check X-Real-IP header
	if xRealIP := request.Header.Get("X-Real-IP"); xRealIP != "" {
		if clientIP := net.ParseIP(xRealIP); clientIP != nil {
			return clientIP.String()
		}
	}

	// Fall back to RemoteAddr
	clientIP, _, parseError := net.SplitHostPort(request.RemoteAddr)
	if parseError != nil {
		return request.RemoteAddr
	}
	return clientIP
}

// cleanup purges identifiers idle past the retention window to bound memory
func (rateLimiter *Limiter) cleanup() {
	for {
		select {
		case <-rateLimiter.cleanupTicker.C:
			rateLimiter.windowsMutex.Lock()
			cutoff := rateLimiter.now().Add(-idleRetention)
			for identifier, timestamps := range rateLimiter.windows {
				if len(timestamps) == 0 || timestamps[len(timestamps)-1].Before(cutoff) {
					delete(rateLimiter.windows, identifier)
				}
			}
			rateLimiter.windowsMutex.Unlock()
		case <-rateLimiter.stopCleanup:
			rateLimiter.cleanupTicker.Stop()
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (rateLimiter *Limiter) Stop() {
	close(rateLimiter.stopCleanup)
}

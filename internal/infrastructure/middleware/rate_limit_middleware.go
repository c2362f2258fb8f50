package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"screenrelay/pkg/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// The stream plane is never throttled here: a WebSocket upgrade is one
// request for hours of traffic, and probes hitting the ops endpoints at a
// fixed cadence would eat the budget of viewers behind the same proxy.
var rateLimitExemptPaths = map[string]struct{}{
	"/ws":      {},
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// visitorIdleTTL bounds how long a per-IP limiter outlives its last request
// before a sweep drops it.
const visitorIdleTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorLimiters keeps one token bucket per client IP and evicts buckets
// that have gone idle, so a churn of one-shot clients cannot grow the map
// without bound.
type visitorLimiters struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      rate.Limit
	burst     int
	lastSweep time.Time
}

func newVisitorLimiters(r rate.Limit, burst int) *visitorLimiters {
	return &visitorLimiters{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    burst,
	}
}

func (s *visitorLimiters) allow(ip string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= visitorIdleTTL {
		s.sweep(now)
	}

	v, ok := s.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.rate, s.burst)}
		s.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

// sweep drops limiters idle for the TTL or longer. Caller holds the mutex.
func (s *visitorLimiters) sweep(now time.Time) {
	for ip, v := range s.visitors {
		if now.Sub(v.lastSeen) >= visitorIdleTTL {
			delete(s.visitors, ip)
		}
	}
	s.lastSweep = now
}

// clientIP extracts the IP part from the request's remote address.
func clientIP(r *http.Request) string {
	// Try X-Forwarded-For first (behind proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := net.ParseIP(xff); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewHTTPRateLimitMiddleware throttles the control-plane API per client IP,
// with an optional global cap on concurrent requests.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	store := newVisitorLimiters(
		rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond),
		cfg.RateLimiting.HTTP.Burst,
	)

	var globalSem chan struct{}
	if cfg.RateLimiting.HTTP.MaxConcurrent > 0 {
		globalSem = make(chan struct{}, cfg.RateLimiting.HTTP.MaxConcurrent)
	}

	return func(c *gin.Context) {
		if _, exempt := rateLimitExemptPaths[c.Request.URL.Path]; exempt {
			c.Next()
			return
		}

		// Global concurrent requests throttling
		if globalSem != nil {
			select {
			case globalSem <- struct{}{}:
				defer func() { <-globalSem }()
			default:
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error": "too many concurrent requests",
				})
				return
			}
		}

		if !store.allow(clientIP(c.Request), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 1,
			})
			return
		}
		c.Next()
	}
}

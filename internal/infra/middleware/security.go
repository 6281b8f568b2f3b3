package middleware

import (
	"container/list"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SecurityHeaders adds OWASP-recommended security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// HSTS only makes sense over TLS.
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security",
				"max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// LimiterConfig holds configuration for the request-admission limiter.
type LimiterConfig struct {
	RequestsPerMin int      // maximum sustained requests per minute per key
	Burst          int      // maximum burst per key
	MaxKeys        int      // bound on distinct tracked keys (oldest evicted)
	TrustedProxies []string // IPs allowed to set X-Forwarded-For / X-Real-IP
}

// Limiter is a token-bucket request-admission gate keyed by client
// identity. The key table is bounded: when MaxKeys is exceeded the
// least-recently-seen key is evicted, so memory stays flat under abuse.
//
// It is constructor-injected rather than package-global so tests can
// create and discard isolated instances.
type Limiter struct {
	cfg LimiterConfig

	mu    sync.Mutex
	keys  map[string]*list.Element
	order *list.List // least-recently-seen at front
}

type limiterEntry struct {
	key     string
	limiter *rate.Limiter
}

// NewLimiter creates a Limiter with the given configuration.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMin
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	return &Limiter{
		cfg:   cfg,
		keys:  make(map[string]*list.Element),
		order: list.New(),
	}
}

// Allow reports whether a request under key is admitted, consuming one
// token when it is.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// RetryAfter estimates how long a denied caller should wait before the
// next request can succeed. The probe reservation is cancelled so no
// token is consumed.
func (l *Limiter) RetryAfter(key string) time.Duration {
	res := l.bucket(key).Reserve()
	delay := res.Delay()
	res.Cancel()
	return delay
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.keys[key]; ok {
		l.order.MoveToBack(elem)
		return elem.Value.(*limiterEntry).limiter
	}

	if l.order.Len() >= l.cfg.MaxKeys {
		oldest := l.order.Front()
		l.order.Remove(oldest)
		delete(l.keys, oldest.Value.(*limiterEntry).key)
	}

	entry := &limiterEntry{
		key:     key,
		limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerMin)/60.0, l.cfg.Burst),
	}
	l.keys[key] = l.order.PushBack(entry)
	return entry.limiter
}

// RateLimit gates requests through the limiter before the wrapped handler
// runs. The limiter key is the client IP prefixed with routeTag so
// separate route classes get separate budgets. Denied requests receive a
// JSON envelope with a 429 status and never reach the handler.
func RateLimit(l *Limiter, routeTag string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := routeTag + ":" + ClientIP(r, l.cfg.TrustedProxies)

			if !l.Allow(key) {
				retryAfter := int(l.RetryAfter(key).Seconds()) + 1
				w.Header().Set("X-RateLimit-Limit", fmt.Sprint(l.cfg.RequestsPerMin))
				w.Header().Set("Retry-After", fmt.Sprint(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"success":false,"error":"Too many requests","code":"RATE_LIMITED","retry_after":%d}`, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client IP from the request. Proxy headers are
// trusted only when the direct peer is in trustedProxies; otherwise the
// TCP peer address is used, which prevents X-Forwarded-For spoofing.
func ClientIP(r *http.Request, trustedProxies []string) string {
	directIP := r.RemoteAddr
	if idx := strings.LastIndex(directIP, ":"); idx > 0 {
		directIP = directIP[:idx]
	}

	if len(trustedProxies) == 0 {
		return directIP
	}

	trusted := false
	for _, p := range trustedProxies {
		if directIP == p {
			trusted = true
			break
		}
	}
	if !trusted {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return directIP
}

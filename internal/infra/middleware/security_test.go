package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'self'",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	// HSTS only over TLS.
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS set on plain HTTP response")
	}
}

func TestLimiterAllowsBurstThenDenies(t *testing.T) {
	l := NewLimiter(LimiterConfig{RequestsPerMin: 60, Burst: 3, MaxKeys: 100})

	for i := 0; i < 3; i++ {
		if !l.Allow("client") {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if l.Allow("client") {
		t.Error("request beyond burst admitted")
	}

	// Another key has its own bucket.
	if !l.Allow("other") {
		t.Error("fresh key denied")
	}
}

func TestLimiterRetryAfter(t *testing.T) {
	l := NewLimiter(LimiterConfig{RequestsPerMin: 60, Burst: 1, MaxKeys: 100})

	l.Allow("client")
	delay := l.RetryAfter("client")
	if delay <= 0 {
		t.Errorf("RetryAfter = %v, want positive", delay)
	}

	// The probe must not consume the token the caller is waiting for.
	if l.RetryAfter("client") <= 0 {
		t.Error("second probe reports no wait")
	}
}

func TestLimiterEvictsOldestKey(t *testing.T) {
	l := NewLimiter(LimiterConfig{RequestsPerMin: 60, Burst: 1, MaxKeys: 3})

	for i := 0; i < 10; i++ {
		l.Allow(fmt.Sprintf("key-%d", i))
	}
	if l.Len() != 3 {
		t.Errorf("Len = %d, want 3", l.Len())
	}

	// An evicted key comes back with a fresh bucket.
	if !l.Allow("key-0") {
		t.Error("evicted key not readmitted with a fresh bucket")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewLimiter(LimiterConfig{RequestsPerMin: 60, Burst: 1, MaxKeys: 100})
	handler := RateLimit(l, "chat")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.RemoteAddr = "203.0.113.5:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("X-RateLimit-Limit = %q, want %q", rec.Header().Get("X-RateLimit-Limit"), "60")
	}

	var body struct {
		Success    bool   `json:"success"`
		Error      string `json:"error"`
		Code       string `json:"code"`
		RetryAfter int    `json:"retry_after"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success || body.Code != "RATE_LIMITED" || body.RetryAfter <= 0 {
		t.Errorf("body = %+v", body)
	}
}

func TestRateLimitSeparatesClients(t *testing.T) {
	l := NewLimiter(LimiterConfig{RequestsPerMin: 60, Burst: 1, MaxKeys: 100})
	handler := RateLimit(l, "chat")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, addr := range []string{"203.0.113.5:1", "203.0.113.6:1"} {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.RemoteAddr = addr

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("client %d: status %d, want 200", i, rec.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		trusted    []string
		want       string
	}{
		{"direct peer", "203.0.113.5:1234", "", "", nil, "203.0.113.5"},
		{"xff ignored without trust", "203.0.113.5:1234", "198.51.100.7", "", nil, "203.0.113.5"},
		{"xff ignored from untrusted peer", "203.0.113.5:1234", "198.51.100.7", "", []string{"10.0.0.1"}, "203.0.113.5"},
		{"xff honored from trusted proxy", "10.0.0.1:1234", "198.51.100.7", "", []string{"10.0.0.1"}, "198.51.100.7"},
		{"first xff entry wins", "10.0.0.1:1234", "198.51.100.7, 10.0.0.1", "", []string{"10.0.0.1"}, "198.51.100.7"},
		{"x-real-ip fallback", "10.0.0.1:1234", "", "198.51.100.9", []string{"10.0.0.1"}, "198.51.100.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			if got := ClientIP(req, tt.trusted); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"tuweeter/internal/logging"
)

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.7 ", "::1"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	want := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
		netip.MustParsePrefix("::1/128"),
	}
	if len(prefixes) != len(want) {
		t.Fatalf("got %v, want %v", prefixes, want)
	}
	for i := range want {
		if prefixes[i] != want[i] {
			t.Errorf("prefix %d = %v, want %v", i, prefixes[i], want[i])
		}
	}

	if _, err := ParseTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Error("expected an error for a malformed entry")
	}
}

func TestTrustedRealIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"trusted proxy forwards client", "10.1.2.3:5000", "203.0.113.9", "203.0.113.9"},
		{"untrusted peer cannot spoof", "198.51.100.4:5000", "203.0.113.9", "198.51.100.4"},
		{"trusted proxy without header", "10.1.2.3:5000", "", "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = logging.ClientIP(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("client ip = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_IgnoresSpoofedForwardingHeaders(t *testing.T) {
	// ARRANGE: no trusted proxies, one client rotating X-Forwarded-For
	limiter := NewRateLimiter(2, time.Minute)
	handler := TrustedRealIP(nil)(limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	// ACT
	var codes []int
	for _, spoofed := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodGet, "/tweets", nil)
		req.RemoteAddr = "198.51.100.4:5000"
		req.Header.Set("X-Forwarded-For", spoofed)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	// ASSERT
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("statuses = %v, third request should be limited", codes)
	}
}

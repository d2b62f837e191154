package middleware

import (
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tuweeter/internal/httputil"
	"tuweeter/internal/logging"
	"tuweeter/internal/metrics"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter allows each client IP a burst of requests per window, refilled
// evenly across the window. Idle visitors are swept lazily.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
		window:   window,
		now:      time.Now,
	}
}

// allow reports whether ip may proceed and, if not, how long until it may.
func (l *RateLimiter) allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.window {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.window {
				delete(l.visitors, key)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, delay
}

// Middleware answers 429 with Retry-After once a client exhausts its budget.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := logging.ClientIP(r)
		ok, wait := l.allow(ip)
		if !ok {
			metrics.RateLimited.Inc()
			logging.Ctx(r.Context()).Warn().Str(logging.FieldClientIP, ip).Msg("rate limited")
			httputil.WriteTooManyRequests(w, int(math.Ceil(wait.Seconds())), "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

package server

import (
	"net"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	logx "github.com/Chative-rag-assistant/server/pkg/logger"
)

// visitorTTL is how long an idle client keeps its limiter.
const visitorTTL = 3 * time.Minute

// rateLimiter hands every client address its own token bucket.
type rateLimiter struct {
	visitors *cache.Cache
	rps      float64
	burst    int
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		visitors: cache.New(visitorTTL, time.Minute),
		rps:      rps,
		burst:    burst,
	}
}

func (l *rateLimiter) limiter(ip string) *rate.Limiter {
	if x, ok := l.visitors.Get(ip); ok {
		lim := x.(*rate.Limiter)
		l.visitors.SetDefault(ip, lim)
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	if err := l.visitors.Add(ip, lim, cache.DefaultExpiration); err != nil {
		// another request registered the address first
		if x, ok := l.visitors.Get(ip); ok {
			return x.(*rate.Limiter)
		}
	}
	return lim
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.limiter(ip).Allow() {
			logx.Warn().Str("remote", ip).Msg("chat rate limit exceeded")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": errTooManyRequests})
			return
		}
		next.ServeHTTP(w, r)
	})
}

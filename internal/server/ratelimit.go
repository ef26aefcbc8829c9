package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterPruneAbove = 1024
)

// clientLimiter keeps one token bucket per client IP. A nil clientLimiter
// allows everything.
type clientLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(cfg RateLimitConfig) *clientLimiter {
	if cfg.PerSecond <= 0 {
		return nil
	}
	return &clientLimiter{
		limit:   rate.Limit(cfg.PerSecond),
		burst:   max(cfg.Burst, 1),
		now:     time.Now,
		clients: map[string]*clientBucket{},
	}
}

// reserve reports whether key may proceed now, and otherwise how long it
// should wait before retrying.
func (l *clientLimiter) reserve(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= limiterPruneAbove {
			l.pruneLocked(now)
		}
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *clientLimiter) pruneLocked(now time.Time) {
	for key, b := range l.clients {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.clients, key)
		}
	}
}

// clientKey identifies the caller by remote IP. Forwarding headers are not
// trusted.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Package ratelimit implements a per-IP token-bucket limiter for
// tecp-ledgerd's HTTP surface, adapted from core/pkg/api/middleware.go's
// GlobalRateLimiter: one x/time/rate.Limiter per visitor IP, with a
// background sweep evicting stale entries.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tecp-protocol/tecp/internal/apierr"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks a token bucket per source IP.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	stop     chan struct{}
}

// New starts a limiter allowing rps requests/second per IP with the
// given burst, plus a background goroutine evicting visitors idle for
// more than 3 minutes.
func New(rps float64, burst int) *Limiter {
	l := &Limiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Close stops the background sweep goroutine.
func (l *Limiter) Close() { close(l.stop) }

func (l *Limiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for ip, v := range l.visitors {
				if time.Since(v.lastSeen) > 3*time.Minute {
					delete(l.visitors, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *Limiter) getVisitor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst), lastSeen: time.Now()}
		l.visitors[ip] = v
		return v.limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Middleware wraps next with per-IP rate limiting, responding 429 via
// apierr.WriteTooManyRequests on exhaustion.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = strings.Trim(r.RemoteAddr, "[]")
		}
		if !l.getVisitor(ip).Allow() {
			apierr.WriteTooManyRequests(w, 1)
			return
		}
		next.ServeHTTP(w, r)
	})
}

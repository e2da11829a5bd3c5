package devapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// loginLimiter throttles login attempts per client address.
type loginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newLoginLimiter allows perMinute attempts per address, with bursts of the
// same size. perMinute <= 0 disables limiting.
func newLoginLimiter(perMinute int) *loginLimiter {
	l := &loginLimiter{
		limiters: make(map[string]*visitor),
		limit:    rate.Inf,
		burst:    1,
	}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = perMinute
	}
	return l
}

func (l *loginLimiter) Allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.limiters[addr]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[addr] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// prune forgets addresses not seen for longer than idle.
func (l *loginLimiter) prune(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	for addr, v := range l.limiters {
		if v.lastSeen.Before(cutoff) {
			delete(l.limiters, addr)
		}
	}
}

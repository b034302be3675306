package gate

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/openagora/agora/pkg/api"
)

// KeyedLimiter rate-limits by caller key (agent key, runner token, or
// remote address as a fallback). Nonce issuance is cheap but unauthenticated
// storage growth, so it gets a ceiling.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewKeyedLimiter(rps float64, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *KeyedLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Allow reports whether the keyed caller may proceed.
func (l *KeyedLimiter) Allow(key string) bool {
	return l.limiter(key).Allow()
}

// LimitMiddleware applies the keyed limiter to a handler, keying on the
// strongest identifier present in the request.
func LimitMiddleware(l *KeyedLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Agent-Key")
		if key == "" {
			key = r.Header.Get("X-Runner-Token")
		}
		if key == "" {
			key = r.RemoteAddr
		}
		if !l.Allow(key) {
			api.WriteTooManyRequests(w, 1)
			return
		}
		next.ServeHTTP(w, r)
	})
}

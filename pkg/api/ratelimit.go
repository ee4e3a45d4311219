package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okulev/facs/pkg/config"
)

const (
	// visitorPruneInterval is how often quiet clients are dropped from
	// the table.
	visitorPruneInterval = 5 * time.Minute

	// visitorTTL is how long a client's bucket survives without
	// traffic.
	visitorTTL = 10 * time.Minute
)

// visitor is the token bucket of one client address.
type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// limiterTable hands out one token bucket per client IP and prunes
// entries that have gone quiet, keeping the table bounded under
// address churn.
type limiterTable struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
}

func newLimiterTable(requestsPerMinute int) *limiterTable {
	t := &limiterTable{
		visitors: make(map[string]*visitor, 64),
		rps:      rate.Limit(float64(requestsPerMinute) / 60.0),
		// A burst may spend the whole minute's budget at once.
		burst: requestsPerMinute,
	}

	go t.prune()

	return t
}

func (t *limiterTable) bucketFor(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(t.rps, t.burst)}
		t.visitors[ip] = v
	}

	v.lastSeen = time.Now()

	return v.bucket
}

func (t *limiterTable) prune() {
	ticker := time.NewTicker(visitorPruneInterval)
	defer ticker.Stop()

	for range ticker.C {
		t.mu.Lock()

		for ip, v := range t.visitors {
			if time.Since(v.lastSeen) > visitorTTL {
				delete(t.visitors, ip)
			}
		}

		t.mu.Unlock()
	}
}

// rateLimitMiddleware enforces a per-IP request budget.
func (s *server) rateLimitMiddleware(
	cfg config.RateLimitConfig,
) func(http.Handler) http.Handler {
	table := newLimiterTable(cfg.RequestsPerMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !table.bucketFor(clientIP(r)).Allow() {
				writeJSON(w, http.StatusTooManyRequests,
					errorResponse{"rate limit exceeded"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}

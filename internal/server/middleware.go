package server

import (
	"container/list"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// pagePolicy allows the page's own stylesheet and reload script only; block
// output is static markup. connect-src covers the /ws socket.
const pagePolicy = "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data: https:; connect-src 'self'; frame-ancestors 'none'"

// SecurityHeadersMiddleware adds security headers to all responses.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", pagePolicy)
			next.ServeHTTP(w, r)
		})
	}
}

const (
	defaultMaxClients = 10000
	clientIdleTimeout = 10 * time.Minute
	sweepInterval     = 5 * time.Minute
	evictLogInterval  = 30 * time.Second
)

type client struct {
	ip       string
	bucket   *rate.Limiter
	lastSeen time.Time
}

// clientTable holds one token bucket per client address, bounded to max
// entries with least-recently-seen eviction.
type clientTable struct {
	mu      sync.Mutex
	byIP    map[string]*list.Element
	seen    *list.List // front = most recent
	max     int
	limit   rate.Limit
	burst   int
	logger  *zap.Logger
	evicted int
	logged  time.Time
}

func newClientTable(rps float64, burst, max int, logger *zap.Logger) *clientTable {
	return &clientTable{
		byIP:   make(map[string]*list.Element),
		seen:   list.New(),
		max:    max,
		limit:  rate.Limit(rps),
		burst:  burst,
		logger: logger,
	}
}

// allow spends a token from ip's bucket, creating the bucket on first sight.
func (t *clientTable) allow(ip string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.byIP[ip]
	if !ok {
		if t.seen.Len() >= t.max {
			t.evictOldest(now)
		}
		el = t.seen.PushFront(&client{ip: ip, bucket: rate.NewLimiter(t.limit, t.burst)})
		t.byIP[ip] = el
	} else {
		t.seen.MoveToFront(el)
	}

	c := el.Value.(*client)
	c.lastSeen = now
	return c.bucket.AllowN(now, 1)
}

// evictOldest must be called with mu held.
func (t *clientTable) evictOldest(now time.Time) {
	back := t.seen.Back()
	if back == nil {
		return
	}
	t.seen.Remove(back)
	delete(t.byIP, back.Value.(*client).ip)

	t.evicted++
	if now.Sub(t.logged) >= evictLogInterval {
		t.logger.Warn("[RateLimit] Evicted least-recent clients",
			zap.Int("evicted", t.evicted),
			zap.Int("capacity", t.max))
		t.logged = now
		t.evicted = 0
	}
}

// forgetIdle drops clients not seen since cutoff.
func (t *clientTable) forgetIdle(cutoff time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for el := t.seen.Back(); el != nil; {
		c := el.Value.(*client)
		if c.lastSeen.After(cutoff) {
			break
		}
		prev := el.Prev()
		t.seen.Remove(el)
		delete(t.byIP, c.ip)
		el = prev
	}
}

// RateLimitMiddleware limits requests with a token bucket per client IP.
// maxIPs bounds the number of tracked clients (default 10000).
//
// Idle clients are swept until ctx is cancelled; the returned channel is
// closed when the sweeper exits.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int, maxIPs int, logger *zap.Logger) (func(http.Handler) http.Handler, <-chan struct{}) {
	if maxIPs <= 0 {
		maxIPs = defaultMaxClients
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	table := newClientTable(rps, burst, maxIPs, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				table.forgetIdle(now.Add(-clientIdleTimeout))
			case <-ctx.Done():
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !table.allow(clientIP(r), time.Now()) {
				w.Header().Set("Retry-After", "1")
				errorJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}, done
}

// clientIP returns the request's client address. Forwarding headers count
// only when the peer is a loopback or private address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return host
	}
	if !peer.IsLoopback() && !peer.IsPrivate() {
		return peer.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer.String()
}

func errorJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{message})
}

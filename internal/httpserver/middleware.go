package httpserver

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/blackmichael/discovery/internal/auth"
	"golang.org/x/time/rate"
)

type ctxKey int

const (
	viewerKey ctxKey = iota
	tokenKey
)

func viewerFrom(ctx context.Context) string {
	id, _ := ctx.Value(viewerKey).(string)
	return id
}

func tokenFrom(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey).(string)
	return tok
}

// authed verifies the bearer token and stores the viewer id in the request
// context. Browsers cannot set headers on a websocket handshake, so the
// access_token query parameter is accepted as well.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = r.URL.Query().Get("access_token")
		}
		viewerID, err := s.svc.Verifier.ViewerID(token)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthenticated) {
				s.logger.Error("token verification failed", "error", err)
			}
			writeError(w, http.StatusUnauthorized, "Unauthenticated", "a valid access token is required")
			return
		}

		ctx := context.WithValue(r.Context(), viewerKey, viewerID)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// limited applies the per-viewer rate limit. It must run inside authed.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID := viewerFrom(r.Context())
		if ok, retry := s.limiter.allow(viewerID); !ok {
			s.logger.Warn("rate limit exceeded", "viewer_id", viewerID, "path", r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "RateLimited", "too many requests")
			return
		}
		next(w, r)
	}
}

const (
	visitorTTL    = 3 * time.Minute
	sweepInterval = time.Minute
)

// viewerLimiter holds one token bucket per viewer. Idle buckets are swept
// lazily on access.
type viewerLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newViewerLimiter(rps float64, burst int) *viewerLimiter {
	return &viewerLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// allow reports whether viewerID may proceed and, if not, how long until a
// token is available.
func (l *viewerLimiter) allow(viewerID string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > sweepInterval {
		for id, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, id)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[viewerID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[viewerID] = v
	}
	v.lastSeen = now

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *viewerLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

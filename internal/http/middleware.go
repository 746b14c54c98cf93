package http

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fjod/petmarket/internal/identity"
	"github.com/fjod/petmarket/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	SessionCookieName = "session_token"
	SessionHeader     = "X-Session-Token"
)

type guestSessionKey struct{}

// sessionMintedKey marks a request whose guest session was issued by this
// request rather than presented by the client.
type sessionMintedKey struct{}

// IdentityMiddleware puts an identity.Principal on every request. A valid
// bearer token makes an Account; otherwise the request is a Guest, and a new
// session token is issued when the client sent none.
func IdentityMiddleware(tokens *identity.Tokens, sessionTTL time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			session := sessionToken(r)
			if session != "" {
				ctx = context.WithValue(ctx, guestSessionKey{}, session)
			}

			if raw, ok := bearerToken(r); ok {
				acc, err := tokens.Parse(raw)
				if err != nil {
					respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
					return
				}
				next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(ctx, acc)))
				return
			}

			if session == "" {
				session = uuid.NewString()
				ctx = context.WithValue(ctx, sessionMintedKey{}, true)
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    session,
					Path:     "/",
					MaxAge:   int(sessionTTL.Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(SessionHeader, session)
			next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(ctx, identity.Guest{SessionToken: session})))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get(SessionHeader)
}

// guestSession is the anonymous session sent with the request, if any,
// even when the request also carries an account token.
func guestSession(ctx context.Context) string {
	s, _ := ctx.Value(guestSessionKey{}).(string)
	return s
}

func sessionMinted(ctx context.Context) bool {
	minted, _ := ctx.Value(sessionMintedKey{}).(bool)
	return minted
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// OwnerRateLimiter keeps one token bucket per cart owner.
type OwnerRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rps       rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewOwnerRateLimiter(rps float64, burst int) *OwnerRateLimiter {
	return &OwnerRateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (l *OwnerRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.idle {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.idle {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Middleware must run after IdentityMiddleware.
func (l *OwnerRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(rateLimitKey(r)) {
			w.Header().Set("Retry-After", "1")
			respondError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitKey charges a request to its cart owner. A guest whose session was
// just minted has no history to be charged to, so it is charged to its client
// address instead; otherwise every cookieless request would get a fresh bucket.
func rateLimitKey(r *http.Request) string {
	p, ok := identity.FromContext(r.Context())
	if !ok || sessionMinted(r.Context()) {
		return "ip:" + clientIP(r)
	}
	return p.CartOwner().Key()
}

// clientIP is RemoteAddr without the port. middleware.RealIP may already
// have replaced it with a bare address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestLogger logs one line per request through zerolog.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Ctx(r.Context()).Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

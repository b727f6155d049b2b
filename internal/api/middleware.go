package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/machineid-io/machineid-core/internal/org"
	"github.com/machineid-io/machineid-core/internal/requestid"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	// ctxKeyOrg is the context key for the authenticated organisation.
	ctxKeyOrg contextKey = "org"
)

// orgFromContext returns the organisation the org-key middleware
// authenticated, or nil on routes outside that middleware.
func orgFromContext(ctx context.Context) *org.Organization {
	o, _ := ctx.Value(ctxKeyOrg).(*org.Organization)
	return o
}

// requestIDMiddleware stamps every request with a correlation ID.
// If the client sends an X-Request-ID header, it is used; otherwise one is generated.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = requestid.Generate()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := requestid.NewContext(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestid.FromContext(r.Context()),
		)
	})
}

// recoveryMiddleware catches panics in handlers and returns a 500 response.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered in HTTP handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", requestid.FromContext(r.Context()),
				)
				writeInternalError(w, r, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles Cross-Origin Resource Sharing headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", joinOrDefault(s.cfg.CORS.AllowedMethods, "GET, POST, PATCH, DELETE, OPTIONS"))
			w.Header().Set("Access-Control-Allow-Headers", joinOrDefault(s.cfg.CORS.AllowedHeaders, "Authorization, Content-Type, X-Org-Key, X-Request-ID"))
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// maxRequestBodySize is the maximum allowed request body size (64 KB).
// Admission payloads are a single device identifier; anything bigger
// is abuse.
const maxRequestBodySize = 64 << 10

// bodySizeLimitMiddleware limits the size of incoming request bodies to prevent
// denial-of-service attacks via oversized payloads.
func (s *Server) bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// orgKeyHeader carries the organisation credential on every
// agent-facing call.
const orgKeyHeader = "x-org-key"

// orgAuthMiddleware authenticates the organisation key and loads the
// organisation into the request context.
//
// A missing key, an unknown key and a suspended organisation fail
// with distinct codes so callers can tell configuration mistakes from
// account state. Key lookup happens by digest; raw keys are never
// stored or logged.
func (s *Server) orgAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(orgKeyHeader))
		if key == "" {
			writeUnauthorized(w, r, ErrCodeMissingOrgKey, "x-org-key header is required")
			return
		}

		o, err := s.orgs.GetByKeyHash(r.Context(), org.HashKey(key))
		if err != nil {
			if errors.Is(err, org.ErrNotFound) {
				writeUnauthorized(w, r, ErrCodeInvalidOrgKey, "organisation key not recognised")
				return
			}
			s.logger.Error("org key lookup failed", "error", err)
			writeUnavailable(w, r)
			return
		}

		if !o.IsActive() {
			writeError(w, r, http.StatusForbidden, ErrCodeOrgSuspended, "organisation is suspended")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyOrg, o)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminAuthMiddleware validates admin bearer tokens (HS256, role=admin).
// Tokens are minted by machineidctl from the shared admin secret.
func (s *Server) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeUnauthorized(w, r, ErrCodeUnauthorized, "bearer token required")
			return
		}

		claims := jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.secCfg.AdminToken.Secret), nil
		})
		if err != nil || !parsed.Valid {
			writeUnauthorized(w, r, ErrCodeUnauthorized, "invalid or expired token")
			return
		}

		if role, _ := claims["role"].(string); role != "admin" {
			writeError(w, r, http.StatusForbidden, ErrCodeUnauthorized, "admin role required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// orgLimiters hands out one token bucket per organisation.
type orgLimiters struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
}

func newOrgLimiters(requestsPerMinute, burst int) *orgLimiters {
	if burst <= 0 {
		burst = requestsPerMinute
	}
	return &orgLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
	}
}

func (l *orgLimiters) get(orgID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[orgID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[orgID] = limiter
	}
	return limiter
}

// rateLimitMiddleware enforces the per-organisation request budget.
// Runs after org auth so the bucket is keyed by organisation, not
// caller address. Disabled limiters are simply not installed.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o := orgFromContext(r.Context())
		if o == nil || s.limiters.get(o.ID).Allow() {
			next.ServeHTTP(w, r)
			return
		}

		writeJSON(w, http.StatusTooManyRequests, Error{
			Status:    http.StatusTooManyRequests,
			Code:      ErrCodeRateLimited,
			Message:   "request budget exhausted, slow down",
			RequestID: requestid.FromContext(r.Context()),
			Retryable: true,
		})
	})
}

// isAllowedOrigin checks if the origin is in the allowed list.
// An empty list allows all origins (dev mode).
func (s *Server) isAllowedOrigin(origin string) bool {
	if len(s.cfg.CORS.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// joinOrDefault joins a string slice with ", " or returns the default if empty.
func joinOrDefault(values []string, defaultVal string) string {
	if len(values) == 0 {
		return defaultVal
	}
	result := values[0]
	for _, v := range values[1:] {
		result += ", " + v
	}
	return result
}

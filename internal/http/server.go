package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "tripstats/internal/log"
	"tripstats/internal/services"
	"tripstats/internal/trips"
)

const (
	defaultMaxUploadBytes = 20 << 20
	defaultRateLimit      = 60
)

// Options tunes a Server. Zero values select the defaults.
type Options struct {
	// MaxUploadBytes caps the size of one upload request.
	MaxUploadBytes int64
	// RateLimit is the number of mutating requests allowed per client and minute.
	RateLimit int
	// Ready is pinged by /readyz when the store talks to a remote database.
	Ready  trips.Pinger
	Logger *applog.Logger
}

type Server struct {
	http.Server
	trips          *services.TripService
	ready          trips.Pinger
	rateLimiter    *rateLimiter
	metrics        *securityMetrics
	maxUploadBytes int64
	started        time.Time

	shutdownOnce sync.Once
}

// NewServer configures the trip API routes, returning a ready-to-run http.Server.
func NewServer(addr string, svc *services.TripService, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           applog.Middleware(logger)(mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
		trips:          svc,
		ready:          opts.Ready,
		rateLimiter:    newRateLimiter(opts.RateLimit),
		metrics:        &securityMetrics{},
		maxUploadBytes: opts.MaxUploadBytes,
		started:        time.Now(),
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /users/{userID}/files", s.withSecurityHeaders(s.handleUpload))
	mux.HandleFunc("GET /users/{userID}/files", s.withSecurityHeaders(s.handleFiles))
	mux.HandleFunc("GET /users/{userID}/stats", s.withSecurityHeaders(s.handleStats))
	mux.HandleFunc("GET /users/{userID}/top", s.withSecurityHeaders(s.handleTop))
	mux.HandleFunc("GET /users/{userID}/cars/{plate}", s.withSecurityHeaders(s.handleCar))
	mux.HandleFunc("GET /users/{userID}/drivers/{name}", s.withSecurityHeaders(s.handleDriver))
	mux.HandleFunc("GET /users/{userID}/export", s.withSecurityHeaders(s.handleExport))
	mux.HandleFunc("DELETE /users/{userID}/trips", s.withSecurityHeaders(s.handleClear))

	return s
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, request IDs and
// request logging to an API handler.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r, s.metrics)

		requestID := r.Header.Get(requestIDHeader)
		if !validRequestID(requestID) {
			requestID = generateRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)

		handler := applog.RequestIDMiddleware(func(*http.Request) string { return requestID })
		handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reqLog := applog.NewStructuredLogger(applog.FromContext(ctx))
			reqLog.LogHTTPStart(ctx, r, clientIP)

			if detectSuspiciousRequest(r, s.metrics) {
				applog.FromContext(ctx).WarnContext(ctx, "Suspicious request",
					applog.FieldClientIP, clientIP,
					applog.FieldMethod, r.Method,
					applog.FieldPath, r.URL.Path,
					applog.FieldUserAgent, r.Header.Get("User-Agent"))
			}

			if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP, s.metrics) {
				applog.FromContext(ctx).WarnContext(ctx, "Rate limit exceeded",
					applog.FieldClientIP, clientIP,
					applog.FieldMethod, r.Method,
					applog.FieldPath, r.URL.Path)
				w.Header().Set("Retry-After", "60")
				ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
				reqLog.LogHTTPEnd(ctx, r, http.StatusTooManyRequests, time.Since(start).Milliseconds(), clientIP)
				return
			}

			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next(rw, r)

			reqLog.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
		})).ServeHTTP(w, r)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bitesbytes/internal/core"
	"bitesbytes/internal/log"
	"bitesbytes/internal/services"
	appweb "bitesbytes/web"
)

// Server serves the record form, the per-category listings and the stats
// dashboard.
type Server struct {
	http.Server
	templates   *template.Template
	reports     *services.ReportService
	logger      *log.Logger
	structured  *log.StructuredLogger
	rateLimiter *rateLimiter
	metrics     *securityMetrics
	headers     headersConfig
	started     time.Time

	shutdownOnce sync.Once
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithRateLimit sets how many POST requests a client may send per minute.
func WithRateLimit(perMinute int) ServerOption {
	return func(s *Server) {
		s.rateLimiter.stop()
		s.rateLimiter = newRateLimiter(perMinute)
	}
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, reports *services.ReportService, logger *log.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		reports:     reports,
		logger:      logger,
		structured:  log.NewStructuredLogger(logger),
		rateLimiter: newRateLimiter(defaultRateLimit),
		metrics:     &securityMetrics{},
		headers:     defaultHeadersConfig(),
		started:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	t, err := parseTemplates()
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldComponent, log.ComponentTemplate, log.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			static.ServeHTTP(w, r)
		}))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /records", s.handleCreateRecord)
	mux.HandleFunc("GET /income", s.handleCategoryPage(core.Income))
	mux.HandleFunc("GET /expense", s.handleCategoryPage(core.Expense))
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /api/report", s.handleReportJSON)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	var h http.Handler = s.withSecurity(mux)
	h = log.RequestIDMiddleware()(h)
	h = log.Middleware(logger)(h)
	s.Handler = h

	return s
}

func parseTemplates() (*template.Template, error) {
	funcs := template.FuncMap{
		"rupees": core.FormatRupees,
		"pct": func(d decimal.Decimal) string {
			return d.StringFixed(1) + "%"
		},
		"iso": func(d core.Date) string {
			if d.IsEmpty() {
				return "-"
			}
			return d.ISO()
		},
	}
	return template.New("").Funcs(funcs).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

// withSecurity applies security headers, flags suspicious requests, rate
// limits POSTs per client IP and logs the completed request.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		clientIP := extractClientIP(r)

		if detectSuspiciousRequest(r, s.metrics) {
			s.logger.WarnContext(ctx, "Suspicious request",
				log.FieldComponent, log.ComponentSecurity,
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}

		s.headers.apply(w, r)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP, s.metrics) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldComponent, log.ComponentSecurity,
				log.FieldClientIP, clientIP,
				log.FieldPath, r.URL.Path)
			TooManyRequestsError("Too many requests, try again in a minute").Write(rw)
		} else {
			next.ServeHTTP(rw, r)
		}

		s.structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

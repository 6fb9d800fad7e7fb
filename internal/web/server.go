package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"songrecognition/internal/logger"
	"songrecognition/internal/media"
	"songrecognition/internal/metadata"
	"songrecognition/internal/metrics"
	"songrecognition/internal/pipeline"
)

// Recognizer runs one recognition request.
type Recognizer interface {
	Run(ctx context.Context, ref media.Reference, hooks pipeline.Hooks) (metadata.Report, error)
}

// Options configures the HTTP surface.
type Options struct {
	// MaxUploadBytes bounds the multipart body of /recognize/file.
	MaxUploadBytes int64
	// RateLimit is the number of recognition requests per client IP per
	// minute. Zero disables limiting.
	RateLimit int
	// Tracing wraps the router with OpenTelemetry instrumentation.
	Tracing bool
	// Health reports readiness of the downstream services.
	Health func(ctx context.Context) error
}

type Server struct {
	recognizer Recognizer
	opts       Options
	logger     *logger.Logger
}

func NewServer(rec Recognizer, opts Options, log *logger.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 200 << 20
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		recognizer: rec,
		opts:       opts,
		logger:     log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoverer)
	r.Use(s.requestID)
	r.Use(metrics.Middleware)
	r.Use(s.loggingMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs", http.StatusTemporaryRedirect)
	})
	r.Get("/docs", s.handleDocs)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.opts.RateLimit > 0 {
			r.Use(httprate.Limit(
				s.opts.RateLimit,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(s.handleRateLimited),
			))
		}

		r.Get("/recognize/link", s.handleLink(media.KindPage))
		r.Get("/recognize/direct_link", s.handleLink(media.KindDirect))
		r.Post("/recognize/file", s.handleFile)
		r.Get("/ws/recognize", s.handleWebSocket)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "NOT_FOUND", "no such endpoint, see /docs")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" is not supported on "+r.URL.Path)
	})

	if !s.opts.Tracing {
		return r
	}
	return otelhttp.NewHandler(r, "songrec",
		otelhttp.WithFilter(shouldTrace),
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// shouldTrace skips health checks and metrics endpoints to reduce noise.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return false
	}
	return true
}

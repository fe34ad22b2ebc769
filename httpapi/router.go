package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/logging"
	"github.com/hupe1980/raaf/runner"
)

// Service is the part of the raaf façade the HTTP layer needs.
type Service interface {
	Run(ctx context.Context, sessionID, agentName, message string, optFns ...func(o *runner.RunOptions)) (*core.Result, error)
	Session(ctx context.Context, sessionID string) (*core.Session, error)
	ClearSession(ctx context.Context, sessionID string) error
	Agents() []string
}

// Options configures the router.
type Options struct {
	// MaxRequestBodyBytes caps request bodies (1 MiB by default).
	MaxRequestBodyBytes int64
	Logger              logging.Logger
}

type handlers struct {
	svc  Service
	opts Options
}

// NewRouter exposes svc over HTTP:
//
//	POST   /sessions/{id}/messages
//	GET    /sessions/{id}
//	DELETE /sessions/{id}
//	GET    /agents
//	GET    /healthz
func NewRouter(svc Service, optFns ...func(o *Options)) http.Handler {
	opts := Options{
		MaxRequestBodyBytes: 1 << 20,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	h := &handlers{svc: svc, opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions/{id}/messages", h.handlePostMessage)
	mux.HandleFunc("GET /sessions/{id}", h.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.handleDeleteSession)
	mux.HandleFunc("GET /agents", h.handleListAgents)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return requestLogging(opts.Logger)(mux)
}

func requestLogging(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusCapturingWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			logger.Info("http.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.statusCode(),
				"bytes", sw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusCapturingWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusCapturingWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusCapturingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *statusCapturingWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

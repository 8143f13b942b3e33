// Package httpapi serves the liveness page, the health probe and the secret
// URL that starts a reminder pass.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/kitwatch/core/logger"
)

// Triggerer starts a reminder pass in the background.
type Triggerer interface {
	Trigger() error
}

// Options configure the router.
type Options struct {
	// Secret guards the trigger route. Empty rejects every request.
	Secret  string
	Version string
}

// NewRouter builds the chi router with every route.
func NewRouter(trigger Triggerer, opts Options) *chi.Mux {
	h := &handler{trigger: trigger, secret: opts.Secret, version: opts.Version}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/", h.home)
	r.Get("/healthz", h.health)
	r.Get("/run-checks/{secret}", h.runChecks)
	return r
}

// Server runs the router on its own listener.
type Server struct {
	srv *http.Server
}

// NewServer binds handler to addr. Nothing listens until Start.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
}

// Start listens on the configured address and serves in the background.
// Listen errors are returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	logger.LogEvent(ctx, logger.HTTP, slog.LevelInfo, "http.listen",
		slog.String("status", "ok"),
		slog.String("listen", ln.Addr().String()),
	)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogEvent(ctx, logger.HTTP, slog.LevelError, "http.serve",
				slog.String("status", "fail"),
				logger.Err(err),
			)
		}
	}()
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := logger.WithRID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := "ok"
		if ww.Status() >= http.StatusBadRequest {
			status = "fail"
		}
		logger.LogEvent(ctx, logger.HTTP, slog.LevelInfo, "http.request",
			slog.String("status", status),
			slog.String("method", r.Method),
			// The path may carry the trigger secret.
			slog.String("route", routePattern(r)),
			slog.Int("http_code", ww.Status()),
			slog.Duration("duration", logger.Took(start)),
		)
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

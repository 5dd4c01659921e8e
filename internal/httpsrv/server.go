package httpsrv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/hashmap-kz/pgswitch/internal/httpsrv/middleware"
)

type HandlersOpts struct {
	Snapshotter Snapshotter
	Token       string
	Verbose     bool
}

func InitHandlers(opts *HandlersOpts) http.Handler {
	controller := NewController(NewService(opts.Snapshotter))

	// init middlewares
	loggingMiddleware := middleware.LoggingMiddleware{
		Logger:  slog.With("component", "rest-api"),
		Verbose: opts.Verbose,
	}
	authMiddleware := middleware.AuthMiddleware{Token: opts.Token}
	rateLimitMiddleware := middleware.RateLimiterMiddleware{Limiter: rate.NewLimiter(5, 10)}

	// Build middleware chain
	secureChain := middleware.Chain(
		middleware.SafeHandlerMiddleware,
		loggingMiddleware.Middleware,
		authMiddleware.Middleware,
		rateLimitMiddleware.Middleware,
	)
	plainChain := middleware.Chain(
		middleware.SafeHandlerMiddleware,
		loggingMiddleware.Middleware,
	)

	// Init handlers
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/status", secureChain(http.HandlerFunc(controller.StatusHandler)))
	mux.Handle("/metrics", plainChain(promhttp.Handler()))

	return mux
}

// Srv runs the daemon HTTP endpoint with graceful shutdown.
type Srv struct {
	l      *slog.Logger
	port   int
	router http.Handler
}

func NewSrv(port int, router http.Handler) *Srv {
	return &Srv{
		l:      slog.With("component", "httpsrv"),
		port:   port,
		router: router,
	}
}

func (s *Srv) log() *slog.Logger {
	if s.l != nil {
		return s.l
	}
	return slog.With("component", "httpsrv")
}

func (s *Srv) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// Context was cancelled, shut down the HTTP server gracefully
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log().Error("HTTP server shutdown error", slog.Any("err", err))
		} else {
			s.log().Debug("HTTP server shut down")
		}
	}()

	s.log().Info("starting HTTP server", slog.String("addr", srv.Addr))

	// Start the server (blocking)
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err // real error
	}
	return nil
}

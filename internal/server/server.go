package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"

	"github.com/relayworks/mailwatch/internal/instrumentation"
	"github.com/relayworks/mailwatch/internal/notify"
	"github.com/relayworks/mailwatch/internal/store"
)

// Default timeouts for the HTTP server.
const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second

	// DefaultPendingTTL bounds how long a started handshake may stay
	// unfinished before its state token dies.
	DefaultPendingTTL = 15 * time.Minute

	// DefaultSideEffectTimeout bounds the fire-and-forget work a finished
	// callback leaves behind (watch setup, registration webhook).
	DefaultSideEffectTimeout = 30 * time.Second
)

// oauthProvider is the slice of google.Client the handlers use.
type oauthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Profile(ctx context.Context, token *oauth2.Token) (string, error)
	TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource
	Revoke(ctx context.Context, token string) error
}

// watchManager is the slice of watch.Manager the handlers use.
type watchManager interface {
	Establish(ctx context.Context, accountID string) (*store.Subscription, error)
	Teardown(ctx context.Context, accountID string) error
}

// eventNotifier reports lifecycle events downstream.
type eventNotifier interface {
	Notify(ctx context.Context, kind notify.EventKind, payload any) notify.Outcome
}

// Config wires the server's collaborators and policy.
type Config struct {
	Addr          string
	SessionSecret string

	Store    *store.Store
	OAuth    oauthProvider
	Watches  watchManager
	Notifier eventNotifier

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger

	PendingTTL        time.Duration
	SideEffectTimeout time.Duration
}

// Server is the main HTTP server.
type Server struct {
	addr              string
	sessionSecret     []byte
	store             *store.Store
	oauth             oauthProvider
	watches           watchManager
	notifier          eventNotifier
	logger            *slog.Logger
	metrics           *instrumentation.Metrics
	audit             *instrumentation.AuditLogger
	pending           *pendingStore
	sideEffectTimeout time.Duration
	startTime         time.Time
	httpServer        *http.Server
}

// New builds a Server, applying defaults for unset policy fields.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &instrumentation.Metrics{}
	}
	if cfg.Audit == nil {
		cfg.Audit = instrumentation.NewAuditLogger(cfg.Logger)
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = DefaultSideEffectTimeout
	}

	return &Server{
		addr:              cfg.Addr,
		sessionSecret:     []byte(cfg.SessionSecret),
		store:             cfg.Store,
		oauth:             cfg.OAuth,
		watches:           cfg.Watches,
		notifier:          cfg.Notifier,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		audit:             cfg.Audit,
		pending:           newPendingStore(cfg.PendingTTL, cfg.Logger),
		sideEffectTimeout: cfg.SideEffectTimeout,
		startTime:         time.Now(),
	}
}

// Router assembles the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)

	r.Get("/auth/start", s.handleAuthStart)
	r.Get("/auth/callback", s.handleAuthCallback)
	r.Post("/auth/refresh", s.handleRefresh)
	r.Post("/auth/revoke", s.handleRevoke)
	r.Post("/subscription/setup", s.handleSubscriptionSetup)
	r.Post("/push-endpoint", s.handlePush)
	r.Get("/health", s.handleHealth)

	return r
}

// Start runs the HTTP server until Shutdown or a listener error.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}

	s.logger.Info("starting http server", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops background sweeps.
func (s *Server) Shutdown(ctx context.Context) error {
	s.pending.Stop()
	if s.httpServer != nil {
		s.logger.Info("shutting down http server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// metricsMiddleware records one request metric per call, labeled with the
// chi route pattern rather than the raw path to keep cardinality bounded.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = "unmatched"
		}
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, path, ww.Status(), time.Since(start))
	})
}

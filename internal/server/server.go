// Package server exposes the analyst over HTTP: questions against the
// workspace datasets, and chat over files uploaded in a browser session.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	"github.com/liszzmword/ai-data-analyst/internal/analyst"
	"github.com/liszzmword/ai-data-analyst/internal/engine"
	"github.com/liszzmword/ai-data-analyst/internal/logging"
	"github.com/liszzmword/ai-data-analyst/internal/router"
	"github.com/liszzmword/ai-data-analyst/internal/upload"
	"github.com/liszzmword/ai-data-analyst/internal/workspace"
)

const (
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 5 * time.Second
	// SessionTTL is how long an idle session keeps its uploads in memory.
	SessionTTL    = 24 * time.Hour
	pruneInterval = 10 * time.Minute
)

// Config holds the dependencies of a Server.
type Config struct {
	Addr          string
	SessionSecret string
	Workspace     *workspace.Live
	Classifier    *router.Classifier
	// Searcher adds semantic codebook hits to explain answers. Optional.
	Searcher engine.Searcher
	Runtime  ai.Runtime
	Ask      analyst.Settings
	Chat     analyst.Settings
	Loader   *upload.Loader
	// Watch reloads the workspace when its files change.
	Watch  bool
	Logger *zap.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg          Config
	log          *zap.Logger
	sessionStore *sessions.CookieStore
	states       *stateStore
	smart        *analyst.SmartAnalyst
}

// New builds a server. Without a session secret a random one is used, so
// sessions do not survive a restart.
func New(cfg Config) (*Server, error) {
	if cfg.Workspace == nil {
		return nil, errors.New("server: workspace is required")
	}
	log := logging.OrNop(cfg.Logger)
	if cfg.Classifier == nil {
		cfg.Classifier = router.Default()
	}
	if cfg.Loader == nil {
		cfg.Loader = upload.NewLoader(cfg.Workspace.Current().Codebook, upload.WithLogger(log))
	}
	secret := cfg.SessionSecret
	if secret == "" {
		log.Warn("no session secret configured, using a random one")
		secret = uuid.NewString() + uuid.NewString()
	}
	sessionStore := sessions.NewCookieStore([]byte(secret))
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	return &Server{
		cfg:          cfg,
		log:          log,
		sessionStore: sessionStore,
		states:       newStateStore(),
		smart:        analyst.NewSmartAnalyst(cfg.Runtime, cfg.Chat, log),
	}, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/healthz", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/classify", s.classify)
		r.Post("/ask", s.ask)
		r.Get("/codebook", s.codebook)

		r.Group(func(r chi.Router) {
			r.Use(s.withSession)
			r.Get("/files", s.listFiles)
			r.Post("/files", s.uploadFiles)
			r.Delete("/files", s.deleteFiles)
			r.Post("/chat", s.chat)
			r.Delete("/chat", s.resetChat)
		})
	})
	return r
}

// Serve listens on the configured address and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.log.Info("starting server", zap.String("addr", ln.Addr().String()))

	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cfg.Watch {
		eg.Go(func() error {
			return s.cfg.Workspace.Watch(egctx)
		})
	}

	eg.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-egctx.Done():
				return nil
			case <-ticker.C:
				if n := s.states.prune(SessionTTL); n > 0 {
					s.log.Info("idle sessions dropped", zap.Int("count", n))
				}
			}
		}
	})

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		s.log.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Package server exposes the OpenAI-compatible HTTP surface. An llm-mode
// instance executes requests through the resilient provider client; an
// agent-mode instance proxies them to fresh registered instances.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dockhardman/General-LLM-Stack/internal/config"
	"github.com/dockhardman/General-LLM-Stack/internal/domain"
	"github.com/dockhardman/General-LLM-Stack/internal/llm"
	"github.com/dockhardman/General-LLM-Stack/internal/registry"
)

const (
	drainTimeout      = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	proxyTimeout      = 120 * time.Second
)

// Server hosts the API surface for one app type.
type Server struct {
	settings    *config.Settings
	llm         llm.Client
	store       registry.Store
	engine      *gin.Engine
	proxyClient *http.Client
	logger      *slog.Logger
	startedAt   time.Time
}

// New wires routes for the configured app type. llm mode requires client;
// agent mode requires store.
func New(settings *config.Settings, client llm.Client, store registry.Store, logger *slog.Logger) (*Server, error) {
	if settings == nil {
		return nil, errors.New("nil settings passed to server")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		settings:    settings,
		llm:         client,
		store:       store,
		proxyClient: &http.Client{Timeout: proxyTimeout},
		logger:      logger.With("component", "server"),
		startedAt:   time.Now(),
	}

	switch settings.AppType {
	case config.AppTypeLLM:
		if client == nil {
			return nil, errors.New("llm mode requires a provider client")
		}
	case config.AppTypeAgent:
		if store == nil {
			return nil, errors.New("agent mode requires a registry store")
		}
	default:
		return nil, fmt.Errorf("unknown app type %q", settings.AppType)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(s.logger))
	engine.Use(ConcurrencyLimit(settings.Workers))

	engine.GET("/health", s.handleHealth)

	v1 := engine.Group("/v1")
	v1.GET("/models", s.handleListModels)
	v1.GET("/models/:id", s.handleGetModel)

	if s.isAgent() {
		v1.POST("/models/register", s.handleRegisterModel)
		v1.POST("/chat/completions", s.handleProxy)
		v1.POST("/completions", s.handleProxy)
		v1.POST("/embeddings", s.handleProxy)
	} else {
		v1.POST("/chat/completions", s.handleChatCompletions)
		v1.POST("/completions", s.handleCompletions)
		v1.POST("/embeddings", s.handleEmbeddings)
	}

	s.engine = engine
	return s, nil
}

func (s *Server) isAgent() bool { return s.settings.AppType == config.AppTypeAgent }

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then drains in-flight requests. In
// agent mode a background sweeper evicts stale registrations.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.settings.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	if s.isAgent() {
		go s.sweepLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening",
			"addr", httpServer.Addr,
			"app_type", s.settings.AppType,
			"workers", s.settings.Workers)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", httpServer.Addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("server draining", "timeout", drainTimeout)
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// sweepLoop evicts registrations that have outlived two freshness windows.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.settings.RegisterPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * s.settings.RegisterPeriod)
			removed, err := s.store.Sweep(ctx, cutoff)
			if err != nil {
				s.logger.Warn("registration sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Debug("stale registrations swept", "removed", removed)
			}
		case <-ctx.Done():
			return
		}
	}
}

func sortModels(models []domain.Model) {
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
}

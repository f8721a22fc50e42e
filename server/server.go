package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/verdict/internal/profile"
	"github.com/hrygo/verdict/plugin/ai"
	"github.com/hrygo/verdict/plugin/ai/timeout"
	"github.com/hrygo/verdict/plugin/ai/trace"
	"github.com/hrygo/verdict/server/middleware"
	apiv1 "github.com/hrygo/verdict/server/router/api/v1"
	"github.com/hrygo/verdict/server/runner/sweep"
	"github.com/hrygo/verdict/server/service/evaluation"
	"github.com/hrygo/verdict/store"
)

type Server struct {
	Profile    *profile.Profile
	Store      *store.Store
	Evaluation *evaluation.Service

	echoServer  *echo.Echo
	listener    net.Listener
	rateLimiter *middleware.RateLimiter
	recorders   *trace.Registry
	retention   *trace.Retention

	runnerCancelFuncs []context.CancelFunc
}

// NewServer wires the store, the evaluation pipeline and the HTTP API.
func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store, config evaluation.Config) (*Server, error) {
	aiConfig := ai.NewConfigFromProfile(profile)
	if err := aiConfig.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid AI configuration")
	}

	s := &Server{
		Profile:     profile,
		Store:       store,
		Evaluation:  evaluation.New(ctx, config, aiConfig, store),
		rateLimiter: middleware.NewRateLimiter(middleware.DefaultRate, middleware.DefaultBurst),
		recorders:   trace.NewRegistry(store),
	}
	selection := s.Evaluation.JudgeSelection()
	slog.Info("judge provider resolved",
		"provider", selection.Provider,
		"model", selection.Model,
		"source", selection.Source,
		"available", selection.Available,
	)

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomiddleware.Recover())
	echoServer.Use(echomiddleware.RequestID())
	s.echoServer = echoServer

	// Register healthz endpoint.
	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	apiV1Service := apiv1.NewAPIV1Service(profile, s.recorders, s.Evaluation)
	apiV1Service.RegisterRoutes(echoServer, s.rateLimiter.Middleware())

	if profile.TraceRetention > 0 {
		s.retention = trace.NewRetention(store, trace.RetentionConfig{RetentionPeriod: profile.TraceRetention})
	}
	return s, nil
}

// Start listens on the profile address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.listener = listener
	s.echoServer.Listener = listener

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	s.StartBackgroundRunners(ctx)
	return nil
}

// Addr returns the bound address once the server has started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) StartBackgroundRunners(ctx context.Context) {
	runnerCtx, cancel := context.WithCancel(ctx)
	s.runnerCancelFuncs = append(s.runnerCancelFuncs, cancel)

	limiterSweeper := sweep.NewRunner("rate_limiter", s.rateLimiter, 5*time.Minute, 10*time.Minute)
	go limiterSweeper.Run(runnerCtx)

	executionSweeper := sweep.NewRunner("open_executions", s.recorders, 5*time.Minute, timeout.ExecutionIdleTimeout)
	go executionSweeper.Run(runnerCtx)

	if embeddings := s.Evaluation.EmbeddingCache(); embeddings != nil {
		embeddingSweeper := sweep.NewRunner("embedding_cache", embeddings, 10*time.Minute, 0)
		go embeddingSweeper.Run(runnerCtx)
	}

	if s.retention != nil {
		s.retention.Start()
		slog.Info("trace retention enabled", "retention", s.Profile.TraceRetention)
	}
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, timeout.ShutdownTimeout)
	defer cancel()

	slog.Info("server shutting down")

	// Shutdown echo server.
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	// Stop background runners.
	for _, cancelFunc := range s.runnerCancelFuncs {
		if cancelFunc != nil {
			cancelFunc()
		}
	}
	if s.retention != nil {
		s.retention.Close()
	}

	// Close database connection.
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}

	slog.Info("verdict stopped properly")
}

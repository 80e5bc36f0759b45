// Package api serves the edit workflow over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/forPelevin/nledit/internal/lineage"
	"github.com/forPelevin/nledit/internal/resolver"
	"github.com/forPelevin/nledit/internal/types"
	"github.com/forPelevin/nledit/internal/usecase"
)

// Service is the slice of usecase.Usecase the handlers need.
type Service interface {
	Edit(ctx context.Context, in usecase.EditInput) (usecase.EditResult, error)
	Enqueue(ctx context.Context, in usecase.EditInput) (string, error)
	Resolve(ctx context.Context, in usecase.ResolveInput) (resolver.Result, error)
	Video(ctx context.Context, id string) (types.Video, error)
	Children(ctx context.Context, id string) ([]types.Video, error)
	Root(ctx context.Context, id string) (types.Video, error)
	History(ctx context.Context, id string) ([]lineage.Step, error)
	Undo(ctx context.Context, id string) (types.Video, error)
	Redo(ctx context.Context, id string) (types.Video, error)
}

type ServerConfig struct {
	Addr      string
	Service   Service
	Logger    *zap.Logger
	StartTime time.Time
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cfg.Logger = cfg.Logger.Named("api")
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Addr,
			Handler: router,
			// Renders run inside the request, so there is no write timeout.
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

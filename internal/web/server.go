// Package web serves a read-only status API over runs, the processed list
// and the run-event ledger.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/lucasnoah/sonarfix/internal/analytics"
	"github.com/lucasnoah/sonarfix/internal/db"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
	"github.com/lucasnoah/sonarfix/internal/records"
)

// RunStore reads run checkpoints.
type RunStore interface {
	List(outcome string) ([]pipeline.RunState, error)
	Get(runID string) (*pipeline.RunState, error)
}

// Ledger reads the run-event database.
type Ledger interface {
	analytics.DB
	RunEvents(runID string) ([]db.RunEvent, error)
	RecentEvents(limit int) ([]db.RunEvent, error)
}

// RecordLister reads the processed-finding list.
type RecordLister interface {
	List() ([]records.Record, error)
}

// EffortReader reads the accumulated effort.
type EffortReader interface {
	Total() (int, error)
}

// Options configures a Server. Ledger and Metrics may be nil.
type Options struct {
	Addr    string
	Store   RunStore
	Ledger  Ledger
	Records RecordLister
	Effort  EffortReader
	Metrics http.Handler
	Logger  *zap.Logger
}

// Server is the status API server.
type Server struct {
	echo   *echo.Echo
	opts   Options
	logger *zap.Logger
}

// NewServer creates a Server with its routes registered.
func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("web: run store is required")
	}
	if opts.Records == nil || opts.Effort == nil {
		return nil, errors.New("web: records and effort readers are required")
	}
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:8089"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{echo: e, opts: opts, logger: logger}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.opts.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.opts.Metrics))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/runs", s.handleRuns)
	v1.GET("/runs/:id", s.handleRun)
	v1.GET("/runs/:id/events", s.handleRunEvents)
	v1.GET("/events", s.handleRecentEvents)
	v1.GET("/records", s.handleRecords)
	v1.GET("/effort", s.handleEffort)
	v1.GET("/stats", s.handleStats)
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting status server", zap.String("addr", s.opts.Addr))
	if err := s.echo.Start(s.opts.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", s.opts.Addr, err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down status server")
	return s.echo.Shutdown(ctx)
}

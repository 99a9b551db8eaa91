// Package api implements the HTTP surface of the measurement service:
// batch triggers in, status snapshots out.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/storepulse/internal/config"
	"github.com/jonesrussell/storepulse/internal/logger"
)

// Server wraps the gin engine and the underlying http.Server.
type Server struct {
	engine *gin.Engine
	server *http.Server
	logger logger.Interface
}

// Params holds the parameters for creating a new API server.
type Params struct {
	Config  *config.ServerConfig
	Logger  logger.Interface
	Batches BatchService
	Status  StatusService
}

// NewServer creates the API server and registers all routes.
func NewServer(p Params) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		logger: p.Logger.WithComponent("api"),
		server: &http.Server{
			Addr:         p.Config.Address,
			Handler:      engine,
			ReadTimeout:  p.Config.ReadTimeout,
			WriteTimeout: p.Config.WriteTimeout,
			IdleTimeout:  p.Config.IdleTimeout,
		},
	}

	batchesHandler := NewBatchesHandler(p.Batches, s.logger)
	statusHandler := NewStatusHandler(p.Status, p.Config.StatusBudget)

	engine.GET("/health", s.handleHealth)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/sites/:id/batches", batchesHandler.CreateBatch)
		v1.GET("/status", statusHandler.GetStatus)
	}

	return s
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "address", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

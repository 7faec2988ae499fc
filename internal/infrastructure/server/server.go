package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel"
)

// Server is the read-only debug HTTP surface of a running kernel.
type Server struct {
	router  *gin.Engine
	http    *http.Server
	kernel  *kernel.Kernel
	logger  *logging.Logger
	metrics *monitoring.Metrics
	started time.Time
}

// New builds the debug server for k. It does not listen until Run.
func New(cfg config.MetricsConfig, k *kernel.Kernel, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		kernel:  k,
		logger:  logger,
		metrics: k.Metrics(),
		started: time.Now(),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Accept", "Accept-Encoding", "Origin"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.GET("/metrics/json", s.metricsJSON)
	router.GET("/debug/tree", s.tree)
	router.GET("/debug/trace", s.trace)

	s.router = router
	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           gzhttp.GzipHandler(router),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the served handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until Close. A clean shutdown returns nil.
func (s *Server) Run() error {
	s.logger.Info("Starting debug server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops accepting requests and waits for in-flight ones.
func (s *Server) Close(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("Debug server stopped")
	return nil
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "fiberd",
		"boot_id": s.kernel.BootID().String(),
	})
}

func (s *Server) health(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	select {
	case <-s.kernel.Done():
		status, code = "halted", http.StatusServiceUnavailable
	default:
	}
	c.JSON(code, gin.H{
		"status":     status,
		"uptime":     time.Since(s.started).String(),
		"root_state": s.kernel.RootJob().State().String(),
	})
}

func (s *Server) metricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

// tree serves the job tree as JSON, or YAML with ?format=yaml.
func (s *Server) tree(c *gin.Context) {
	snap := s.kernel.Snapshot()
	if c.Query("format") != "yaml" {
		c.JSON(http.StatusOK, snap)
		return
	}
	out, err := yaml.Marshal(snap)
	if err != nil {
		s.logger.Error("Failed to encode tree", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/yaml", out)
}

// trace serves the kernel trace ring, optionally filtered with ?tag=.
func (s *Server) trace(c *gin.Context) {
	tracer := s.kernel.Tracer()
	events := tracer.Events()
	if tag := c.Query("tag"); tag != "" {
		events = tracer.Filter(tracing.Tag(tag))
	}
	c.JSON(http.StatusOK, gin.H{"count": len(events), "events": events})
}

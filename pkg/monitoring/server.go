package monitoring

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fitsci/curator/pkg/engine"
)

// Server exposes health and status endpoints for operators and probes.
type Server struct {
	health *HealthChecker
	status func() engine.Status
	logger *slog.Logger
	srv    *http.Server
}

// NewServer builds the monitoring HTTP server. The status function may be
// nil when the engine is not running (one-shot CLI modes).
func NewServer(port string, health *HealthChecker, status func() engine.Status) *Server {
	s := &Server{
		health: health,
		status: status,
		logger: slog.Default().With("component", "monitoring"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", s.handleHealth)
	router.GET("/status", s.handleStatus)

	s.srv = &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called. It blocks; run it in a goroutine.
func (s *Server) Start() error {
	s.logger.Info("Monitoring server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	report := s.health.Check(c.Request.Context())
	code := http.StatusOK
	if report.State == StateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

func (s *Server) handleStatus(c *gin.Context) {
	body := gin.H{"health": s.health.LastReport()}
	if s.status != nil {
		body["engine"] = s.status()
	}
	c.JSON(http.StatusOK, body)
}

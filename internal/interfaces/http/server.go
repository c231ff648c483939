// Package http is the optional, read-only status server: a batch run
// with http_enabled set in the config exposes its live progress over HTTP and a websocket
// feed without ever affecting the run itself (§4.4's QuerySummary is the
// only ResultStore call it makes).
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/domain/service"
	"github.com/evalharness/evalharness/internal/infrastructure/monitoring"
	"github.com/evalharness/evalharness/pkg/safego"
)

// Server is the optional status server. It is never required for a batch
// to run to completion — wiring it is the caller's choice (cfg.HTTPEnabled).
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config controls where the server listens.
type Config struct {
	Addr string
	Mode string // "production" selects gin's release mode; anything else runs in debug mode
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewServer wires the three read-only endpoints (§4.4 summary query, the
// monitoring package's Prometheus exporter, and a progress websocket) plus
// a health check, over a store and monitor that the batch run already owns.
func NewServer(cfg Config, store service.ResultStore, monitor *monitoring.Monitor, logger *zap.Logger) *Server {
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
	})

	router.GET("/summary", func(c *gin.Context) {
		filter := service.SummaryFilter{
			ModelID:    c.Query("model_id"),
			TaskType:   entity.TaskType(c.Query("task_type")),
			PromptType: entity.PromptType(c.Query("prompt_type")),
			Difficulty: entity.Difficulty(c.Query("difficulty")),
		}
		tree, err := store.QuerySummary(filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, tree)
	})

	if monitor != nil {
		router.GET("/metrics", gin.WrapH(monitor.PrometheusHandler()))
		router.GET("/ws/progress", func(c *gin.Context) {
			serveProgress(c.Writer, c.Request, monitor, logger)
		})
	}

	return &Server{
		server: &http.Server{Addr: cfg.Addr, Handler: router},
		logger: logger,
	}
}

// Start begins serving in the background. Per the teacher's Server.Start,
// ListenAndServe's error after a deliberate Shutdown is not logged as a
// failure.
func (s *Server) Start() {
	s.logger.Info("starting status server", zap.String("address", s.server.Addr))
	safego.Go(s.logger, "status-server", func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server error", zap.Error(err))
		}
	})
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping status server")
	return s.server.Shutdown(ctx)
}

// serveProgress upgrades to a websocket and pushes the monitor's dashboard
// snapshot once a second until the client disconnects. It is push-only —
// unlike the teacher's Hub, there is no registry of clients to broadcast
// through, since every connection gets the same read-only feed.
func serveProgress(w http.ResponseWriter, r *http.Request, monitor *monitoring.Monitor, logger *zap.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(monitor.GetDashboardData()); err != nil {
			return
		}
	}
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kubesentry/kubesentry/internal/monitor"
	"github.com/kubesentry/kubesentry/internal/store"
	"github.com/kubesentry/kubesentry/internal/types"
	"github.com/kubesentry/kubesentry/internal/webui"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	defaultLogLimit = 200
	maxLogLimit     = 1000
)

// Core is the monitoring surface served over HTTP
type Core interface {
	GetSnapshot(ctx context.Context) (monitor.Dashboard, error)
	ListAlerts(ctx context.Context, filter types.AlertFilter) ([]types.Alert, error)
	ResolveAlert(ctx context.Context, id string) (*types.Alert, error)
	DeleteAlert(ctx context.Context, id string) error
}

// Server provides HTTP API endpoints and web UI
type Server struct {
	core       Core
	logger     zerolog.Logger
	port       int
	logBuffer  *webui.LogBuffer
	startTime  time.Time
	router     *gin.Engine
	httpServer *http.Server

	version   string
	commit    string
	buildDate string
	versionMu sync.RWMutex
}

// NewServer creates a new API server
func NewServer(core Core, logger zerolog.Logger, port int) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		core:      core,
		logger:    logger.With().Str("component", "api").Logger(),
		port:      port,
		startTime: time.Now(),
		router:    gin.New(),
	}
	s.router.Use(gin.Recovery(), requestLogger(s.logger))
	s.router.SetHTMLTemplate(webui.Templates)
	s.setupRoutes()
	return s
}

// SetLogBuffer sets the log buffer for the web UI
func (s *Server) SetLogBuffer(lb *webui.LogBuffer) {
	s.logBuffer = lb
}

// SetVersion sets the version information
func (s *Server) SetVersion(version, commit, buildDate string) {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()
	s.version = version
	s.commit = commit
	s.buildDate = buildDate
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		api.GET("/resources", s.handleResources)
		api.GET("/alerts", s.handleListAlerts)
		api.PUT("/alerts/:id/resolve", s.handleResolveAlert)
		api.DELETE("/alerts/:id", s.handleDeleteAlert)
		api.GET("/logs", s.handleLogs)
	}

	s.router.GET("/", s.handleWebUI)
	s.router.GET("/dashboard", s.handleWebUI)
}

// Handler returns the underlying router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("address", s.httpServer.Addr).
			Msg("Starting API server with Web UI")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down API server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// handleHealth returns service health status
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus returns current state summary
func (s *Server) handleStatus(c *gin.Context) {
	snap, err := s.core.GetSnapshot(c.Request.Context())
	if err != nil {
		s.internalError(c, "Failed to build status", err)
		return
	}

	s.versionMu.RLock()
	version, commit, buildDate := s.version, s.commit, s.buildDate
	s.versionMu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"active_alerts":  len(snap.ActiveAlerts),
		"nodes":          len(snap.Nodes),
		"pods":           len(snap.Pods),
		"nodes_fallback": snap.NodesFallback,
		"pods_fallback":  snap.PodsFallback,
		"last_cycle":     snap.UpdatedAt,
		"time":           time.Now().UTC().Format(time.RFC3339),
		"uptime":         time.Since(s.startTime).Round(time.Second).String(),
		"version":        version,
		"commit":         commit,
		"build_date":     buildDate,
	})
}

// handleResources returns the latest cluster snapshot with active alerts
func (s *Server) handleResources(c *gin.Context) {
	snap, err := s.core.GetSnapshot(c.Request.Context())
	if err != nil {
		s.internalError(c, "Failed to load resources", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleListAlerts(c *gin.Context) {
	filter, ok := types.ParseAlertFilter(c.Query("status"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of active, resolved, all"})
		return
	}

	alerts, err := s.core.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		s.internalError(c, "Failed to list alerts", err)
		return
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) handleResolveAlert(c *gin.Context) {
	id := c.Param("id")
	alert, err := s.core.ResolveAlert(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	if err != nil {
		s.internalError(c, "Failed to resolve alert", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Alert %s marked as resolved", id),
		"alert":   alert,
	})
}

func (s *Server) handleDeleteAlert(c *gin.Context) {
	id := c.Param("id")
	err := s.core.DeleteAlert(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	if err != nil {
		s.internalError(c, "Failed to delete alert", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Alert %s successfully deleted", id),
	})
}

// handleLogs returns recent log entries as JSON
func (s *Server) handleLogs(c *gin.Context) {
	limit := defaultLogLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLogLimit)
	}

	entries := []webui.LogEntry{}
	if s.logBuffer != nil {
		entries = s.logBuffer.GetRecentEntries(limit, c.Query("level"))
	}
	c.JSON(http.StatusOK, entries)
}

// handleWebUI renders the dashboard
func (s *Server) handleWebUI(c *gin.Context) {
	snap, err := s.core.GetSnapshot(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load dashboard data")
		c.String(http.StatusInternalServerError, "failed to load dashboard data")
		return
	}

	s.versionMu.RLock()
	data := webui.PageData{
		Version: s.version,
		Commit:  s.commit,
	}
	s.versionMu.RUnlock()

	data.Uptime = time.Since(s.startTime).Round(time.Second).String()
	data.Nodes = snap.Nodes
	data.Pods = snap.Pods
	data.Alerts = snap.ActiveAlerts
	data.NodesFallback = snap.NodesFallback
	data.PodsFallback = snap.PodsFallback
	data.UpdatedAt = snap.UpdatedAt
	if s.logBuffer != nil {
		data.Logs = s.logBuffer.GetRecentEntries(100, "")
	}

	c.HTML(http.StatusOK, "dashboard", data)
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// requestLogger logs each request at debug level, and failures at warn
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		if status >= http.StatusInternalServerError {
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

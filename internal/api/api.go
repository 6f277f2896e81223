// Package api provides the HTTP API for the transmission monitor service.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scanops/transmission-monitor/internal/config"
	"github.com/scanops/transmission-monitor/internal/ftpmon"
	"github.com/scanops/transmission-monitor/internal/logparse"
	"github.com/scanops/transmission-monitor/internal/resend"
	"go.uber.org/zap"
)

// Server represents the HTTP API server.
type Server struct {
	config   config.ServerConfig
	engine   *logparse.Engine
	monitor  *ftpmon.Monitor
	resender *resend.Resender
	logger   *zap.SugaredLogger
	router   *gin.Engine
}

// New creates a new API server.
func New(cfg config.ServerConfig, engine *logparse.Engine, monitor *ftpmon.Monitor, resender *resend.Resender, logger *zap.SugaredLogger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config:   cfg,
		engine:   engine,
		monitor:  monitor,
		resender: resender,
		logger:   logger,
		router:   gin.New(),
	}

	s.setupRoutes()
	return s
}

// Router returns the gin router.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	// Health endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readyHandler)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// Merged record view
		v1.GET("/records", s.recordsHandler)
		v1.GET("/stats", s.statsHandler)

		// Segment discovery
		v1.GET("/segments", s.segmentsHandler)
		v1.GET("/segments/validate", s.validateDirectoryHandler)

		// Connectivity monitor
		v1.GET("/ftp-status", s.ftpStatusHandler)
		v1.POST("/ftp-status/ping", s.ftpPingHandler)

		// Resend
		v1.POST("/resend", s.resendHandler)
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		c.Next()

		s.logger.Debugw("Request completed",
			"path", path,
			"status", c.Writer.Status(),
			"method", c.Request.Method,
		)
	}
}

// Health check handler
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "transmission-monitor",
	})
}

// Readiness check handler
func (s *Server) readyHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"service": "transmission-monitor",
	})
}

// Records handler - returns the merged view, newest first
func (s *Server) recordsHandler(c *gin.Context) {
	filter := logparse.Filter{
		Search:  c.Query("search"),
		Segment: c.Query("segment"),
	}

	switch c.Query("status") {
	case "":
	case string(logparse.StatusOK):
		filter.Status = logparse.StatusOK
	case string(logparse.StatusNOK):
		filter.Status = logparse.StatusNOK
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "status must be OK or NOK",
		})
		return
	}

	records, err := s.engine.Records(filter)
	if err != nil {
		s.logger.Errorw("Failed to load records", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to load records",
		})
		return
	}

	data := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		data = append(data, newRecordResponse(rec))
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  data,
		"total": len(data),
	})
}

// Stats handler
func (s *Server) statsHandler(c *gin.Context) {
	stats, err := s.engine.Stats()
	if err != nil {
		s.logger.Errorw("Failed to compute stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to compute stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Segments handler - lists available segment names
func (s *Server) segmentsHandler(c *gin.Context) {
	names, err := s.engine.SegmentNames()
	if err != nil {
		s.logger.Errorw("Failed to list segments", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list segments",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"segments": names,
	})
}

// Validate directory handler
func (s *Server) validateDirectoryHandler(c *gin.Context) {
	dir := c.Query("directory")
	if dir == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"valid":   false,
			"message": "directory path is required",
		})
		return
	}

	valid, message, segments := s.engine.ValidateDirectory(dir)
	c.JSON(http.StatusOK, gin.H{
		"valid":    valid,
		"message":  message,
		"segments": segments,
	})
}

// FTP status handler - cached snapshot, never probes
func (s *Server) ftpStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"statuses": s.monitor.Snapshot(),
	})
}

// FTP ping handler - forces one synchronous sweep
func (s *Server) ftpPingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"statuses": s.monitor.PollNow(),
	})
}

// Resend handler - replays the original payload for one scan
func (s *Server) resendHandler(c *gin.Context) {
	var req ResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "scan_id is required",
		})
		return
	}

	result, err := s.resender.Resend(c.Request.Context(), req.ScanID)
	if err != nil {
		if errors.Is(err, logparse.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Package api exposes the hub over HTTP: connection lifecycle, sending,
// broadcasts, schedules, auto-reply rules, webhook settings and a
// server-sent event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wpphub/internal/broadcast"
	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/metrics"
	"github.com/matheus3301/wpphub/internal/registry"
	"github.com/matheus3301/wpphub/internal/scheduler"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
)

// Deps are the components the handlers drive.
type Deps struct {
	Registry  *registry.Registry
	Broadcast *broadcast.Coordinator
	Scheduler *scheduler.Scheduler
	Store     *store.DB
	Bus       *bus.Bus
	Metrics   *metrics.Metrics
	// NewSource builds the tabular source for a schedule sync. An empty url
	// means the configured default sheet.
	NewSource   func(url string) scheduler.TabularSource
	CORSOrigins []string
	Logger      *zap.Logger
}

// Server is the HTTP front of the daemon.
type Server struct {
	deps      Deps
	logger    *zap.Logger
	startedAt time.Time
	engine    *gin.Engine
	http      *http.Server
	listener  net.Listener
}

// New builds the router. Call Start to listen on addr.
func New(addr string, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &Server{
		deps:      d,
		logger:    d.Logger.Named("http"),
		startedAt: time.Now(),
	}
	s.engine = s.routes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.deps.Metrics.Middleware())

	origins := s.deps.CORSOrigins
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	r.Use(cors.New(corsCfg))
	r.MaxMultipartMemory = 32 << 20

	r.GET("/health", s.health)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	r.GET("/connections", s.listConnections)
	r.GET("/connections/:id", s.getConnection)
	r.POST("/connections/start", s.startConnection)
	r.POST("/connections/disconnect", s.disconnectConnection)
	r.POST("/connections/disconnect-all", s.disconnectAll)
	r.POST("/connections/:id/reinit", s.reinitConnection)

	r.POST("/:id/send-message", s.sendMessage)
	r.POST("/:id/broadcast-message", s.startBroadcast)
	r.GET("/:id/messages", s.listMessages)
	r.GET("/:id/outgoing-messages", s.listOutgoing)
	r.GET("/:id/qrcode", s.qrCode)
	r.GET("/broadcasts", s.listBroadcasts)
	r.GET("/broadcasts/:id", s.getBroadcast)

	r.GET("/webhook", s.getWebhook)
	r.POST("/webhook", s.setWebhook)

	r.POST("/schedule", s.addSchedule)
	r.GET("/schedule", s.listSchedule)
	r.DELETE("/schedule/:id", s.deleteSchedule)
	r.POST("/schedule/sync", s.syncSchedule)

	r.GET("/auto-replies", s.listAutoReplies)
	r.POST("/auto-replies", s.addAutoReply)
	r.PUT("/auto-replies", s.replaceAutoReplies)
	r.DELETE("/auto-replies/:id", s.deleteAutoReply)

	r.GET("/events", s.events)
	return r
}

// Listen binds the configured address. Serve calls it when it was not called before.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.http.Addr
}

// Serve handles requests until Stop. It returns nil after a clean shutdown.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.logger.Info("HTTP server starting", zap.String("addr", s.Addr()))
	if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server stopping")
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptimeMs":    time.Since(s.startedAt).Milliseconds(),
		"connections": s.deps.Registry.CountByStatus(),
	})
}

package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/gyanpath/gyanpath-agent/pkg/connectivity"
	"github.com/gyanpath/gyanpath-agent/pkg/downloader"
	"github.com/gyanpath/gyanpath-agent/pkg/events"
	"github.com/gyanpath/gyanpath-agent/pkg/gateway"
	"github.com/gyanpath/gyanpath-agent/pkg/log"
	"github.com/gyanpath/gyanpath-agent/pkg/metrics"
	"github.com/gyanpath/gyanpath-agent/pkg/outbox"
	"github.com/gyanpath/gyanpath-agent/pkg/progress"
	"github.com/gyanpath/gyanpath-agent/pkg/storage"
)

// Deps are the agent components the API exposes.
type Deps struct {
	Store      storage.Store
	Downloader *downloader.Downloader
	Tracker    *progress.Tracker
	Outbox     *outbox.Outbox
	Gateway    *gateway.Gateway
	Prober     *connectivity.Prober
	Broker     *events.Broker
}

// Server is the local control API the GyanPath pages talk to.
type Server struct {
	addr   string
	deps   Deps
	engine *gin.Engine
	server *http.Server
}

// NewServer creates the control API server and registers its routes.
func NewServer(addr string, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestMetrics())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	s := &Server{
		addr:   addr,
		deps:   deps,
		engine: engine,
	}
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.engine.Group("/v1")
	{
		v1.GET("/courses", s.listCourses)
		v1.POST("/courses/:id/download", s.startDownload)
		v1.GET("/courses/:id", s.getCourse)
		v1.DELETE("/courses/:id", s.removeCourse)
		v1.GET("/courses/:id/lessons", s.listLessons)

		v1.POST("/lessons/:id/progress", s.recordProgress)
		v1.POST("/lessons/:id/seek", s.requestSeek)
		v1.POST("/lessons/:id/complete", s.completeLesson)

		v1.POST("/sync", s.triggerSync)
		v1.POST("/cache/urls", s.cacheURLs)

		v1.GET("/events", s.streamEvents)
		v1.GET("/status", s.status)
	}
}

// Start runs the API server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	// No WriteTimeout: /v1/events streams for as long as a page is open.
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.engine,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	logger := log.WithComponent("api")
	logger.Info().Str("addr", s.addr).Msg("control API listening")

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("API server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down control API")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Handler exposes the underlying handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

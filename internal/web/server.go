// Package web is the HTTP and websocket adapter over board.Service.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmuck/meshboard/internal/auth"
	"github.com/danmuck/meshboard/internal/board"
	"github.com/danmuck/meshboard/internal/events"
	"github.com/danmuck/meshboard/internal/link"
	logs "github.com/danmuck/meshboard/internal/logging"
	"github.com/danmuck/meshboard/internal/observability"
)

const (
	AdminHeader     = "X-Admin-Token"
	shutdownTimeout = 5 * time.Second
)

type Config struct {
	Addr        string
	CORSOrigins []string
	AdminToken  string
}

// StatusSource reports the current link status.
type StatusSource interface {
	Status() link.Status
}

type Server struct {
	cfg     Config
	board   *board.Service
	status  StatusSource
	bus     *events.Bus
	admin   auth.Validator
	router  *gin.Engine
	started time.Time
}

func New(cfg Config, svc *board.Service, status StatusSource, bus *events.Bus) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.InitLogger("web")))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type", AdminHeader},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		board:   svc,
		status:  status,
		bus:     bus,
		admin:   auth.AdminToken{Token: cfg.AdminToken},
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logs.Infof("web.Server.Run listening addr=%s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logs.Warnf("web.Server.Run shutdown err=%v", err)
		return err
	}
	logs.Infof("web.Server.Run shutdown")
	return nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": "meshboard",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", s.handleEvents)

	api := r.Group("/api")
	api.GET("/config/channel_name", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "channel_name": s.board.ChannelName()})
	})
	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, statusView(s.status.Status()))
	})

	notes := api.Group("/boards/:board/notes")
	notes.GET("", s.listNotes)
	notes.POST("", s.createNote)
	notes.PUT("/:note", s.editNote)
	notes.DELETE("/:note", s.deleteNote)
	notes.POST("/:note/archive", s.archiveNote)
	notes.POST("/:note/color", s.setColor)
	notes.POST("/:note/pin", s.pinNote)
	notes.POST("/:note/resend", s.resendNote)
	notes.GET("/:note/acks", s.listAcks)
}

func (s *Server) isAdmin(c *gin.Context) bool {
	return auth.Allowed(s.admin, c.GetHeader(AdminHeader))
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:5173"}
	}
	return origins
}

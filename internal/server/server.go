package server

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/peterje/forge/internal/api"
	"github.com/peterje/forge/internal/commands"
	"github.com/peterje/forge/internal/files"
	"github.com/peterje/forge/internal/metrics"
	"github.com/peterje/forge/internal/pty"
	"github.com/peterje/forge/internal/store"
	"github.com/peterje/forge/internal/ws"
)

// Deps are the services the HTTP surface exposes. Store, Watcher and
// Metrics are optional.
type Deps struct {
	Commands    *commands.Service
	Files       *files.Service
	Watcher     *files.Watcher
	Store       *store.Store
	Hub         *ws.Hub
	Metrics     *metrics.Metrics
	Resolver    pty.ShellResolver
	CORSOrigins []string
	RateLimit   RateLimit
	Logger      *zap.Logger
}

type Server struct {
	router *gin.Engine
	deps   Deps
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &Server{router: gin.New(), deps: d}
	s.middleware()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) middleware() {
	s.router.Use(gin.Recovery())
	if s.deps.Metrics != nil {
		s.router.Use(s.deps.Metrics.Middleware())
	}
	s.router.Use(corsMiddleware(s.deps.CORSOrigins))
	if s.deps.RateLimit.enabled() {
		s.router.Use(rateLimiter(s.deps.RateLimit))
	}
	s.router.Use(requestLogger(s.deps.Logger))
}

// requestLogger logs API requests. WebSocket upgrades and scrapes are
// skipped.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.GetHeader("Upgrade") == "websocket" || !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			return
		}
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
		)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Content-Length", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func (s *Server) routes() {
	d := s.deps
	r := s.router.Group("/api")

	// Health
	r.GET("/health", api.NewHealthHandler(d.Resolver, d.Commands).HandleHealth)

	// Terminals
	var records api.RecordStore
	if d.Store != nil {
		records = d.Store
	}
	api.NewTerminalsHandler(d.Commands, records).Register(r)

	// Files
	api.NewFilesHandler(d.Files, d.Watcher).Register(r)

	// Editor sessions
	if d.Store != nil {
		api.NewEditorHandler(d.Store).Register(r)
	}

	// Metrics
	if d.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	// WebSocket
	s.router.GET("/ws", ws.NewHandler(d.Hub, d.Commands, d.CORSOrigins, d.Logger).HandleConnection)
}

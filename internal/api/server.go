package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sniper-trading-bot/internal/auth"
	"sniper-trading-bot/internal/database"
	"sniper-trading-bot/internal/events"
	"sniper-trading-bot/internal/hedging"
	"sniper-trading-bot/internal/logging"
	"sniper-trading-bot/internal/orders"
	"sniper-trading-bot/internal/positions"
	"sniper-trading-bot/internal/scheduler"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins string
	ProductionMode bool
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server is the operator HTTP API: sniper control, positions, hedges and
// order history
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig

	scheduler *scheduler.Scheduler
	cache     *positions.Cache
	hedging   *hedging.Service
	orderMgr  *orders.Manager
	repo      *database.Repository // nil when persistence is disabled
	eventBus  *events.EventBus

	jwtManager  *auth.JWTManager // nil when auth is disabled
	passwordMgr *auth.PasswordManager
	adminUser   string
	adminHash   string

	logger *logging.Logger
}

// NewServer creates a new API server
func NewServer(
	config ServerConfig,
	sched *scheduler.Scheduler,
	cache *positions.Cache,
	hedgingSvc *hedging.Service,
	orderMgr *orders.Manager,
	repo *database.Repository,
	eventBus *events.EventBus,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if config.AllowedOrigins == "" || config.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(config.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:    router,
		config:    config,
		scheduler: sched,
		cache:     cache,
		hedging:   hedgingSvc,
		orderMgr:  orderMgr,
		repo:      repo,
		eventBus:  eventBus,
		logger:    logging.Default().WithComponent("api"),
	}

	server.registerRoutes()
	return server
}

// EnableAuth attaches JWT authentication to the API routes
func (s *Server) EnableAuth(jwtManager *auth.JWTManager, passwordMgr *auth.PasswordManager, adminUser, adminHash string) {
	s.jwtManager = jwtManager
	s.passwordMgr = passwordMgr
	s.adminUser = adminUser
	s.adminHash = adminHash
}

func (s *Server) registerRoutes() {
	s.router.GET("/api/health", s.handleHealth)
	s.router.POST("/api/auth/login", s.handleLogin)

	api := s.router.Group("/api")
	api.Use(s.maybeAuth())
	{
		api.POST("/sniper/start", s.handleSniperStart)
		api.POST("/sniper/stop", s.handleSniperStop)
		api.GET("/sniper/status", s.handleSniperStatus)

		api.GET("/positions", s.handlePositions)
		api.POST("/positions/:symbol/close", s.handleClosePosition)

		api.GET("/hedges", s.handleHedges)

		api.GET("/orders/history", s.handleOrderHistory)
		api.GET("/signals", s.handleSignals)
	}
}

// maybeAuth returns the JWT middleware when auth is configured, otherwise a
// pass-through
func (s *Server) maybeAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.jwtManager == nil {
			c.Next()
			return
		}
		auth.Middleware(s.jwtManager)(c)
	}
}

// Start runs the HTTP server; it blocks until the server stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("API server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"trading-journal/config"
	"trading-journal/internal/auth"
	"trading-journal/internal/dashboard"
	"trading-journal/internal/events"
	"trading-journal/internal/logging"
	"trading-journal/internal/records"
)

// RateLimiter provides simple in-memory sliding window rate limiting per key
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// HealthReporter is implemented by optional components that report their
// own health, such as the dashboard cache.
type HealthReporter interface {
	Healthy() bool
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	store       records.Store
	dashboard   *dashboard.Service
	authService *auth.Service
	eventBus    *events.EventBus
	hub         *PresenceHub
	cache       HealthReporter
	rateLimiter *RateLimiter
	config      config.ServerConfig
	logger      *logging.Logger
	now         func() time.Time
}

// NewServer creates a new API server. cache may be nil.
func NewServer(
	cfg config.ServerConfig,
	store records.Store,
	dashboardService *dashboard.Service,
	authService *auth.Service,
	eventBus *events.EventBus,
	cache HealthReporter,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins(cfg.AllowedOrigins)
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", logging.TraceHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", logging.TraceHeader}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	var limiter *RateLimiter
	if cfg.RateLimit > 0 {
		limiter = NewRateLimiter(cfg.RateLimit, time.Minute)
	}

	server := &Server{
		router:      router,
		store:       store,
		dashboard:   dashboardService,
		authService: authService,
		eventBus:    eventBus,
		hub:         NewPresenceHub(eventBus),
		cache:       cache,
		rateLimiter: limiter,
		config:      cfg,
		logger:      logging.WithComponent("api"),
		now:         time.Now,
	}

	server.setupRoutes()
	go server.hub.Run()

	return server
}

func allowedOrigins(list string) []string {
	var origins []string
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	return origins
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Hub returns the presence hub.
func (s *Server) Hub() *PresenceHub {
	return s.hub
}

// rateLimitMiddleware limits each authenticated user to the configured
// number of requests per minute.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.rateLimiter == nil {
			c.Next()
			return
		}
		key := auth.GetUserID(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !s.rateLimiter.Allow(key) {
			c.Header("Retry-After", strconv.Itoa(int(s.rateLimiter.window.Seconds())))
			errorResponse(c, http.StatusTooManyRequests, "rate limit exceeded, please slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")

	// Websocket upgrades authenticate from the query string
	api.GET("/ws", s.handlePresenceWebSocket)

	authHandlers := auth.NewHandlers(s.authService)
	authGroup := api.Group("/auth")
	authProtected := authGroup.Group("")
	authProtected.Use(auth.Middleware(s.authService.GetJWTManager()))
	authHandlers.RegisterRoutes(authGroup, authProtected)

	protected := api.Group("")
	protected.Use(auth.Middleware(s.authService.GetJWTManager()))
	protected.Use(s.rateLimitMiddleware())
	{
		protected.GET("/dashboard", s.handleGetDashboard)
		protected.GET("/presence", s.handleGetPresence)

		s.registerRecordRoutes(protected)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  seconds(s.config.ReadTimeout, 15),
		WriteTimeout: seconds(s.config.WriteTimeout, 15),
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	s.hub.Stop()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func seconds(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.WithError(err).Warn("record store health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"store":  "unhealthy",
		})
		return
	}

	status := "healthy"
	body := gin.H{
		"store":     "healthy",
		"websocket": s.hub.GetTotalClientCount(),
		"time":      s.now().UTC().Format(time.RFC3339),
	}
	if s.cache != nil {
		if s.cache.Healthy() {
			body["cache"] = "healthy"
		} else {
			body["cache"] = "degraded"
			status = "degraded"
		}
	}
	body["status"] = status
	c.JSON(http.StatusOK, body)
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError maps domain errors onto HTTP statuses.
func (s *Server) respondError(c *gin.Context, err error) {
	var (
		rangeErr      *dashboard.InvalidRangeError
		upstreamErr   *dashboard.UpstreamFetchError
		validationErr *records.ValidationError
		authErr       auth.AuthError
	)

	switch {
	case errors.As(err, &rangeErr):
		errorResponse(c, http.StatusBadRequest, rangeErr.Error())
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   true,
			"message": validationErr.Error(),
			"details": validationErr.Errors,
		})
	case errors.As(err, &upstreamErr):
		errorResponse(c, http.StatusBadGateway, "failed to load records: "+upstreamErr.Err.Error())
	case errors.Is(err, records.ErrNotFound):
		errorResponse(c, http.StatusNotFound, "record not found")
	case errors.Is(err, records.ErrForbidden):
		errorResponse(c, http.StatusForbidden, "access to this record is not allowed")
	case errors.As(err, &authErr):
		errorResponse(c, http.StatusUnauthorized, authErr.Message)
	default:
		logging.FromContext(c.Request.Context()).WithError(err).Error("request failed", "path", c.FullPath())
		errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
}

// getUserIDRequired returns the user ID from the context and sends error if not authenticated
func (s *Server) getUserIDRequired(c *gin.Context) (string, bool) {
	userID := auth.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   auth.ErrUnauthorized.Code,
			"message": "authentication required",
		})
		return "", false
	}
	return userID, true
}

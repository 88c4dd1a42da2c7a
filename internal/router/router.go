package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/tokenstore"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
	History *handler.HistoryHandler
}

// Limiters groups the rate limiters applied to route groups.
type Limiters struct {
	Auth   *middleware.RateLimiter
	Frames *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	tokens tokenstore.Store,
	handlers *Handlers,
	limiters *Limiters,
	registry *prometheus.Registry,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler(registry)))

	requireLogin := middleware.RequireLogin(tokens, cfg.TokenProfile)

	// ─── 1. Auth Group (Rate Limited) ──────────────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(middleware.NoStore())
	{
		auth.POST("/login", limiters.Auth.Middleware(), handlers.Auth.Login)
		auth.POST("/logout", handlers.Auth.Logout)
		auth.GET("/me", requireLogin, handlers.Auth.Me)
	}

	face := router.Group("/api/v1/face")
	face.Use(requireLogin)
	{
		face.POST("/register", handlers.Auth.RegisterFace)
	}

	// ─── 2. Session Group ──────────────────────────────────────────────
	sessions := router.Group("/api/v1/sessions")
	sessions.Use(middleware.NoStore())
	{
		sessions.POST("", handlers.Session.StartSession)
		sessions.GET("/:id", handlers.Session.GetSession)
		sessions.POST("/:id/answers", handlers.Session.SelectAnswer)
		sessions.POST("/:id/next", handlers.Session.Next)
		sessions.POST("/:id/previous", handlers.Session.Previous)
		sessions.POST("/:id/goto", handlers.Session.GoTo)
		sessions.POST("/:id/submit", handlers.Session.Submit)
		sessions.GET("/:id/result", handlers.Session.GetResult)
		sessions.POST("/:id/frames", limiters.Frames.Middleware(), handlers.Session.PutFrame)
		sessions.DELETE("/:id", handlers.Session.CloseSession)
	}

	// ─── 3. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/sessions/:id/events", handlers.WS.SessionEvents)
	}

	// ─── 4. Journal & System ───────────────────────────────────────────
	api := router.Group("/api/v1")
	{
		api.GET("/history", handlers.History.ListHistory)
		api.GET("/system/status", handlers.System.Status)
	}

	return router
}

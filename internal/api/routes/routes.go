package routes

import (
	"time"

	"clipboard-service/internal/api/handlers"
	"clipboard-service/internal/api/middleware"
	"clipboard-service/internal/services"
	"clipboard-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

type Router struct {
	engine           *gin.Engine
	wsHandler        *handlers.WSHandler
	clipboardHandler *handlers.ClipboardHandler
	userHandler      *handlers.UserHandler
	authHandler      *handlers.AuthHandler
	rateLimitMW      *middleware.RateLimitMiddleware
	authMW           *middleware.AuthMiddleware
}

func NewRouter(
	hub *websocket.Hub,
	clipboardService *services.ClipboardService,
	userService *services.UserService,
	redisService *services.RedisService,
	jwtSecret string,
	publicURL string,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.LogApi())

	return &Router{
		engine:           engine,
		wsHandler:        handlers.NewWSHandler(hub),
		clipboardHandler: handlers.NewClipboardHandler(clipboardService, publicURL),
		userHandler:      handlers.NewUserHandler(userService),
		authHandler:      handlers.NewAuthHandler(userService),
		rateLimitMW:      middleware.NewRateLimitMiddleware(redisService),
		authMW:           middleware.NewAuthMiddleware(jwtSecret),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.engine.Group("/api/v1")

	// WebSocket endpoint; token is optional, anonymous viewers are allowed
	api.GET("/ws",
		r.authMW.WSAuth(),
		r.wsHandler.HandleWebSocket,
	)

	// Public clipboard routes: entries are shareable by URL without an
	// account, so reads and collaborative writes resolve auth optionally.
	clipboards := api.Group("/clipboards")
	clipboards.Use(r.authMW.OptionalAuth())
	clipboards.Use(r.rateLimitMW.RateLimitIP(200, time.Minute))
	{
		clipboards.POST("", r.clipboardHandler.Create)
		clipboards.GET("/:id", r.clipboardHandler.Get)
		clipboards.GET("/:id/qr", r.clipboardHandler.QRCode)
		clipboards.PUT("/:id", r.clipboardHandler.Update)
		clipboards.POST("/:id/files", r.clipboardHandler.UploadFile)
	}

	// Authenticated routes
	auth := api.Group("/")
	auth.Use(r.authMW.RequireAuth())
	{
		auth.GET("/clipboards", r.rateLimitMW.RateLimit(100, time.Minute), r.clipboardHandler.List)
		auth.DELETE("/clipboards/:id", r.rateLimitMW.RateLimit(100, time.Minute), r.clipboardHandler.Delete)

		users := auth.Group("/users")
		users.Use(r.rateLimitMW.RateLimit(100, time.Minute))
		{
			users.GET("/profile", r.userHandler.GetProfile)
		}
	}

	// Auth routes
	authRoutes := api.Group("/auth")
	authRoutes.Use(r.rateLimitMW.RateLimitIP(50, time.Minute))
	{
		authRoutes.POST("/register", r.authHandler.Register)
		authRoutes.POST("/login", r.authHandler.Login)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

package routes

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"connectly/handlers"
	"connectly/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Options struct {
	Tokens     *middleware.TokenManager
	Limiter    *middleware.LimiterStore // nil disables rate limiting
	Realtime   http.Handler             // mounted at /ws, may be nil
	ClientURLs []string
	Logger     *slog.Logger
}

func SetupRouter(h *handlers.Handler, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(opts.Logger))
	router.Use(cors.New(corsConfig(opts.ClientURLs)))

	router.GET("/health", h.Health)
	if opts.Realtime != nil {
		router.GET("/ws", gin.WrapH(opts.Realtime))
	}

	api := router.Group("/api")
	if opts.Limiter != nil {
		api.Use(middleware.RateLimitMiddleware(opts.Limiter))
	}

	// Public routes
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.GET("/push/vapid-public-key", h.VAPIDKey)

	// Readable without an account
	optional := api.Group("")
	optional.Use(middleware.OptionalAuth(opts.Tokens))
	optional.GET("/users/:id", h.GetUser)
	optional.GET("/posts", h.Feed)
	optional.GET("/posts/user/:userId", h.UserPosts)
	optional.GET("/posts/:id", h.GetPost)

	protected := api.Group("")
	protected.Use(middleware.JWTAuthMiddleware(opts.Tokens))

	auth := protected.Group("/auth")
	auth.GET("/me", h.Me)
	auth.DELETE("/me", h.DeleteAccount)
	auth.PUT("/profile", h.UpdateProfile)
	auth.PUT("/change-password", h.ChangePassword)

	users := protected.Group("/users")
	users.GET("/suggestions", h.Suggestions)
	users.GET("/search", h.SearchUsers)
	users.POST("/avatar", h.UploadAvatar)
	users.POST("/:id/follow", h.ToggleFollow)
	users.GET("/:id/followers", h.Followers)
	users.GET("/:id/following", h.Following)

	posts := protected.Group("/posts")
	posts.POST("", h.CreatePost)
	posts.GET("/search", h.SearchPosts)
	posts.PUT("/:id", h.UpdatePost)
	posts.DELETE("/:id", h.DeletePost)
	posts.POST("/:id/like", h.ToggleLike)
	posts.POST("/:id/comments", h.AddComment)
	posts.DELETE("/:id/comments/:commentId", h.DeleteComment)
	posts.POST("/:id/comments/:commentId/replies", h.AddReply)

	// Conversations are also reachable under /api/messages/conversations.
	for _, prefix := range []string{"/conversations", "/messages/conversations"} {
		convs := protected.Group(prefix)
		convs.GET("", h.ListConversations)
		convs.POST("", h.CreateConversation)
		convs.POST("/group", h.CreateGroup)
		convs.GET("/:id", h.GetMessages)
	}

	messages := protected.Group("/messages")
	messages.POST("", h.SendMessage)
	messages.GET("/unread-count", h.UnreadCount)
	messages.PUT("/read/:conversationId", h.MarkAsRead)
	messages.DELETE("/:id", h.DeleteMessage)

	notifications := protected.Group("/notifications")
	notifications.GET("", h.ListNotifications)
	notifications.PUT("/:id/read", h.MarkNotificationRead)

	push := protected.Group("/push")
	push.POST("/subscribe", h.SubscribePush)
	push.DELETE("/subscribe", h.UnsubscribePush)

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Route not found"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Not found"})
	})

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

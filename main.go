package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectly/broker"
	"connectly/config"
	"connectly/database"
	"connectly/handlers"
	"connectly/media"
	"connectly/middleware"
	"connectly/outbox"
	"connectly/presence"
	"connectly/push"
	"connectly/routes"
	"connectly/services"
	"connectly/store"
	"connectly/websocket"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	initLogger(cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("starting connectly", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()
	db, err := database.ConnectWithRetry(ctx, cfg.MongoURI, cfg.MongoDB, 3, 2*time.Second)
	if err != nil {
		slog.Error("failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	if err := db.EnsureIndexes(ctx, cfg.UniqueConversationPairs); err != nil {
		slog.Error("failed to create indexes", "error", err)
		os.Exit(1)
	}

	// Repositories and services
	users := store.NewUsersStore(db.Users())
	posts := store.NewPostsStore(db.Posts())
	conversations := store.NewConversationsStore(db.Conversations())
	messages := store.NewMessagesStore(db.Messages())
	notificationsRepo := store.NewNotificationsStore(db.Notifications())
	subscriptions := store.NewSubscriptionsStore(db.PushSubscriptions())

	notificationService := services.NewNotificationService(notificationsRepo, users)
	userService := services.NewUserService(users, posts, notificationService)
	postService := services.NewPostService(posts, users, notificationService)
	chatService := services.NewChatService(conversations, messages, users, services.ChatOptions{
		UniquePairs: cfg.UniqueConversationPairs,
		PageSize:    cfg.MessagePageSize,
	})

	// Realtime
	tokens := middleware.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiresIn)
	registry := presence.NewRegistry()
	gateway := websocket.NewManager(registry, tokens.Subject, cfg.ClientURLs, slog.Default())
	dispatcher := outbox.NewDispatcher(registry, slog.Default())

	deps := handlers.Deps{
		Users:         userService,
		Posts:         postService,
		Chat:          chatService,
		Notifications: notificationService,
		Dispatcher:    dispatcher,
		Tokens:        tokens,
		Presence:      registry,
		Logger:        slog.Default(),
	}

	if cfg.WebPushEnabled() {
		notifier := push.NewNotifier(subscriptions, push.VAPID{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
		}, slog.Default())
		dispatcher.WithOffline(notifier)
		deps.Subscriptions = subscriptions
		deps.VAPIDPublicKey = cfg.VAPIDPublicKey
		slog.Info("web push enabled")
	}

	if cfg.CloudinaryURL != "" {
		uploader, err := media.NewCloudinary(cfg.CloudinaryURL, "connectly")
		if err != nil {
			slog.Error("invalid CLOUDINARY_URL", "error", err)
			os.Exit(1)
		}
		deps.Media = uploader
		slog.Info("media uploads enabled")
	}

	var stopBroker func()
	if cfg.NatsURL != "" {
		nc, err := broker.Connect(cfg.NatsURL, slog.Default())
		if err != nil {
			slog.Error("unable to connect to NATS", "error", err)
			os.Exit(1)
		}
		dispatcher.WithMirror(broker.NewNatsPublisher(nc, broker.DefaultSubjectPrefix))
		stopBroker = func() {
			if err := nc.Drain(); err != nil {
				slog.Warn("nats drain failed", "error", err)
			}
		}
		slog.Info("connected to NATS", "url", nc.ConnectedUrl())
	}

	// HTTP
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	limiter := middleware.NewLimiterStore(cfg.RateLimitRequests, cfg.RateLimitWindow)
	router := routes.SetupRouter(handlers.New(deps), routes.Options{
		Tokens:     tokens,
		Limiter:    limiter,
		Realtime:   gateway,
		ClientURLs: cfg.ClientURLs,
		Logger:     slog.Default(),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", server.Addr, "ws", "/ws")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	gateway.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	limiter.Stop()
	if stopBroker != nil {
		stopBroker()
	}
	if err := db.Disconnect(shutdownCtx); err != nil {
		slog.Error("mongo disconnect failed", "error", err)
	}
	slog.Info("server stopped")
}

func initLogger(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

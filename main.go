package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chat-engine/internal/auth"
	"chat-engine/internal/chats"
	"chat-engine/internal/config"
	"chat-engine/internal/delivery"
	"chat-engine/internal/directory"
	"chat-engine/internal/grpcserver"
	"chat-engine/internal/handlers"
	"chat-engine/internal/logging"
	"chat-engine/internal/middleware"
	"chat-engine/internal/observability"
	"chat-engine/internal/presence"
	"chat-engine/internal/rabbitmq"
	"chat-engine/internal/search"
	"chat-engine/internal/store"
	"chat-engine/internal/store/memory"
	"chat-engine/internal/store/mongostore"
	"chat-engine/internal/store/sqlstore"
	"chat-engine/internal/telemetry"
	"chat-engine/internal/ws"
)

const serviceName = "chat-engine"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.IsDebug(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("chat engine stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, cfg.AppEnv, logger)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)

	var (
		observer presence.Observer
		lastSeen *presence.LastSeen
		seenView handlers.LastSeenReader
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		lastSeen = presence.NewLastSeen(rdb, cfg.StoreTimeout, logger)
		observer, seenView = lastSeen, lastSeen
	}

	registry := presence.NewRegistry(observer, logger)
	registry.OnChange(observability.SetPresenceOnline)

	tokens := auth.NewTokens(cfg.Secret(), cfg.TokenTTL)
	dir := directory.New(st, auth.NewHasher(auth.DefaultArgon2Params), sessionCleanup{registry: registry, lastSeen: lastSeen}, logger)
	engine := delivery.New(dir, st, registry, publisher, logger, delivery.Options{
		PageSize:       cfg.PageSize,
		MaxUnreadFetch: cfg.MaxUnreadFetch,
	})

	accountHandler := handlers.NewAccountHandler(engine, dir, tokens, audit, logger)
	userHandler := handlers.NewUserHandler(dir, search.New(st, cfg.SearchPageSize), registry, seenView, cfg.PageSize, logger)
	chatHandler := handlers.NewChatHandler(engine, chats.New(st, st), cfg.PageSize, logger)
	wsHandler := ws.NewHandler(tokens, dir, registry, cfg.SinkBuffer, logger)

	if !cfg.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(serviceName),
		middleware.RequestID(),
		middleware.AccessLog(logger),
		observability.HTTPMetricsMiddleware(),
	)

	router.GET("/healthz", func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", observability.MetricsHandler())

	router.POST("/accounts", accountHandler.Create)
	router.POST("/login", accountHandler.Login)
	router.DELETE("/accounts", accountHandler.Delete)

	authMiddleware := middleware.AuthMiddleware(tokens)

	router.GET("/users", authMiddleware, userHandler.List)
	router.GET("/users/search", authMiddleware, userHandler.Search)
	router.GET("/users/:id/presence", authMiddleware, userHandler.Presence)

	router.POST("/messages", authMiddleware, chatHandler.SendMessage)
	router.DELETE("/messages", authMiddleware, chatHandler.DeleteMessages)
	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.GET("/chats/:peer_id/messages", authMiddleware, chatHandler.GetChatMessages)
	router.GET("/chats/:peer_id/unread", authMiddleware, chatHandler.UnreadCount)
	router.POST("/chats/:peer_id/unread/fetch", authMiddleware, chatHandler.FetchUnread)

	router.GET("/ws", wsHandler.Handle)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := grpcserver.New(logger)
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreBackend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return grpcServer.Serve(grpcListener)
	})
	g.Go(func() error {
		grpcServer.Watch(gctx, st, cfg.StoreTimeout)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.Stop(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	openCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		return sqlstore.OpenPostgres(openCtx, cfg.DatabaseDSN, logger)
	case config.BackendSQLite:
		return sqlstore.OpenSQLite(openCtx, cfg.SQLitePath, logger)
	case config.BackendMongo:
		return mongostore.Open(openCtx, cfg.MongoURI,
			mongostore.WithDatabase(cfg.MongoDatabase),
			mongostore.WithTimeout(cfg.StoreTimeout),
			mongostore.WithLogger(logger),
		)
	default:
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	}
}

// sessionCleanup evicts a deleted account's live session and drops its last-seen record.
type sessionCleanup struct {
	registry *presence.Registry
	lastSeen *presence.LastSeen
}

func (s sessionCleanup) Evict(accountID string) bool {
	evicted := s.registry.Evict(accountID)
	if s.lastSeen != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.lastSeen.Forget(ctx, accountID)
	}
	return evicted
}

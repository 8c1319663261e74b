package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chathub/internal/auth"
	"chathub/internal/config"
	"chathub/internal/db"
	"chathub/internal/handlers"
	"chathub/internal/kafka"
	"chathub/internal/logx"
	"chathub/internal/middleware"
	"chathub/internal/models"
	"chathub/internal/notify"
	"chathub/internal/observability"
	"chathub/internal/rabbitmq"
	"chathub/internal/realtime"
	"chathub/internal/repositories"
	"chathub/internal/telemetry"
	"chathub/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logx.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}
	logx.Init(cfg.Log)
	logger := logx.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracing")
	}

	database, err := db.Connect(cfg.Database.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer auditPublisher.Close()
	logger.Info().
		Str("mode", rabbitmq.PublisherMode(auditPublisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(auditPublisher)).
		Msg("audit publisher ready")
	audit := telemetry.NewAuditEmitter(auditPublisher, cfg.Audit.RoutingKey, cfg.Telemetry.ServiceName, cfg.Audit.Environment)

	notifyPublisher, routingKey := buildNotifyPublisher(cfg)
	dispatcher := notify.NewDispatcher(notifyPublisher, notify.Config{
		QueueSize:      cfg.Notify.QueueSize,
		Workers:        cfg.Notify.Workers,
		PublishTimeout: cfg.Notify.PublishTimeout,
		RoutingKey:     routingKey,
	})

	consumer := startNotificationConsumer(ctx, cfg)

	messageRepo := repositories.NewMessageRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	validator := auth.NewValidator(cfg.Auth.JWTSecret, "")

	hub := ws.NewHub()
	service := realtime.NewService(realtime.NewRegistry(), realtime.Deps{
		Auth:        validator,
		Groups:      groupRepo,
		Messages:    messageRepo,
		History:     messageRepo,
		Notifier:    dispatcher,
		Transport:   hub,
		NotifyLimit: cfg.Presence.NotifyLimit,
		MaxContent:  cfg.Chat.MaxContentLength,
		PageSize:    cfg.History.PageSize,
	})

	chatHandler := handlers.NewChatHandler(messageRepo, groupRepo, service.Router(), service.History(), service, audit)
	groupHandler := handlers.NewGroupHandler(groupRepo, service.Router(), service.History(), audit)
	wsHandler := ws.NewHandler(hub, service, audit, cfg.WebSocket)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.Len()})
	})

	authMiddleware := middleware.AuthMiddleware(validator)

	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.GET("/chats/:user_id/messages", authMiddleware, chatHandler.GetChatMessages)
	router.POST("/chats/:user_id/messages", authMiddleware, chatHandler.PostChatMessage)
	router.GET("/presence", authMiddleware, chatHandler.ConnectedUsers)

	router.POST("/groups", authMiddleware, groupHandler.CreateGroup)
	router.GET("/groups", authMiddleware, groupHandler.ListGroups)
	router.GET("/groups/:group_id/messages", authMiddleware, groupHandler.GetGroupMessages)
	router.POST("/groups/:group_id/messages", authMiddleware, groupHandler.PostGroupMessage)
	router.POST("/groups/:group_id/members", authMiddleware, groupHandler.AddMember)
	router.DELETE("/groups/:group_id/members/:user_id", authMiddleware, groupHandler.RemoveMember)

	router.GET("/ws", wsHandler.Handle)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("chathub listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	// Hijacked websocket connections outlive srv.Shutdown; their sessions must
	// finish before the dispatcher stops accepting notifications.
	if err := hub.CloseAll(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("websocket shutdown")
	}
	if err := dispatcher.Close(); err != nil {
		logger.Error().Err(err).Msg("notification dispatcher shutdown")
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error().Err(err).Msg("notification consumer shutdown")
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown")
	}
}

// startNotificationConsumer reads notifications back from the kafka topic
// when a consumer group is configured. Returns nil when disabled.
func startNotificationConsumer(ctx context.Context, cfg *config.Config) *kafka.NotificationConsumer {
	logger := logx.L()
	if cfg.Notify.Broker != "kafka" || cfg.Kafka.ConsumerGroup == "" {
		return nil
	}

	consumer, err := kafka.NewNotificationConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ConsumerGroup,
		func(ctx context.Context, n models.Notification) error {
			l := logx.Ctx(ctx)
			l.Info().
				Str("message_id", n.MessageID).
				Str("sender_id", n.SenderID).
				Str("receiver_id", n.ReceiverID).
				Msg("offline notification")
			return nil
		})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create kafka consumer")
	}
	if err := consumer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start kafka consumer")
	}
	return consumer
}

// buildNotifyPublisher returns the broker publisher for offline notifications
// and the routing key to publish with. Kafka keys records by receiver id.
func buildNotifyPublisher(cfg *config.Config) (notify.Publisher, string) {
	logger := logx.L()
	switch cfg.Notify.Broker {
	case "kafka":
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		logger.Info().Str("topic", cfg.Kafka.Topic).Msg("notifications via kafka")
		return producer, ""
	case "noop":
		return rabbitmq.NewPublisher("", cfg.AMQP.Exchange), cfg.Notify.RoutingKey
	default:
		publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		logger.Info().Str("mode", rabbitmq.PublisherMode(publisher)).Msg("notifications via rabbitmq")
		return publisher, cfg.Notify.RoutingKey
	}
}

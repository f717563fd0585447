package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-gateway/internal/auth"
	"messaging-gateway/internal/broadcast"
	"messaging-gateway/internal/db"
	"messaging-gateway/internal/handlers"
	"messaging-gateway/internal/middleware"
	"messaging-gateway/internal/observability"
	"messaging-gateway/internal/repositories"
	"messaging-gateway/internal/taskqueue"
	"messaging-gateway/internal/tasks"
	"messaging-gateway/internal/ws"
)

func main() {
	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, "messaging-gateway", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	if amqpURL := getEnv("AMQP_URL", ""); amqpURL != "" {
		publisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("AMQP_EXCHANGE", "gateway_events"))
		if err != nil {
			log.Printf("amqp disabled: %v", err)
		} else {
			observability.SetPublisher(publisher)
			defer publisher.Close()
		}
	}

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)
	activityRepo := repositories.NewActivityRepo(database)

	backend, err := buildBackend()
	if err != nil {
		log.Fatalf("failed to build broadcast backend: %v", err)
	}

	queue := taskqueue.New()
	queue.Start()
	defer queue.Stop()

	dispatcher := tasks.NewDispatcher(queue, notificationRepo, activityRepo, backend)

	verifier := auth.NewVerifier(getEnv("JWT_SECRET", "dev-secret"))

	conversationWS := ws.NewConversationWSHandler(backend, conversationRepo, messageRepo, userRepo, verifier, dispatcher)
	notificationWS := ws.NewNotificationWSHandler(backend, verifier)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("messaging-gateway"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/ws/conversations/:conversation_id", conversationWS.Handle)
	router.GET("/ws/notifications", notificationWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authMiddleware := middleware.AuthMiddleware(verifier)
	handlers.RegisterDebugRoutes(router, authMiddleware, dispatcher, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8086")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func buildBackend() (broadcast.Backend, error) {
	if getEnv("BROADCAST_BACKEND", "memory") == "redis" {
		return broadcast.NewRedisBackend(getEnv("REDIS_URL", "redis://localhost:6379/0"))
	}
	return broadcast.NewMemoryBackend(), nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

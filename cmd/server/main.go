package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"orcabus-run-manager/internal/api/handler"
	"orcabus-run-manager/internal/config"
	"orcabus-run-manager/internal/core/postgres/repository"
	"orcabus-run-manager/internal/infrastructure/redis"
	"orcabus-run-manager/internal/ingest"
	"orcabus-run-manager/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 2. Set up database connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
	runRepo := repository.NewRunRepository(db)

	// 3. Set up Redis event bus and dead-letter list
	redisClient := redis.NewRedisClient(cfg.Redis.Addr)
	eventBus := redis.NewRunEventBus(redisClient)
	deadLetter := redis.NewDeadLetterQueue(redisClient)

	// 4. Initialize the reconciliation service
	reconciler := service.NewReconciler(runRepo, service.ReconcilePolicy{
		StrictWorkflows: cfg.Reconcile.StrictWorkflows,
		StrictLibraries: cfg.Reconcile.StrictLibraries,
	})

	// 5. Start the inbound event consumer
	consumer := ingest.NewConsumer(eventBus, deadLetter, reconciler)
	if err := consumer.Start(ctx); err != nil {
		log.Fatal("Failed to start event consumer:", err)
	}

	// 6. Set up routes
	runHandler := handler.NewRunHandler(reconciler, runRepo, eventBus)

	router := gin.Default()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/events/:kind", runHandler.IngestEvent)
		api.GET("/workflowruns/:portalRunId", runHandler.GetRun)
		api.POST("/workflowruns/:portalRunId/state", runHandler.CreateState)
		api.POST("/workflowruns/:portalRunId/rerun", runHandler.Rerun)
	}

	// 7. Start server
	log.Println("Server starting on", cfg.Server.Addr)
	if err := router.Run(cfg.Server.Addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

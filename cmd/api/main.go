package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mentorium/supervision-api/internal/config"
	"github.com/mentorium/supervision-api/internal/database"
	"github.com/mentorium/supervision-api/internal/handler"
	"github.com/mentorium/supervision-api/internal/middleware"
	"github.com/mentorium/supervision-api/internal/models"
	"github.com/mentorium/supervision-api/internal/repository"
	"github.com/mentorium/supervision-api/internal/router"
	"github.com/mentorium/supervision-api/internal/service"
	"github.com/mentorium/supervision-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Relationship{}, &models.UnbindRequest{}, &models.LifecycleEvent{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured, status cache and event fan-out degraded")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, cross-node event mirroring disabled")
		natsConn = nil
	} else {
		defer natsConn.Drain()
	}

	uploader, err := storage.New(storage.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create storage client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	relationshipRepo := repository.NewRelationshipRepository(db)
	unbindRepo := repository.NewUnbindRepository(db)
	eventRepo := repository.NewLifecycleEventRepository(db)

	eventService := service.NewEventService(eventRepo, redisClient, cfg.EventChannelBase, natsConn, logger)
	statusCache := service.NewStatusCache(redisClient, cfg.StatusCacheTTL, logger)
	lifecycleService := service.NewLifecycleService(relationshipRepo, unbindRepo, eventService, statusCache, validate, cfg.DocumentGraceWindow, logger)
	unbindService := service.NewUnbindService(relationshipRepo, unbindRepo, eventService, statusCache, validate, cfg.UnbindCooldown, cfg.RejectionThreshold, logger)
	documentService := service.NewDocumentService(uploader, lifecycleService, cfg.DocumentMaxSizeMB, logger)
	complianceService := service.NewComplianceService(relationshipRepo, eventService, logger)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	eventService.Start(runCtx)

	relationshipHandler := handler.NewRelationshipHandler(lifecycleService, validate, logger)
	unbindHandler := handler.NewUnbindHandler(unbindService, validate, logger)
	documentHandler := handler.NewDocumentHandler(documentService, logger)
	complianceHandler := handler.NewComplianceHandler(complianceService, logger)
	eventFeedHandler := handler.NewEventFeedHandler(eventService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		RelationshipHandler: relationshipHandler,
		UnbindHandler:       unbindHandler,
		DocumentHandler:     documentHandler,
		ComplianceHandler:   complianceHandler,
		EventFeedHandler:    eventFeedHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}

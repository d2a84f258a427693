package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ordelia/chat-api/internal/access"
	"github.com/ordelia/chat-api/internal/bus"
	"github.com/ordelia/chat-api/internal/config"
	"github.com/ordelia/chat-api/internal/database"
	"github.com/ordelia/chat-api/internal/handler"
	"github.com/ordelia/chat-api/internal/middleware"
	"github.com/ordelia/chat-api/internal/models"
	"github.com/ordelia/chat-api/internal/moderation"
	"github.com/ordelia/chat-api/internal/presence"
	"github.com/ordelia/chat-api/internal/ratelimit"
	"github.com/ordelia/chat-api/internal/repository"
	"github.com/ordelia/chat-api/internal/router"
	"github.com/ordelia/chat-api/internal/service"
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

	if err := db.AutoMigrate(
		&models.ChatRoom{},
		&models.ChatMessage{},
		&models.CustomerProfile{},
		&models.VendorProfile{},
		&models.Notification{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New(validator.WithRequiredStructEnabled())

	roomRepo := repository.NewRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	var eventBus bus.Bus
	if natsConn != nil {
		eventBus = bus.NewNATSBus(natsConn, cfg.BusChannelBase, logger)
	} else {
		eventBus = bus.NewRedisBus(redisClient, cfg.BusChannelBase, logger)
	}
	defer eventBus.Close()

	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.BusChannelBase, natsConn, validate, logger)
	notificationService.Start(runCtx)

	chatService := service.NewChatService(service.ChatServiceParams{
		Messages:      messageRepo,
		Profiles:      profileRepo,
		Rooms:         roomRepo,
		Authorizer:    access.NewAuthorizer(roomRepo, profileRepo),
		Limiter:       ratelimit.NewLimiter(),
		Filter:        moderation.NewFilter(),
		Presence:      presence.NewRegistry(redisClient, cfg.PresencePrefix),
		Bus:           eventBus,
		Notifier:      notificationService.(service.Notifier),
		Validator:     validate,
		Logger:        logger,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	if err := chatService.Start(runCtx); err != nil {
		log.Fatalf("failed to subscribe to fan-out bus: %v", err)
	}

	roomService := service.NewRoomService(roomRepo, messageRepo, profileRepo, validate, logger)

	chatHandler := handler.NewChatHandler(chatService, roomService, validate, logger)
	adminChatHandler := handler.NewAdminChatHandler(roomService, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger, cfg.NotifyTimeout)
	roomProvisionHandler := handler.NewRoomProvisionHandler(roomService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:        &logger,
		AllowedOrigin: cfg.AllowedOrigin,
	})
	router.Register(app, cfg, router.Dependencies{
		ChatHandler:          chatHandler,
		AdminChatHandler:     adminChatHandler,
		NotificationHandler:  notificationHandler,
		RoomProvisionHandler: roomProvisionHandler,
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-runCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}

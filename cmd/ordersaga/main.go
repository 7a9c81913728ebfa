package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appsaga "ordersaga/internal/app/saga"
	"ordersaga/internal/config"
	http_saga "ordersaga/internal/handler/http/saga"
	kafka_handler "ordersaga/internal/handler/kafka"
	"ordersaga/internal/infrastructure/database"
	"ordersaga/internal/infrastructure/kafka"
	"ordersaga/internal/monitor"
	"ordersaga/internal/outbox"
	postgres_inbox_repo "ordersaga/internal/repository/inbox_repo/postgres"
	postgres_order_repo "ordersaga/internal/repository/order_repo/postgres"
	postgres_outbox_repo "ordersaga/internal/repository/outbox_repo/postgres"
	postgres_saga_repo "ordersaga/internal/repository/saga_repo/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("Order Saga Service starting...")

	appLogger.Info("Waiting for database to be available...")
	dbConfig := database.DBConfig{
		Host:     cfg.DBConfig.DBHost,
		Port:     cfg.DBConfig.DBPort,
		User:     cfg.DBConfig.DBUser,
		Password: cfg.DBConfig.DBPassword,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.DBSSLMode,
	}

	var db *sql.DB
	maxRetries := 10
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(dbConfig)
		if err == nil {
			appLogger.Info("Successfully connected to PostgreSQL database!")
			break
		}
		appLogger.Warn(fmt.Sprintf("Failed to connect to database (attempt %d/%d): %v. Retrying in %s...", i+1, maxRetries, err, retryDelay))
		time.Sleep(retryDelay)
	}

	if db == nil {
		appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	appLogger.Info("Running database migrations...")
	migrateDSN := "postgres://" + cfg.GetDBMigrationConnectionString()
	m, err := migrate.New(cfg.MigrationsPath, migrateDSN)
	if err != nil {
		appLogger.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	appLogger.Info("Database migrations completed successfully (or no new migrations).")

	kafkaProducer, err := kafka.NewProducer(cfg.GetKafkaBrokers(), appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()
	appLogger.Info("Kafka producer created successfully.")

	orderRepository := postgres_order_repo.NewOrderRepository()
	sagaRepository := postgres_saga_repo.NewSagaRepository()
	outboxRepository := postgres_outbox_repo.NewOutboxRepository()
	inboxRepository := postgres_inbox_repo.NewInboxRepository()

	topics := appsaga.Topics{
		PricingRequest:        cfg.PricingRequestTopic,
		InventoryRequest:      cfg.InventoryRequestTopic,
		CardValidationRequest: cfg.CardValidationRequestTopic,
		PaymentRequest:        cfg.PaymentRequestTopic,
		DeliveryRequest:       cfg.DeliveryRequestTopic,
		Notifications:         cfg.NotificationsTopic,
	}

	sagaService := appsaga.NewSagaService(
		db,
		orderRepository,
		sagaRepository,
		outboxRepository,
		inboxRepository,
		topics,
		cfg.SagaMaxRetries,
		appLogger.With(zap.String("component", "SagaOrchestrator")),
	)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	outboxProcessor := outbox.NewProcessor(
		db,
		outboxRepository,
		kafkaProducer,
		cfg.OutboxPollInterval,
		cfg.OutboxPollTimeout,
		cfg.OutboxBatchSize,
		cfg.OutboxMaxRetries,
		cfg.OutboxPurgeInterval,
		cfg.OutboxRetention,
		appLogger.With(zap.String("component", "OutboxProcessor")),
	)
	outboxProcessor.Start(rootCtx)
	appLogger.Info("Transactional outbox processor started.")

	timeoutMonitor := monitor.NewTimeoutMonitor(
		db,
		sagaRepository,
		sagaService,
		cfg.SagaTimeoutInterval,
		cfg.SagaTimeoutThreshold,
		cfg.SagaTimeoutBatchSize,
		appLogger.With(zap.String("component", "SagaTimeoutMonitor")),
	)
	timeoutMonitor.Start(rootCtx)
	appLogger.Info("Saga timeout monitor started.")

	consumers := []struct {
		topic   string
		handler kafka.MessageHandler
	}{
		{cfg.PricingResponseTopic, kafka_handler.PricingResponseHandler(sagaService, appLogger)},
		{cfg.InventoryResponseTopic, kafka_handler.InventoryResponseHandler(sagaService, appLogger)},
		{cfg.CardValidationResponseTopic, kafka_handler.CardValidationResponseHandler(sagaService, appLogger)},
		{cfg.PaymentResponseTopic, kafka_handler.PaymentResponseHandler(sagaService, appLogger)},
		{cfg.DeliveryResponseTopic, kafka_handler.DeliveryResponseHandler(sagaService, appLogger)},
	}
	for _, c := range consumers {
		c := c
		go func() {
			err := kafka.StartConsumer(
				rootCtx,
				cfg.GetKafkaBrokers(),
				c.topic,
				cfg.KafkaConsumerGroup,
				c.handler,
				appLogger,
			)
			if err != nil {
				appLogger.Fatal("Kafka consumer failed", zap.String("topic", c.topic), zap.Error(err))
			}
		}()
	}
	appLogger.Info("Kafka response consumers started.")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	http_saga.RegisterRoutes(r, sagaService, appLogger)

	serverAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	appLogger.Info("Order Saga Service started", zap.String("address", serverAddr))

	<-sigChan

	appLogger.Info("Shutting down Order Saga Service...")
	rootCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Fatal("Order Saga Service graceful shutdown failed", zap.Error(err))
	}
	appLogger.Info("Order Saga Service stopped.")
}

// Package main provides the main entry point for the Susanoo dispatch service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/Susanoo/app/handlers"
	"github.com/amirphl/Susanoo/app/middleware"
	"github.com/amirphl/Susanoo/app/router"
	"github.com/amirphl/Susanoo/app/scheduler"
	businessflow "github.com/amirphl/Susanoo/business_flow"
	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Susanoo application...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, 30*time.Second)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Initialize repositories
	customerRepo := repository.NewCustomerRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	scheduleRepo := repository.NewMessageScheduleRepository(db)
	queueRepo := repository.NewQueueItemRepository(db)
	outcomeRepo := repository.NewDeliveryOutcomeRepository(db)
	settingsRepo := repository.NewDispatchSettingsRepository(db)

	// Gateway client shared by the dispatcher and the immediate send path
	gateway := scheduler.NewWAPanelClient(cfg.Gateway)

	// Initialize flows
	scheduleFlow := businessflow.NewScheduleFlow(
		scheduleRepo,
		deviceRepo,
		campaignRepo,
		customerRepo,
		db,
	)

	campaignFlow := businessflow.NewCampaignFlow(
		campaignRepo,
		customerRepo,
		db,
	)

	deviceFlow := businessflow.NewDeviceFlow(
		deviceRepo,
		customerRepo,
		db,
	)

	queueFlow := businessflow.NewQueueFlow(
		queueRepo,
		outcomeRepo,
		settingsRepo,
		customerRepo,
		db,
		rc,
		&cfg.Cache,
	)

	sendFlow := businessflow.NewSendFlow(
		queueRepo,
		outcomeRepo,
		deviceRepo,
		customerRepo,
		gateway,
		db,
	)

	// Initialize handlers
	scheduleHandler := handlers.NewScheduleHandler(scheduleFlow)
	campaignHandler := handlers.NewCampaignHandler(campaignFlow)
	deviceHandler := handlers.NewDeviceHandler(deviceFlow)
	queueHandler := handlers.NewQueueHandler(queueFlow)
	sendHandler := handlers.NewSendHandler(sendFlow)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.Security, customerRepo)

	// Initialize router
	appRouter := router.NewFiberRouter(
		cfg,
		authMiddleware,
		scheduleHandler,
		campaignHandler,
		deviceHandler,
		queueHandler,
		sendHandler,
	)

	// Start background workers
	dispatcher := scheduler.NewDispatcher(queueRepo, outcomeRepo, settingsRepo, gateway, db, cfg.Logging, cfg.Dispatcher)
	stopFuncs = append(stopFuncs, dispatcher.Start(context.Background()))

	runner := scheduler.NewRecurrenceRunner(scheduleRepo, queueRepo, campaignRepo, deviceRepo, db, cfg.Logging, cfg.Dispatcher)
	stopFuncs = append(stopFuncs, runner.Start(context.Background()))

	// Create application struct from FiberRouter
	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/medimart/orders/internal/cache"
	"github.com/medimart/orders/internal/gateway"
	ordershttp "github.com/medimart/orders/internal/http"
	"github.com/medimart/orders/internal/publisher"
	"github.com/medimart/orders/internal/reclaimer"
	"github.com/medimart/orders/internal/repository"
	"github.com/medimart/orders/internal/service"
)

func main() {
	log.Println("orders service starting...")

	// Configuration
	httpPort := getEnv("HTTP_PORT", "8080")
	callbackURL := getEnv("PAYMENT_CALLBACK_URL", "http://localhost:8080/api/v1/payments/callback")
	gatewayURL := getEnv("PAYMENT_GATEWAY_URL", "https://api.paystack.co")
	gatewayKey := getEnv("PAYMENT_GATEWAY_SECRET", "")
	kafkaBrokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	reclaimTick := getEnvDuration("RECLAIM_INTERVAL", time.Hour)

	// Database setup
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "postgres")
	dbPass := getEnv("DB_PASSWORD", "postgres")
	dbName := getEnv("DB_NAME", "medimart")
	migrationsPath := getEnv("MIGRATIONS_PATH", "./migrations")

	port, err := strconv.Atoi(dbPort)
	if err != nil {
		log.Fatalf("Invalid DB_PORT: %v", err)
	}

	creds := &repository.Credentials{
		Host:              dbHost,
		Port:              port,
		User:              dbUser,
		Password:          dbPass,
		DBName:            dbName,
		MigrationsDirPath: migrationsPath,
	}

	repo, err := repository.NewRepository(creds)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Redis cart cache
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed:", err)
	}
	log.Printf("Redis ping succeeded")
	cartCache := cache.NewRedisCache(redisClient)

	// Payment gateway client
	paymentGateway := gateway.NewHTTPGateway(gatewayURL, gatewayKey)

	// Services
	cartService := service.NewCartService(repo, cartCache)
	checkoutService := service.NewCheckoutService(repo, paymentGateway, cartCache, callbackURL)
	prescriptionService := service.NewPrescriptionService(repo)
	reconcileService := service.NewReconcileService(repo, paymentGateway)
	orderService := service.NewOrderService(repo)

	// Background workers
	sweeper := reclaimer.NewReclaimer(repo, reclaimTick)
	go sweeper.Run(ctx)
	log.Printf("Timeout reclaimer running every %v", reclaimTick)

	poller := publisher.NewOutboxPoller(repo, kafkaBrokers...)
	go poller.Run(ctx)
	log.Printf("Outbox poller publishing to %v", kafkaBrokers)

	// HTTP surface
	handlers := ordershttp.NewHandlers(
		cartService,
		checkoutService,
		prescriptionService,
		reconcileService,
		orderService,
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(ordershttp.IdentityMiddleware)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	handlers.Routes(r)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", httpPort),
		Handler: r,
	}

	go func() {
		log.Printf("Orders service listening on :%s", httpPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orders service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Orders service stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("Invalid %s: %v", key, err)
	}
	return d
}

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
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-raffle/internal/auth"
	"ms-raffle/internal/config"
	"ms-raffle/internal/database/migrations"
	"ms-raffle/internal/draw"
	draw_db "ms-raffle/internal/draw/db"
	"ms-raffle/internal/draw/draw_api"
	"ms-raffle/internal/events"
	"ms-raffle/internal/kafka"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/payment"
	"ms-raffle/internal/payment/payment_api"
	"ms-raffle/internal/raffle"
	raffle_db "ms-raffle/internal/raffle/db"
	"ms-raffle/internal/raffle/raffle_api"
	"ms-raffle/internal/reservation"
	reservation_db "ms-raffle/internal/reservation/db"
	rediswrap "ms-raffle/internal/reservation/redis"
	"ms-raffle/internal/reservation/reservation_api"
	"ms-raffle/internal/sweeper"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	// Number-lock TTL expiry feeds the sweeper through keyspace events.
	_, err = redisClient.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result()
	if err != nil {
		logger.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	} else {
		logger.Info("REDIS", "Keyspace notifications enabled for expired events")
	}

	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Raffle Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	migrationRunner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), logger)
	if err := migrationRunner.Run(); err != nil {
		logger.Warn("DATABASE", fmt.Sprintf("Migrations not applied: %v", err))
	}

	var kafkaProducer *kafka.Producer
	if cfg.Kafka.Enabled {
		kafkaProducer = kafka.NewProducer(cfg.Kafka.Brokers)
		logger.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))

		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics.All()); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			logger.Info("KAFKA", "Required topics ensured successfully")
		}
		defer kafkaProducer.Close()
	} else {
		logger.Warn("KAFKA", "Kafka disabled, lifecycle events stay in-process only")
	}

	if cfg.Stripe.Enabled {
		payment.InitStripe(cfg.Stripe.SecretKey)
		logger.Info("PAYMENT", "Stripe client initialized")
	}

	ledger := &reservation_db.DB{Bun: bunDB}
	numberLock := rediswrap.NewRedis(redisClient)
	emitter := events.NewEmitter()

	// A nil interface-typed publisher, not a typed-nil *Producer, when Kafka
	// is off.
	var reservationPublisher reservation.KafkaPublisher
	var paymentPublisher payment.KafkaPublisher
	var sweeperPublisher sweeper.KafkaPublisher
	var drawPublisher draw.KafkaPublisher
	if kafkaProducer != nil {
		reservationPublisher = kafkaProducer
		paymentPublisher = kafkaProducer
		sweeperPublisher = kafkaProducer
		drawPublisher = kafkaProducer
	}

	reservationService := reservation.NewService(
		ledger, numberLock, reservationPublisher, emitter,
		cfg.Kafka.Topics.TicketsReserved, logger)

	paymentService := payment.NewService(
		ledger, numberLock, paymentPublisher, emitter,
		payment.Topics{
			Proof:   cfg.Kafka.Topics.ProofSubmitted,
			Decided: cfg.Kafka.Topics.PurchaseDecided,
			Expired: cfg.Kafka.Topics.PurchaseExpired,
		},
		cfg.Stripe.WebhookSecret, logger)

	raffleService := raffle.NewService(&raffle_db.DB{Bun: bunDB}, cfg.Raffle.DefaultHoldMinutes, logger)

	drawService := draw.NewService(
		&draw_db.DB{Bun: bunDB}, drawPublisher, emitter,
		cfg.Kafka.Topics.DrawCompleted, logger)

	reservationHandler := &reservation_api.Handler{Service: reservationService, Logger: logger}
	paymentHandler := &payment_api.Handler{Service: paymentService, Logger: logger}
	raffleHandler := &raffle_api.Handler{Service: raffleService, Logger: logger}
	drawHandler := &draw_api.Handler{Service: drawService, Logger: logger}
	sseHandler := events.NewSSEHandler(emitter, logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	r.Route("/api", func(r chi.Router) {
		r.Get("/raffle", raffleHandler.List)
		r.Get("/raffle/{raffleId}", raffleHandler.Get)
		r.Get("/raffle/{raffleId}/tickets", reservationHandler.Availability)
		r.Post("/raffle/{raffleId}/reserve", reservationHandler.Reserve)
		r.Get("/raffle/{raffleId}/events", sseHandler.StreamRaffle)

		r.Get("/purchase", reservationHandler.PurchaseStatus)
		r.Get("/purchase/{purchaseId}", reservationHandler.PurchaseStatus)
		r.Post("/purchase/{purchaseId}/proof", paymentHandler.SubmitProof)

		r.Get("/draw/{drawId}/verify", drawHandler.VerifyDraw)

		if cfg.Stripe.Enabled {
			r.Post("/purchase/{purchaseId}/payment-intent", paymentHandler.CreatePaymentIntent)
			r.Post("/stripe/webhook", paymentHandler.StripeWebhook)
		}
	})
	logger.Info("ROUTER", "Public raffle, purchase and draw routes registered under /api")

	// --- Admin Routes ---
	r.Group(func(r chi.Router) {
		tokenCache := auth.NewVerifiedTokenCache(redisClient)
		r.Use(auth.Middleware(cfg.Auth.OIDCIssuer, tokenCache))
		r.Use(auth.RequireRole(auth.RoleAdmin, auth.RoleSuperAdmin))
		logger.Info("AUTH", "OIDC middleware applied to admin routes")

		r.Route("/api/admin", func(r chi.Router) {
			r.Post("/raffle", raffleHandler.Create)
			r.Post("/raffle/{raffleId}/state", raffleHandler.Transition)
			r.Post("/raffle/{raffleId}/draw", drawHandler.RunDraw)
			r.Patch("/purchase/{purchaseId}", paymentHandler.AdminDecide)
			r.Get("/events", sseHandler.StreamAll)
		})
		logger.Info("ROUTER", "Admin routes registered under /api/admin")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()

	reservationSweeper := sweeper.New(
		ledger, sweeperPublisher, emitter,
		cfg.Kafka.Topics.PurchaseExpired, cfg.Raffle.SweepInterval, logger)
	reservationSweeper.Start(sweeperCtx)
	reservationSweeper.SubscribeNumberUnlocks(sweeperCtx, redisClient)

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Raffle Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Raffle Service shutdown complete")
	}
}

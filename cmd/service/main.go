package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"booking-service/config"
	"booking-service/internal/cache"
	"booking-service/internal/consumer"
	"booking-service/internal/producer"
	"booking-service/internal/reclaim"
	"booking-service/internal/repository"
	"booking-service/internal/service"
	"booking-service/internal/transport/httpapi"
	"booking-service/pkg/database"
	"booking-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	repos := repository.New(db)

	// интерфейсы, а не *RedisClient: nil-указатель внутри интерфейса не равен nil
	var (
		availCache service.AvailabilityCache
		lease      reclaim.Lease
	)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.AvailabilityTTL, log)
		if err != nil {
			log.Fatal("failed to create redis client", zap.Error(err))
		}
		defer redisClient.Close()
		availCache, lease = redisClient, redisClient
		log.Info("Redis cache enabled")
	} else {
		log.Info("Redis cache disabled")
	}

	var events service.EventBus
	if cfg.Kafka.Enabled {
		p := producer.NewBookingEventProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer p.Close()
		events = p
		log.Info("Kafka events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.EventsTopic))
	}

	bookingSvc := service.NewBookingService(repos, events, availCache, service.BookingOptions{
		HoldDuration: cfg.Booking.HoldDuration,
		MaxAttempts:  cfg.Booking.ReserveRetries,
	}, log)
	inventorySvc := service.NewInventoryService(repos, availCache, log)

	sweeper := reclaim.NewSweeper(bookingSvc, cfg.Reclaim.BatchSize, log)
	scheduler := reclaim.NewScheduler(sweeper, cfg.Reclaim.Interval, lease, cfg.Reclaim.LockTTL, log)

	router := httpapi.Router(httpapi.Services{
		Bookings:  bookingSvc,
		Outcomes:  bookingSvc,
		Inventory: inventorySvc,
	}, log)

	srv := &http.Server{
		Addr:              listenAddr(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	scheduler.Start(gctx)

	if cfg.Kafka.Enabled {
		payments := consumer.NewKafkaPaymentConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.PaymentsTopic, bookingSvc, log)
		defer payments.Close()
		g.Go(func() error {
			return payments.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down HTTP server...")

		scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("service stopped with error", zap.Error(err))
		return
	}
	log.Info("HTTP server stopped gracefully")
}

func listenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"booking-service/config"
	"booking-service/internal/reclaim"
	"booking-service/internal/repository"
	"booking-service/internal/service"
	"booking-service/pkg/database"
	"booking-service/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Разовый проход по просроченным броням, для cron или ручного запуска.
func main() {
	_ = godotenv.Load()

	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}
	defer logger.Sync()

	log := logger.L()
	cfg := config.Load(log)

	batch := cfg.Reclaim.BatchSize
	if len(os.Args) > 1 {
		n, err := strconv.Atoi(os.Args[1])
		if err != nil || n <= 0 {
			fmt.Println("Usage: go run cmd/reclaim/main.go [batch-size]")
			fmt.Println("  batch-size - max bookings to expire in one pass (default RECLAIM_BATCH_SIZE)")
			os.Exit(1)
		}
		batch = n
	}

	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	repos := repository.New(db)
	bookingSvc := service.NewBookingService(repos, nil, nil, service.BookingOptions{
		HoldDuration: cfg.Booking.HoldDuration,
		MaxAttempts:  cfg.Booking.ReserveRetries,
	}, log)

	sweeper := reclaim.NewSweeper(bookingSvc, batch, log)

	log.Info("running expired bookings reclaim", zap.Int("batch", batch))
	res, err := sweeper.Sweep(context.Background())
	if err != nil {
		log.Fatal("failed to reclaim expired bookings", zap.Error(err))
	}

	log.Info("reclaim completed successfully",
		zap.Int("selected", res.Selected),
		zap.Int("expired", res.Expired),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
}

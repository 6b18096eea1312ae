package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/studsched/notifier_bot/internal/app"
	"github.com/studsched/notifier_bot/internal/config"
	"github.com/studsched/notifier_bot/internal/controller"
	"github.com/studsched/notifier_bot/internal/repository"
	"github.com/studsched/notifier_bot/internal/service"
	"github.com/studsched/notifier_bot/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Info("Starting notifier bot",
		zap.String("environment", cfg.Environment),
		zap.String("timezone", cfg.Timezone))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// База данных
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}

	// Миграции
	migrator, err := app.NewMigrator(pool, "migrations")
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	// Telegram
	b, err := bot.New(cfg.TelegramToken)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Репозитории
	userRepo := repository.NewUserRepository(pool)
	timetableRepo := repository.NewTimetableRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)

	// Сервисы
	clock := service.SystemClock()
	timers := service.NewTimerTable(clock)
	messenger := telegram.NewClient(b)

	delivery := service.NewDeliveryService(notificationRepo, historyRepo, messenger, clock, cfg.DeliveryTimeout, logger)
	planner := service.NewPlannerService(
		userRepo, timetableRepo, notificationRepo, delivery, timers, clock, cfg.Location,
		service.PlannerConfig{
			ChunkSize:          cfg.PlannerChunkSize,
			DefaultLeadMinutes: cfg.DefaultNotificationTime,
			MaxAttempts:        cfg.MaxRetryAttempts,
			RetryIntervals:     cfg.RetryIntervalsMinutes,
			RetentionDays:      cfg.CleanupRetentionDays,
		},
		logger,
	)
	userService := service.NewUserService(userRepo, logger)
	historyService := service.NewHistoryService(historyRepo, logger)

	// Фоновые задачи
	scheduler := app.NewScheduler(planner, cfg.Location, logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	// Команды бота
	botController := controller.NewBotController(b, userService, historyService, planner, cfg.DefaultNotificationTime, logger)
	if err := botController.RegisterHandlers(ctx); err != nil {
		logger.Fatal("Failed to register handlers", zap.Error(err))
	}

	// Блокируется до отмены контекста
	botController.Start(ctx)

	logger.Info("Shutdown complete")
}

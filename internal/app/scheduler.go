package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/studsched/notifier_bot/internal/service"
)

// Расписание фоновых задач. Cron привязан к локальной зоне (Europe/Moscow),
// поэтому specs читаются как местное время.
const (
	dailyPlannerSpec = "0 6 * * *"
	retrySpec        = "*/2 * * * *"
	cleanupSpec      = "0 2 * * *"
	counterResetSpec = "0 0 * * *"

	initialPlannerDelay = 5 * time.Second
)

// Scheduler управляет фоновыми задачами ядра уведомлений.
type Scheduler struct {
	planner *service.PlannerService
	logger  *zap.Logger
	cron    *cron.Cron
}

// NewScheduler создаёт новый планировщик фоновых задач.
func NewScheduler(planner *service.PlannerService, loc *time.Location, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		planner: planner,
		logger:  logger,
		cron:    cron.New(cron.WithLocation(loc)),
	}
}

// Start регистрирует повторяющиеся задачи и запускает cron.
// Через 5 секунд после старта отдельно догоняем текущий день:
// после рестарта процесса дубликаты подавит журнал, а таймеры
// для ещё не отправленных уведомлений взведутся заново.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"daily_planner", dailyPlannerSpec, func() { s.runDailyPlanner(ctx) }},
		{"retry_handler", retrySpec, func() { s.runRetry(ctx) }},
		{"cleanup", cleanupSpec, func() { s.runCleanup(ctx) }},
		{"reset_daily_task_counters", counterResetSpec, func() { s.runCounterReset(ctx) }},
	}

	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("register job %s: %w", job.name, err)
		}
	}

	time.AfterFunc(initialPlannerDelay, func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.logger.Info("Running initial planner")
		s.runDailyPlanner(ctx)
	})

	s.cron.Start()
	s.logger.Info("Background scheduler started",
		zap.String("daily_planner", dailyPlannerSpec),
		zap.String("retry_handler", retrySpec),
		zap.String("cleanup", cleanupSpec))
	return nil
}

// Stop останавливает cron и дожидается завершения запущенных задач.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("Background scheduler stopped")
}

func (s *Scheduler) runDailyPlanner(ctx context.Context) {
	report, err := s.planner.PlanAllUsers(ctx)
	if err != nil {
		s.logger.Error("Daily planner failed", zap.Error(err))
		return
	}

	s.logger.Info("Daily planner finished",
		zap.Int("users", report.Users),
		zap.Int("created", report.Created),
		zap.Int("scheduled", report.Scheduled))
}

func (s *Scheduler) runRetry(ctx context.Context) {
	retried, err := s.planner.RetryFailed(ctx)
	if err != nil {
		s.logger.Error("Retry handler failed", zap.Error(err))
		return
	}

	if retried > 0 {
		s.logger.Info("Retried failed notifications", zap.Int("count", retried))
	}
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	deleted, err := s.planner.CleanupOld(ctx)
	if err != nil {
		s.logger.Error("Cleanup failed", zap.Error(err))
		return
	}

	s.logger.Info("Cleanup finished", zap.Int64("deleted", deleted))
}

func (s *Scheduler) runCounterReset(ctx context.Context) {
	reset, err := s.planner.ResetDailyTaskCounters(ctx)
	if err != nil {
		s.logger.Error("Daily counter reset failed", zap.Error(err))
		return
	}

	s.logger.Info("Daily task counters reset", zap.Int64("users", reset))
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/studsched/notifier_bot/internal/model"
)

// Интерфейсы внешних зависимостей сервисов. Боевые реализации живут в
// internal/repository и internal/telegram, тесты подставляют свои.

// Ledger журнал запланированных уведомлений (repository.NotificationRepository).
type Ledger interface {
	InsertIfAbsent(ctx context.Context, n *model.ScheduledNotification) (created bool, existing *model.ScheduledNotification, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.ScheduledNotification, error)
	GetByKey(ctx context.Context, key string) (*model.ScheduledNotification, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.NotificationStatus, patch model.StatusPatch) (bool, error)
	MarkAttempt(ctx context.Context, id uuid.UUID, at time.Time) error
	ScanRetryable(ctx context.Context, date time.Time, maxAttempts int) ([]model.ScheduledNotification, error)
	ListPendingByUser(ctx context.Context, telegramID int64) ([]model.ScheduledNotification, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	Stats(ctx context.Context, date time.Time) (*model.NotificationStats, error)
}

// TimetableReader кэш расписания (repository.TimetableRepository).
type TimetableReader interface {
	ClassesFor(ctx context.Context, groupID string, weekParity int, dayOfWeek string) ([]model.ClassEvent, error)
}

// UserDirectory настройки пользователей (repository.UserRepository).
type UserDirectory interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	StreamEnabled(ctx context.Context, chunkSize int, fn func([]model.User) error) error
	ResetDailyTaskCounters(ctx context.Context) (int64, error)
}

// Messenger внешний Bot API (telegram.Client).
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// HistoryWriter история уведомлений (repository.HistoryRepository).
type HistoryWriter interface {
	Append(ctx context.Context, item *model.NotificationHistoryItem) error
}

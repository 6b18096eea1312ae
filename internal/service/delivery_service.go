package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studsched/notifier_bot/internal/model"
)

// DeliveryService доставляет одно уведомление: рендерит текст, зовёт
// Bot API и фиксирует исход в журнале. Единственный код, который
// обращается к мессенджеру.
type DeliveryService struct {
	ledger    Ledger
	history   HistoryWriter
	messenger Messenger
	clock     Clock
	timeout   time.Duration
	logger    *zap.Logger
}

func NewDeliveryService(
	ledger Ledger,
	history HistoryWriter,
	messenger Messenger,
	clock Clock,
	timeout time.Duration,
	logger *zap.Logger,
) *DeliveryService {
	return &DeliveryService{
		ledger:    ledger,
		history:   history,
		messenger: messenger,
		clock:     clock,
		timeout:   timeout,
		logger:    logger,
	}
}

// Deliver выполняет одну попытку доставки записи журнала.
// Идемпотентна: для записи не в статусе pending это no-op. Защита от
// двойной отправки - условный переход pending -> sent, а не таймеры.
func (s *DeliveryService) Deliver(ctx context.Context, id uuid.UUID) {
	entry, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to read ledger entry", zap.String("id", id.String()), zap.Error(err))
		return
	}
	if entry == nil || entry.Status != model.NotificationStatusPending {
		return
	}

	// Фиксируем попытку до отправки. Параллельная активность retry-цикла
	// не мешает: настоящий барьер - CAS статуса ниже.
	if err := s.ledger.MarkAttempt(ctx, id, s.clock.Now().UTC()); err != nil {
		s.logger.Error("Failed to mark attempt", zap.String("id", id.String()), zap.Error(err))
	}

	text := RenderClassReminder(entry.ClassInfo, entry.GroupID, entry.NotificationTimeMinutes)

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.messenger.SendMessage(sendCtx, entry.TelegramID, text)
	cancel()

	if err != nil {
		s.markFailed(ctx, entry, err)
		return
	}

	sentAt := s.clock.Now().UTC()
	applied, err := s.ledger.UpdateStatus(ctx, id, model.NotificationStatusPending, model.NotificationStatusSent,
		model.StatusPatch{SentAt: &sentAt})
	if err != nil {
		s.logger.Error("Failed to mark notification sent", zap.String("id", id.String()), zap.Error(err))
		return
	}
	if !applied {
		// Запись успела перейти в другой статус (например, отмена)
		s.logger.Debug("Sent update not applied, entry changed concurrently", zap.String("id", id.String()))
		return
	}

	s.logger.Info("Notification sent",
		zap.Int64("telegram_id", entry.TelegramID),
		zap.String("discipline", entry.ClassInfo.Discipline),
		zap.Int("attempts", entry.Attempts+1))

	// История best-effort: её сбой не откатывает журнал
	item := &model.NotificationHistoryItem{
		TelegramID: entry.TelegramID,
		Title:      HistoryTitle(entry.ClassInfo),
		Message:    text,
		SentAt:     sentAt,
	}
	if err := s.history.Append(ctx, item); err != nil {
		s.logger.Warn("Failed to append notification history",
			zap.Int64("telegram_id", entry.TelegramID), zap.Error(err))
	}
}

func (s *DeliveryService) markFailed(ctx context.Context, entry *model.ScheduledNotification, cause error) {
	msg := cause.Error()
	applied, err := s.ledger.UpdateStatus(ctx, entry.ID, model.NotificationStatusPending, model.NotificationStatusFailed,
		model.StatusPatch{ErrorMessage: &msg})
	if err != nil {
		s.logger.Error("Failed to mark notification failed", zap.String("id", entry.ID.String()), zap.Error(err))
		return
	}

	if applied {
		s.logger.Warn("Notification delivery failed",
			zap.Int64("telegram_id", entry.TelegramID),
			zap.Int("attempts", entry.Attempts+1),
			zap.String("error", msg))
	}
}

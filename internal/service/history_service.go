package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/studsched/notifier_bot/internal/model"
	"github.com/studsched/notifier_bot/internal/repository"
)

// HistoryService пользовательский доступ к истории уведомлений.
type HistoryService struct {
	historyRepo *repository.HistoryRepository
	logger      *zap.Logger
}

func NewHistoryService(historyRepo *repository.HistoryRepository, logger *zap.Logger) *HistoryService {
	return &HistoryService{
		historyRepo: historyRepo,
		logger:      logger,
	}
}

// ListRecent возвращает последние уведомления пользователя и отмечает их прочитанными.
func (s *HistoryService) ListRecent(ctx context.Context, telegramID int64, limit int) ([]model.NotificationHistoryItem, error) {
	items, err := s.historyRepo.ListByUser(ctx, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	if _, err := s.historyRepo.MarkRead(ctx, telegramID); err != nil {
		s.logger.Warn("Failed to mark history read",
			zap.Int64("telegram_id", telegramID), zap.Error(err))
	}

	return items, nil
}

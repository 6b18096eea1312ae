package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/studsched/notifier_bot/internal/model"
	"github.com/studsched/notifier_bot/internal/repository"
)

// Пределы времени упреждения в минутах.
const (
	MinNotificationTime = 1
	MaxNotificationTime = 120
)

type UserService struct {
	userRepo *repository.UserRepository
	logger   *zap.Logger
}

func NewUserService(userRepo *repository.UserRepository, logger *zap.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		logger:   logger,
	}
}

// RegisterUser регистрирует пользователя или обновляет профиль при повторном /start.
func (s *UserService) RegisterUser(ctx context.Context, telegramID int64, username, firstName string, defaultLead int) (*model.User, error) {
	user := &model.User{
		TelegramID:       telegramID,
		Username:         username,
		FirstName:        firstName,
		NotificationTime: defaultLead,
	}

	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}

	s.logger.Info("User registered", zap.Int64("telegram_id", telegramID))
	return user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByTelegramID(ctx, telegramID)
}

// SetNotificationsEnabled включает или выключает уведомления.
func (s *UserService) SetNotificationsEnabled(ctx context.Context, telegramID int64, enabled bool) error {
	if err := s.userRepo.SetNotificationsEnabled(ctx, telegramID, enabled); err != nil {
		return err
	}

	s.logger.Info("Notifications toggled",
		zap.Int64("telegram_id", telegramID),
		zap.Bool("enabled", enabled))
	return nil
}

// SetNotificationTime задаёт время упреждения в минутах.
func (s *UserService) SetNotificationTime(ctx context.Context, telegramID int64, minutes int) error {
	if minutes < MinNotificationTime || minutes > MaxNotificationTime {
		return fmt.Errorf("notification time must be between %d and %d minutes", MinNotificationTime, MaxNotificationTime)
	}

	return s.userRepo.SetNotificationTime(ctx, telegramID, minutes)
}

// SetGroup привязывает пользователя к учебной группе.
func (s *UserService) SetGroup(ctx context.Context, telegramID int64, groupID string) error {
	if groupID == "" {
		return fmt.Errorf("group id is empty")
	}

	return s.userRepo.SetGroup(ctx, telegramID, groupID)
}

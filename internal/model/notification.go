package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusSent      NotificationStatus = "sent"      // Терминальный
	NotificationStatusFailed    NotificationStatus = "failed"    // Терминальный при attempts == MaxAttempts
	NotificationStatusCancelled NotificationStatus = "cancelled" // Терминальный
)

// CanTransition проверяет допустимость перехода статуса.
// Таблица переходов закреплена только здесь.
func CanTransition(from, to NotificationStatus) bool {
	switch from {
	case NotificationStatusPending:
		return to == NotificationStatusSent ||
			to == NotificationStatusFailed ||
			to == NotificationStatusCancelled
	case NotificationStatusFailed:
		return to == NotificationStatusPending
	}
	return false
}

// ScheduledNotification запись журнала запланированных уведомлений.
type ScheduledNotification struct {
	ID                      uuid.UUID          `json:"id"`
	NotificationKey         string             `json:"notification_key"`
	TelegramID              int64              `json:"telegram_id"`
	GroupID                 string             `json:"group_id"`
	Date                    time.Time          `json:"date"` // Локальная дата пары (полночь UTC)
	ClassInfo               ClassEvent         `json:"class_info"`
	ScheduledTime           time.Time          `json:"scheduled_time"` // UTC-момент отправки
	NotificationTimeMinutes int                `json:"notification_time_minutes"`
	Status                  NotificationStatus `json:"status"`
	Attempts                int                `json:"attempts"`
	LastAttemptAt           *time.Time         `json:"last_attempt_at"`
	ErrorMessage            *string            `json:"error_message"`
	CreatedAt               time.Time          `json:"created_at"`
	SentAt                  *time.Time         `json:"sent_at"`
}

// NotificationKey детерминированный ключ дедупликации:
// одна пара одного пользователя в один день - ровно один ключ.
func NotificationKey(telegramID int64, discipline, startHHMM string, date time.Time) string {
	return fmt.Sprintf("%d_%s_%s_%s", telegramID, discipline, startHHMM, date.Format("2006-01-02"))
}

// StatusPatch поля, выставляемые вместе со сменой статуса.
type StatusPatch struct {
	ErrorMessage *string
	SentAt       *time.Time
}

// NotificationStats агрегированная статистика журнала за день.
type NotificationStats struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Pending   int    `json:"pending"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
}

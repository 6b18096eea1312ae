package model

import "time"

// NotificationHistoryItem строка истории уведомлений, видимая пользователю.
// Ядро только добавляет записи; флаг Read переключает пользовательский интерфейс.
type NotificationHistoryItem struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sent_at"`
	Read       bool      `json:"read"`
}

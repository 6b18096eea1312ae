package model

import "time"

type User struct {
	TelegramID           int64     `json:"telegram_id"`
	Username             string    `json:"username"`
	FirstName            string    `json:"first_name"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	NotificationTime     int       `json:"notification_time"` // За сколько минут до пары уведомлять
	GroupID              *string   `json:"group_id"`          // указатель - может быть nil
	DailyTasksSolved     int       `json:"daily_tasks_solved"`
	CreatedAt            time.Time `json:"created_at"`
}

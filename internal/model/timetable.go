package model

import "time"

// ClassEvent одна пара из кэша расписания.
type ClassEvent struct {
	DayOfWeek  string `json:"dayOfWeek"`
	Time       string `json:"time"` // "HH:MM - HH:MM"
	Discipline string `json:"discipline"`
	Teacher    string `json:"teacher"`
	Auditory   string `json:"auditory"`
	LessonType string `json:"lessonType"`
}

// TimetableCacheEntry кэш расписания группы на неделю.
// Пишется парсером целиком, ядро уведомлений его только читает.
type TimetableCacheEntry struct {
	GroupID    string       `json:"group_id"`
	WeekParity int          `json:"week_parity"` // 1 - нечётная неделя, 2 - чётная
	Classes    []ClassEvent `json:"classes"`
	ExpiresAt  time.Time    `json:"expires_at"`
}

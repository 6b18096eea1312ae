package service

import (
	"fmt"
	"strings"

	"github.com/studsched/notifier_bot/internal/model"
)

// Кастомные эмодзи из набора бота.
const (
	emojiAlarm = `<tg-emoji emoji-id="5285295937785627977">🚨</tg-emoji>`
	emojiClock = `<tg-emoji emoji-id="5282843764451195532">⏰</tg-emoji>`
	emojiBell  = `<tg-emoji emoji-id="5368324170671202286">🔔</tg-emoji>`
)

// urgencyBanner выбирает заголовок по времени упреждения.
func urgencyBanner(minutesBefore int) string {
	switch {
	case minutesBefore <= 5:
		return emojiAlarm + " <b>Пара вот-вот начнётся!</b>"
	case minutesBefore <= 15:
		return emojiClock + " <b>Скоро пара!</b>"
	default:
		return emojiBell + " <b>Напоминание о паре</b>"
	}
}

// RenderClassReminder собирает текст уведомления о паре в HTML-подмножестве
// Telegram. Функция чистая: для одинаковых входов результат побайтно совпадает.
func RenderClassReminder(info model.ClassEvent, groupID string, minutesBefore int) string {
	var b strings.Builder

	b.WriteString(urgencyBanner(minutesBefore))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "<b>%s</b>", info.Discipline)
	if info.LessonType != "" {
		fmt.Fprintf(&b, " (<i>%s</i>)", info.LessonType)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "🕐 %s\n", info.Time)
	if info.Teacher != "" {
		fmt.Fprintf(&b, "👨‍🏫 %s\n", info.Teacher)
	}
	if info.Auditory != "" {
		fmt.Fprintf(&b, "🚪 Аудитория: %s\n", info.Auditory)
	}
	fmt.Fprintf(&b, "👥 Группа: %s\n", groupID)

	fmt.Fprintf(&b, "\nДо начала: <b>%d мин</b>", minutesBefore)

	return b.String()
}

// HistoryTitle заголовок строки истории для уведомления о паре.
func HistoryTitle(info model.ClassEvent) string {
	return fmt.Sprintf("Напоминание: %s", info.Discipline)
}

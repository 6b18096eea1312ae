package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// WeekdayName возвращает название дня недели на русском,
// в том виде, в каком его пишет парсер расписания.
func WeekdayName(weekday time.Weekday) string {
	names := []string{
		"Воскресенье",
		"Понедельник",
		"Вторник",
		"Среда",
		"Четверг",
		"Пятница",
		"Суббота",
	}
	return names[int(weekday)]
}

// WeekParity возвращает чётность ISO-недели: 1 - нечётная, 2 - чётная.
func WeekParity(t time.Time) int {
	_, week := t.ISOWeek()
	if week%2 == 1 {
		return 1
	}
	return 2
}

// ParseClassStart разбирает начало пары из строки вида "14:00 - 15:30".
func ParseClassStart(timeRange string) (hour, minute int, err error) {
	start, _, _ := strings.Cut(timeRange, "-")
	start = strings.TrimSpace(start)

	parsed, err := time.Parse("15:04", start)
	if err != nil {
		return 0, 0, fmt.Errorf("parse class start %q: %w", timeRange, err)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

// ClassStart собирает локальный момент начала пары на дату date.
func ClassStart(date time.Time, timeRange string, loc *time.Location) (time.Time, error) {
	hour, minute, err := ParseClassStart(timeRange)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc), nil
}

// DateOnly обрезает время, оставляя дату в UTC-полночи.
// Так журнал хранит локальную дату пары независимо от зоны процесса.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studsched/notifier_bot/internal/model"
)

// TimetableRepository читает кэш расписания. Кэш наполняется парсером
// извне, ядро уведомлений его никогда не изменяет.
type TimetableRepository struct {
	pool *pgxpool.Pool
}

func NewTimetableRepository(pool *pgxpool.Pool) *TimetableRepository {
	return &TimetableRepository{pool: pool}
}

// ClassesFor возвращает пары группы на день недели в порядке из кэша.
// Если живой записи для (группа, чётность) нет - возвращает пустой список:
// для планировщика это "сегодня пар нет".
func (r *TimetableRepository) ClassesFor(ctx context.Context, groupID string, weekParity int, dayOfWeek string) ([]model.ClassEvent, error) {
	query := `
		SELECT classes
		FROM timetable_cache
		WHERE group_id = $1 AND week_parity = $2 AND expires_at > now()
	`

	var raw []byte
	err := r.pool.QueryRow(ctx, query, groupID, weekParity).Scan(&raw)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Кэш-промах
		}
		return nil, fmt.Errorf("get timetable cache: %w", err)
	}

	var week []model.ClassEvent
	if err := json.Unmarshal(raw, &week); err != nil {
		return nil, fmt.Errorf("decode timetable cache: %w", err)
	}

	var classes []model.ClassEvent
	for _, class := range week {
		if class.DayOfWeek == dayOfWeek {
			classes = append(classes, class)
		}
	}

	return classes, nil
}

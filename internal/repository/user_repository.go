package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studsched/notifier_bot/internal/model"
)

const userColumns = `telegram_id, username, first_name, notifications_enabled, notification_time, group_id, daily_tasks_solved, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Upsert создаёт пользователя или обновляет его профиль при повторном /start.
// Настройки уведомлений при этом не трогаем.
func (r *UserRepository) Upsert(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (telegram_id, username, first_name, notification_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username, first_name = EXCLUDED.first_name
		RETURNING notifications_enabled, notification_time, group_id, daily_tasks_solved, created_at
	`

	err := r.pool.QueryRow(
		ctx, query,
		user.TelegramID,
		user.Username,
		user.FirstName,
		user.NotificationTime,
	).Scan(
		&user.NotificationsEnabled,
		&user.NotificationTime,
		&user.GroupID,
		&user.DailyTasksSolved,
		&user.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	return nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	var user model.User
	err := r.pool.QueryRow(ctx, query, telegramID).Scan(
		&user.TelegramID,
		&user.Username,
		&user.FirstName,
		&user.NotificationsEnabled,
		&user.NotificationTime,
		&user.GroupID,
		&user.DailyTasksSolved,
		&user.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Пользователь не найден
		}
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}

	return &user, nil
}

// SetNotificationsEnabled включает или выключает уведомления пользователя.
func (r *UserRepository) SetNotificationsEnabled(ctx context.Context, telegramID int64, enabled bool) error {
	query := `UPDATE users SET notifications_enabled = $1 WHERE telegram_id = $2`

	result, err := r.pool.Exec(ctx, query, enabled, telegramID)
	if err != nil {
		return fmt.Errorf("set notifications enabled: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

// SetNotificationTime задаёт время упреждения в минутах.
func (r *UserRepository) SetNotificationTime(ctx context.Context, telegramID int64, minutes int) error {
	query := `UPDATE users SET notification_time = $1 WHERE telegram_id = $2`

	result, err := r.pool.Exec(ctx, query, minutes, telegramID)
	if err != nil {
		return fmt.Errorf("set notification time: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

// SetGroup привязывает пользователя к учебной группе.
func (r *UserRepository) SetGroup(ctx context.Context, telegramID int64, groupID string) error {
	query := `UPDATE users SET group_id = $1 WHERE telegram_id = $2`

	result, err := r.pool.Exec(ctx, query, groupID, telegramID)
	if err != nil {
		return fmt.Errorf("set group: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

// StreamEnabled обходит всех пользователей с включёнными уведомлениями
// и привязанной группой потоковым курсором, отдавая их чанками по chunkSize.
// Обход прерывается первой ошибкой fn.
func (r *UserRepository) StreamEnabled(ctx context.Context, chunkSize int, fn func([]model.User) error) error {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE notifications_enabled = true AND group_id IS NOT NULL
		ORDER BY telegram_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("stream enabled users: %w", err)
	}
	defer rows.Close()

	chunk := make([]model.User, 0, chunkSize)
	for rows.Next() {
		var user model.User
		err := rows.Scan(
			&user.TelegramID,
			&user.Username,
			&user.FirstName,
			&user.NotificationsEnabled,
			&user.NotificationTime,
			&user.GroupID,
			&user.DailyTasksSolved,
			&user.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan enabled user: %w", err)
		}

		chunk = append(chunk, user)
		if len(chunk) == chunkSize {
			if err := fn(chunk); err != nil {
				return err
			}
			chunk = chunk[:0]
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate enabled users: %w", err)
	}

	if len(chunk) > 0 {
		return fn(chunk)
	}

	return nil
}

// ResetDailyTaskCounters обнуляет дневные счётчики задач всех пользователей.
func (r *UserRepository) ResetDailyTaskCounters(ctx context.Context) (int64, error) {
	query := `UPDATE users SET daily_tasks_solved = 0 WHERE daily_tasks_solved <> 0`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reset daily task counters: %w", err)
	}

	return result.RowsAffected(), nil
}

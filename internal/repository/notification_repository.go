package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studsched/notifier_bot/internal/model"
)

const notificationColumns = `id, notification_key, telegram_id, group_id, date, class_info, scheduled_time,
		notification_time_minutes, status, attempts, last_attempt_at, error_message, created_at, sent_at`

// NotificationRepository журнал запланированных уведомлений.
// Уникальный индекс по notification_key и условные UPDATE по статусу -
// единственная точка синхронизации: никаких блокировок в памяти не нужно.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// InsertIfAbsent атомарно вставляет запись журнала. Дедупликация целиком
// на уникальном индексе notification_key: при конфликте вставка тихо
// игнорируется, а наружу возвращается уже существующая запись.
func (r *NotificationRepository) InsertIfAbsent(ctx context.Context, n *model.ScheduledNotification) (bool, *model.ScheduledNotification, error) {
	classInfo, err := json.Marshal(n.ClassInfo)
	if err != nil {
		return false, nil, fmt.Errorf("encode class info: %w", err)
	}

	query := `
		INSERT INTO scheduled_notifications
			(id, notification_key, telegram_id, group_id, date, class_info, scheduled_time, notification_time_minutes, status, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)
		ON CONFLICT (notification_key) DO NOTHING
	`

	tag, err := r.pool.Exec(
		ctx, query,
		n.ID,
		n.NotificationKey,
		n.TelegramID,
		n.GroupID,
		n.Date,
		classInfo,
		n.ScheduledTime,
		n.NotificationTimeMinutes,
		n.Status,
	)
	if err != nil {
		return false, nil, fmt.Errorf("insert notification: %w", err)
	}

	if tag.RowsAffected() == 1 {
		return true, nil, nil
	}

	existing, err := r.GetByKey(ctx, n.NotificationKey)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

// GetByID получает запись журнала по id
func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ScheduledNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM scheduled_notifications WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByKey получает запись по ключу дедупликации.
func (r *NotificationRepository) GetByKey(ctx context.Context, key string) (*model.ScheduledNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM scheduled_notifications WHERE notification_key = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, key))
}

// UpdateStatus условно переводит запись из from в to (compare-and-set).
// Возвращает false, если текущий статус уже не from - значит, запись
// успела измениться параллельно и этот переход не применяется.
func (r *NotificationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.NotificationStatus, patch model.StatusPatch) (bool, error) {
	if !model.CanTransition(from, to) {
		return false, fmt.Errorf("illegal status transition %s -> %s", from, to)
	}

	query := `
		UPDATE scheduled_notifications
		SET status = $3,
		    error_message = COALESCE($4, error_message),
		    sent_at = COALESCE($5, sent_at)
		WHERE id = $1 AND status = $2
	`

	tag, err := r.pool.Exec(ctx, query, id, from, to, patch.ErrorMessage, patch.SentAt)
	if err != nil {
		return false, fmt.Errorf("update notification status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkAttempt фиксирует начало попытки доставки: attempts+1 и отметка времени.
func (r *NotificationRepository) MarkAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE scheduled_notifications
		SET attempts = attempts + 1, last_attempt_at = $2
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark attempt: %w", err)
	}

	return nil
}

// ScanRetryable возвращает неудачные записи за дату, у которых остались попытки.
func (r *NotificationRepository) ScanRetryable(ctx context.Context, date time.Time, maxAttempts int) ([]model.ScheduledNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM scheduled_notifications
		WHERE status = $1 AND date = $2 AND attempts < $3
		ORDER BY scheduled_time
	`

	rows, err := r.pool.Query(ctx, query, model.NotificationStatusFailed, date, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("scan retryable: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// ListPendingByUser возвращает все ожидающие записи пользователя.
func (r *NotificationRepository) ListPendingByUser(ctx context.Context, telegramID int64) ([]model.ScheduledNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM scheduled_notifications
		WHERE telegram_id = $1 AND status = $2
		ORDER BY scheduled_time
	`

	rows, err := r.pool.Query(ctx, query, telegramID, model.NotificationStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending by user: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// DeleteOlderThan удаляет записи с датой строго раньше before.
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM scheduled_notifications WHERE date < $1`

	tag, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Stats считает записи журнала за дату с разбивкой по статусам.
func (r *NotificationRepository) Stats(ctx context.Context, date time.Time) (*model.NotificationStats, error) {
	query := `
		SELECT status, count(*)
		FROM scheduled_notifications
		WHERE date = $1
		GROUP BY status
	`

	rows, err := r.pool.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("notification stats: %w", err)
	}
	defer rows.Close()

	stats := &model.NotificationStats{Date: date.Format("2006-01-02")}
	for rows.Next() {
		var status model.NotificationStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}

		stats.Total += count
		switch status {
		case model.NotificationStatusPending:
			stats.Pending = count
		case model.NotificationStatusSent:
			stats.Sent = count
		case model.NotificationStatusFailed:
			stats.Failed = count
		case model.NotificationStatusCancelled:
			stats.Cancelled = count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}

	return stats, nil
}

func (r *NotificationRepository) scanOne(row pgx.Row) (*model.ScheduledNotification, error) {
	var n model.ScheduledNotification
	var classInfo []byte

	err := row.Scan(
		&n.ID,
		&n.NotificationKey,
		&n.TelegramID,
		&n.GroupID,
		&n.Date,
		&classInfo,
		&n.ScheduledTime,
		&n.NotificationTimeMinutes,
		&n.Status,
		&n.Attempts,
		&n.LastAttemptAt,
		&n.ErrorMessage,
		&n.CreatedAt,
		&n.SentAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}

	if err := json.Unmarshal(classInfo, &n.ClassInfo); err != nil {
		return nil, fmt.Errorf("decode class info: %w", err)
	}

	return &n, nil
}

func (r *NotificationRepository) collect(rows pgx.Rows) ([]model.ScheduledNotification, error) {
	var result []model.ScheduledNotification
	for rows.Next() {
		var n model.ScheduledNotification
		var classInfo []byte

		err := rows.Scan(
			&n.ID,
			&n.NotificationKey,
			&n.TelegramID,
			&n.GroupID,
			&n.Date,
			&classInfo,
			&n.ScheduledTime,
			&n.NotificationTimeMinutes,
			&n.Status,
			&n.Attempts,
			&n.LastAttemptAt,
			&n.ErrorMessage,
			&n.CreatedAt,
			&n.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}

		if err := json.Unmarshal(classInfo, &n.ClassInfo); err != nil {
			return nil, fmt.Errorf("decode class info: %w", err)
		}

		result = append(result, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return result, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studsched/notifier_bot/internal/model"
)

// HistoryRepository история уведомлений. Ядро только добавляет строки,
// чтение и отметка о прочтении - для пользовательского интерфейса.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// Append добавляет строку истории после успешной отправки.
func (r *HistoryRepository) Append(ctx context.Context, item *model.NotificationHistoryItem) error {
	query := `
		INSERT INTO notification_history (telegram_id, title, message, sent_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query, item.TelegramID, item.Title, item.Message, item.SentAt).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	return nil
}

// ListByUser возвращает последние строки истории пользователя.
func (r *HistoryRepository) ListByUser(ctx context.Context, telegramID int64, limit int) ([]model.NotificationHistoryItem, error) {
	query := `
		SELECT id, telegram_id, title, message, sent_at, read
		FROM notification_history
		WHERE telegram_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var items []model.NotificationHistoryItem
	for rows.Next() {
		var item model.NotificationHistoryItem
		err := rows.Scan(&item.ID, &item.TelegramID, &item.Title, &item.Message, &item.SentAt, &item.Read)
		if err != nil {
			return nil, fmt.Errorf("scan history item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return items, nil
}

// MarkRead отмечает строки пользователя прочитанными.
func (r *HistoryRepository) MarkRead(ctx context.Context, telegramID int64) (int64, error) {
	query := `UPDATE notification_history SET read = true WHERE telegram_id = $1 AND read = false`

	tag, err := r.pool.Exec(ctx, query, telegramID)
	if err != nil {
		return 0, fmt.Errorf("mark history read: %w", err)
	}

	return tag.RowsAffected(), nil
}

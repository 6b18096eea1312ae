package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Client тонкая обёртка над Bot API для отправки уведомлений.
// Для ядра мессенджер - чёрный ящик: успех или ошибка.
type Client struct {
	bot *bot.Bot
}

func NewClient(b *bot.Bot) *Client {
	return &Client{bot: b}
}

// SendMessage отправляет HTML-сообщение в чат. Таймаут задаёт вызывающий
// через контекст.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

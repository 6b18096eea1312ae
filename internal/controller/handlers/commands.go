package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const historyLimit = 10

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	from := update.Message.From

	// Регистрируем пользователя
	user, err := h.userService.RegisterUser(ctx, from.ID, from.Username, from.FirstName, h.defaultLead)
	if err != nil {
		h.logger.Error("Failed to register user", zap.Error(err))
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "❌ Произошла ошибка при регистрации. Попробуйте позже.",
		})
		return
	}

	welcomeText := fmt.Sprintf(
		"👋 Привет, %s!\n\n"+
			"Я напоминаю о парах по расписанию твоей группы.\n\n"+
			"Доступные команды:\n"+
			"/setgroup <группа> - Указать учебную группу\n"+
			"/notify_on - Включить уведомления\n"+
			"/notify_off - Выключить уведомления\n"+
			"/settime <минуты> - За сколько минут напоминать\n"+
			"/today - Пары на сегодня\n"+
			"/history - История уведомлений\n"+
			"/help - Справка",
		user.FirstName,
	)

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   welcomeText,
	})
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	helpText := "📚 Справка по командам:\n\n" +
		"/setgroup <группа> - Привязать учебную группу\n" +
		"/notify_on - Включить уведомления о парах\n" +
		"/notify_off - Выключить уведомления\n" +
		"/settime <минуты> - За сколько минут до пары напоминать (1-120)\n" +
		"/today - Показать пары на сегодня\n" +
		"/history - Последние уведомления\n\n" +
		"Уведомления планируются каждое утро по расписанию вашей группы."

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   helpText,
	})
}

// HandleNotifyOn включает уведомления и сразу планирует сегодняшние пары.
func (h *Handlers) HandleNotifyOn(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	telegramID := update.Message.From.ID

	user, err := h.userService.GetByTelegramID(ctx, telegramID)
	if err != nil {
		h.replyError(ctx, b, update)
		return
	}
	if user == nil {
		h.reply(ctx, b, update, "Сначала зарегистрируйтесь командой /start")
		return
	}
	if user.GroupID == nil {
		h.reply(ctx, b, update, "Сначала укажите группу: /setgroup <группа>")
		return
	}

	if err := h.userService.SetNotificationsEnabled(ctx, telegramID, true); err != nil {
		h.logger.Error("Failed to enable notifications", zap.Error(err))
		h.replyError(ctx, b, update)
		return
	}

	// Перепланируем текущий день
	report, err := h.planner.ScheduleUserNotifications(ctx, telegramID)
	if err != nil {
		h.logger.Error("Failed to schedule notifications", zap.Error(err))
		h.reply(ctx, b, update, "✅ Уведомления включены. Пары на сегодня запланируются при следующем проходе.")
		return
	}

	h.reply(ctx, b, update, fmt.Sprintf(
		"✅ Уведомления включены.\nЗапланировано на сегодня: %d", report.Scheduled))
}

// HandleNotifyOff выключает уведомления и отменяет ожидающие отправки.
func (h *Handlers) HandleNotifyOff(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	telegramID := update.Message.From.ID

	if err := h.userService.SetNotificationsEnabled(ctx, telegramID, false); err != nil {
		h.logger.Error("Failed to disable notifications", zap.Error(err))
		h.replyError(ctx, b, update)
		return
	}

	cancelled, err := h.planner.CancelUserPending(ctx, telegramID)
	if err != nil {
		h.logger.Error("Failed to cancel pending notifications", zap.Error(err))
	}

	h.reply(ctx, b, update, fmt.Sprintf(
		"🔕 Уведомления выключены. Отменено ожидающих: %d", cancelled))
}

// HandleSetTime обрабатывает "/settime <минуты>".
func (h *Handlers) HandleSetTime(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	arg := commandArg(update.Message.Text)
	minutes, err := strconv.Atoi(arg)
	if err != nil {
		h.reply(ctx, b, update, "Использование: /settime <минуты>, например /settime 15")
		return
	}

	telegramID := update.Message.From.ID
	if err := h.userService.SetNotificationTime(ctx, telegramID, minutes); err != nil {
		h.reply(ctx, b, update, "❌ "+err.Error())
		return
	}

	// Новое упреждение подействует на ещё не запланированные пары
	if _, err := h.planner.ScheduleUserNotifications(ctx, telegramID); err != nil {
		h.logger.Debug("Replan after settime failed", zap.Error(err))
	}

	h.reply(ctx, b, update, fmt.Sprintf("⏰ Буду напоминать за %d мин до пары.", minutes))
}

// HandleSetGroup обрабатывает "/setgroup <группа>".
func (h *Handlers) HandleSetGroup(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	groupID := commandArg(update.Message.Text)
	if groupID == "" {
		h.reply(ctx, b, update, "Использование: /setgroup <группа>, например /setgroup ИВТ-21")
		return
	}

	telegramID := update.Message.From.ID
	if err := h.userService.SetGroup(ctx, telegramID, groupID); err != nil {
		h.logger.Error("Failed to set group", zap.Error(err))
		h.replyError(ctx, b, update)
		return
	}

	report, err := h.planner.ScheduleUserNotifications(ctx, telegramID)
	if err != nil {
		h.logger.Debug("Replan after setgroup failed", zap.Error(err))
		h.reply(ctx, b, update, fmt.Sprintf("👥 Группа %s сохранена.", groupID))
		return
	}

	h.reply(ctx, b, update, fmt.Sprintf(
		"👥 Группа %s сохранена. Запланировано уведомлений на сегодня: %d", groupID, report.Scheduled))
}

// HandleToday показывает пары на сегодня.
func (h *Handlers) HandleToday(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	classes, err := h.planner.TodayClasses(ctx, update.Message.From.ID)
	if err != nil {
		h.logger.Error("Failed to get today classes", zap.Error(err))
		h.replyError(ctx, b, update)
		return
	}

	if len(classes) == 0 {
		h.reply(ctx, b, update, "📅 Сегодня пар нет (или расписание ещё не загружено).")
		return
	}

	var sb strings.Builder
	sb.WriteString("📅 <b>Пары на сегодня:</b>\n\n")
	for _, class := range classes {
		fmt.Fprintf(&sb, "🕐 %s\n<b>%s</b> (%s)\n", class.Time, class.Discipline, class.LessonType)
		if class.Auditory != "" {
			fmt.Fprintf(&sb, "🚪 %s\n", class.Auditory)
		}
		sb.WriteString("\n")
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    update.Message.Chat.ID,
		Text:      sb.String(),
		ParseMode: models.ParseModeHTML,
	})
}

// HandleHistory показывает последние уведомления.
func (h *Handlers) HandleHistory(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	items, err := h.historyService.ListRecent(ctx, update.Message.From.ID, historyLimit)
	if err != nil {
		h.logger.Error("Failed to list history", zap.Error(err))
		h.replyError(ctx, b, update)
		return
	}

	if len(items) == 0 {
		h.reply(ctx, b, update, "📜 История уведомлений пуста.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 Последние уведомления:\n\n")
	for _, item := range items {
		fmt.Fprintf(&sb, "%s — %s\n", item.SentAt.Format("02.01 15:04"), item.Title)
	}

	h.reply(ctx, b, update, sb.String())
}

func (h *Handlers) reply(ctx context.Context, b *bot.Bot, update *models.Update, text string) {
	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	})
}

func (h *Handlers) replyError(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.reply(ctx, b, update, "❌ Произошла ошибка. Попробуйте позже.")
}

// commandArg выделяет аргумент команды: "/settime 15" -> "15".
func commandArg(text string) string {
	_, arg, _ := strings.Cut(text, " ")
	return strings.TrimSpace(arg)
}

package controller

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/studsched/notifier_bot/internal/controller/handlers"
	"github.com/studsched/notifier_bot/internal/service"
)

type BotController struct {
	bot      *bot.Bot
	handlers *handlers.Handlers
	logger   *zap.Logger
}

func NewBotController(
	botInstance *bot.Bot,
	userService *service.UserService,
	historyService *service.HistoryService,
	planner *service.PlannerService,
	defaultLead int,
	logger *zap.Logger,
) *BotController {
	cmdHandlers := handlers.NewHandlers(userService, historyService, planner, defaultLead, logger)

	return &BotController{
		bot:      botInstance,
		handlers: cmdHandlers,
		logger:   logger,
	}
}

// RegisterHandlers регистрирует все обработчики команд
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, c.handlers.HandleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.handlers.HandleHelp)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/notify_on", bot.MatchTypeExact, c.handlers.HandleNotifyOn)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/notify_off", bot.MatchTypeExact, c.handlers.HandleNotifyOff)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/settime", bot.MatchTypePrefix, c.handlers.HandleSetTime)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/setgroup", bot.MatchTypePrefix, c.handlers.HandleSetGroup)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/today", bot.MatchTypeExact, c.handlers.HandleToday)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/history", bot.MatchTypeExact, c.handlers.HandleHistory)

	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Начать работу с ботом"},
		{Command: "help", Description: "❓ Справка по командам"},
		{Command: "notify_on", Description: "🔔 Включить уведомления о парах"},
		{Command: "notify_off", Description: "🔕 Выключить уведомления"},
		{Command: "settime", Description: "⏰ За сколько минут напоминать"},
		{Command: "setgroup", Description: "👥 Указать учебную группу"},
		{Command: "today", Description: "📅 Пары на сегодня"},
		{Command: "history", Description: "📜 История уведомлений"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})

	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("✅ Bot commands menu set")
	return nil
}

// Start запускает бота
func (c *BotController) Start(ctx context.Context) {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
}

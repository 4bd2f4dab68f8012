package controller

import (
	"context"

	"github.com/Freeeeeet/lesson_booking/internal/controller/handlers"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

type BotController struct {
	bot      *bot.Bot
	handlers *handlers.Handlers
	logger   *zap.Logger
}

func NewBotController(botInstance *bot.Bot, cmdHandlers *handlers.Handlers, logger *zap.Logger) *BotController {
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

	// Команды с аргументами
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/availability", bot.MatchTypePrefix, c.handlers.HandleAvailability)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/lessons", bot.MatchTypePrefix, c.handlers.HandleLessons)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/generate", bot.MatchTypePrefix, c.handlers.HandleGenerate)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypePrefix, c.handlers.HandleCancel)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/complete", bot.MatchTypePrefix, c.handlers.HandleComplete)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/absence", bot.MatchTypePrefix, c.handlers.HandleAbsence)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/present", bot.MatchTypePrefix, c.handlers.HandlePresent)

	// Справочники: шаблоны, календарь, регулярные занятия
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/schedule", bot.MatchTypePrefix, c.handlers.HandleSchedule)
	// /eventtypes точным совпадением, иначе его перехватит префикс /eventtype
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/eventtypes", bot.MatchTypeExact, c.handlers.HandleEventTypes)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/eventtype ", bot.MatchTypePrefix, c.handlers.HandleEventType)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/holiday", bot.MatchTypePrefix, c.handlers.HandleHoliday)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/commitment", bot.MatchTypePrefix, c.handlers.HandleCommitment)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/endcommitment", bot.MatchTypePrefix, c.handlers.HandleEndCommitment)

	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "availability", Description: "🕒 Свободные слоты преподавателя"},
		{Command: "lessons", Description: "📋 Занятия преподавателя"},
		{Command: "generate", Description: "🗓 Создать занятия за месяц"},
		{Command: "cancel", Description: "❌ Отменить занятие"},
		{Command: "complete", Description: "✔️ Отметить занятие проведённым"},
		{Command: "absence", Description: "🚷 Отметить отсутствие"},
		{Command: "present", Description: "✅ Снять отсутствие"},
		{Command: "schedule", Description: "🗓 Новый недельный шаблон"},
		{Command: "eventtypes", Description: "🎨 Типы дней календаря"},
		{Command: "eventtype", Description: "➕ Создать тип дня"},
		{Command: "holiday", Description: "📅 Отметить день в календаре"},
		{Command: "commitment", Description: "🔁 Регулярное занятие"},
		{Command: "endcommitment", Description: "⏹ Завершить регулярное занятие"},
		{Command: "help", Description: "❓ Справка по командам"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})
	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("Bot commands menu set")
	return nil
}

// Start запускает бота и блокируется до отмены ctx
func (c *BotController) Start(ctx context.Context) {
	c.logger.Info("Starting bot")
	c.bot.Start(ctx)
}

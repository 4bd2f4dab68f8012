package handlers

import (
	"context"
	"errors"

	"github.com/Freeeeeet/lesson_booking/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// commandFunc выполняет команду по аргументам и возвращает текст ответа
type commandFunc func(ctx context.Context, args []string) (string, error)

// isAdmin проверяет telegram id по списку администраторов
func (h *Handlers) isAdmin(telegramID int64) bool {
	_, ok := h.admins[telegramID]
	return ok
}

// requireAdmin проверяет что команду прислал администратор
func (h *Handlers) requireAdmin(ctx context.Context, b *bot.Bot, update *models.Update) bool {
	if update.Message == nil || update.Message.From == nil {
		return false
	}

	telegramID := update.Message.From.ID
	if !h.isAdmin(telegramID) {
		h.logger.Warn("Command from non-admin rejected",
			zap.Int64("telegram_id", telegramID),
			zap.String("text", update.Message.Text),
		)
		h.sendError(ctx, b, update.Message.Chat.ID, "⛔️ Команда доступна только администраторам.")
		return false
	}

	return true
}

// run проверяет права, выполняет команду и отправляет ответ
func (h *Handlers) run(ctx context.Context, b *bot.Bot, update *models.Update, name string, fn commandFunc) {
	if !h.requireAdmin(ctx, b, update) {
		return
	}

	chatID := update.Message.Chat.ID
	text, err := fn(ctx, commandArgs(update.Message.Text))
	if err != nil {
		h.logCommandError(name, update.Message.From.ID, err)
		h.sendError(ctx, b, chatID, userMessage(err))
		return
	}

	h.sendMessage(ctx, b, chatID, text)
}

func (h *Handlers) logCommandError(name string, telegramID int64, err error) {
	fields := []zap.Field{
		zap.String("command", name),
		zap.Int64("telegram_id", telegramID),
		zap.Error(err),
	}

	var argErr *argError
	switch {
	case errors.As(err, &argErr):
		h.logger.Debug("Command rejected", fields...)
	case service.KindOf(err) == service.KindInfrastructure:
		h.logger.Error("Command failed", fields...)
	default:
		h.logger.Info("Command refused by engine", append(fields, zap.Stringer("kind", service.KindOf(err)))...)
	}
}

// userMessage переводит ошибку в текст для администратора
func userMessage(err error) string {
	var argErr *argError
	if errors.As(err, &argErr) {
		return "ℹ️ " + argErr.text
	}

	var domainErr *service.Error
	if errors.As(err, &domainErr) {
		switch domainErr.Kind {
		case service.KindNotFound:
			return "🔍 Не найдено: " + domainErr.Message
		case service.KindConflict:
			return "⚠️ Конфликт: " + domainErr.Message
		case service.KindState:
			return "🚫 Недопустимо: " + domainErr.Message
		default:
			return "❌ " + err.Error()
		}
	}

	return "❌ Произошла ошибка. Попробуйте позже."
}

// sendError отправляет сообщение об ошибке и логирует если не удалось
func (h *Handlers) sendError(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send error message",
			zap.Int64("chat_id", chatID),
			zap.String("text", text),
			zap.Error(err),
		)
	}
}

// sendMessage отправляет сообщение и логирует если не удалось
func (h *Handlers) sendMessage(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/controller/formatting"
	"github.com/Freeeeeet/lesson_booking/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const helpText = "📚 Команды администратора:\n\n" +
	"/availability <преподаватель> <ГГГГ-ММ-ДД> [дней] [часовой пояс] - свободные слоты\n" +
	"/lessons <преподаватель> <ГГГГ-ММ-ДД> [дней] - занятия преподавателя\n" +
	"/generate [ГГГГ-ММ] - создать занятия регулярных записей за месяц\n" +
	"/cancel <занятие> [customer] - отменить занятие (по умолчанию от преподавателя)\n" +
	"/complete <занятие> [дети через запятую | none] - отметить занятие проведённым, без списка состав не меняется\n" +
	"/absence <преподаватель> <ГГГГ-ММ-ДД> <ЧЧ:ММ> - отметить отсутствие\n" +
	"/present <преподаватель> <ГГГГ-ММ-ДД> <ЧЧ:ММ> - снять отсутствие\n" +
	"/schedule <преподаватель> <ГГГГ-ММ-ДД> <часовой пояс> <слоты, напр. Mon-10:00,Wed-10:30> - новый недельный шаблон с даты\n" +
	"/eventtypes - типы дней календаря\n" +
	"/eventtype <kind> <#RRGGBB> <название> - создать тип дня\n" +
	"/holiday <ГГГГ-ММ-ДД> <тип дня | clear> - разметить день календаря\n" +
	"/commitment <подписка> <преподаватель> <ГГГГ-ММ-ДД> <ЧЧ:ММ> <дети через запятую> - регулярное занятие\n" +
	"/endcommitment <регулярное> <ГГГГ-ММ-ДД> <ЧЧ:ММ> - завершить регулярное занятие\n" +
	"/help - показать эту справку\n\n" +
	"Даты и время без часового пояса считаются в бизнес-часовом поясе."

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	if !h.isAdmin(update.Message.From.ID) {
		h.sendMessage(ctx, b, update.Message.Chat.ID, fmt.Sprintf(
			"👋 Это служебный бот расписания.\nВаш telegram id: %d. Передайте его администратору для доступа.",
			update.Message.From.ID,
		))
		return
	}

	h.logger.Info("Admin started bot", zap.Int64("telegram_id", update.Message.From.ID))
	h.sendMessage(ctx, b, update.Message.Chat.ID, "👋 Привет!\n\n"+helpText)
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "help", func(context.Context, []string) (string, error) {
		return helpText, nil
	})
}

// HandleAvailability обрабатывает команду /availability
func (h *Handlers) HandleAvailability(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "availability", h.availabilityReply)
}

// HandleLessons обрабатывает команду /lessons
func (h *Handlers) HandleLessons(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "lessons", h.lessonsReply)
}

// HandleGenerate обрабатывает команду /generate
func (h *Handlers) HandleGenerate(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "generate", h.generateReply)
}

// HandleCancel обрабатывает команду /cancel
func (h *Handlers) HandleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "cancel", h.cancelReply)
}

// HandleComplete обрабатывает команду /complete
func (h *Handlers) HandleComplete(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "complete", h.completeReply)
}

// HandleAbsence обрабатывает команду /absence
func (h *Handlers) HandleAbsence(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "absence", h.absenceReply)
}

// HandlePresent обрабатывает команду /present
func (h *Handlers) HandlePresent(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "present", h.presentReply)
}

func (h *Handlers) availabilityReply(ctx context.Context, args []string) (string, error) {
	if len(args) < 2 || len(args) > 4 {
		return "", usage("/availability <преподаватель> <ГГГГ-ММ-ДД> [дней] [часовой пояс]")
	}

	instructorID, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	start, err := parseDate(args[1])
	if err != nil {
		return "", err
	}
	days := DefaultRangeDays
	if len(args) > 2 {
		if days, err = parseDays(args[2]); err != nil {
			return "", err
		}
	}
	timezone := h.location.String()
	if len(args) > 3 {
		timezone = args[3]
	}

	times, err := h.availability.ResolveForInstructor(ctx, instructorID, start, start.AddDate(0, 0, days), timezone)
	if err != nil {
		return "", err
	}

	// Ответ показываем в запрошенном поясе; он уже проверен сервисом
	loc := h.location
	if len(args) > 3 {
		loc, _ = loadLocation(timezone, h.location)
	}

	return fmt.Sprintf("🕒 Преподаватель %d, %s, %d дн. (%s)\n\n%s",
		instructorID, formatting.FormatDate(start), days, loc, formatting.FormatSlots(times, loc)), nil
}

func (h *Handlers) lessonsReply(ctx context.Context, args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", usage("/lessons <преподаватель> <ГГГГ-ММ-ДД> [дней]")
	}

	instructorID, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	from, err := parseLocalTime(args[1], "00:00", h.location)
	if err != nil {
		return "", err
	}
	days := DefaultRangeDays
	if len(args) > 2 {
		if days, err = parseDays(args[2]); err != nil {
			return "", err
		}
	}

	lessons, err := h.lessons.ListInstructorOccurrences(ctx, instructorID, from, from.AddDate(0, 0, days))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("📋 Преподаватель %d, %s, %d дн.\n\n%s",
		instructorID, formatting.FormatDate(from), days, formatting.FormatLessons(lessons, h.location)), nil
}

func (h *Handlers) generateReply(ctx context.Context, args []string) (string, error) {
	if len(args) > 1 {
		return "", usage("/generate [ГГГГ-ММ]")
	}

	ym := service.MonthOf(h.now(), h.location)
	if len(args) == 1 {
		parsed, err := service.ParseYearMonth(args[0])
		if err != nil {
			return "", err
		}
		ym = parsed
	}

	result, err := h.generator.GenerateOccurrences(ctx, ym)
	if err != nil {
		return "", err
	}

	h.logger.Info("Generation triggered from bot",
		zap.Stringer("month", ym),
		zap.Stringer("run_id", result.RunID),
		zap.Int("created", result.Created),
		zap.Int("failed", len(result.Failures)),
	)
	return formatting.FormatGenerationResult(result), nil
}

func (h *Handlers) cancelReply(ctx context.Context, args []string) (string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", usage("/cancel <занятие> [customer]")
	}

	lessonID, err := parseID(args[0])
	if err != nil {
		return "", err
	}

	cancel := h.lessons.CancelByInstructor
	if len(args) == 2 {
		switch strings.ToLower(args[1]) {
		case "customer":
			cancel = h.lessons.CancelByCustomer
		case "instructor":
		default:
			return "", badArg("кто отменяет: customer или instructor, получено %q", args[1])
		}
	}

	lesson, err := cancel(ctx, lessonID)
	if err != nil {
		return "", err
	}
	return "Занятие отменено\n\n" + formatting.FormatLesson(lesson, h.location), nil
}

func (h *Handlers) completeReply(ctx context.Context, args []string) (string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", usage("/complete <занятие> [дети через запятую | none]")
	}

	lessonID, err := parseID(args[0])
	if err != nil {
		return "", err
	}

	// Без списка состав детей сохраняется, "none" фиксирует неявку всех
	var attendance []int64
	if len(args) == 2 {
		if strings.EqualFold(args[1], "none") {
			attendance = []int64{}
		} else if attendance, err = parseIDList(args[1]); err != nil {
			return "", err
		}
	}

	lesson, err := h.lessons.CompleteOccurrence(ctx, lessonID, attendance)
	if err != nil {
		return "", err
	}
	return "Занятие проведено\n\n" + formatting.FormatLesson(lesson, h.location), nil
}

func (h *Handlers) absenceReply(ctx context.Context, args []string) (string, error) {
	instructorID, at, err := h.instructorInstant("/absence", args)
	if err != nil {
		return "", err
	}

	_, affected, err := h.schedules.AddAbsence(ctx, instructorID, at)
	if err != nil {
		return "", err
	}

	text := fmt.Sprintf("🚷 Отсутствие преподавателя %d: %s", instructorID, formatting.FormatDateTime(at, h.location))
	if len(affected) > 0 {
		text += fmt.Sprintf("\n\n⚠️ На это время есть записи (%d), отмените их вручную через /cancel:\n%s",
			len(affected), formatting.FormatLessons(affected, h.location))
	}
	return text, nil
}

func (h *Handlers) presentReply(ctx context.Context, args []string) (string, error) {
	instructorID, at, err := h.instructorInstant("/present", args)
	if err != nil {
		return "", err
	}

	if err := h.schedules.RemoveAbsence(ctx, instructorID, at); err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Отсутствие снято: преподаватель %d, %s", instructorID, formatting.FormatDateTime(at, h.location)), nil
}

// instructorInstant разбирает аргументы вида <преподаватель> <дата> <время>
func (h *Handlers) instructorInstant(command string, args []string) (int64, time.Time, error) {
	if len(args) != 3 {
		return 0, time.Time{}, usage(command + " <преподаватель> <ГГГГ-ММ-ДД> <ЧЧ:ММ>")
	}

	instructorID, err := parseID(args[0])
	if err != nil {
		return 0, time.Time{}, err
	}
	at, err := parseLocalTime(args[1], args[2], h.location)
	if err != nil {
		return 0, time.Time{}, err
	}
	return instructorID, at, nil
}

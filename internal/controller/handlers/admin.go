package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/controller/formatting"
	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// HandleSchedule обрабатывает команду /schedule
func (h *Handlers) HandleSchedule(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "schedule", h.scheduleReply)
}

// HandleEventTypes обрабатывает команду /eventtypes
func (h *Handlers) HandleEventTypes(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "eventtypes", h.eventTypesReply)
}

// HandleEventType обрабатывает команду /eventtype
func (h *Handlers) HandleEventType(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "eventtype", h.eventTypeReply)
}

// HandleHoliday обрабатывает команду /holiday
func (h *Handlers) HandleHoliday(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "holiday", h.holidayReply)
}

// HandleCommitment обрабатывает команду /commitment
func (h *Handlers) HandleCommitment(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "commitment", h.commitmentReply)
}

// HandleEndCommitment обрабатывает команду /endcommitment
func (h *Handlers) HandleEndCommitment(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.run(ctx, b, update, "endcommitment", h.endCommitmentReply)
}

func (h *Handlers) scheduleReply(ctx context.Context, args []string) (string, error) {
	if len(args) != 4 {
		return "", usage("/schedule <преподаватель> <ГГГГ-ММ-ДД> <часовой пояс> <слоты, напр. Mon-10:00,Wed-10:30>")
	}

	instructorID, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	from, err := parseDate(args[1])
	if err != nil {
		return "", err
	}
	slots, err := parseWeeklySlots(args[3])
	if err != nil {
		return "", err
	}

	version, err := h.schedules.ChangeWeeklySchedule(ctx, instructorID, from, args[2], slots)
	if err != nil {
		return "", err
	}

	h.logger.Info("Weekly schedule changed from bot",
		zap.Int64("instructor_id", instructorID),
		zap.Int64("version_id", version.ID),
		zap.Int("slots", len(version.Slots)),
	)
	return fmt.Sprintf("🗓 Шаблон #%d преподавателя %d действует с %s (%s), слотов: %d",
		version.ID, instructorID, formatting.FormatDate(version.EffectiveFrom), version.Timezone, len(version.Slots)), nil
}

func (h *Handlers) eventTypesReply(ctx context.Context, args []string) (string, error) {
	if len(args) != 0 {
		return "", usage("/eventtypes")
	}

	types, err := h.calendar.ListEventTypes(ctx)
	if err != nil {
		return "", err
	}
	if len(types) == 0 {
		return "Типов дней нет. Создайте: /eventtype", nil
	}

	lines := make([]string, 0, len(types))
	for _, et := range types {
		lines = append(lines, fmt.Sprintf("#%d %s (%s, %s)", et.ID, et.Name, et.Kind, et.Color))
	}
	return strings.Join(lines, "\n"), nil
}

func (h *Handlers) eventTypeReply(ctx context.Context, args []string) (string, error) {
	if len(args) < 3 {
		return "", usage("/eventtype <regular|holiday|rebookable_holiday|theme_week> <#RRGGBB> <название>")
	}

	et, err := h.calendar.CreateEventType(ctx, service.CreateEventTypeRequest{
		Kind:  model.EventKind(args[0]),
		Color: args[1],
		Name:  strings.Join(args[2:], " "),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Тип дня #%d %s создан", et.ID, et.Name), nil
}

func (h *Handlers) holidayReply(ctx context.Context, args []string) (string, error) {
	if len(args) != 2 {
		return "", usage("/holiday <ГГГГ-ММ-ДД> <тип дня | clear>")
	}

	date, err := parseDate(args[0])
	if err != nil {
		return "", err
	}

	if strings.EqualFold(args[1], "clear") {
		if err := h.calendar.ClearDay(ctx, date); err != nil {
			return "", err
		}
		return fmt.Sprintf("📅 %s снова обычный день", formatting.FormatDate(date)), nil
	}

	eventTypeID, err := parseID(args[1])
	if err != nil {
		return "", err
	}
	day, err := h.calendar.SetDay(ctx, date, eventTypeID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("📅 %s отмечен типом #%d (%s)", formatting.FormatDate(day.Date), day.EventTypeID, day.Kind()), nil
}

func (h *Handlers) commitmentReply(ctx context.Context, args []string) (string, error) {
	if len(args) != 5 {
		return "", usage("/commitment <подписка> <преподаватель> <ГГГГ-ММ-ДД> <ЧЧ:ММ> <дети через запятую>")
	}

	subscriptionID, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	instructorID, err := parseID(args[1])
	if err != nil {
		return "", err
	}
	startAt, err := parseLocalTime(args[2], args[3], h.location)
	if err != nil {
		return "", err
	}
	children, err := parseIDList(args[4])
	if err != nil {
		return "", err
	}

	c, err := h.commitments.Create(ctx, service.CreateCommitmentRequest{
		SubscriptionID: subscriptionID,
		InstructorID:   instructorID,
		StartAt:        startAt,
		ChildIDs:       children,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("🔁 Регулярное занятие #%d: преподаватель %d, с %s, каждую неделю",
		c.ID, instructorID, formatting.FormatDateTime(c.StartAt, h.location)), nil
}

func (h *Handlers) endCommitmentReply(ctx context.Context, args []string) (string, error) {
	if len(args) != 3 {
		return "", usage("/endcommitment <регулярное> <ГГГГ-ММ-ДД> <ЧЧ:ММ>")
	}

	commitmentID, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	endAt, err := parseLocalTime(args[1], args[2], h.location)
	if err != nil {
		return "", err
	}

	if err := h.commitments.End(ctx, commitmentID, endAt); err != nil {
		return "", err
	}
	return fmt.Sprintf("Регулярное занятие #%d завершается %s", commitmentID, formatting.FormatDateTime(endAt, h.location)), nil
}

// parseWeeklySlots разбирает слоты вида Mon-10:00,Wed-10:30
func parseWeeklySlots(s string) ([]model.WeeklySlot, error) {
	days := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
		"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	}

	var slots []model.WeeklySlot
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		day, clock, ok := strings.Cut(part, "-")
		weekday, known := days[strings.ToLower(day)]
		if !ok || !known {
			return nil, badArg("некорректный слот %q, нужен формат Mon-10:00", part)
		}
		t, err := time.Parse("15:04", clock)
		if err != nil {
			return nil, badArg("некорректное время в слоте %q", part)
		}
		slots = append(slots, model.WeeklySlot{Weekday: int(weekday), StartHour: t.Hour(), StartMinute: t.Minute()})
	}
	if len(slots) == 0 {
		return nil, badArg("пустой список слотов")
	}
	return slots, nil
}

package formatting

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/service"
)

// FormatLesson форматирует занятие одной-несколькими строками
func FormatLesson(l *model.Lesson, loc *time.Location) string {
	display := GetLessonStatusDisplay(l.Status)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s #%d %s", display.Emoji, l.ID, l.ClassCode)
	if l.DateTime != nil {
		fmt.Fprintf(&sb, " | %s", FormatDateTime(*l.DateTime, loc))
	}
	fmt.Fprintf(&sb, "\n    %s, клиент %d", display.Text, l.CustomerID)
	if l.InstructorID != nil {
		fmt.Fprintf(&sb, ", преподаватель %d", *l.InstructorID)
	}
	if l.IsFreeTrial {
		sb.WriteString(", пробное")
	}
	if l.RebookableUntil != nil {
		fmt.Fprintf(&sb, "\n    Перенос до %s", FormatDateTime(*l.RebookableUntil, loc))
	}
	return sb.String()
}

// FormatLessons форматирует список занятий
func FormatLessons(lessons []*model.Lesson, loc *time.Location) string {
	if len(lessons) == 0 {
		return "Занятий нет"
	}

	lines := make([]string, 0, len(lessons))
	for _, l := range lessons {
		lines = append(lines, FormatLesson(l, loc))
	}
	return strings.Join(lines, "\n")
}

// FormatSlots группирует свободные моменты по дням
func FormatSlots(times []time.Time, loc *time.Location) string {
	if len(times) == 0 {
		return "Свободных слотов нет"
	}

	var sb strings.Builder
	var day string
	for _, t := range times {
		local := t.In(loc)
		d := fmt.Sprintf("%s %s", GetWeekdayShortName(local.Weekday()), FormatDate(local))
		if d != day {
			if day != "" {
				sb.WriteString("\n")
			}
			fmt.Fprintf(&sb, "📅 %s:", d)
			day = d
		}
		fmt.Fprintf(&sb, " %s", local.Format("15:04"))
	}
	return sb.String()
}

// FormatGenerationResult форматирует итог генерации занятий за месяц
func FormatGenerationResult(r *service.GenerationResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🗓 %s %d\n", GetMonthName(r.Month.Month), r.Month.Year)
	fmt.Fprintf(&sb, "Создано: %d\nС кредитом переноса: %d\nПропущено: %d\nОшибок: %d",
		r.Created, r.Credited, r.Skipped, len(r.Failures))

	const maxShown = 10
	for i, f := range r.Failures {
		if i == maxShown {
			fmt.Fprintf(&sb, "\n  ... ещё %d", len(r.Failures)-maxShown)
			break
		}
		fmt.Fprintf(&sb, "\n  • регулярное #%d %s: %v", f.CommitmentID, f.DateTime.UTC().Format(time.RFC3339), f.Err)
	}
	return sb.String()
}

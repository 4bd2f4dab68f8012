package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ограничения на аргументы команд
const (
	DefaultRangeDays = 7
	MaxRangeDays     = 31
)

// argError ошибка в аргументах команды, текст показывается пользователю как есть
type argError struct {
	text string
}

func (e *argError) Error() string { return e.text }

func usage(text string) error {
	return &argError{text: "Использование: " + text}
}

func badArg(format string, a ...any) error {
	return &argError{text: fmt.Sprintf(format, a...)}
}

// commandArgs отрезает саму команду (возможно с @botname) и возвращает аргументы
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	return fields[1:]
}

// parseID разбирает положительный идентификатор
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badArg("некорректный ID %q", s)
	}
	return id, nil
}

// parseIDList разбирает список ID через запятую
func parseIDList(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		id, err := parseID(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, badArg("пустой список ID")
	}
	return ids, nil
}

// parseDate разбирает календарную дату YYYY-MM-DD (полночь UTC)
func parseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, badArg("некорректная дата %q, нужен формат ГГГГ-ММ-ДД", s)
	}
	return d, nil
}

// parseLocalTime собирает момент из даты и времени ЧЧ:ММ в поясе loc
func parseLocalTime(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := parseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	c, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, badArg("некорректное время %q, нужен формат ЧЧ:ММ", clock)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, loc), nil
}

// parseDays разбирает длину диапазона в днях
func parseDays(s string) (int, error) {
	days, err := strconv.Atoi(s)
	if err != nil || days < 1 || days > MaxRangeDays {
		return 0, badArg("количество дней должно быть от 1 до %d", MaxRangeDays)
	}
	return days, nil
}

// loadLocation загружает пояс по имени, при ошибке возвращает fallback
func loadLocation(name string, fallback *time.Location) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback, err
	}
	return loc, nil
}

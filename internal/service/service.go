package service

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/repository"
	"github.com/Freeeeeet/lesson_booking/internal/repository/base"
)

// Clock returns the current instant. Injected so tests control "now".
type Clock func() time.Time

// Rules holds the business parameters of the engine.
type Rules struct {
	Location               *time.Location // бизнес-часовой пояс: недели, месяцы, регулярные занятия
	LessonLength           time.Duration
	MinBookingLead         time.Duration
	CustomerRebookWindow   time.Duration
	InstructorRebookWindow time.Duration
}

// DefaultRules returns the production defaults.
func DefaultRules() Rules {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		loc = time.UTC
	}
	return Rules{
		Location:               loc,
		LessonLength:           30 * time.Minute,
		MinBookingLead:         3 * time.Hour,
		CustomerRebookWindow:   3 * time.Hour,
		InstructorRebookWindow: 180 * 24 * time.Hour,
	}
}

// onGrid reports whether the local time-of-day is aligned to the lesson length.
func (r Rules) onGrid(hour, minute int) bool {
	step := int(r.LessonLength / time.Minute)
	if step <= 0 {
		return true
	}
	return (hour*60+minute)%step == 0
}

// weekBounds returns the Monday-based week in the business location containing t.
func (r Rules) weekBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(r.Location)
	offset := (int(local.Weekday()) + 6) % 7
	start := time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, r.Location)
	end := time.Date(start.Year(), start.Month(), start.Day()+7, 0, 0, 0, 0, r.Location)
	return start.UTC(), end.UTC()
}

// lessonConflict переводит нарушение ограничения таблицы lessons в доменную ошибку
func lessonConflict(err error) error {
	constraint, ok := base.ConstraintName(err)
	if !ok {
		return err
	}

	switch constraint {
	case repository.ConstraintInstructorSlot:
		return fmt.Errorf("%w: %v", ErrSlotUnavailable, err)
	case repository.ConstraintCustomerSlot:
		return fmt.Errorf("%w: %v", ErrDoubleBooking, err)
	case repository.ConstraintRebookedFrom:
		return fmt.Errorf("%w: %v", ErrAlreadyRebooked, err)
	case repository.ConstraintClassCode:
		return fmt.Errorf("%w: %v", ErrDuplicateClassCode, err)
	}
	return err
}

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

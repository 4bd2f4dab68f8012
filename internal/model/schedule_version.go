package model

import (
	"fmt"
	"time"
)

// ScheduleVersion is one effective-dated weekly availability template of an instructor.
// The effective range is half-open: [EffectiveFrom, EffectiveTo), nil EffectiveTo = current.
type ScheduleVersion struct {
	ID            int64      `json:"id"`
	InstructorID  int64      `json:"instructor_id"`
	EffectiveFrom time.Time  `json:"effective_from"` // дата, 00:00 UTC
	EffectiveTo   *time.Time `json:"effective_to"`   // nil = действует сейчас
	Timezone      string     `json:"timezone"`
	CreatedAt     time.Time  `json:"created_at"`

	Slots []WeeklySlot `json:"slots"`
}

// WeeklySlot is a weekday + local start time of a schedule version.
type WeeklySlot struct {
	Weekday     int `json:"weekday"      validate:"min=0,max=6"`  // 0 = Sunday, 6 = Saturday
	StartHour   int `json:"start_hour"   validate:"min=0,max=23"` // 0-23
	StartMinute int `json:"start_minute" validate:"min=0,max=59"` // 0-59
}

// IsOpen reports whether the version has no end date.
func (v *ScheduleVersion) IsOpen() bool {
	return v.EffectiveTo == nil
}

// Contains reports whether the civil date falls into [EffectiveFrom, EffectiveTo).
func (v *ScheduleVersion) Contains(date time.Time) bool {
	d := DateOf(date)
	if d.Before(v.EffectiveFrom) {
		return false
	}
	return v.EffectiveTo == nil || d.Before(*v.EffectiveTo)
}

// Overlaps reports whether two versions' effective ranges intersect.
func (v *ScheduleVersion) Overlaps(other *ScheduleVersion) bool {
	return RangesOverlap(v.EffectiveFrom, v.EffectiveTo, other.EffectiveFrom, other.EffectiveTo)
}

// SlotsOn returns the slots of the given weekday.
func (v *ScheduleVersion) SlotsOn(weekday time.Weekday) []WeeklySlot {
	var res []WeeklySlot
	for _, s := range v.Slots {
		if s.Weekday == int(weekday) {
			res = append(res, s)
		}
	}
	return res
}

// At returns the instant of the slot on the civil date in loc.
func (s WeeklySlot) At(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), s.StartHour, s.StartMinute, 0, 0, loc).UTC()
}

func (s WeeklySlot) String() string {
	return fmt.Sprintf("%s %02d:%02d", time.Weekday(s.Weekday), s.StartHour, s.StartMinute)
}

// DateOf truncates t to its civil date, expressed as 00:00 UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RangesOverlap checks two half-open date ranges, nil end meaning unbounded.
func RangesOverlap(aFrom time.Time, aTo *time.Time, bFrom time.Time, bTo *time.Time) bool {
	if aTo != nil && !bFrom.Before(*aTo) {
		return false
	}
	if bTo != nil && !aFrom.Before(*bTo) {
		return false
	}
	return true
}

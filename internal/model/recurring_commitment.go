package model

import "time"

// RecurringCommitment is a subscription's standing weekly lesson with an instructor.
// StartAt encodes both the first lesson and the weekday/time of all following ones.
type RecurringCommitment struct {
	ID             int64      `json:"id"`
	SubscriptionID int64      `json:"subscription_id"`
	InstructorID   int64      `json:"instructor_id"`
	StartAt        time.Time  `json:"start_at"` // UTC
	EndAt          *time.Time `json:"end_at"`   // nil = бессрочно
	ChildIDs       []int64    `json:"child_ids"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ActiveAt reports whether t falls into [StartAt, EndAt).
func (c *RecurringCommitment) ActiveAt(t time.Time) bool {
	if t.Before(c.StartAt) {
		return false
	}
	return c.EndAt == nil || t.Before(*c.EndAt)
}

// Overlaps reports whether the commitment is active at some point of [from, to).
func (c *RecurringCommitment) Overlaps(from, to time.Time) bool {
	if !c.StartAt.Before(to) {
		return false
	}
	return c.EndAt == nil || c.EndAt.After(from)
}

// Weekday returns the lesson weekday in loc.
func (c *RecurringCommitment) Weekday(loc *time.Location) time.Weekday {
	return c.StartAt.In(loc).Weekday()
}

// OccurrenceOn returns the lesson instant on the civil date, keeping the local time of StartAt.
func (c *RecurringCommitment) OccurrenceOn(date time.Time, loc *time.Location) time.Time {
	local := c.StartAt.In(loc)
	return time.Date(date.Year(), date.Month(), date.Day(), local.Hour(), local.Minute(), 0, 0, loc).UTC()
}

// WeekIndex returns the number of whole weeks between the first lesson and the date.
func (c *RecurringCommitment) WeekIndex(date time.Time, loc *time.Location) int {
	first := DateOf(c.StartAt.In(loc))
	days := int(DateOf(date).Sub(first).Hours() / 24)
	if days < 0 {
		return -((-days + 6) / 7)
	}
	return days / 7
}

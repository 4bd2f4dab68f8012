package model

import "time"

// Subscription is the read-only view of a customer's plan used for entitlement checks.
type Subscription struct {
	ID               int64      `json:"id"`
	CustomerID       int64      `json:"customer_id"`
	WeeklyClassTimes int        `json:"weekly_class_times"`
	StartDate        time.Time  `json:"start_date"`
	EndDate          *time.Time `json:"end_date"` // nil = не ограничена
}

// ActiveOn reports whether the civil date lies in [StartDate, EndDate).
func (s *Subscription) ActiveOn(date time.Time) bool {
	d := DateOf(date)
	if d.Before(s.StartDate) {
		return false
	}
	return s.EndDate == nil || d.Before(*s.EndDate)
}

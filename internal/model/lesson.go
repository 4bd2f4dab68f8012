package model

import "time"

type LessonStatus string

const (
	LessonStatusPending              LessonStatus = "pending"                // Пробный урок, время ещё не выбрано
	LessonStatusBooked               LessonStatus = "booked"                 // Запланирован
	LessonStatusCompleted            LessonStatus = "completed"              // Проведён
	LessonStatusCanceledByCustomer   LessonStatus = "canceled_by_customer"   // Отменён клиентом
	LessonStatusCanceledByInstructor LessonStatus = "canceled_by_instructor" // Отменён преподавателем
	LessonStatusRebooked             LessonStatus = "rebooked"               // Перенесён на другое время
)

// IsTerminal reports whether no further transition is possible for the same lesson row.
func (s LessonStatus) IsTerminal() bool {
	switch s {
	case LessonStatusCompleted, LessonStatusCanceledByCustomer, LessonStatusCanceledByInstructor, LessonStatusRebooked:
		return true
	}
	return false
}

// LessonShape distinguishes unscheduled trial placeholders from dated lessons.
type LessonShape int

const (
	ShapeScheduled LessonShape = iota
	ShapeUnscheduledTrial
)

// Lesson is one concrete lesson occurrence (a "class").
type Lesson struct {
	ID                    int64        `json:"id"`
	InstructorID          *int64       `json:"instructor_id"`
	CustomerID            int64        `json:"customer_id"`
	DateTime              *time.Time   `json:"date_time"` // UTC
	Status                LessonStatus `json:"status"`
	SubscriptionID        *int64       `json:"subscription_id"`         // nil для пробного урока
	RecurringCommitmentID *int64       `json:"recurring_commitment_id"` // nil для разовой записи
	RebookedFromID        *int64       `json:"rebooked_from_id"`
	RebookableUntil       *time.Time   `json:"rebookable_until"`
	IsFreeTrial           bool         `json:"is_free_trial"`
	ClassCode             string       `json:"class_code"`
	ChildIDs              []int64      `json:"child_ids"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// Shape returns the lesson's shape. Only pending rows are unscheduled.
func (l *Lesson) Shape() LessonShape {
	if l.Status == LessonStatusPending {
		return ShapeUnscheduledTrial
	}
	return ShapeScheduled
}

// Scheduled returns the instructor and instant of a scheduled lesson.
func (l *Lesson) Scheduled() (instructorID int64, at time.Time, ok bool) {
	if l.Shape() != ShapeScheduled || l.InstructorID == nil || l.DateTime == nil {
		return 0, time.Time{}, false
	}
	return *l.InstructorID, *l.DateTime, true
}

// OccupiesSlot reports whether the lesson holds its instructor and customer slot.
func (l *Lesson) OccupiesSlot() bool {
	return l.Status == LessonStatusBooked
}

// CanBeRebookedAt reports whether the lesson licenses a replacement at now.
func (l *Lesson) CanBeRebookedAt(now time.Time) bool {
	return l.Status.IsTerminal() && l.RebookableUntil != nil && now.Before(*l.RebookableUntil)
}

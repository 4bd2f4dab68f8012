package model

import "time"

type EventKind string

const (
	EventKindRegular           EventKind = "regular"
	EventKindHoliday           EventKind = "holiday"            // занятий нет
	EventKindRebookableHoliday EventKind = "rebookable_holiday" // занятий нет, урок можно перенести
	EventKindThemeWeek         EventKind = "theme_week"         // занятия идут как обычно
)

// EventType is a named, colored kind of business day.
type EventType struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Kind      EventKind `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// CalendarDay tags one date with an event type.
type CalendarDay struct {
	Date        time.Time `json:"date"`
	EventTypeID int64     `json:"event_type_id"`

	EventType *EventType `json:"event_type,omitempty"`
}

// IsValid reports whether k is one of the known kinds.
func (k EventKind) IsValid() bool {
	switch k {
	case EventKindRegular, EventKindHoliday, EventKindRebookableHoliday, EventKindThemeWeek:
		return true
	}
	return false
}

// BlocksClasses reports whether no lessons take place on such a day.
func (k EventKind) BlocksClasses() bool {
	return k == EventKindHoliday || k == EventKindRebookableHoliday
}

// Kind returns the day's kind, regular when the event type is not loaded.
func (d *CalendarDay) Kind() EventKind {
	if d == nil || d.EventType == nil {
		return EventKindRegular
	}
	return d.EventType.Kind
}

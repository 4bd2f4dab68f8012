package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository/base"
)

type PgCalendarRepository struct {
	*base.Repository
}

func NewCalendarRepository(db base.DBTX) *PgCalendarRepository {
	return &PgCalendarRepository{Repository: base.NewRepository(db)}
}

// CreateEventType создаёт тип дня
func (r *PgCalendarRepository) CreateEventType(ctx context.Context, eventType *model.EventType) error {
	query := `
		INSERT INTO event_types (name, color, kind)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.QueryRow(ctx, query, eventType.Name, eventType.Color, eventType.Kind).
		Scan(&eventType.ID, &eventType.CreatedAt)
	if err != nil {
		return fmt.Errorf("create event type: %w", base.Translate(err))
	}

	return nil
}

// GetEventType получает тип дня по ID
func (r *PgCalendarRepository) GetEventType(ctx context.Context, id int64) (*model.EventType, error) {
	var et model.EventType
	err := r.QueryRow(ctx, `
		SELECT id, name, color, kind, created_at
		FROM event_types
		WHERE id = $1
	`, id).Scan(&et.ID, &et.Name, &et.Color, &et.Kind, &et.CreatedAt)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get event type: %w", err)
	}

	return &et, nil
}

// ListEventTypes получает все типы дней
func (r *PgCalendarRepository) ListEventTypes(ctx context.Context) ([]*model.EventType, error) {
	rows, err := r.Query(ctx, `SELECT id, name, color, kind, created_at FROM event_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list event types: %w", err)
	}
	defer rows.Close()

	var types []*model.EventType
	for rows.Next() {
		var et model.EventType
		if err := rows.Scan(&et.ID, &et.Name, &et.Color, &et.Kind, &et.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event type: %w", err)
		}
		types = append(types, &et)
	}

	return types, rows.Err()
}

// UpsertDay помечает дату типом дня (одна запись на дату)
func (r *PgCalendarRepository) UpsertDay(ctx context.Context, day *model.CalendarDay) error {
	query := `
		INSERT INTO calendar_days (date, event_type_id)
		VALUES ($1, $2)
		ON CONFLICT (date) DO UPDATE SET event_type_id = EXCLUDED.event_type_id
	`

	if _, err := r.ExecAffected(ctx, query, day.Date, day.EventTypeID); err != nil {
		return fmt.Errorf("upsert calendar day: %w", err)
	}

	return nil
}

// DeleteDay возвращает дату к обычному дню
func (r *PgCalendarRepository) DeleteDay(ctx context.Context, date time.Time) (bool, error) {
	affected, err := r.ExecAffected(ctx, `DELETE FROM calendar_days WHERE date = $1`, date)
	if err != nil {
		return false, fmt.Errorf("delete calendar day: %w", err)
	}

	return affected > 0, nil
}

// ListDays получает размеченные даты в диапазоне [from, to)
func (r *PgCalendarRepository) ListDays(ctx context.Context, from, to time.Time) ([]*model.CalendarDay, error) {
	query := `
		SELECT d.date, d.event_type_id, e.name, e.color, e.kind, e.created_at
		FROM calendar_days d
		JOIN event_types e ON e.id = d.event_type_id
		WHERE d.date >= $1 AND d.date < $2
		ORDER BY d.date
	`

	rows, err := r.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list calendar days: %w", err)
	}
	defer rows.Close()

	var days []*model.CalendarDay
	for rows.Next() {
		day := &model.CalendarDay{EventType: &model.EventType{}}
		err := rows.Scan(
			&day.Date,
			&day.EventTypeID,
			&day.EventType.Name,
			&day.EventType.Color,
			&day.EventType.Kind,
			&day.EventType.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan calendar day: %w", err)
		}
		day.Date = model.DateOf(day.Date)
		day.EventType.ID = day.EventTypeID
		days = append(days, day)
	}

	return days, rows.Err()
}

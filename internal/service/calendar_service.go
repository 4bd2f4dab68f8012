package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository"
	"github.com/Freeeeeet/lesson_booking/internal/repository/base"
	"go.uber.org/zap"
)

type CreateEventTypeRequest struct {
	Name  string          `validate:"required,max=100"`
	Color string          `validate:"required,hexcolor"`
	Kind  model.EventKind `validate:"required"`
}

// CalendarService maintains the business-wide day-type calendar.
type CalendarService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

func NewCalendarService(repo *repository.Repository, logger *zap.Logger) *CalendarService {
	return &CalendarService{repo: repo, logger: logger}
}

// CreateEventType создаёт тип дня
func (s *CalendarService) CreateEventType(ctx context.Context, req CreateEventTypeRequest) (*model.EventType, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !req.Kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}

	eventType := &model.EventType{Name: req.Name, Color: req.Color, Kind: req.Kind}
	if err := s.repo.Calendar.CreateEventType(ctx, eventType); err != nil {
		if errors.Is(err, base.ErrConflict) {
			return nil, fmt.Errorf("%w: event type %q exists", ErrInvalidRequest, req.Name)
		}
		return nil, fmt.Errorf("create event type: %w", err)
	}

	s.logger.Info("Event type created",
		zap.Int64("event_type_id", eventType.ID),
		zap.String("name", eventType.Name),
		zap.String("kind", string(eventType.Kind)),
	)

	return eventType, nil
}

// ListEventTypes возвращает все типы дней
func (s *CalendarService) ListEventTypes(ctx context.Context) ([]*model.EventType, error) {
	return s.repo.Calendar.ListEventTypes(ctx)
}

// SetDay помечает дату типом дня
func (s *CalendarService) SetDay(ctx context.Context, date time.Time, eventTypeID int64) (*model.CalendarDay, error) {
	eventType, err := s.repo.Calendar.GetEventType(ctx, eventTypeID)
	if err != nil {
		return nil, fmt.Errorf("get event type: %w", err)
	}
	if eventType == nil {
		return nil, ErrEventTypeNotFound
	}

	day := &model.CalendarDay{
		Date:        model.DateOf(date),
		EventTypeID: eventTypeID,
		EventType:   eventType,
	}
	if err := s.repo.Calendar.UpsertDay(ctx, day); err != nil {
		return nil, fmt.Errorf("set calendar day: %w", err)
	}

	s.logger.Info("Calendar day set",
		zap.Time("date", day.Date),
		zap.String("kind", string(eventType.Kind)),
	)

	return day, nil
}

// ClearDay возвращает дату к обычному дню
func (s *CalendarService) ClearDay(ctx context.Context, date time.Time) error {
	deleted, err := s.repo.Calendar.DeleteDay(ctx, model.DateOf(date))
	if err != nil {
		return fmt.Errorf("clear calendar day: %w", err)
	}
	if !deleted {
		return ErrCalendarDayNotFound
	}
	return nil
}

// ListDays возвращает размеченные даты в диапазоне [from, to)
func (s *CalendarService) ListDays(ctx context.Context, from, to time.Time) ([]*model.CalendarDay, error) {
	from, to = model.DateOf(from), model.DateOf(to)
	if !from.Before(to) {
		return nil, ErrInvalidDateRange
	}
	return s.repo.Calendar.ListDays(ctx, from, to)
}

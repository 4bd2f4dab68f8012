package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookRequest books an ad-hoc lesson or, with ReplaceLessonID, rebooks a terminal one.
type BookRequest struct {
	CustomerID      int64     `validate:"gt=0"`
	InstructorID    int64     `validate:"gt=0"`
	DateTime        time.Time `validate:"required"`
	ChildIDs        []int64   `validate:"dive,gt=0"`
	ReplaceLessonID *int64    `validate:"omitempty,gt=0"`
}

type BookingService struct {
	repo         *repository.Repository
	availability *AvailabilityService
	rules        Rules
	now          Clock
	logger       *zap.Logger
}

func NewBookingService(
	repo *repository.Repository,
	availability *AvailabilityService,
	rules Rules,
	now Clock,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		repo:         repo,
		availability: availability,
		rules:        rules,
		now:          now,
		logger:       logger,
	}
}

// BookOccurrence бронирует занятие. Без ReplaceLessonID проверяется недельный лимит
// подписки, с ним окно переноса заменяемого занятия.
func (s *BookingService) BookOccurrence(ctx context.Context, req BookRequest) (*model.Lesson, error) {
	if len(req.ChildIDs) == 0 {
		return nil, ErrNoAttendingChildren
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.checkGrid(req.DateTime); err != nil {
		return nil, err
	}

	at := req.DateTime.UTC()
	lesson := &model.Lesson{
		InstructorID: int64Ptr(req.InstructorID),
		CustomerID:   req.CustomerID,
		DateTime:     timePtr(at),
		Status:       model.LessonStatusBooked,
		ClassCode:    "BK-" + uuid.NewString(),
		ChildIDs:     req.ChildIDs,
	}

	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		if req.ReplaceLessonID != nil {
			replaced, err := s.lockReplaceable(ctx, tx, *req.ReplaceLessonID, req.CustomerID)
			if err != nil {
				return err
			}
			lesson.RebookedFromID = int64Ptr(replaced.ID)
			lesson.SubscriptionID = replaced.SubscriptionID
			lesson.RecurringCommitmentID = replaced.RecurringCommitmentID
			lesson.IsFreeTrial = replaced.IsFreeTrial
			lesson.ClassCode = "RB-" + uuid.NewString()
		} else {
			sub, err := s.checkEntitlement(ctx, tx, req.CustomerID, at)
			if err != nil {
				return err
			}
			lesson.SubscriptionID = int64Ptr(sub.ID)
		}

		return s.place(ctx, tx, lesson)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Lesson booked",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int64("customer_id", lesson.CustomerID),
		zap.Int64("instructor_id", req.InstructorID),
		zap.Time("date_time", at),
		zap.Bool("rebooking", lesson.RebookedFromID != nil),
	)

	return lesson, nil
}

// CancelByCustomer отменяет занятие по инициативе клиента; перенос возможен в течение
// короткого окна
func (s *BookingService) CancelByCustomer(ctx context.Context, lessonID int64) (*model.Lesson, error) {
	lesson, err := s.cancel(ctx, lessonID, model.LessonStatusCanceledByCustomer, s.rules.CustomerRebookWindow, true)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Lesson canceled by customer",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int64("customer_id", lesson.CustomerID),
		zap.Timep("rebookable_until", lesson.RebookableUntil),
	)
	return lesson, nil
}

// CancelByInstructor отменяет занятие по инициативе преподавателя; окно переноса длинное
func (s *BookingService) CancelByInstructor(ctx context.Context, lessonID int64) (*model.Lesson, error) {
	lesson, err := s.cancel(ctx, lessonID, model.LessonStatusCanceledByInstructor, s.rules.InstructorRebookWindow, false)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Lesson canceled by instructor",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int64p("instructor_id", lesson.InstructorID),
		zap.Timep("rebookable_until", lesson.RebookableUntil),
	)
	return lesson, nil
}

func (s *BookingService) cancel(ctx context.Context, lessonID int64, status model.LessonStatus, window time.Duration, beforeStart bool) (*model.Lesson, error) {
	var lesson *model.Lesson

	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		lesson, err = s.lockLesson(ctx, tx, lessonID)
		if err != nil {
			return err
		}
		if lesson.Status != model.LessonStatusBooked {
			return fmt.Errorf("%w: cannot cancel %s lesson", ErrInvalidTransition, lesson.Status)
		}

		now := s.now()
		if beforeStart && !now.Before(*lesson.DateTime) {
			return ErrLessonAlreadyStarted
		}

		lesson.Status = status
		lesson.RebookableUntil = timePtr(now.Add(window).UTC())
		return tx.Lessons.UpdateState(ctx, lesson)
	})
	if err != nil {
		return nil, err
	}
	return lesson, nil
}

// CompleteOccurrence отмечает занятие проведённым. nil finalAttendance оставляет текущий
// состав детей, пустой срез означает, что никто не пришёл.
func (s *BookingService) CompleteOccurrence(ctx context.Context, lessonID int64, finalAttendance []int64) (*model.Lesson, error) {
	var lesson *model.Lesson

	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		lesson, err = s.lockLesson(ctx, tx, lessonID)
		if err != nil {
			return err
		}
		if lesson.Status != model.LessonStatusBooked {
			return fmt.Errorf("%w: cannot complete %s lesson", ErrInvalidTransition, lesson.Status)
		}
		if s.now().Before(*lesson.DateTime) {
			return ErrLessonNotStarted
		}

		lesson.Status = model.LessonStatusCompleted
		lesson.RebookableUntil = nil
		if err := tx.Lessons.UpdateState(ctx, lesson); err != nil {
			return err
		}

		if finalAttendance == nil {
			return nil
		}
		lesson.ChildIDs = finalAttendance
		return tx.Lessons.ReplaceChildren(ctx, lesson.ID, finalAttendance)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Lesson completed",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int("attended", len(lesson.ChildIDs)),
	)
	return lesson, nil
}

// CreateFreeTrial создаёт пробное занятие без времени и преподавателя
func (s *BookingService) CreateFreeTrial(ctx context.Context, customerID int64, childIDs []int64) (*model.Lesson, error) {
	if len(childIDs) == 0 {
		return nil, ErrNoAttendingChildren
	}
	if customerID <= 0 {
		return nil, fmt.Errorf("%w: customer id must be positive", ErrInvalidRequest)
	}

	lesson := &model.Lesson{
		CustomerID:  customerID,
		Status:      model.LessonStatusPending,
		IsFreeTrial: true,
		ClassCode:   "FT-" + uuid.NewString(),
		ChildIDs:    childIDs,
	}

	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		if err := tx.Lessons.Create(ctx, lesson); err != nil {
			return lessonConflict(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Free trial created",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int64("customer_id", customerID),
		zap.String("class_code", lesson.ClassCode),
	)
	return lesson, nil
}

// ScheduleFreeTrial назначает время пробному занятию: pending -> booked на той же строке
func (s *BookingService) ScheduleFreeTrial(ctx context.Context, classCode string, instructorID int64, dateTime time.Time) (*model.Lesson, error) {
	if instructorID <= 0 {
		return nil, fmt.Errorf("%w: instructor id must be positive", ErrInvalidRequest)
	}
	if err := s.checkGrid(dateTime); err != nil {
		return nil, err
	}

	var lesson *model.Lesson
	at := dateTime.UTC()

	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		lesson, err = s.lockTrial(ctx, tx, classCode)
		if err != nil {
			return err
		}
		if lesson.Status != model.LessonStatusPending {
			return fmt.Errorf("%w: trial is already %s", ErrInvalidTransition, lesson.Status)
		}

		ok, err := s.availability.isAvailable(ctx, tx, instructorID, at)
		if err != nil {
			return err
		}
		if !ok {
			return ErrSlotUnavailable
		}

		lesson.Status = model.LessonStatusBooked
		lesson.InstructorID = int64Ptr(instructorID)
		lesson.DateTime = timePtr(at)
		if err := tx.Lessons.UpdateState(ctx, lesson); err != nil {
			return lessonConflict(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Free trial scheduled",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int64("instructor_id", instructorID),
		zap.Time("date_time", at),
	)
	return lesson, nil
}

// DeclineFreeTrial отменяет пробное занятие без права переноса
func (s *BookingService) DeclineFreeTrial(ctx context.Context, classCode string) (*model.Lesson, error) {
	var lesson *model.Lesson

	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		lesson, err = s.lockTrial(ctx, tx, classCode)
		if err != nil {
			return err
		}
		if lesson.Status.IsTerminal() {
			return fmt.Errorf("%w: trial is already %s", ErrInvalidTransition, lesson.Status)
		}

		lesson.Status = model.LessonStatusCanceledByCustomer
		lesson.RebookableUntil = nil
		return tx.Lessons.UpdateState(ctx, lesson)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Free trial declined",
		zap.Int64("lesson_id", lesson.ID),
		zap.String("class_code", classCode),
	)
	return lesson, nil
}

// RescheduleOccurrence переносит будущее занятие: старое становится rebooked,
// новое ссылается на него через rebooked_from_id. Всё в одной транзакции.
func (s *BookingService) RescheduleOccurrence(ctx context.Context, lessonID, instructorID int64, dateTime time.Time, childIDs []int64) (*model.Lesson, error) {
	if instructorID <= 0 {
		return nil, fmt.Errorf("%w: instructor id must be positive", ErrInvalidRequest)
	}
	if childIDs != nil && len(childIDs) == 0 {
		return nil, ErrNoAttendingChildren
	}
	if err := s.checkGrid(dateTime); err != nil {
		return nil, err
	}

	var old, lesson *model.Lesson
	at := dateTime.UTC()

	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		old, err = s.lockLesson(ctx, tx, lessonID)
		if err != nil {
			return err
		}
		if old.Status != model.LessonStatusBooked {
			return fmt.Errorf("%w: cannot reschedule %s lesson", ErrInvalidTransition, old.Status)
		}
		if !s.now().Before(*old.DateTime) {
			return ErrLessonAlreadyStarted
		}

		// Старый слот освобождается до проверки доступности: перенос на то же время
		// к другому преподавателю допустим
		old.Status = model.LessonStatusRebooked
		old.RebookableUntil = nil
		if err := tx.Lessons.UpdateState(ctx, old); err != nil {
			return err
		}

		children := childIDs
		if children == nil {
			children = old.ChildIDs
		}
		lesson = &model.Lesson{
			InstructorID:          int64Ptr(instructorID),
			CustomerID:            old.CustomerID,
			DateTime:              timePtr(at),
			Status:                model.LessonStatusBooked,
			SubscriptionID:        old.SubscriptionID,
			RecurringCommitmentID: old.RecurringCommitmentID,
			RebookedFromID:        int64Ptr(old.ID),
			IsFreeTrial:           old.IsFreeTrial,
			ClassCode:             "RB-" + uuid.NewString(),
			ChildIDs:              children,
		}
		return s.place(ctx, tx, lesson)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Lesson rescheduled",
		zap.Int64("old_lesson_id", old.ID),
		zap.Int64("new_lesson_id", lesson.ID),
		zap.Int64("instructor_id", instructorID),
		zap.Time("date_time", at),
	)
	return lesson, nil
}

// UpdateAttendance меняет состав детей запланированного или проведённого занятия
func (s *BookingService) UpdateAttendance(ctx context.Context, lessonID int64, childIDs []int64) error {
	return s.repo.InTx(ctx, func(tx *repository.Repository) error {
		lesson, err := s.lockLesson(ctx, tx, lessonID)
		if err != nil {
			return err
		}

		switch lesson.Status {
		case model.LessonStatusBooked, model.LessonStatusPending:
			if len(childIDs) == 0 {
				return ErrNoAttendingChildren
			}
		case model.LessonStatusCompleted:
		default:
			return fmt.Errorf("%w: cannot edit attendance of %s lesson", ErrInvalidTransition, lesson.Status)
		}

		return tx.Lessons.ReplaceChildren(ctx, lessonID, childIDs)
	})
}

// GetOccurrence получает занятие по ID
func (s *BookingService) GetOccurrence(ctx context.Context, lessonID int64) (*model.Lesson, error) {
	lesson, err := s.repo.Lessons.GetByID(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	if lesson == nil {
		return nil, ErrLessonNotFound
	}
	return lesson, nil
}

// ListCustomerOccurrences возвращает занятия клиента в [from, to)
func (s *BookingService) ListCustomerOccurrences(ctx context.Context, customerID int64, from, to time.Time) ([]*model.Lesson, error) {
	if !from.Before(to) {
		return nil, ErrInvalidDateRange
	}
	return s.repo.Lessons.ListByCustomer(ctx, customerID, from.UTC(), to.UTC())
}

// ListInstructorOccurrences возвращает занятия преподавателя в [from, to)
func (s *BookingService) ListInstructorOccurrences(ctx context.Context, instructorID int64, from, to time.Time) ([]*model.Lesson, error) {
	if !from.Before(to) {
		return nil, ErrInvalidDateRange
	}
	return s.repo.Lessons.ListByInstructor(ctx, instructorID, from.UTC(), to.UTC())
}

// place перепроверяет слот внутри транзакции и вставляет занятие
func (s *BookingService) place(ctx context.Context, tx *repository.Repository, lesson *model.Lesson) error {
	ok, err := s.availability.isAvailable(ctx, tx, *lesson.InstructorID, *lesson.DateTime)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSlotUnavailable
	}

	if err := tx.Lessons.Create(ctx, lesson); err != nil {
		return lessonConflict(err)
	}
	return nil
}

func (s *BookingService) lockReplaceable(ctx context.Context, tx *repository.Repository, lessonID, customerID int64) (*model.Lesson, error) {
	replaced, err := s.lockLesson(ctx, tx, lessonID)
	if err != nil {
		return nil, err
	}
	if replaced.CustomerID != customerID {
		return nil, ErrNotLessonOwner
	}
	if !replaced.Status.IsTerminal() || replaced.Status == model.LessonStatusCompleted {
		return nil, fmt.Errorf("%w: lesson %d is %s", ErrInvalidTransition, replaced.ID, replaced.Status)
	}
	if !replaced.CanBeRebookedAt(s.now()) {
		return nil, ErrRebookWindowExpired
	}

	exists, err := tx.Lessons.ExistsByRebookedFrom(ctx, replaced.ID)
	if err != nil {
		return nil, fmt.Errorf("check replacement: %w", err)
	}
	if exists {
		return nil, ErrAlreadyRebooked
	}
	return replaced, nil
}

// checkEntitlement проверяет недельный лимит активной подписки клиента
func (s *BookingService) checkEntitlement(ctx context.Context, tx *repository.Repository, customerID int64, at time.Time) (*model.Subscription, error) {
	sub, err := tx.Subscriptions.ActiveForCustomer(ctx, customerID, model.DateOf(at.In(s.rules.Location)))
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil {
		return nil, ErrNoActiveSubscription
	}

	// Блокировка подписки сериализует параллельные записи одного клиента до подсчёта
	if _, err := tx.Subscriptions.GetByIDForUpdate(ctx, sub.ID); err != nil {
		return nil, fmt.Errorf("lock subscription: %w", err)
	}

	weekStart, weekEnd := s.rules.weekBounds(at)
	count, err := tx.Lessons.CountBookedForSubscription(ctx, sub.ID, weekStart, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("count booked lessons: %w", err)
	}
	if count >= sub.WeeklyClassTimes {
		return nil, fmt.Errorf("%w: %d of %d lessons booked this week", ErrEntitlementExceeded, count, sub.WeeklyClassTimes)
	}
	return sub, nil
}

func (s *BookingService) lockLesson(ctx context.Context, tx *repository.Repository, lessonID int64) (*model.Lesson, error) {
	lesson, err := tx.Lessons.GetByIDForUpdate(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	if lesson == nil {
		return nil, ErrLessonNotFound
	}
	return lesson, nil
}

func (s *BookingService) lockTrial(ctx context.Context, tx *repository.Repository, classCode string) (*model.Lesson, error) {
	lesson, err := tx.Lessons.GetByClassCodeForUpdate(ctx, classCode)
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	if lesson == nil {
		return nil, ErrLessonNotFound
	}
	if !lesson.IsFreeTrial {
		return nil, ErrNotFreeTrial
	}
	return lesson, nil
}

func (s *BookingService) checkGrid(at time.Time) error {
	if at.IsZero() {
		return fmt.Errorf("%w: date time is required", ErrInvalidRequest)
	}
	local := at.In(s.rules.Location)
	if !s.rules.onGrid(local.Hour(), local.Minute()) || local.Second() != 0 || local.Nanosecond() != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSlot, at.Format(time.RFC3339))
	}
	return nil
}

// IsConflict reports whether err is a booking race or uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrDoubleBooking) || errors.Is(err, ErrAlreadyRebooked)
}

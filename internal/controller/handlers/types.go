package handlers

import (
	"context"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/service"
	"go.uber.org/zap"
)

// AvailabilityResolver отдаёт свободное время преподавателя
type AvailabilityResolver interface {
	ResolveForInstructor(ctx context.Context, instructorID int64, rangeStart, rangeEnd time.Time, timezone string) ([]time.Time, error)
}

// LessonManager меняет статусы занятий
type LessonManager interface {
	CancelByCustomer(ctx context.Context, lessonID int64) (*model.Lesson, error)
	CancelByInstructor(ctx context.Context, lessonID int64) (*model.Lesson, error)
	CompleteOccurrence(ctx context.Context, lessonID int64, finalAttendance []int64) (*model.Lesson, error)
	ListInstructorOccurrences(ctx context.Context, instructorID int64, from, to time.Time) ([]*model.Lesson, error)
}

// ScheduleManager ведёт недельные шаблоны и отсутствия преподавателей
type ScheduleManager interface {
	ChangeWeeklySchedule(ctx context.Context, instructorID int64, effectiveFrom time.Time, timezone string, slots []model.WeeklySlot) (*model.ScheduleVersion, error)
	AddAbsence(ctx context.Context, instructorID int64, at time.Time) (*model.Absence, []*model.Lesson, error)
	RemoveAbsence(ctx context.Context, instructorID int64, at time.Time) error
}

// CalendarManager размечает дни календаря
type CalendarManager interface {
	CreateEventType(ctx context.Context, req service.CreateEventTypeRequest) (*model.EventType, error)
	ListEventTypes(ctx context.Context) ([]*model.EventType, error)
	SetDay(ctx context.Context, date time.Time, eventTypeID int64) (*model.CalendarDay, error)
	ClearDay(ctx context.Context, date time.Time) error
}

// CommitmentManager ведёт регулярные занятия подписок
type CommitmentManager interface {
	Create(ctx context.Context, req service.CreateCommitmentRequest) (*model.RecurringCommitment, error)
	End(ctx context.Context, commitmentID int64, endAt time.Time) error
}

// OccurrenceGenerator создаёт занятия регулярных записей за месяц
type OccurrenceGenerator interface {
	GenerateOccurrences(ctx context.Context, ym service.YearMonth) (*service.GenerationResult, error)
}

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	availability AvailabilityResolver
	lessons      LessonManager
	schedules    ScheduleManager
	calendar     CalendarManager
	commitments  CommitmentManager
	generator    OccurrenceGenerator
	admins       map[int64]struct{}
	location     *time.Location
	now          service.Clock
	logger       *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	availability AvailabilityResolver,
	lessons LessonManager,
	schedules ScheduleManager,
	calendar CalendarManager,
	commitments CommitmentManager,
	generator OccurrenceGenerator,
	adminIDs []int64,
	location *time.Location,
	now service.Clock,
	logger *zap.Logger,
) *Handlers {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}

	return &Handlers{
		availability: availability,
		lessons:      lessons,
		schedules:    schedules,
		calendar:     calendar,
		commitments:  commitments,
		generator:    generator,
		admins:       admins,
		location:     location,
		now:          now,
		logger:       logger,
	}
}

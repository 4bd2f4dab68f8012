package repository

import (
	"context"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Имена ограничений, на которые опирается сервисный слой
const (
	ConstraintInstructorSlot  = "lessons_instructor_slot_uniq"
	ConstraintCustomerSlot    = "lessons_customer_slot_uniq"
	ConstraintClassCode       = "lessons_class_code_key"
	ConstraintRebookedFrom    = "lessons_rebooked_from_key"
	ConstraintVersionOverlap  = "schedule_versions_no_overlap"
	ConstraintOpenVersion     = "schedule_versions_open_uniq"
	ConstraintAbsenceInstant  = "absences_instructor_at_key"
	ConstraintVersionSlotPKey = "schedule_slots_pkey"
)

type ScheduleRepository interface {
	Create(ctx context.Context, version *model.ScheduleVersion) error
	GetByID(ctx context.Context, id int64) (*model.ScheduleVersion, error)
	GetCurrentForUpdate(ctx context.Context, instructorID int64) (*model.ScheduleVersion, error)
	ListByInstructor(ctx context.Context, instructorID int64) ([]*model.ScheduleVersion, error)
	// ListOverlapping returns versions intersecting [from, to); nil instructorIDs means all.
	ListOverlapping(ctx context.Context, instructorIDs []int64, from, to time.Time) ([]*model.ScheduleVersion, error)
	Close(ctx context.Context, id int64, effectiveTo time.Time) error
	Delete(ctx context.Context, id int64) error
}

type AbsenceRepository interface {
	Create(ctx context.Context, absence *model.Absence) error
	Delete(ctx context.Context, instructorID int64, at time.Time) (bool, error)
	ListBetween(ctx context.Context, instructorIDs []int64, from, to time.Time) ([]*model.Absence, error)
}

type CalendarRepository interface {
	CreateEventType(ctx context.Context, eventType *model.EventType) error
	GetEventType(ctx context.Context, id int64) (*model.EventType, error)
	ListEventTypes(ctx context.Context) ([]*model.EventType, error)
	UpsertDay(ctx context.Context, day *model.CalendarDay) error
	DeleteDay(ctx context.Context, date time.Time) (bool, error)
	// ListDays returns tagged days in [from, to) with their event types loaded.
	ListDays(ctx context.Context, from, to time.Time) ([]*model.CalendarDay, error)
}

type CommitmentRepository interface {
	Create(ctx context.Context, commitment *model.RecurringCommitment) error
	GetByID(ctx context.Context, id int64) (*model.RecurringCommitment, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.RecurringCommitment, error)
	ListBySubscription(ctx context.Context, subscriptionID int64) ([]*model.RecurringCommitment, error)
	// ListOverlapping returns commitments active at some instant of [from, to).
	ListOverlapping(ctx context.Context, from, to time.Time) ([]*model.RecurringCommitment, error)
	End(ctx context.Context, id int64, endAt time.Time) error
	ReplaceChildren(ctx context.Context, id int64, childIDs []int64) error
}

type LessonRepository interface {
	Create(ctx context.Context, lesson *model.Lesson) error
	GetByID(ctx context.Context, id int64) (*model.Lesson, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Lesson, error)
	GetByClassCodeForUpdate(ctx context.Context, classCode string) (*model.Lesson, error)
	ExistsByClassCode(ctx context.Context, classCode string) (bool, error)
	ExistsByRebookedFrom(ctx context.Context, lessonID int64) (bool, error)
	// ListBookedBetween returns booked lessons in [from, to); nil instructorIDs means all.
	ListBookedBetween(ctx context.Context, instructorIDs []int64, from, to time.Time) ([]*model.Lesson, error)
	CountBookedForSubscription(ctx context.Context, subscriptionID int64, from, to time.Time) (int, error)
	// CountForInstructor counts lessons of any status in [from, to); nil to means unbounded.
	CountForInstructor(ctx context.Context, instructorID int64, from time.Time, to *time.Time) (int, error)
	ListByCustomer(ctx context.Context, customerID int64, from, to time.Time) ([]*model.Lesson, error)
	ListByInstructor(ctx context.Context, instructorID int64, from, to time.Time) ([]*model.Lesson, error)
	UpdateState(ctx context.Context, lesson *model.Lesson) error
	ReplaceChildren(ctx context.Context, lessonID int64, childIDs []int64) error
}

type SubscriptionRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Subscription, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Subscription, error)
	// ActiveForCustomer returns the subscription active on the civil date, nil if none.
	ActiveForCustomer(ctx context.Context, customerID int64, date time.Time) (*model.Subscription, error)
}

// Transactor runs fn with repositories bound to one transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(repo *Repository) error) error
}

// Repository агрегирует все репозитории движка
type Repository struct {
	Schedules     ScheduleRepository
	Absences      AbsenceRepository
	Calendar      CalendarRepository
	Commitments   CommitmentRepository
	Lessons       LessonRepository
	Subscriptions SubscriptionRepository

	Tx Transactor
}

// NewRepository создаёт агрегат поверх пула соединений
func NewRepository(pool *pgxpool.Pool) *Repository {
	repo := bind(pool)
	repo.Tx = &pgTransactor{pool: pool}
	return repo
}

func bind(db base.DBTX) *Repository {
	return &Repository{
		Schedules:     NewScheduleRepository(db),
		Absences:      NewAbsenceRepository(db),
		Calendar:      NewCalendarRepository(db),
		Commitments:   NewCommitmentRepository(db),
		Lessons:       NewLessonRepository(db),
		Subscriptions: NewSubscriptionRepository(db),
	}
}

// InTx выполняет fn в транзакции. Без Transactor (внутри транзакции или в тестах) fn
// вызывается с текущим агрегатом.
func (r *Repository) InTx(ctx context.Context, fn func(repo *Repository) error) error {
	if r.Tx == nil {
		return fn(r)
	}
	return r.Tx.InTx(ctx, fn)
}

type pgTransactor struct {
	pool *pgxpool.Pool
}

func (t *pgTransactor) InTx(ctx context.Context, fn func(repo *Repository) error) error {
	return pgx.BeginTxFunc(ctx, t.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(bind(tx))
	})
}

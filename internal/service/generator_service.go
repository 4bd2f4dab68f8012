package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// YearMonth identifies a calendar month in the business location.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month containing t in loc.
func MonthOf(t time.Time, loc *time.Location) YearMonth {
	local := t.In(loc)
	return YearMonth{Year: local.Year(), Month: local.Month()}
}

// Next returns the following month.
func (ym YearMonth) Next() YearMonth {
	t := time.Date(ym.Year, ym.Month+1, 1, 0, 0, 0, 0, time.UTC)
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// GenerationFailure is one occurrence that could not be created.
type GenerationFailure struct {
	CommitmentID int64
	DateTime     time.Time
	Err          error
}

// GenerationResult reports one generator run. Failures do not abort the run.
type GenerationResult struct {
	RunID    uuid.UUID
	Month    YearMonth
	Created  int
	Credited int // занятия в переносимые праздники, сразу отменённые с окном переноса
	Skipped  int
	Failures []GenerationFailure
}

// Err aggregates all failures, nil when the run was clean.
func (r *GenerationResult) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, fmt.Errorf("commitment %d at %s: %w",
			f.CommitmentID, f.DateTime.Format(time.RFC3339), f.Err))
	}
	return err
}

// GeneratorService projects recurring commitments into dated lessons.
type GeneratorService struct {
	repo   *repository.Repository
	rules  Rules
	now    Clock
	logger *zap.Logger
}

func NewGeneratorService(repo *repository.Repository, rules Rules, now Clock, logger *zap.Logger) *GeneratorService {
	return &GeneratorService{
		repo:   repo,
		rules:  rules,
		now:    now,
		logger: logger,
	}
}

// GenerateOccurrences создаёт занятия месяца по регулярным занятиям.
// Повторный запуск не создаёт дублей: ключ идемпотентности class_code.
func (s *GeneratorService) GenerateOccurrences(ctx context.Context, ym YearMonth) (*GenerationResult, error) {
	if ym.Month < time.January || ym.Month > time.December {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMonth, ym)
	}

	result := &GenerationResult{RunID: uuid.New(), Month: ym}
	loc := s.rules.Location

	monthStart := time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, loc)
	monthEnd := monthStart.AddDate(0, 1, 0)
	firstDay := time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstDay.AddDate(0, 1, 0)

	commitments, err := s.repo.Commitments.ListOverlapping(ctx, monthStart.UTC(), monthEnd.UTC())
	if err != nil {
		return nil, fmt.Errorf("list commitments: %w", err)
	}

	days, err := s.repo.Calendar.ListDays(ctx, firstDay, lastDay)
	if err != nil {
		return nil, fmt.Errorf("list calendar days: %w", err)
	}
	kinds := make(map[time.Time]model.EventKind, len(days))
	for _, d := range days {
		kinds[d.Date] = d.Kind()
	}

	s.logger.Info("Starting occurrence generation",
		zap.String("run_id", result.RunID.String()),
		zap.String("month", ym.String()),
		zap.Int("commitments", len(commitments)),
	)

	subscriptions := make(map[int64]*model.Subscription)

	for _, c := range commitments {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		sub, ok := subscriptions[c.SubscriptionID]
		if !ok {
			sub, err = s.repo.Subscriptions.GetByID(ctx, c.SubscriptionID)
			if err != nil {
				result.Failures = append(result.Failures, GenerationFailure{CommitmentID: c.ID, Err: err})
				continue
			}
			subscriptions[c.SubscriptionID] = sub
		}
		if sub == nil {
			result.Failures = append(result.Failures, GenerationFailure{CommitmentID: c.ID, Err: ErrSubscriptionNotFound})
			continue
		}

		s.generateForCommitment(ctx, c, sub, firstDay, lastDay, kinds, result)
	}

	s.logger.Info("Occurrence generation completed",
		zap.String("run_id", result.RunID.String()),
		zap.String("month", ym.String()),
		zap.Int("created", result.Created),
		zap.Int("credited", result.Credited),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Failures)),
	)

	return result, nil
}

// generateForCommitment создаёт занятия одного регулярного занятия; каждое в своей транзакции
func (s *GeneratorService) generateForCommitment(
	ctx context.Context,
	c *model.RecurringCommitment,
	sub *model.Subscription,
	firstDay, lastDay time.Time,
	kinds map[time.Time]model.EventKind,
	result *GenerationResult,
) {
	loc := s.rules.Location
	weekday := c.Weekday(loc)

	for d := firstDay; d.Before(lastDay); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != weekday {
			continue
		}

		at := c.OccurrenceOn(d, loc)
		if !c.ActiveAt(at) {
			continue
		}

		if !sub.ActiveOn(d) || kinds[d] == model.EventKindHoliday {
			result.Skipped++
			continue
		}

		classCode := fmt.Sprintf("RC%d-W%d", c.ID, c.WeekIndex(d, loc))

		exists, err := s.repo.Lessons.ExistsByClassCode(ctx, classCode)
		if err != nil {
			result.Failures = append(result.Failures, GenerationFailure{CommitmentID: c.ID, DateTime: at, Err: err})
			continue
		}
		if exists {
			result.Skipped++
			continue
		}

		lesson := &model.Lesson{
			InstructorID:          int64Ptr(c.InstructorID),
			CustomerID:            sub.CustomerID,
			DateTime:              timePtr(at),
			Status:                model.LessonStatusBooked,
			SubscriptionID:        int64Ptr(sub.ID),
			RecurringCommitmentID: int64Ptr(c.ID),
			ClassCode:             classCode,
			ChildIDs:              append([]int64(nil), c.ChildIDs...),
		}

		credited := kinds[d] == model.EventKindRebookableHoliday
		if credited {
			lesson.Status = model.LessonStatusCanceledByInstructor
			// окно считается от самого праздника, а не от момента генерации
			from := s.now()
			if at.After(from) {
				from = at
			}
			lesson.RebookableUntil = timePtr(from.Add(s.rules.InstructorRebookWindow))
		}

		err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
			if err := tx.Lessons.Create(ctx, lesson); err != nil {
				return lessonConflict(err)
			}
			return nil
		})
		switch {
		case err == nil && credited:
			result.Credited++
		case err == nil:
			result.Created++
		case errors.Is(err, ErrDuplicateClassCode):
			// параллельный запуск уже создал это занятие
			result.Skipped++
		default:
			s.logger.Warn("Failed to generate lesson",
				zap.Int64("commitment_id", c.ID),
				zap.Time("date_time", at),
				zap.Error(err),
			)
			result.Failures = append(result.Failures, GenerationFailure{CommitmentID: c.ID, DateTime: at, Err: err})
		}
	}
}

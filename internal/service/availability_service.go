package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AvailabilityQuery asks for open slots on the civil dates [RangeStart, RangeEnd).
type AvailabilityQuery struct {
	InstructorIDs []int64 // пусто = все преподаватели
	RangeStart    time.Time
	RangeEnd      time.Time
	Timezone      string // зона, в которой заданы даты; пусто = бизнес-зона
}

// AvailableSlot is one bookable instant and the instructors free at it.
type AvailableSlot struct {
	DateTime      time.Time `json:"date_time"`
	InstructorIDs []int64   `json:"instructor_ids"`
}

// AvailabilityService combines templates, absences, holidays and bookings.
// Results are advisory: booking re-checks inside its own transaction.
type AvailabilityService struct {
	repo   *repository.Repository
	rules  Rules
	now    Clock
	logger *zap.Logger
}

func NewAvailabilityService(repo *repository.Repository, rules Rules, now Clock, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		repo:   repo,
		rules:  rules,
		now:    now,
		logger: logger,
	}
}

// Resolve возвращает свободные слоты всех запрошенных преподавателей
func (s *AvailabilityService) Resolve(ctx context.Context, q AvailabilityQuery) ([]AvailableSlot, error) {
	return s.resolve(ctx, s.repo, q, true)
}

// ResolveForInstructor возвращает свободное время одного преподавателя
func (s *AvailabilityService) ResolveForInstructor(ctx context.Context, instructorID int64, rangeStart, rangeEnd time.Time, timezone string) ([]time.Time, error) {
	if instructorID <= 0 {
		return nil, fmt.Errorf("%w: instructor id must be positive", ErrInvalidRequest)
	}

	slots, err := s.resolve(ctx, s.repo, AvailabilityQuery{
		InstructorIDs: []int64{instructorID},
		RangeStart:    rangeStart,
		RangeEnd:      rangeEnd,
		Timezone:      timezone,
	}, true)
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, 0, len(slots))
	for _, slot := range slots {
		times = append(times, slot.DateTime)
	}
	return times, nil
}

// IsAvailable проверяет один слот преподавателя
func (s *AvailabilityService) IsAvailable(ctx context.Context, instructorID int64, at time.Time) (bool, error) {
	return s.isAvailable(ctx, s.repo, instructorID, at)
}

// isAvailable выполняет проверку через переданный агрегат (обычно транзакционный)
func (s *AvailabilityService) isAvailable(ctx context.Context, repo *repository.Repository, instructorID int64, at time.Time) (bool, error) {
	at = at.UTC()
	day := model.DateOf(at)

	slots, err := s.resolve(ctx, repo, AvailabilityQuery{
		InstructorIDs: []int64{instructorID},
		RangeStart:    day,
		RangeEnd:      day.AddDate(0, 0, 1),
		Timezone:      "UTC",
	}, false)
	if err != nil {
		return false, err
	}

	for _, slot := range slots {
		if slot.DateTime.Equal(at) {
			return true, nil
		}
	}
	return false, nil
}

// sources: всё, что нужно для расчёта доступности на интервал
type sources struct {
	versions []*model.ScheduleVersion
	absences []*model.Absence
	booked   []*model.Lesson
	days     []*model.CalendarDay
}

func (s *AvailabilityService) resolve(ctx context.Context, repo *repository.Repository, q AvailabilityQuery, parallel bool) ([]AvailableSlot, error) {
	rangeStart := model.DateOf(q.RangeStart)
	rangeEnd := model.DateOf(q.RangeEnd)
	if !rangeStart.Before(rangeEnd) {
		return nil, ErrInvalidDateRange
	}

	reqLoc := s.rules.Location
	if q.Timezone != "" {
		loc, err := time.LoadLocation(q.Timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, q.Timezone)
		}
		reqLoc = loc
	}

	var instructorIDs []int64
	if len(q.InstructorIDs) > 0 {
		instructorIDs = q.InstructorIDs
	}

	// День запаса с каждой стороны: смещения зон не должны терять слоты на краях
	padStart := rangeStart.AddDate(0, 0, -1)
	padEnd := rangeEnd.AddDate(0, 0, 1)
	windowStart := padStart.AddDate(0, 0, -1)
	windowEnd := padEnd.AddDate(0, 0, 1)

	src, err := s.load(ctx, repo, instructorIDs, padStart, padEnd, windowStart, windowEnd, parallel)
	if err != nil {
		return nil, err
	}

	absent := make(map[int64]map[int64]bool)
	for _, a := range src.absences {
		markInstant(absent, a.InstructorID, a.AbsentAt)
	}
	taken := make(map[int64]map[int64]bool)
	for _, l := range src.booked {
		if instructorID, at, ok := l.Scheduled(); ok && l.OccupiesSlot() {
			markInstant(taken, instructorID, at)
		}
	}
	blocked := make(map[time.Time]bool)
	for _, d := range src.days {
		if d.Kind().BlocksClasses() {
			blocked[d.Date] = true
		}
	}

	cutoff := s.now().Add(s.rules.MinBookingLead)
	locations := make(map[string]*time.Location)
	open := make(map[time.Time][]int64)

	for _, v := range src.versions {
		loc, ok := locations[v.Timezone]
		if !ok {
			loc, err = time.LoadLocation(v.Timezone)
			if err != nil {
				return nil, fmt.Errorf("schedule version %d: load timezone %q: %w", v.ID, v.Timezone, err)
			}
			locations[v.Timezone] = loc
		}

		for d := padStart; d.Before(padEnd); d = d.AddDate(0, 0, 1) {
			if !v.Contains(d) || blocked[d] {
				continue
			}

			for _, slot := range v.SlotsOn(d.Weekday()) {
				at := slot.At(d, loc)

				local := model.DateOf(at.In(reqLoc))
				if local.Before(rangeStart) || !local.Before(rangeEnd) {
					continue
				}
				if absent[v.InstructorID][at.Unix()] || taken[v.InstructorID][at.Unix()] {
					continue
				}
				if at.Before(cutoff) {
					continue
				}
				open[at] = append(open[at], v.InstructorID)
			}
		}
	}

	result := make([]AvailableSlot, 0, len(open))
	for at, ids := range open {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		result = append(result, AvailableSlot{DateTime: at, InstructorIDs: ids})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DateTime.Before(result[j].DateTime) })

	s.logger.Debug("Availability resolved",
		zap.Time("range_start", rangeStart),
		zap.Time("range_end", rangeEnd),
		zap.Int("versions", len(src.versions)),
		zap.Int("slots", len(result)),
	)

	return result, nil
}

// load читает четыре независимых источника. Внутри транзакции запросы идут
// последовательно: одно соединение pgx не допускает параллельных запросов.
func (s *AvailabilityService) load(ctx context.Context, repo *repository.Repository, instructorIDs []int64, dayFrom, dayTo, from, to time.Time, parallel bool) (*sources, error) {
	var src sources

	g, gctx := errgroup.WithContext(ctx)
	if !parallel {
		g.SetLimit(1)
	}

	g.Go(func() error {
		versions, err := repo.Schedules.ListOverlapping(gctx, instructorIDs, dayFrom, dayTo)
		if err != nil {
			return fmt.Errorf("list schedule versions: %w", err)
		}
		src.versions = versions
		return nil
	})
	g.Go(func() error {
		absences, err := repo.Absences.ListBetween(gctx, instructorIDs, from, to)
		if err != nil {
			return fmt.Errorf("list absences: %w", err)
		}
		src.absences = absences
		return nil
	})
	g.Go(func() error {
		booked, err := repo.Lessons.ListBookedBetween(gctx, instructorIDs, from, to)
		if err != nil {
			return fmt.Errorf("list booked lessons: %w", err)
		}
		src.booked = booked
		return nil
	})
	g.Go(func() error {
		days, err := repo.Calendar.ListDays(gctx, dayFrom, dayTo)
		if err != nil {
			return fmt.Errorf("list calendar days: %w", err)
		}
		src.days = days
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &src, nil
}

func markInstant(set map[int64]map[int64]bool, instructorID int64, at time.Time) {
	if set[instructorID] == nil {
		set[instructorID] = make(map[int64]bool)
	}
	set[instructorID][at.Unix()] = true
}

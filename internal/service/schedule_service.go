package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository"
	"github.com/Freeeeeet/lesson_booking/internal/repository/base"
	"go.uber.org/zap"
)

// CreateVersionRequest describes a schedule version with an explicit range.
type CreateVersionRequest struct {
	InstructorID  int64              `validate:"gt=0"`
	EffectiveFrom time.Time          `validate:"required"`
	EffectiveTo   *time.Time         `validate:"omitempty"`
	Timezone      string             `validate:"required"`
	Slots         []model.WeeklySlot `validate:"dive"`
}

// ScheduleService manages instructors' weekly templates and absences.
type ScheduleService struct {
	repo   *repository.Repository
	rules  Rules
	now    Clock
	logger *zap.Logger
}

func NewScheduleService(repo *repository.Repository, rules Rules, now Clock, logger *zap.Logger) *ScheduleService {
	return &ScheduleService{
		repo:   repo,
		rules:  rules,
		now:    now,
		logger: logger,
	}
}

// CreateVersion создаёт версию расписания с проверкой непересечения диапазонов
func (s *ScheduleService) CreateVersion(ctx context.Context, req CreateVersionRequest) (*model.ScheduleVersion, error) {
	version, err := s.buildVersion(req)
	if err != nil {
		return nil, err
	}

	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		existing, err := tx.Schedules.ListByInstructor(ctx, version.InstructorID)
		if err != nil {
			return fmt.Errorf("list schedule versions: %w", err)
		}

		for _, other := range existing {
			if version.Overlaps(other) {
				return fmt.Errorf("%w: version %d", ErrOverlappingScheduleVersion, other.ID)
			}
		}

		return s.insertVersion(ctx, tx, version)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Schedule version created",
		zap.Int64("version_id", version.ID),
		zap.Int64("instructor_id", version.InstructorID),
		zap.Time("effective_from", version.EffectiveFrom),
		zap.Int("slots", len(version.Slots)),
	)

	return version, nil
}

// ChangeWeeklySchedule закрывает текущую версию датой изменения и открывает новую
func (s *ScheduleService) ChangeWeeklySchedule(ctx context.Context, instructorID int64, effectiveFrom time.Time, timezone string, slots []model.WeeklySlot) (*model.ScheduleVersion, error) {
	version, err := s.buildVersion(CreateVersionRequest{
		InstructorID:  instructorID,
		EffectiveFrom: effectiveFrom,
		Timezone:      timezone,
		Slots:         slots,
	})
	if err != nil {
		return nil, err
	}

	var closedID int64
	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		current, err := tx.Schedules.GetCurrentForUpdate(ctx, instructorID)
		if err != nil {
			return fmt.Errorf("get current version: %w", err)
		}

		existing, err := tx.Schedules.ListByInstructor(ctx, instructorID)
		if err != nil {
			return fmt.Errorf("list schedule versions: %w", err)
		}

		for _, other := range existing {
			if current != nil && other.ID == current.ID {
				continue
			}
			if version.Overlaps(other) {
				return fmt.Errorf("%w: version %d", ErrOverlappingScheduleVersion, other.ID)
			}
		}

		if current != nil {
			// Новая версия должна начинаться строго после начала текущей
			if !current.EffectiveFrom.Before(version.EffectiveFrom) {
				return fmt.Errorf("%w: current version %d starts %s",
					ErrOverlappingScheduleVersion, current.ID, current.EffectiveFrom.Format(time.DateOnly))
			}
			if err := tx.Schedules.Close(ctx, current.ID, version.EffectiveFrom); err != nil {
				return fmt.Errorf("close current version: %w", err)
			}
			closedID = current.ID
		}

		return s.insertVersion(ctx, tx, version)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Weekly schedule changed",
		zap.Int64("instructor_id", instructorID),
		zap.Int64("closed_version_id", closedID),
		zap.Int64("new_version_id", version.ID),
		zap.Time("effective_from", version.EffectiveFrom),
	)

	return version, nil
}

// CloseVersion закрывает открытую версию без открытия новой
func (s *ScheduleService) CloseVersion(ctx context.Context, versionID int64, effectiveTo time.Time) error {
	effectiveTo = model.DateOf(effectiveTo)

	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		version, err := tx.Schedules.GetByID(ctx, versionID)
		if err != nil {
			return fmt.Errorf("get schedule version: %w", err)
		}
		if version == nil {
			return ErrScheduleVersionNotFound
		}
		if !version.IsOpen() {
			return fmt.Errorf("%w: version %d is already closed", ErrInvalidTransition, versionID)
		}
		if !version.EffectiveFrom.Before(effectiveTo) {
			return fmt.Errorf("%w: end must be after %s", ErrInvalidDateRange, version.EffectiveFrom.Format(time.DateOnly))
		}

		return tx.Schedules.Close(ctx, versionID, effectiveTo)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Schedule version closed",
		zap.Int64("version_id", versionID),
		zap.Time("effective_to", effectiveTo),
	)

	return nil
}

// DeleteVersion удаляет версию, если в её диапазоне нет занятий
func (s *ScheduleService) DeleteVersion(ctx context.Context, versionID int64) error {
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		version, err := tx.Schedules.GetByID(ctx, versionID)
		if err != nil {
			return fmt.Errorf("get schedule version: %w", err)
		}
		if version == nil {
			return ErrScheduleVersionNotFound
		}

		// Границы диапазона считаем с запасом в сутки: зона версии может сдвигать время
		from := version.EffectiveFrom.AddDate(0, 0, -1)
		var to *time.Time
		if version.EffectiveTo != nil {
			to = timePtr(version.EffectiveTo.AddDate(0, 0, 1))
		}

		count, err := tx.Lessons.CountForInstructor(ctx, version.InstructorID, from, to)
		if err != nil {
			return fmt.Errorf("count lessons: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %d lessons", ErrScheduleVersionInUse, count)
		}

		return tx.Schedules.Delete(ctx, versionID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Schedule version deleted", zap.Int64("version_id", versionID))
	return nil
}

// GetVersion получает версию по ID
func (s *ScheduleService) GetVersion(ctx context.Context, versionID int64) (*model.ScheduleVersion, error) {
	version, err := s.repo.Schedules.GetByID(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("get schedule version: %w", err)
	}
	if version == nil {
		return nil, ErrScheduleVersionNotFound
	}
	return version, nil
}

// ListVersions возвращает все версии преподавателя
func (s *ScheduleService) ListVersions(ctx context.Context, instructorID int64) ([]*model.ScheduleVersion, error) {
	return s.repo.Schedules.ListByInstructor(ctx, instructorID)
}

// CurrentVersion возвращает версию, действующую сегодня (в бизнес-зоне)
func (s *ScheduleService) CurrentVersion(ctx context.Context, instructorID int64) (*model.ScheduleVersion, error) {
	versions, err := s.repo.Schedules.ListByInstructor(ctx, instructorID)
	if err != nil {
		return nil, fmt.Errorf("list schedule versions: %w", err)
	}

	today := model.DateOf(s.now().In(s.rules.Location))
	for _, v := range versions {
		if v.Contains(today) {
			return v, nil
		}
	}
	return nil, ErrScheduleVersionNotFound
}

// AddAbsence регистрирует отсутствие. Уже записанные занятия не отменяются
// автоматически: возвращаются пересекающиеся занятия, решение за вызывающим.
func (s *ScheduleService) AddAbsence(ctx context.Context, instructorID int64, at time.Time) (*model.Absence, []*model.Lesson, error) {
	if instructorID <= 0 || at.IsZero() {
		return nil, nil, fmt.Errorf("%w: instructor and time are required", ErrInvalidRequest)
	}

	absence := &model.Absence{InstructorID: instructorID, AbsentAt: at.UTC()}
	var affected []*model.Lesson

	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		if err := tx.Absences.Create(ctx, absence); err != nil {
			if errors.Is(err, base.ErrConflict) {
				return fmt.Errorf("%w: %v", ErrAbsenceExists, err)
			}
			return fmt.Errorf("create absence: %w", err)
		}

		lessons, err := tx.Lessons.ListBookedBetween(ctx, []int64{instructorID}, absence.AbsentAt, absence.AbsentAt.Add(time.Second))
		if err != nil {
			return fmt.Errorf("list colliding lessons: %w", err)
		}
		affected = lessons
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Absence added",
		zap.Int64("instructor_id", instructorID),
		zap.Time("absent_at", absence.AbsentAt),
		zap.Int("colliding_lessons", len(affected)),
	)

	return absence, affected, nil
}

// RemoveAbsence снимает отсутствие
func (s *ScheduleService) RemoveAbsence(ctx context.Context, instructorID int64, at time.Time) error {
	deleted, err := s.repo.Absences.Delete(ctx, instructorID, at.UTC())
	if err != nil {
		return fmt.Errorf("delete absence: %w", err)
	}
	if !deleted {
		return ErrAbsenceNotFound
	}

	s.logger.Info("Absence removed",
		zap.Int64("instructor_id", instructorID),
		zap.Time("absent_at", at.UTC()),
	)
	return nil
}

// ListAbsences возвращает отсутствия преподавателя в интервале [from, to)
func (s *ScheduleService) ListAbsences(ctx context.Context, instructorID int64, from, to time.Time) ([]*model.Absence, error) {
	if !from.Before(to) {
		return nil, ErrInvalidDateRange
	}
	return s.repo.Absences.ListBetween(ctx, []int64{instructorID}, from, to)
}

// buildVersion валидирует запрос до обращения к хранилищу
func (s *ScheduleService) buildVersion(req CreateVersionRequest) (*model.ScheduleVersion, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if _, err := time.LoadLocation(req.Timezone); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, req.Timezone)
	}

	version := &model.ScheduleVersion{
		InstructorID:  req.InstructorID,
		EffectiveFrom: model.DateOf(req.EffectiveFrom),
		Timezone:      req.Timezone,
	}
	if req.EffectiveTo != nil {
		to := model.DateOf(*req.EffectiveTo)
		if !version.EffectiveFrom.Before(to) {
			return nil, ErrInvalidDateRange
		}
		version.EffectiveTo = &to
	}

	seen := make(map[model.WeeklySlot]bool, len(req.Slots))
	for _, slot := range req.Slots {
		if !s.rules.onGrid(slot.StartHour, slot.StartMinute) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSlot, slot)
		}
		if seen[slot] {
			return nil, fmt.Errorf("%w: duplicate %s", ErrInvalidSlot, slot)
		}
		seen[slot] = true
		version.Slots = append(version.Slots, slot)
	}

	sort.Slice(version.Slots, func(i, j int) bool {
		a, b := version.Slots[i], version.Slots[j]
		if a.Weekday != b.Weekday {
			return a.Weekday < b.Weekday
		}
		return a.StartHour*60+a.StartMinute < b.StartHour*60+b.StartMinute
	})

	return version, nil
}

func (s *ScheduleService) insertVersion(ctx context.Context, tx *repository.Repository, version *model.ScheduleVersion) error {
	if err := tx.Schedules.Create(ctx, version); err != nil {
		if errors.Is(err, base.ErrConflict) {
			return fmt.Errorf("%w: %v", ErrOverlappingScheduleVersion, err)
		}
		return fmt.Errorf("create schedule version: %w", err)
	}
	return nil
}

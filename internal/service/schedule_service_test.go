package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleService_CreateVersion_RejectsOverlap(t *testing.T) {
	env := newTestEnv(t, instant("2025-01-01T00:00:00Z"))
	ctx := context.Background()

	to := date("2025-03-01")
	_, err := env.schedules.CreateVersion(ctx, CreateVersionRequest{
		InstructorID:  1,
		EffectiveFrom: date("2025-01-01"),
		EffectiveTo:   &to,
		Timezone:      "UTC",
		Slots:         []model.WeeklySlot{slot(time.Monday, 10, 0)},
	})
	require.NoError(t, err)

	overlapTo := date("2025-04-01")
	_, err = env.schedules.CreateVersion(ctx, CreateVersionRequest{
		InstructorID:  1,
		EffectiveFrom: date("2025-02-15"),
		EffectiveTo:   &overlapTo,
		Timezone:      "UTC",
	})
	assert.True(t, errors.Is(err, ErrOverlappingScheduleVersion))

	// Диапазоны полуоткрытые: начало в день окончания предыдущей допустимо
	_, err = env.schedules.CreateVersion(ctx, CreateVersionRequest{
		InstructorID:  1,
		EffectiveFrom: date("2025-03-01"),
		Timezone:      "UTC",
	})
	require.NoError(t, err)

	// Другой преподаватель не мешает
	_, err = env.schedules.CreateVersion(ctx, CreateVersionRequest{
		InstructorID:  2,
		EffectiveFrom: date("2025-01-01"),
		Timezone:      "UTC",
	})
	require.NoError(t, err)
}

func TestScheduleService_SingleOpenVersion(t *testing.T) {
	env := newTestEnv(t, instant("2025-01-01T00:00:00Z"))
	ctx := context.Background()

	env.openSchedule(t, 1, "2025-01-01", "UTC", slot(time.Monday, 10, 0))

	_, err := env.schedules.CreateVersion(ctx, CreateVersionRequest{
		InstructorID:  1,
		EffectiveFrom: date("2025-06-01"),
		Timezone:      "UTC",
	})
	assert.True(t, errors.Is(err, ErrOverlappingScheduleVersion))

	versions, err := env.schedules.ListVersions(ctx, 1)
	require.NoError(t, err)
	open := 0
	for _, v := range versions {
		if v.IsOpen() {
			open++
		}
	}
	assert.Equal(t, 1, open)
}

func TestScheduleService_ChangeWeeklySchedule(t *testing.T) {
	env := newTestEnv(t, instant("2025-05-10T00:00:00Z"))
	ctx := context.Background()

	first := env.openSchedule(t, 1, "2025-01-01", "UTC", slot(time.Monday, 10, 0))

	second, err := env.schedules.ChangeWeeklySchedule(ctx, 1, date("2025-05-01"), "UTC",
		[]model.WeeklySlot{slot(time.Tuesday, 11, 0)})
	require.NoError(t, err)

	closed, err := env.schedules.GetVersion(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.EffectiveTo)
	assert.Equal(t, date("2025-05-01"), *closed.EffectiveTo)
	assert.True(t, second.IsOpen())

	current, err := env.schedules.CurrentVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	_, err = env.schedules.ChangeWeeklySchedule(ctx, 1, date("2025-05-01"), "UTC", nil)
	assert.True(t, errors.Is(err, ErrOverlappingScheduleVersion))
}

func TestScheduleService_ChangeWeeklySchedule_WithoutCurrent(t *testing.T) {
	env := newTestEnv(t, instant("2025-01-01T00:00:00Z"))

	v, err := env.schedules.ChangeWeeklySchedule(context.Background(), 4, date("2025-02-01"), "Asia/Tokyo",
		[]model.WeeklySlot{slot(time.Friday, 18, 30)})
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", v.Timezone)
}

func TestScheduleService_CloseVersion(t *testing.T) {
	env := newTestEnv(t, instant("2025-01-01T00:00:00Z"))
	ctx := context.Background()

	v := env.openSchedule(t, 1, "2025-01-01", "UTC")

	err := env.schedules.CloseVersion(ctx, v.ID, date("2025-01-01"))
	assert.True(t, errors.Is(err, ErrInvalidDateRange))

	require.NoError(t, env.schedules.CloseVersion(ctx, v.ID, date("2025-02-01")))

	err = env.schedules.CloseVersion(ctx, v.ID, date("2025-03-01"))
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	err = env.schedules.CloseVersion(ctx, 999, date("2025-03-01"))
	assert.True(t, errors.Is(err, ErrScheduleVersionNotFound))
}

func TestScheduleService_DeleteVersion(t *testing.T) {
	env := newTestEnv(t, instant("2025-01-01T00:00:00Z"))
	ctx := context.Background()

	to := date("2025-02-01")
	used, err := env.schedules.CreateVersion(ctx, CreateVersionRequest{
		InstructorID:  1,
		EffectiveFrom: date("2025-01-01"),
		EffectiveTo:   &to,
		Timezone:      "UTC",
		Slots:         []model.WeeklySlot{slot(time.Monday, 10, 0)},
	})
	require.NoError(t, err)
	unused := env.openSchedule(t, 1, "2025-03-01", "UTC")

	env.bookedLesson(1, 100, "2025-01-13T10:00:00Z")

	err = env.schedules.DeleteVersion(ctx, used.ID)
	assert.True(t, errors.Is(err, ErrScheduleVersionInUse))

	require.NoError(t, env.schedules.DeleteVersion(ctx, unused.ID))
	_, err = env.schedules.GetVersion(ctx, unused.ID)
	assert.True(t, errors.Is(err, ErrScheduleVersionNotFound))
}

func TestScheduleService_ValidatesSlots(t *testing.T) {
	env := newTestEnv(t, instant("2025-01-01T00:00:00Z"))
	ctx := context.Background()

	tests := []struct {
		name  string
		req   CreateVersionRequest
		isErr error
	}{
		{
			name: "off grid",
			req: CreateVersionRequest{InstructorID: 1, EffectiveFrom: date("2025-01-01"), Timezone: "UTC",
				Slots: []model.WeeklySlot{slot(time.Monday, 10, 15)}},
			isErr: ErrInvalidSlot,
		},
		{
			name: "duplicate",
			req: CreateVersionRequest{InstructorID: 1, EffectiveFrom: date("2025-01-01"), Timezone: "UTC",
				Slots: []model.WeeklySlot{slot(time.Monday, 10, 0), slot(time.Monday, 10, 0)}},
			isErr: ErrInvalidSlot,
		},
		{
			name: "weekday out of range",
			req: CreateVersionRequest{InstructorID: 1, EffectiveFrom: date("2025-01-01"), Timezone: "UTC",
				Slots: []model.WeeklySlot{{Weekday: 7, StartHour: 10}}},
			isErr: ErrInvalidRequest,
		},
		{
			name:  "unknown timezone",
			req:   CreateVersionRequest{InstructorID: 1, EffectiveFrom: date("2025-01-01"), Timezone: "Nowhere/City"},
			isErr: ErrInvalidTimezone,
		},
		{
			name:  "missing instructor",
			req:   CreateVersionRequest{EffectiveFrom: date("2025-01-01"), Timezone: "UTC"},
			isErr: ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.schedules.CreateVersion(ctx, tt.req)
			assert.True(t, errors.Is(err, tt.isErr), "got %v", err)
		})
	}
}

func TestScheduleService_Absences(t *testing.T) {
	env := newTestEnv(t, instant("2025-02-01T00:00:00Z"))
	ctx := context.Background()

	collided := env.bookedLesson(7, 100, "2025-02-14T10:00:00Z")

	absence, affected, err := env.schedules.AddAbsence(ctx, 7, instant("2025-02-14T10:00:00Z"))
	require.NoError(t, err)
	assert.NotZero(t, absence.ID)
	require.Len(t, affected, 1)
	assert.Equal(t, collided.ID, affected[0].ID)

	// Запись не отменяется автоматически
	assert.Equal(t, model.LessonStatusBooked, env.store.lesson(collided.ID).Status)

	_, _, err = env.schedules.AddAbsence(ctx, 7, instant("2025-02-14T10:00:00Z"))
	assert.True(t, errors.Is(err, ErrAbsenceExists))

	list, err := env.schedules.ListAbsences(ctx, 7, instant("2025-02-01T00:00:00Z"), instant("2025-03-01T00:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, env.schedules.RemoveAbsence(ctx, 7, instant("2025-02-14T10:00:00Z")))
	err = env.schedules.RemoveAbsence(ctx, 7, instant("2025-02-14T10:00:00Z"))
	assert.True(t, errors.Is(err, ErrAbsenceNotFound))
}

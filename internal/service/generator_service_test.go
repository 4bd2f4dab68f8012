package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mondayCommitment создаёт регулярное занятие по понедельникам в 10:00 UTC начиная с 2025-03-03
func (e *testEnv) mondayCommitment(t *testing.T, sub *model.Subscription, instructorID int64) *model.RecurringCommitment {
	t.Helper()

	c, err := e.commitments.Create(context.Background(), CreateCommitmentRequest{
		SubscriptionID: sub.ID,
		InstructorID:   instructorID,
		StartAt:        instant("2025-03-03T10:00:00Z"),
		ChildIDs:       []int64{11, 12},
	})
	require.NoError(t, err)
	return c
}

func (e *testEnv) generatedLessons(commitmentID int64) []*model.Lesson {
	return e.store.lessonsWhere(func(l *model.Lesson) bool {
		return l.RecurringCommitmentID != nil && *l.RecurringCommitmentID == commitmentID
	})
}

func TestGenerator_CreatesMonthAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t, instant("2025-02-20T00:00:00Z"))
	ctx := context.Background()

	sub := env.subscription(100, 2, "2025-01-01")
	c := env.mondayCommitment(t, sub, 1)

	result, err := env.generator.GenerateOccurrences(ctx, YearMonth{Year: 2025, Month: time.March})
	require.NoError(t, err)
	require.NoError(t, result.Err())
	assert.Equal(t, 5, result.Created)
	assert.Equal(t, 0, result.Skipped)

	lessons := env.generatedLessons(c.ID)
	require.Len(t, lessons, 5)

	codes := make([]string, 0, len(lessons))
	for _, l := range lessons {
		codes = append(codes, l.ClassCode)
		assert.Equal(t, model.LessonStatusBooked, l.Status)
		assert.Equal(t, int64(100), l.CustomerID)
		assert.Equal(t, sub.ID, *l.SubscriptionID)
		assert.Equal(t, []int64{11, 12}, l.ChildIDs)
		assert.Equal(t, time.Monday, l.DateTime.Weekday())
	}
	want := make([]string, 0, 5)
	for week := 0; week < 5; week++ {
		want = append(want, fmt.Sprintf("RC%d-W%d", c.ID, week))
	}
	assert.ElementsMatch(t, want, codes)

	again, err := env.generator.GenerateOccurrences(ctx, YearMonth{Year: 2025, Month: time.March})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 5, again.Skipped)
	assert.NotEqual(t, result.RunID, again.RunID)
	assert.Len(t, env.generatedLessons(c.ID), 5)
}

func TestGenerator_HolidaysAndCredits(t *testing.T) {
	env := newTestEnv(t, instant("2025-02-20T00:00:00Z"))
	ctx := context.Background()

	holiday := env.eventType(t, "Closed", model.EventKindHoliday)
	rebookable := env.eventType(t, "Spring break", model.EventKindRebookableHoliday)
	theme := env.eventType(t, "Art week", model.EventKindThemeWeek)
	_, err := env.calendar.SetDay(ctx, date("2025-03-10"), holiday.ID)
	require.NoError(t, err)
	_, err = env.calendar.SetDay(ctx, date("2025-03-17"), rebookable.ID)
	require.NoError(t, err)
	_, err = env.calendar.SetDay(ctx, date("2025-03-24"), theme.ID)
	require.NoError(t, err)

	sub := env.subscription(100, 2, "2025-01-01")
	c := env.mondayCommitment(t, sub, 1)

	result, err := env.generator.GenerateOccurrences(ctx, YearMonth{Year: 2025, Month: time.March})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 1, result.Credited)
	assert.Equal(t, 1, result.Skipped)

	var credit *model.Lesson
	for _, l := range env.generatedLessons(c.ID) {
		assert.NotEqual(t, instant("2025-03-10T10:00:00Z"), *l.DateTime)
		if l.DateTime.Equal(instant("2025-03-17T10:00:00Z")) {
			credit = l
		}
	}
	require.NotNil(t, credit)
	assert.Equal(t, model.LessonStatusCanceledByInstructor, credit.Status)
	require.NotNil(t, credit.RebookableUntil)
	// Окно отсчитывается от даты праздника, а не от запуска генерации
	assert.Equal(t, instant("2025-03-17T10:00:00Z").Add(180*24*time.Hour), *credit.RebookableUntil)
}

func TestGenerator_RespectsCommitmentAndSubscriptionRanges(t *testing.T) {
	env := newTestEnv(t, instant("2025-02-20T00:00:00Z"))
	ctx := context.Background()

	sub := env.subscription(100, 2, "2025-01-01")
	ended := date("2025-03-20")
	sub.EndDate = &ended
	env.store.addSubscription(sub)

	c := env.mondayCommitment(t, sub, 1)

	other := env.subscription(200, 2, "2025-01-01")
	later := env.mondayCommitment(t, other, 2)
	require.NoError(t, env.commitments.End(ctx, later.ID, instant("2025-03-17T10:00:00Z")))

	result, err := env.generator.GenerateOccurrences(ctx, YearMonth{Year: 2025, Month: time.March})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	// Подписка закончилась 20-го: 24 и 31 пропускаются
	assert.Len(t, env.generatedLessons(c.ID), 3)
	// Регулярное занятие закончилось 17-го в 10:00: [startAt, endAt) не включает 17-е
	assert.Len(t, env.generatedLessons(later.ID), 2)
	assert.Equal(t, 5, result.Created)
	assert.Equal(t, 2, result.Skipped)
}

func TestGenerator_CollectsFailuresAndContinues(t *testing.T) {
	env := newTestEnv(t, instant("2025-02-20T00:00:00Z"))
	ctx := context.Background()

	sub := env.subscription(100, 2, "2025-01-01")
	c := env.mondayCommitment(t, sub, 1)

	// Разовая запись другого клиента уже держит слот преподавателя
	env.bookedLesson(1, 555, "2025-03-24T10:00:00Z")

	result, err := env.generator.GenerateOccurrences(ctx, YearMonth{Year: 2025, Month: time.March})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Created)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, c.ID, result.Failures[0].CommitmentID)
	assert.Equal(t, instant("2025-03-24T10:00:00Z"), result.Failures[0].DateTime)

	require.Error(t, result.Err())
	assert.True(t, errors.Is(result.Err(), ErrSlotUnavailable))
	assert.Len(t, env.generatedLessons(c.ID), 4)
}

func TestGenerator_MissingSubscription(t *testing.T) {
	env := newTestEnv(t, instant("2025-02-20T00:00:00Z"))
	ctx := context.Background()

	sub := env.subscription(100, 2, "2025-01-01")
	env.mondayCommitment(t, sub, 1)

	env.store.mu.Lock()
	delete(env.store.subscriptions, sub.ID)
	env.store.mu.Unlock()

	result, err := env.generator.GenerateOccurrences(ctx, YearMonth{Year: 2025, Month: time.March})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.True(t, errors.Is(result.Err(), ErrSubscriptionNotFound))
}

func TestGenerator_BusinessTimezoneMonth(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	rules := DefaultRules()
	rules.Location = tokyo
	env := newTestEnvWithRules(t, instant("2025-02-20T00:00:00Z"), rules)
	ctx := context.Background()

	sub := env.subscription(100, 2, "2025-01-01")
	// Суббота 08:00 в Токио = пятница 23:00 UTC
	c, err := env.commitments.Create(ctx, CreateCommitmentRequest{
		SubscriptionID: sub.ID,
		InstructorID:   1,
		StartAt:        time.Date(2025, 3, 1, 8, 0, 0, 0, tokyo),
		ChildIDs:       []int64{1},
	})
	require.NoError(t, err)

	result, err := env.generator.GenerateOccurrences(ctx, YearMonth{Year: 2025, Month: time.March})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Created)

	lessons := env.generatedLessons(c.ID)
	require.Len(t, lessons, 5)
	for _, l := range lessons {
		assert.Equal(t, time.Saturday, l.DateTime.In(tokyo).Weekday())
		assert.Equal(t, 8, l.DateTime.In(tokyo).Hour())
	}
}

func TestParseYearMonth(t *testing.T) {
	ym, err := ParseYearMonth("2025-08")
	require.NoError(t, err)
	assert.Equal(t, YearMonth{Year: 2025, Month: time.August}, ym)
	assert.Equal(t, "2025-08", ym.String())
	assert.Equal(t, YearMonth{Year: 2026, Month: time.January}, YearMonth{Year: 2025, Month: time.December}.Next())

	_, err = ParseYearMonth("August")
	assert.True(t, errors.Is(err, ErrInvalidMonth))
}

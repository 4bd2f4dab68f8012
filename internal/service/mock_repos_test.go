package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository"
	"github.com/Freeeeeet/lesson_booking/internal/repository/base"
)

// memStore is shared by all mock repositories so that one Repository sees
// consistent data. It enforces the same uniqueness rules as the SQL schema.
type memStore struct {
	mu     sync.Mutex
	nextID int64

	versions      map[int64]*model.ScheduleVersion
	absences      map[int64]*model.Absence
	eventTypes    map[int64]*model.EventType
	days          map[time.Time]*model.CalendarDay
	commitments   map[int64]*model.RecurringCommitment
	lessons       map[int64]*model.Lesson
	subscriptions map[int64]*model.Subscription

	subscriptionLocks map[int64]int // сколько раз строка подписки блокировалась
}

func newMemStore() *memStore {
	return &memStore{
		versions:      make(map[int64]*model.ScheduleVersion),
		absences:      make(map[int64]*model.Absence),
		eventTypes:    make(map[int64]*model.EventType),
		days:          make(map[time.Time]*model.CalendarDay),
		commitments:   make(map[int64]*model.RecurringCommitment),
		lessons:       make(map[int64]*model.Lesson),
		subscriptions: make(map[int64]*model.Subscription),

		subscriptionLocks: make(map[int64]int),
	}
}

func (m *memStore) repository() *repository.Repository {
	return &repository.Repository{
		Schedules:     &mockScheduleRepo{m},
		Absences:      &mockAbsenceRepo{m},
		Calendar:      &mockCalendarRepo{m},
		Commitments:   &mockCommitmentRepo{m},
		Lessons:       &mockLessonRepo{m},
		Subscriptions: &mockSubscriptionRepo{m},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func violation(constraint string) error {
	return &base.ConstraintError{Constraint: constraint, Err: errors.New("duplicate key value")}
}

func containsID(ids []int64, id int64) bool {
	if ids == nil {
		return true
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// ── seed helpers ──

func (m *memStore) addSubscription(sub *model.Subscription) *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.ID == 0 {
		sub.ID = m.id()
	}
	m.subscriptions[sub.ID] = sub
	return sub
}

func (m *memStore) addLesson(l *model.Lesson) *model.Lesson {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = m.id()
	m.lessons[l.ID] = cloneLesson(l)
	return l
}

func (m *memStore) lesson(id int64) *model.Lesson {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.lessons[id]; ok {
		return cloneLesson(l)
	}
	return nil
}

func (m *memStore) lessonsWhere(pred func(*model.Lesson) bool) []*model.Lesson {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*model.Lesson
	for _, l := range m.lessons {
		if pred(l) {
			res = append(res, cloneLesson(l))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func cloneLesson(l *model.Lesson) *model.Lesson {
	c := *l
	if l.InstructorID != nil {
		c.InstructorID = int64Ptr(*l.InstructorID)
	}
	if l.DateTime != nil {
		c.DateTime = timePtr(*l.DateTime)
	}
	if l.SubscriptionID != nil {
		c.SubscriptionID = int64Ptr(*l.SubscriptionID)
	}
	if l.RecurringCommitmentID != nil {
		c.RecurringCommitmentID = int64Ptr(*l.RecurringCommitmentID)
	}
	if l.RebookedFromID != nil {
		c.RebookedFromID = int64Ptr(*l.RebookedFromID)
	}
	if l.RebookableUntil != nil {
		c.RebookableUntil = timePtr(*l.RebookableUntil)
	}
	c.ChildIDs = append([]int64(nil), l.ChildIDs...)
	return &c
}

func cloneVersion(v *model.ScheduleVersion) *model.ScheduleVersion {
	c := *v
	if v.EffectiveTo != nil {
		c.EffectiveTo = timePtr(*v.EffectiveTo)
	}
	c.Slots = append([]model.WeeklySlot(nil), v.Slots...)
	return &c
}

func cloneCommitment(cm *model.RecurringCommitment) *model.RecurringCommitment {
	c := *cm
	if cm.EndAt != nil {
		c.EndAt = timePtr(*cm.EndAt)
	}
	c.ChildIDs = append([]int64(nil), cm.ChildIDs...)
	return &c
}

// ── Mock ScheduleRepository ──

type mockScheduleRepo struct{ m *memStore }

func (r *mockScheduleRepo) Create(_ context.Context, version *model.ScheduleVersion) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, other := range r.m.versions {
		if other.InstructorID != version.InstructorID {
			continue
		}
		if other.IsOpen() && version.IsOpen() {
			return violation(repository.ConstraintOpenVersion)
		}
		if other.Overlaps(version) {
			return violation(repository.ConstraintVersionOverlap)
		}
	}

	version.ID = r.m.id()
	version.CreatedAt = time.Now()
	r.m.versions[version.ID] = cloneVersion(version)
	return nil
}

func (r *mockScheduleRepo) GetByID(_ context.Context, id int64) (*model.ScheduleVersion, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if v, ok := r.m.versions[id]; ok {
		return cloneVersion(v), nil
	}
	return nil, nil
}

func (r *mockScheduleRepo) GetCurrentForUpdate(_ context.Context, instructorID int64) (*model.ScheduleVersion, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, v := range r.m.versions {
		if v.InstructorID == instructorID && v.IsOpen() {
			return cloneVersion(v), nil
		}
	}
	return nil, nil
}

func (r *mockScheduleRepo) ListByInstructor(_ context.Context, instructorID int64) ([]*model.ScheduleVersion, error) {
	return r.filter(func(v *model.ScheduleVersion) bool { return v.InstructorID == instructorID }), nil
}

func (r *mockScheduleRepo) ListOverlapping(_ context.Context, instructorIDs []int64, from, to time.Time) ([]*model.ScheduleVersion, error) {
	return r.filter(func(v *model.ScheduleVersion) bool {
		return containsID(instructorIDs, v.InstructorID) &&
			model.RangesOverlap(v.EffectiveFrom, v.EffectiveTo, from, &to)
	}), nil
}

func (r *mockScheduleRepo) filter(pred func(*model.ScheduleVersion) bool) []*model.ScheduleVersion {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var res []*model.ScheduleVersion
	for _, v := range r.m.versions {
		if pred(v) {
			res = append(res, cloneVersion(v))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].InstructorID != res[j].InstructorID {
			return res[i].InstructorID < res[j].InstructorID
		}
		return res[i].EffectiveFrom.Before(res[j].EffectiveFrom)
	})
	return res
}

func (r *mockScheduleRepo) Close(_ context.Context, id int64, effectiveTo time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.versions[id]
	if !ok || !v.IsOpen() {
		return errors.New("schedule version not found or already closed")
	}
	v.EffectiveTo = timePtr(effectiveTo)
	return nil
}

func (r *mockScheduleRepo) Delete(_ context.Context, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.versions, id)
	return nil
}

// ── Mock AbsenceRepository ──

type mockAbsenceRepo struct{ m *memStore }

func (r *mockAbsenceRepo) Create(_ context.Context, absence *model.Absence) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, a := range r.m.absences {
		if a.InstructorID == absence.InstructorID && a.AbsentAt.Equal(absence.AbsentAt) {
			return violation(repository.ConstraintAbsenceInstant)
		}
	}
	absence.ID = r.m.id()
	absence.CreatedAt = time.Now()
	c := *absence
	r.m.absences[absence.ID] = &c
	return nil
}

func (r *mockAbsenceRepo) Delete(_ context.Context, instructorID int64, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, a := range r.m.absences {
		if a.InstructorID == instructorID && a.AbsentAt.Equal(at) {
			delete(r.m.absences, id)
			return true, nil
		}
	}
	return false, nil
}

func (r *mockAbsenceRepo) ListBetween(_ context.Context, instructorIDs []int64, from, to time.Time) ([]*model.Absence, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var res []*model.Absence
	for _, a := range r.m.absences {
		if containsID(instructorIDs, a.InstructorID) && !a.AbsentAt.Before(from) && a.AbsentAt.Before(to) {
			c := *a
			res = append(res, &c)
		}
	}
	return res, nil
}

// ── Mock CalendarRepository ──

type mockCalendarRepo struct{ m *memStore }

func (r *mockCalendarRepo) CreateEventType(_ context.Context, eventType *model.EventType) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, et := range r.m.eventTypes {
		if et.Name == eventType.Name {
			return violation("event_types_name_key")
		}
	}
	eventType.ID = r.m.id()
	c := *eventType
	r.m.eventTypes[eventType.ID] = &c
	return nil
}

func (r *mockCalendarRepo) GetEventType(_ context.Context, id int64) (*model.EventType, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if et, ok := r.m.eventTypes[id]; ok {
		c := *et
		return &c, nil
	}
	return nil, nil
}

func (r *mockCalendarRepo) ListEventTypes(_ context.Context) ([]*model.EventType, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var res []*model.EventType
	for _, et := range r.m.eventTypes {
		c := *et
		res = append(res, &c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *mockCalendarRepo) UpsertDay(_ context.Context, day *model.CalendarDay) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := *day
	r.m.days[day.Date] = &c
	return nil
}

func (r *mockCalendarRepo) DeleteDay(_ context.Context, date time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.days[date]; !ok {
		return false, nil
	}
	delete(r.m.days, date)
	return true, nil
}

func (r *mockCalendarRepo) ListDays(_ context.Context, from, to time.Time) ([]*model.CalendarDay, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var res []*model.CalendarDay
	for date, d := range r.m.days {
		if date.Before(from) || !date.Before(to) {
			continue
		}
		c := *d
		if et, ok := r.m.eventTypes[d.EventTypeID]; ok {
			etc := *et
			c.EventType = &etc
		}
		res = append(res, &c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.Before(res[j].Date) })
	return res, nil
}

// ── Mock CommitmentRepository ──

type mockCommitmentRepo struct{ m *memStore }

func (r *mockCommitmentRepo) Create(_ context.Context, commitment *model.RecurringCommitment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	commitment.ID = r.m.id()
	commitment.CreatedAt = time.Now()
	commitment.UpdatedAt = commitment.CreatedAt
	r.m.commitments[commitment.ID] = cloneCommitment(commitment)
	return nil
}

func (r *mockCommitmentRepo) GetByID(_ context.Context, id int64) (*model.RecurringCommitment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if c, ok := r.m.commitments[id]; ok {
		return cloneCommitment(c), nil
	}
	return nil, nil
}

func (r *mockCommitmentRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.RecurringCommitment, error) {
	return r.GetByID(ctx, id)
}

func (r *mockCommitmentRepo) ListBySubscription(_ context.Context, subscriptionID int64) ([]*model.RecurringCommitment, error) {
	return r.filter(func(c *model.RecurringCommitment) bool { return c.SubscriptionID == subscriptionID }), nil
}

func (r *mockCommitmentRepo) ListOverlapping(_ context.Context, from, to time.Time) ([]*model.RecurringCommitment, error) {
	return r.filter(func(c *model.RecurringCommitment) bool { return c.Overlaps(from, to) }), nil
}

func (r *mockCommitmentRepo) filter(pred func(*model.RecurringCommitment) bool) []*model.RecurringCommitment {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var res []*model.RecurringCommitment
	for _, c := range r.m.commitments {
		if pred(c) {
			res = append(res, cloneCommitment(c))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (r *mockCommitmentRepo) End(_ context.Context, id int64, endAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.commitments[id]
	if !ok {
		return errors.New("recurring commitment not found")
	}
	c.EndAt = timePtr(endAt)
	return nil
}

func (r *mockCommitmentRepo) ReplaceChildren(_ context.Context, id int64, childIDs []int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.commitments[id]
	if !ok {
		return errors.New("recurring commitment not found")
	}
	c.ChildIDs = append([]int64(nil), childIDs...)
	return nil
}

// ── Mock LessonRepository ──

type mockLessonRepo struct{ m *memStore }

// checkUnique mirrors the unique and partial unique indexes of the lessons table.
// Caller holds the lock.
func (r *mockLessonRepo) checkUnique(l *model.Lesson) error {
	for _, other := range r.m.lessons {
		if other.ID == l.ID {
			continue
		}
		if other.ClassCode == l.ClassCode {
			return violation(repository.ConstraintClassCode)
		}
		if l.RebookedFromID != nil && other.RebookedFromID != nil && *other.RebookedFromID == *l.RebookedFromID {
			return violation(repository.ConstraintRebookedFrom)
		}
		if l.Status != model.LessonStatusBooked || other.Status != model.LessonStatusBooked {
			continue
		}
		if !other.DateTime.Equal(*l.DateTime) {
			continue
		}
		if *other.InstructorID == *l.InstructorID {
			return violation(repository.ConstraintInstructorSlot)
		}
		if other.CustomerID == l.CustomerID {
			return violation(repository.ConstraintCustomerSlot)
		}
	}
	return nil
}

func (r *mockLessonRepo) Create(_ context.Context, lesson *model.Lesson) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.checkUnique(lesson); err != nil {
		return err
	}
	lesson.ID = r.m.id()
	lesson.CreatedAt = time.Now()
	lesson.UpdatedAt = lesson.CreatedAt
	r.m.lessons[lesson.ID] = cloneLesson(lesson)
	return nil
}

func (r *mockLessonRepo) GetByID(_ context.Context, id int64) (*model.Lesson, error) {
	return r.m.lesson(id), nil
}

func (r *mockLessonRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.Lesson, error) {
	return r.GetByID(ctx, id)
}

func (r *mockLessonRepo) GetByClassCodeForUpdate(_ context.Context, classCode string) (*model.Lesson, error) {
	found := r.m.lessonsWhere(func(l *model.Lesson) bool { return l.ClassCode == classCode })
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (r *mockLessonRepo) ExistsByClassCode(_ context.Context, classCode string) (bool, error) {
	return len(r.m.lessonsWhere(func(l *model.Lesson) bool { return l.ClassCode == classCode })) > 0, nil
}

func (r *mockLessonRepo) ExistsByRebookedFrom(_ context.Context, lessonID int64) (bool, error) {
	return len(r.m.lessonsWhere(func(l *model.Lesson) bool {
		return l.RebookedFromID != nil && *l.RebookedFromID == lessonID
	})) > 0, nil
}

func inRange(at *time.Time, from, to time.Time) bool {
	return at != nil && !at.Before(from) && at.Before(to)
}

func (r *mockLessonRepo) ListBookedBetween(_ context.Context, instructorIDs []int64, from, to time.Time) ([]*model.Lesson, error) {
	return r.m.lessonsWhere(func(l *model.Lesson) bool {
		return l.Status == model.LessonStatusBooked && l.InstructorID != nil &&
			containsID(instructorIDs, *l.InstructorID) && inRange(l.DateTime, from, to)
	}), nil
}

func (r *mockLessonRepo) CountBookedForSubscription(_ context.Context, subscriptionID int64, from, to time.Time) (int, error) {
	return len(r.m.lessonsWhere(func(l *model.Lesson) bool {
		return l.Status == model.LessonStatusBooked && l.SubscriptionID != nil &&
			*l.SubscriptionID == subscriptionID && inRange(l.DateTime, from, to)
	})), nil
}

func (r *mockLessonRepo) CountForInstructor(_ context.Context, instructorID int64, from time.Time, to *time.Time) (int, error) {
	end := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	if to != nil {
		end = *to
	}
	return len(r.m.lessonsWhere(func(l *model.Lesson) bool {
		return l.InstructorID != nil && *l.InstructorID == instructorID && inRange(l.DateTime, from, end)
	})), nil
}

func (r *mockLessonRepo) ListByCustomer(_ context.Context, customerID int64, from, to time.Time) ([]*model.Lesson, error) {
	return r.m.lessonsWhere(func(l *model.Lesson) bool {
		return l.CustomerID == customerID && (l.DateTime == nil || inRange(l.DateTime, from, to))
	}), nil
}

func (r *mockLessonRepo) ListByInstructor(_ context.Context, instructorID int64, from, to time.Time) ([]*model.Lesson, error) {
	return r.m.lessonsWhere(func(l *model.Lesson) bool {
		return l.InstructorID != nil && *l.InstructorID == instructorID && inRange(l.DateTime, from, to)
	}), nil
}

func (r *mockLessonRepo) UpdateState(_ context.Context, lesson *model.Lesson) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.lessons[lesson.ID]
	if !ok {
		return errors.New("lesson not found")
	}

	updated := cloneLesson(stored)
	updated.Status = lesson.Status
	updated.InstructorID = lesson.InstructorID
	updated.DateTime = lesson.DateTime
	updated.RebookableUntil = lesson.RebookableUntil
	if err := r.checkUnique(updated); err != nil {
		return err
	}
	updated.UpdatedAt = time.Now()
	r.m.lessons[lesson.ID] = cloneLesson(updated)
	return nil
}

func (r *mockLessonRepo) ReplaceChildren(_ context.Context, lessonID int64, childIDs []int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	l, ok := r.m.lessons[lessonID]
	if !ok {
		return errors.New("lesson not found")
	}
	l.ChildIDs = append([]int64(nil), childIDs...)
	return nil
}

// ── Mock SubscriptionRepository ──

type mockSubscriptionRepo struct{ m *memStore }

func (r *mockSubscriptionRepo) GetByID(_ context.Context, id int64) (*model.Subscription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if s, ok := r.m.subscriptions[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (r *mockSubscriptionRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.Subscription, error) {
	r.m.mu.Lock()
	r.m.subscriptionLocks[id]++
	r.m.mu.Unlock()
	return r.GetByID(ctx, id)
}

func (r *mockSubscriptionRepo) ActiveForCustomer(_ context.Context, customerID int64, date time.Time) (*model.Subscription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var best *model.Subscription
	for _, s := range r.m.subscriptions {
		if s.CustomerID != customerID || !s.ActiveOn(date) {
			continue
		}
		if best == nil || s.StartDate.After(best.StartDate) {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}
	c := *best
	return &c, nil
}

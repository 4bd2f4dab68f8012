package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const lessonColumns = `
	l.id, l.instructor_id, l.customer_id, l.date_time, l.status,
	l.subscription_id, l.recurring_commitment_id, l.rebooked_from_id, l.rebookable_until,
	l.is_free_trial, l.class_code,
	COALESCE((SELECT array_agg(lc.child_id ORDER BY lc.child_id)
	          FROM lesson_children lc
	          WHERE lc.lesson_id = l.id), '{}'::bigint[]),
	l.created_at, l.updated_at`

type PgLessonRepository struct {
	*base.Repository
}

func NewLessonRepository(db base.DBTX) *PgLessonRepository {
	return &PgLessonRepository{Repository: base.NewRepository(db)}
}

// Create создаёт занятие и записи посещаемости
func (r *PgLessonRepository) Create(ctx context.Context, lesson *model.Lesson) error {
	query := `
		INSERT INTO lessons (instructor_id, customer_id, date_time, status, subscription_id,
		                     recurring_commitment_id, rebooked_from_id, rebookable_until,
		                     is_free_trial, class_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		lesson.InstructorID,
		lesson.CustomerID,
		lesson.DateTime,
		lesson.Status,
		lesson.SubscriptionID,
		lesson.RecurringCommitmentID,
		lesson.RebookedFromID,
		lesson.RebookableUntil,
		lesson.IsFreeTrial,
		lesson.ClassCode,
	).Scan(&lesson.ID, &lesson.CreatedAt, &lesson.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create lesson: %w", base.Translate(err))
	}

	return r.insertChildren(ctx, lesson.ID, lesson.ChildIDs)
}

// GetByID получает занятие по ID
func (r *PgLessonRepository) GetByID(ctx context.Context, id int64) (*model.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons l WHERE l.id = $1`

	lesson, err := scanLesson(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lesson by id: %w", err)
	}

	return lesson, nil
}

// GetByIDForUpdate блокирует строку занятия до конца транзакции
func (r *PgLessonRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Lesson, error) {
	var locked int64
	err := r.QueryRow(ctx, `SELECT id FROM lessons WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock lesson: %w", err)
	}

	return r.GetByID(ctx, id)
}

// GetByClassCodeForUpdate блокирует занятие по коду
func (r *PgLessonRepository) GetByClassCodeForUpdate(ctx context.Context, classCode string) (*model.Lesson, error) {
	var id int64
	err := r.QueryRow(ctx, `SELECT id FROM lessons WHERE class_code = $1 FOR UPDATE`, classCode).Scan(&id)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock lesson by class code: %w", err)
	}

	return r.GetByID(ctx, id)
}

// ExistsByClassCode проверяет, создано ли уже занятие с таким кодом
func (r *PgLessonRepository) ExistsByClassCode(ctx context.Context, classCode string) (bool, error) {
	var exists bool
	err := r.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM lessons WHERE class_code = $1)`, classCode).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check class code exists: %w", err)
	}

	return exists, nil
}

// ExistsByRebookedFrom проверяет, есть ли уже замена для занятия
func (r *PgLessonRepository) ExistsByRebookedFrom(ctx context.Context, lessonID int64) (bool, error) {
	var exists bool
	err := r.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM lessons WHERE rebooked_from_id = $1)`, lessonID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check replacement exists: %w", err)
	}

	return exists, nil
}

// ListBookedBetween получает активные занятия преподавателей в интервале [from, to)
func (r *PgLessonRepository) ListBookedBetween(ctx context.Context, instructorIDs []int64, from, to time.Time) ([]*model.Lesson, error) {
	query := `
		SELECT ` + lessonColumns + `
		FROM lessons l
		WHERE l.status = 'booked'
		  AND ($1::bigint[] IS NULL OR l.instructor_id = ANY($1))
		  AND l.date_time >= $2
		  AND l.date_time < $3
		ORDER BY l.date_time
	`

	return r.list(ctx, query, instructorIDs, from, to)
}

// CountBookedForSubscription считает активные занятия подписки в интервале [from, to)
func (r *PgLessonRepository) CountBookedForSubscription(ctx context.Context, subscriptionID int64, from, to time.Time) (int, error) {
	query := `
		SELECT count(*)
		FROM lessons
		WHERE subscription_id = $1
		  AND status = 'booked'
		  AND date_time >= $2
		  AND date_time < $3
	`

	var count int
	if err := r.QueryRow(ctx, query, subscriptionID, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("count booked lessons: %w", err)
	}

	return count, nil
}

// CountForInstructor считает занятия преподавателя любого статуса в интервале
func (r *PgLessonRepository) CountForInstructor(ctx context.Context, instructorID int64, from time.Time, to *time.Time) (int, error) {
	query := `
		SELECT count(*)
		FROM lessons
		WHERE instructor_id = $1
		  AND date_time >= $2
		  AND ($3::timestamptz IS NULL OR date_time < $3)
	`

	var count int
	if err := r.QueryRow(ctx, query, instructorID, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("count instructor lessons: %w", err)
	}

	return count, nil
}

// ListByCustomer получает занятия клиента в интервале [from, to)
func (r *PgLessonRepository) ListByCustomer(ctx context.Context, customerID int64, from, to time.Time) ([]*model.Lesson, error) {
	query := `
		SELECT ` + lessonColumns + `
		FROM lessons l
		WHERE l.customer_id = $1
		  AND (l.date_time IS NULL OR (l.date_time >= $2 AND l.date_time < $3))
		ORDER BY l.date_time NULLS FIRST, l.id
	`

	return r.list(ctx, query, customerID, from, to)
}

// ListByInstructor получает занятия преподавателя в интервале [from, to)
func (r *PgLessonRepository) ListByInstructor(ctx context.Context, instructorID int64, from, to time.Time) ([]*model.Lesson, error) {
	query := `
		SELECT ` + lessonColumns + `
		FROM lessons l
		WHERE l.instructor_id = $1
		  AND l.date_time >= $2
		  AND l.date_time < $3
		ORDER BY l.date_time, l.id
	`

	return r.list(ctx, query, instructorID, from, to)
}

// UpdateState сохраняет статус, время, преподавателя и окно переноса
func (r *PgLessonRepository) UpdateState(ctx context.Context, lesson *model.Lesson) error {
	query := `
		UPDATE lessons
		SET status = $2, instructor_id = $3, date_time = $4, rebookable_until = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.QueryRow(
		ctx, query,
		lesson.ID,
		lesson.Status,
		lesson.InstructorID,
		lesson.DateTime,
		lesson.RebookableUntil,
	).Scan(&lesson.UpdatedAt)
	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("lesson %d not found", lesson.ID)
		}
		return fmt.Errorf("update lesson state: %w", base.Translate(err))
	}

	return nil
}

// ReplaceChildren перезаписывает посещаемость занятия
func (r *PgLessonRepository) ReplaceChildren(ctx context.Context, lessonID int64, childIDs []int64) error {
	if _, err := r.ExecAffected(ctx, `DELETE FROM lesson_children WHERE lesson_id = $1`, lessonID); err != nil {
		return fmt.Errorf("clear lesson children: %w", err)
	}

	if _, err := r.ExecAffected(ctx, `UPDATE lessons SET updated_at = now() WHERE id = $1`, lessonID); err != nil {
		return fmt.Errorf("touch lesson: %w", err)
	}

	return r.insertChildren(ctx, lessonID, childIDs)
}

func (r *PgLessonRepository) insertChildren(ctx context.Context, lessonID int64, childIDs []int64) error {
	if len(childIDs) == 0 {
		return nil
	}

	_, err := r.ExecAffected(ctx, `
		INSERT INTO lesson_children (lesson_id, child_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`, lessonID, childIDs)
	if err != nil {
		return fmt.Errorf("insert lesson children: %w", err)
	}

	return nil
}

func (r *PgLessonRepository) list(ctx context.Context, query string, args ...any) ([]*model.Lesson, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	defer rows.Close()

	var lessons []*model.Lesson
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		lessons = append(lessons, lesson)
	}

	return lessons, rows.Err()
}

func scanLesson(row pgx.Row) (*model.Lesson, error) {
	var l model.Lesson
	err := row.Scan(
		&l.ID,
		&l.InstructorID,
		&l.CustomerID,
		&l.DateTime,
		&l.Status,
		&l.SubscriptionID,
		&l.RecurringCommitmentID,
		&l.RebookedFromID,
		&l.RebookableUntil,
		&l.IsFreeTrial,
		&l.ClassCode,
		&l.ChildIDs,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.DateTime = utcPtr(l.DateTime)
	l.RebookableUntil = utcPtr(l.RebookableUntil)
	return &l, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository/base"
)

type PgAbsenceRepository struct {
	*base.Repository
}

func NewAbsenceRepository(db base.DBTX) *PgAbsenceRepository {
	return &PgAbsenceRepository{Repository: base.NewRepository(db)}
}

// Create регистрирует отсутствие преподавателя
func (r *PgAbsenceRepository) Create(ctx context.Context, absence *model.Absence) error {
	query := `
		INSERT INTO absences (instructor_id, absent_at)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	err := r.QueryRow(ctx, query, absence.InstructorID, absence.AbsentAt).
		Scan(&absence.ID, &absence.CreatedAt)
	if err != nil {
		return fmt.Errorf("create absence: %w", base.Translate(err))
	}

	return nil
}

// Delete удаляет отсутствие, возвращает false если его не было
func (r *PgAbsenceRepository) Delete(ctx context.Context, instructorID int64, at time.Time) (bool, error) {
	affected, err := r.ExecAffected(ctx,
		`DELETE FROM absences WHERE instructor_id = $1 AND absent_at = $2`,
		instructorID, at)
	if err != nil {
		return false, fmt.Errorf("delete absence: %w", err)
	}

	return affected > 0, nil
}

// ListBetween получает отсутствия в интервале [from, to)
func (r *PgAbsenceRepository) ListBetween(ctx context.Context, instructorIDs []int64, from, to time.Time) ([]*model.Absence, error) {
	query := `
		SELECT id, instructor_id, absent_at, created_at
		FROM absences
		WHERE ($1::bigint[] IS NULL OR instructor_id = ANY($1))
		  AND absent_at >= $2
		  AND absent_at < $3
		ORDER BY instructor_id, absent_at
	`

	rows, err := r.Query(ctx, query, instructorIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("list absences: %w", err)
	}
	defer rows.Close()

	var absences []*model.Absence
	for rows.Next() {
		var a model.Absence
		if err := rows.Scan(&a.ID, &a.InstructorID, &a.AbsentAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan absence: %w", err)
		}
		a.AbsentAt = a.AbsentAt.UTC()
		absences = append(absences, &a)
	}

	return absences, rows.Err()
}

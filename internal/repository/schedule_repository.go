package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const scheduleVersionColumns = `id, instructor_id, effective_from, effective_to, timezone, created_at`

type PgScheduleRepository struct {
	*base.Repository
}

func NewScheduleRepository(db base.DBTX) *PgScheduleRepository {
	return &PgScheduleRepository{Repository: base.NewRepository(db)}
}

// Create создаёт версию расписания вместе со слотами
func (r *PgScheduleRepository) Create(ctx context.Context, version *model.ScheduleVersion) error {
	query := `
		INSERT INTO schedule_versions (instructor_id, effective_from, effective_to, timezone)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.QueryRow(
		ctx, query,
		version.InstructorID,
		version.EffectiveFrom,
		version.EffectiveTo,
		version.Timezone,
	).Scan(&version.ID, &version.CreatedAt)
	if err != nil {
		return fmt.Errorf("create schedule version: %w", base.Translate(err))
	}

	for _, slot := range version.Slots {
		_, err := r.ExecAffected(ctx, `
			INSERT INTO schedule_slots (schedule_version_id, weekday, start_hour, start_minute)
			VALUES ($1, $2, $3, $4)
		`, version.ID, slot.Weekday, slot.StartHour, slot.StartMinute)
		if err != nil {
			return fmt.Errorf("create schedule slot %s: %w", slot, err)
		}
	}

	return nil
}

// GetByID получает версию по ID
func (r *PgScheduleRepository) GetByID(ctx context.Context, id int64) (*model.ScheduleVersion, error) {
	query := `SELECT ` + scheduleVersionColumns + ` FROM schedule_versions WHERE id = $1`

	version, err := scanScheduleVersion(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get schedule version by id: %w", err)
	}

	if err := r.attachSlots(ctx, []*model.ScheduleVersion{version}); err != nil {
		return nil, err
	}
	return version, nil
}

// GetCurrentForUpdate получает открытую версию преподавателя и блокирует её строку
func (r *PgScheduleRepository) GetCurrentForUpdate(ctx context.Context, instructorID int64) (*model.ScheduleVersion, error) {
	query := `
		SELECT ` + scheduleVersionColumns + `
		FROM schedule_versions
		WHERE instructor_id = $1 AND effective_to IS NULL
		FOR UPDATE
	`

	version, err := scanScheduleVersion(r.QueryRow(ctx, query, instructorID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get current schedule version: %w", err)
	}

	if err := r.attachSlots(ctx, []*model.ScheduleVersion{version}); err != nil {
		return nil, err
	}
	return version, nil
}

// ListByInstructor получает все версии преподавателя по возрастанию даты
func (r *PgScheduleRepository) ListByInstructor(ctx context.Context, instructorID int64) ([]*model.ScheduleVersion, error) {
	query := `
		SELECT ` + scheduleVersionColumns + `
		FROM schedule_versions
		WHERE instructor_id = $1
		ORDER BY effective_from
	`

	return r.list(ctx, query, instructorID)
}

// ListOverlapping получает версии, пересекающиеся с диапазоном дат [from, to)
func (r *PgScheduleRepository) ListOverlapping(ctx context.Context, instructorIDs []int64, from, to time.Time) ([]*model.ScheduleVersion, error) {
	query := `
		SELECT ` + scheduleVersionColumns + `
		FROM schedule_versions
		WHERE ($1::bigint[] IS NULL OR instructor_id = ANY($1))
		  AND effective_from < $3
		  AND (effective_to IS NULL OR effective_to > $2)
		ORDER BY instructor_id, effective_from
	`

	return r.list(ctx, query, instructorIDs, from, to)
}

// Close закрывает открытую версию датой effectiveTo
func (r *PgScheduleRepository) Close(ctx context.Context, id int64, effectiveTo time.Time) error {
	query := `
		UPDATE schedule_versions
		SET effective_to = $2
		WHERE id = $1 AND effective_to IS NULL
	`

	affected, err := r.ExecAffected(ctx, query, id, effectiveTo)
	if err != nil {
		return fmt.Errorf("close schedule version: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("schedule version %d not found or already closed", id)
	}

	return nil
}

// Delete удаляет версию (слоты удалятся каскадом)
func (r *PgScheduleRepository) Delete(ctx context.Context, id int64) error {
	affected, err := r.ExecAffected(ctx, `DELETE FROM schedule_versions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule version: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("schedule version %d not found", id)
	}

	return nil
}

func (r *PgScheduleRepository) list(ctx context.Context, query string, args ...any) ([]*model.ScheduleVersion, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedule versions: %w", err)
	}
	defer rows.Close()

	var versions []*model.ScheduleVersion
	for rows.Next() {
		version, err := scanScheduleVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule versions: %w", err)
	}

	if err := r.attachSlots(ctx, versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// attachSlots загружает слоты одним запросом для всех версий
func (r *PgScheduleRepository) attachSlots(ctx context.Context, versions []*model.ScheduleVersion) error {
	if len(versions) == 0 {
		return nil
	}

	byID := make(map[int64]*model.ScheduleVersion, len(versions))
	ids := make([]int64, 0, len(versions))
	for _, v := range versions {
		byID[v.ID] = v
		ids = append(ids, v.ID)
	}

	rows, err := r.Query(ctx, `
		SELECT schedule_version_id, weekday, start_hour, start_minute
		FROM schedule_slots
		WHERE schedule_version_id = ANY($1)
		ORDER BY weekday, start_hour, start_minute
	`, ids)
	if err != nil {
		return fmt.Errorf("get schedule slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			versionID int64
			slot      model.WeeklySlot
		)
		if err := rows.Scan(&versionID, &slot.Weekday, &slot.StartHour, &slot.StartMinute); err != nil {
			return fmt.Errorf("scan schedule slot: %w", err)
		}
		if v, ok := byID[versionID]; ok {
			v.Slots = append(v.Slots, slot)
		}
	}

	return rows.Err()
}

func scanScheduleVersion(row pgx.Row) (*model.ScheduleVersion, error) {
	var v model.ScheduleVersion
	err := row.Scan(
		&v.ID,
		&v.InstructorID,
		&v.EffectiveFrom,
		&v.EffectiveTo,
		&v.Timezone,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.EffectiveFrom = model.DateOf(v.EffectiveFrom)
	if v.EffectiveTo != nil {
		to := model.DateOf(*v.EffectiveTo)
		v.EffectiveTo = &to
	}
	return &v, nil
}

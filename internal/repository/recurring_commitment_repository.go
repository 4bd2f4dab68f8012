package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const commitmentColumns = `
	c.id, c.subscription_id, c.instructor_id, c.start_at, c.end_at,
	COALESCE((SELECT array_agg(cc.child_id ORDER BY cc.child_id)
	          FROM recurring_commitment_children cc
	          WHERE cc.commitment_id = c.id), '{}'::bigint[]),
	c.created_at, c.updated_at`

// PgCommitmentRepository управляет регулярными занятиями подписок в базе данных
type PgCommitmentRepository struct {
	*base.Repository
}

// NewCommitmentRepository создаёт новый репозиторий
func NewCommitmentRepository(db base.DBTX) *PgCommitmentRepository {
	return &PgCommitmentRepository{Repository: base.NewRepository(db)}
}

// Create создаёт регулярное занятие вместе со списком детей
func (r *PgCommitmentRepository) Create(ctx context.Context, commitment *model.RecurringCommitment) error {
	query := `
		INSERT INTO recurring_commitments (subscription_id, instructor_id, start_at, end_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(
		ctx,
		query,
		commitment.SubscriptionID,
		commitment.InstructorID,
		commitment.StartAt,
		commitment.EndAt,
	).Scan(&commitment.ID, &commitment.CreatedAt, &commitment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create recurring commitment: %w", base.Translate(err))
	}

	return r.insertChildren(ctx, commitment.ID, commitment.ChildIDs)
}

// GetByID получает регулярное занятие по ID
func (r *PgCommitmentRepository) GetByID(ctx context.Context, id int64) (*model.RecurringCommitment, error) {
	query := `SELECT ` + commitmentColumns + ` FROM recurring_commitments c WHERE c.id = $1`

	commitment, err := scanCommitment(r.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recurring commitment by id: %w", err)
	}

	return commitment, nil
}

// GetByIDForUpdate блокирует строку и получает регулярное занятие
func (r *PgCommitmentRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.RecurringCommitment, error) {
	var locked int64
	err := r.QueryRow(ctx, `SELECT id FROM recurring_commitments WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock recurring commitment: %w", err)
	}

	return r.GetByID(ctx, id)
}

// ListBySubscription получает все регулярные занятия подписки
func (r *PgCommitmentRepository) ListBySubscription(ctx context.Context, subscriptionID int64) ([]*model.RecurringCommitment, error) {
	query := `
		SELECT ` + commitmentColumns + `
		FROM recurring_commitments c
		WHERE c.subscription_id = $1
		ORDER BY c.start_at
	`

	return r.list(ctx, query, subscriptionID)
}

// ListOverlapping получает регулярные занятия, активные в интервале [from, to)
func (r *PgCommitmentRepository) ListOverlapping(ctx context.Context, from, to time.Time) ([]*model.RecurringCommitment, error) {
	query := `
		SELECT ` + commitmentColumns + `
		FROM recurring_commitments c
		WHERE c.start_at < $2
		  AND (c.end_at IS NULL OR c.end_at > $1)
		ORDER BY c.id
	`

	return r.list(ctx, query, from, to)
}

// End завершает регулярное занятие моментом endAt
func (r *PgCommitmentRepository) End(ctx context.Context, id int64, endAt time.Time) error {
	query := `
		UPDATE recurring_commitments
		SET end_at = $2, updated_at = now()
		WHERE id = $1
	`

	affected, err := r.ExecAffected(ctx, query, id, endAt)
	if err != nil {
		return fmt.Errorf("end recurring commitment: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("recurring commitment %d not found", id)
	}

	return nil
}

// ReplaceChildren перезаписывает список детей регулярного занятия
func (r *PgCommitmentRepository) ReplaceChildren(ctx context.Context, id int64, childIDs []int64) error {
	if _, err := r.ExecAffected(ctx, `DELETE FROM recurring_commitment_children WHERE commitment_id = $1`, id); err != nil {
		return fmt.Errorf("clear commitment children: %w", err)
	}

	if _, err := r.ExecAffected(ctx, `UPDATE recurring_commitments SET updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("touch recurring commitment: %w", err)
	}

	return r.insertChildren(ctx, id, childIDs)
}

func (r *PgCommitmentRepository) insertChildren(ctx context.Context, id int64, childIDs []int64) error {
	if len(childIDs) == 0 {
		return nil
	}

	_, err := r.ExecAffected(ctx, `
		INSERT INTO recurring_commitment_children (commitment_id, child_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`, id, childIDs)
	if err != nil {
		return fmt.Errorf("insert commitment children: %w", err)
	}

	return nil
}

func (r *PgCommitmentRepository) list(ctx context.Context, query string, args ...any) ([]*model.RecurringCommitment, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring commitments: %w", err)
	}
	defer rows.Close()

	var commitments []*model.RecurringCommitment
	for rows.Next() {
		commitment, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring commitment: %w", err)
		}
		commitments = append(commitments, commitment)
	}

	return commitments, rows.Err()
}

func scanCommitment(row pgx.Row) (*model.RecurringCommitment, error) {
	var c model.RecurringCommitment
	err := row.Scan(
		&c.ID,
		&c.SubscriptionID,
		&c.InstructorID,
		&c.StartAt,
		&c.EndAt,
		&c.ChildIDs,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.StartAt = c.StartAt.UTC()
	if c.EndAt != nil {
		end := c.EndAt.UTC()
		c.EndAt = &end
	}
	return &c, nil
}

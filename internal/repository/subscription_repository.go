package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

// PgSubscriptionRepository читает подписки; каталог планов ведётся вне движка
type PgSubscriptionRepository struct {
	*base.Repository
}

func NewSubscriptionRepository(db base.DBTX) *PgSubscriptionRepository {
	return &PgSubscriptionRepository{Repository: base.NewRepository(db)}
}

const subscriptionColumns = `id, customer_id, weekly_class_times, start_date, end_date`

// GetByID получает подписку по ID
func (r *PgSubscriptionRepository) GetByID(ctx context.Context, id int64) (*model.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscription by id: %w", err)
	}

	return sub, nil
}

// GetByIDForUpdate блокирует строку подписки до конца транзакции
func (r *PgSubscriptionRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 FOR UPDATE`

	sub, err := scanSubscription(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock subscription: %w", err)
	}

	return sub, nil
}

// ActiveForCustomer получает подписку клиента, действующую на дату
func (r *PgSubscriptionRepository) ActiveForCustomer(ctx context.Context, customerID int64, date time.Time) (*model.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE customer_id = $1
		  AND start_date <= $2
		  AND (end_date IS NULL OR end_date > $2)
		ORDER BY start_date DESC
		LIMIT 1
	`

	sub, err := scanSubscription(r.QueryRow(ctx, query, customerID, model.DateOf(date)))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active subscription: %w", err)
	}

	return sub, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	if err := row.Scan(&s.ID, &s.CustomerID, &s.WeeklyClassTimes, &s.StartDate, &s.EndDate); err != nil {
		return nil, err
	}

	s.StartDate = model.DateOf(s.StartDate)
	if s.EndDate != nil {
		end := model.DateOf(*s.EndDate)
		s.EndDate = &end
	}
	return &s, nil
}

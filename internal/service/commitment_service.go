package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/model"
	"github.com/Freeeeeet/lesson_booking/internal/repository"
	"go.uber.org/zap"
)

type CreateCommitmentRequest struct {
	SubscriptionID int64      `validate:"gt=0"`
	InstructorID   int64      `validate:"gt=0"`
	StartAt        time.Time  `validate:"required"`
	EndAt          *time.Time `validate:"omitempty"`
	ChildIDs       []int64    `validate:"dive,gt=0"`
}

// CommitmentService manages subscriptions' standing weekly lessons.
type CommitmentService struct {
	repo   *repository.Repository
	rules  Rules
	logger *zap.Logger
}

func NewCommitmentService(repo *repository.Repository, rules Rules, logger *zap.Logger) *CommitmentService {
	return &CommitmentService{repo: repo, rules: rules, logger: logger}
}

// Create создаёт регулярное занятие
func (s *CommitmentService) Create(ctx context.Context, req CreateCommitmentRequest) (*model.RecurringCommitment, error) {
	commitment, err := s.build(req)
	if err != nil {
		return nil, err
	}

	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		sub, err := tx.Subscriptions.GetByID(ctx, req.SubscriptionID)
		if err != nil {
			return fmt.Errorf("get subscription: %w", err)
		}
		if sub == nil {
			return ErrSubscriptionNotFound
		}

		if err := tx.Commitments.Create(ctx, commitment); err != nil {
			return fmt.Errorf("create commitment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Recurring commitment created",
		zap.Int64("commitment_id", commitment.ID),
		zap.Int64("subscription_id", commitment.SubscriptionID),
		zap.Int64("instructor_id", commitment.InstructorID),
		zap.String("weekday", commitment.Weekday(s.rules.Location).String()),
	)

	return commitment, nil
}

// End завершает регулярное занятие моментом endAt; созданные занятия не меняются
func (s *CommitmentService) End(ctx context.Context, commitmentID int64, endAt time.Time) error {
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		commitment, err := tx.Commitments.GetByIDForUpdate(ctx, commitmentID)
		if err != nil {
			return fmt.Errorf("get commitment: %w", err)
		}
		if commitment == nil {
			return ErrCommitmentNotFound
		}
		if endAt.Before(commitment.StartAt) {
			return ErrInvalidDateRange
		}
		if commitment.EndAt != nil && !endAt.Before(*commitment.EndAt) {
			return fmt.Errorf("%w: commitment already ends at %s", ErrInvalidTransition, commitment.EndAt.Format(time.RFC3339))
		}

		return tx.Commitments.End(ctx, commitmentID, endAt.UTC())
	})
	if err != nil {
		return err
	}

	s.logger.Info("Recurring commitment ended",
		zap.Int64("commitment_id", commitmentID),
		zap.Time("end_at", endAt),
	)
	return nil
}

// Replace меняет время или преподавателя: старое занятие завершается в момент
// начала нового, история уже созданных уроков не затрагивается.
func (s *CommitmentService) Replace(ctx context.Context, commitmentID, instructorID int64, startAt time.Time, childIDs []int64) (*model.RecurringCommitment, error) {
	var replacement *model.RecurringCommitment

	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		old, err := tx.Commitments.GetByIDForUpdate(ctx, commitmentID)
		if err != nil {
			return fmt.Errorf("get commitment: %w", err)
		}
		if old == nil {
			return ErrCommitmentNotFound
		}
		if !old.ActiveAt(startAt) {
			return fmt.Errorf("%w: commitment %d is not active at %s", ErrInvalidTransition, commitmentID, startAt.Format(time.RFC3339))
		}

		if childIDs == nil {
			childIDs = old.ChildIDs
		}
		replacement, err = s.build(CreateCommitmentRequest{
			SubscriptionID: old.SubscriptionID,
			InstructorID:   instructorID,
			StartAt:        startAt,
			EndAt:          old.EndAt,
			ChildIDs:       childIDs,
		})
		if err != nil {
			return err
		}

		if err := tx.Commitments.End(ctx, old.ID, replacement.StartAt); err != nil {
			return fmt.Errorf("end old commitment: %w", err)
		}
		if err := tx.Commitments.Create(ctx, replacement); err != nil {
			return fmt.Errorf("create replacement commitment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Recurring commitment replaced",
		zap.Int64("old_commitment_id", commitmentID),
		zap.Int64("new_commitment_id", replacement.ID),
		zap.Int64("instructor_id", instructorID),
		zap.Time("start_at", replacement.StartAt),
	)

	return replacement, nil
}

// UpdateChildren меняет состав детей для будущих генераций
func (s *CommitmentService) UpdateChildren(ctx context.Context, commitmentID int64, childIDs []int64) error {
	if len(childIDs) == 0 {
		return ErrNoAttendingChildren
	}

	return s.repo.InTx(ctx, func(tx *repository.Repository) error {
		commitment, err := tx.Commitments.GetByIDForUpdate(ctx, commitmentID)
		if err != nil {
			return fmt.Errorf("get commitment: %w", err)
		}
		if commitment == nil {
			return ErrCommitmentNotFound
		}
		return tx.Commitments.ReplaceChildren(ctx, commitmentID, childIDs)
	})
}

// Get получает регулярное занятие по ID
func (s *CommitmentService) Get(ctx context.Context, commitmentID int64) (*model.RecurringCommitment, error) {
	commitment, err := s.repo.Commitments.GetByID(ctx, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("get commitment: %w", err)
	}
	if commitment == nil {
		return nil, ErrCommitmentNotFound
	}
	return commitment, nil
}

// ListBySubscription возвращает регулярные занятия подписки
func (s *CommitmentService) ListBySubscription(ctx context.Context, subscriptionID int64) ([]*model.RecurringCommitment, error) {
	return s.repo.Commitments.ListBySubscription(ctx, subscriptionID)
}

func (s *CommitmentService) build(req CreateCommitmentRequest) (*model.RecurringCommitment, error) {
	if len(req.ChildIDs) == 0 {
		return nil, ErrNoAttendingChildren
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	local := req.StartAt.In(s.rules.Location)
	if !s.rules.onGrid(local.Hour(), local.Minute()) || local.Second() != 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSlot, local.Format("15:04:05"))
	}

	commitment := &model.RecurringCommitment{
		SubscriptionID: req.SubscriptionID,
		InstructorID:   req.InstructorID,
		StartAt:        req.StartAt.UTC(),
		ChildIDs:       req.ChildIDs,
	}
	if req.EndAt != nil {
		end := req.EndAt.UTC()
		if end.Before(commitment.StartAt) {
			return nil, ErrInvalidDateRange
		}
		commitment.EndAt = &end
	}
	return commitment, nil
}

package app

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/service"
	"go.uber.org/zap"
)

// OccurrenceGenerator создаёт занятия регулярных записей за месяц
type OccurrenceGenerator interface {
	GenerateOccurrences(ctx context.Context, ym service.YearMonth) (*service.GenerationResult, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	generator OccurrenceGenerator
	location  *time.Location
	now       service.Clock
	interval  time.Duration
	logger    *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler создаёт планировщик, раз в сутки генерирующий текущий и следующий месяц
func NewScheduler(generator OccurrenceGenerator, location *time.Location, now service.Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		generator: generator,
		location:  location,
		now:       now,
		interval:  24 * time.Hour,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.runGenerationTask(ctx)
}

// Stop останавливает фоновые задачи и ждёт их завершения
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Scheduler) runGenerationTask(ctx context.Context) {
	defer s.wg.Done()

	// Первый запуск сразу при старте
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopChan:
			s.logger.Info("Occurrence generation task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Occurrence generation task cancelled")
			return
		}
	}
}

// RunOnce генерирует занятия на текущий и следующий месяц бизнес-часового пояса
func (s *Scheduler) RunOnce(ctx context.Context) {
	current := service.MonthOf(s.now(), s.location)

	for _, ym := range []service.YearMonth{current, current.Next()} {
		result, err := s.generator.GenerateOccurrences(ctx, ym)
		if err != nil {
			s.logger.Error("Failed to generate occurrences", zap.Stringer("month", ym), zap.Error(err))
			continue
		}

		fields := []zap.Field{
			zap.Stringer("month", ym),
			zap.Stringer("run_id", result.RunID),
			zap.Int("created", result.Created),
			zap.Int("credited", result.Credited),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", len(result.Failures)),
		}
		if failErr := result.Err(); failErr != nil {
			s.logger.Warn("Occurrence generation finished with failures", append(fields, zap.Error(failErr))...)
			continue
		}
		s.logger.Info("Occurrence generation completed", fields...)
	}
}

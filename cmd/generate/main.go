// Command generate создаёт занятия регулярных записей за один месяц и завершается.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/Freeeeeet/lesson_booking/internal/app"
	"github.com/Freeeeeet/lesson_booking/internal/config"
	"github.com/Freeeeeet/lesson_booking/internal/repository"
	"github.com/Freeeeeet/lesson_booking/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	month := flag.String("month", "", "месяц в формате YYYY-MM (по умолчанию текущий в бизнес-часовом поясе)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := generate(ctx, cfg, *month, logger)
	if err != nil {
		logger.Error("Generation failed", zap.Error(err))
		os.Exit(1)
	}

	fmt.Printf("%s: created=%d credited=%d skipped=%d failed=%d\n",
		result.Month, result.Created, result.Credited, result.Skipped, len(result.Failures))

	if failErr := result.Err(); failErr != nil {
		logger.Warn("Generation finished with failures", zap.Error(failErr))
		os.Exit(2)
	}
}

func generate(ctx context.Context, cfg *config.Config, month string, logger *zap.Logger) (*service.GenerationResult, error) {
	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}

	now := service.Clock(time.Now)
	ym := service.MonthOf(now(), rules.Location)
	if month != "" {
		if ym, err = service.ParseYearMonth(month); err != nil {
			return nil, err
		}
	}

	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	generator := service.NewGeneratorService(repository.NewRepository(pool), rules, now, logger)
	return generator.GenerateOccurrences(ctx, ym)
}

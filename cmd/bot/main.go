package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/Freeeeeet/lesson_booking/internal/app"
	"github.com/Freeeeeet/lesson_booking/internal/config"
	"github.com/Freeeeeet/lesson_booking/internal/controller"
	"github.com/Freeeeeet/lesson_booking/internal/controller/handlers"
	"github.com/Freeeeeet/lesson_booking/internal/repository"
	"github.com/Freeeeeet/lesson_booking/internal/service"
	"github.com/Freeeeeet/lesson_booking/migrations"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Lesson booking engine stopped with error", zap.Error(err))
	}
	logger.Info("Lesson booking engine stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	rules, err := cfg.Rules()
	if err != nil {
		return err
	}

	logger.Info("Starting lesson booking engine",
		zap.String("environment", cfg.Environment),
		zap.Stringer("business_timezone", rules.Location),
		zap.Duration("lesson_length", rules.LessonLength),
		zap.Bool("bot_enabled", cfg.BotEnabled()),
		zap.Bool("generation_scheduler_enabled", cfg.GenerationSchedulerEnabled),
	)

	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	if cfg.MigrationsEnabled {
		migrator, err := app.NewMigrator(pool, migrations.FS, logger)
		if err != nil {
			return err
		}
		err = migrator.Run(ctx)
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("Failed to close migrator", zap.Error(closeErr))
		}
		if err != nil {
			return err
		}
	}

	repo := repository.NewRepository(pool)
	now := service.Clock(time.Now)

	availabilityService := service.NewAvailabilityService(repo, rules, now, logger)
	scheduleService := service.NewScheduleService(repo, rules, now, logger)
	bookingService := service.NewBookingService(repo, availabilityService, rules, now, logger)
	generatorService := service.NewGeneratorService(repo, rules, now, logger)
	calendarService := service.NewCalendarService(repo, logger)
	commitmentService := service.NewCommitmentService(repo, rules, logger)

	if cfg.GenerationSchedulerEnabled {
		scheduler := app.NewScheduler(generatorService, rules.Location, now, logger)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	} else {
		logger.Info("GENERATION_SCHEDULER_ENABLED=false, monthly generation runs only via cmd/generate or /generate")
	}

	if !cfg.BotEnabled() {
		logger.Info("TELEGRAM_TOKEN not set, admin bot disabled")
		<-ctx.Done()
		return nil
	}

	if len(cfg.AdminTelegramIDs) == 0 {
		logger.Warn("ADMIN_TELEGRAM_IDS is empty, bot commands will be rejected")
	}

	botInstance, err := bot.New(cfg.TelegramToken)
	if err != nil {
		return err
	}

	cmdHandlers := handlers.NewHandlers(
		availabilityService,
		bookingService,
		scheduleService,
		calendarService,
		commitmentService,
		generatorService,
		cfg.AdminTelegramIDs,
		rules.Location,
		now,
		logger,
	)

	botController := controller.NewBotController(botInstance, cmdHandlers, logger)
	if err := botController.RegisterHandlers(ctx); err != nil {
		return err
	}

	botController.Start(ctx)
	return nil
}

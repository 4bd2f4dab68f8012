package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/lesson_booking/internal/service"
	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN             string
	Environment       string
	LogLevel          string
	TelegramToken     string
	AdminTelegramIDs  []int64
	BusinessTimezone  string
	MigrationsEnabled bool

	// GenerationSchedulerEnabled включает ежемесячную генерацию внутри процесса бота
	GenerationSchedulerEnabled bool

	LessonLength           time.Duration
	MinBookingLead         time.Duration
	CustomerRebookWindow   time.Duration
	InstructorRebookWindow time.Duration
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return FromEnv()
}

// FromEnv читает конфигурацию из переменных окружения
func FromEnv() (*Config, error) {
	cfg := &Config{
		DBDSN:            os.Getenv("DB_DSN"),
		Environment:      getEnv("ENV", "development"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		TelegramToken:    os.Getenv("TELEGRAM_TOKEN"),
		BusinessTimezone: getEnv("BUSINESS_TIMEZONE", "Asia/Tokyo"),
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}

	if _, err := time.LoadLocation(cfg.BusinessTimezone); err != nil {
		return nil, fmt.Errorf("BUSINESS_TIMEZONE: %w", err)
	}

	ids, err := parseIDs(os.Getenv("ADMIN_TELEGRAM_IDS"))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_IDS: %w", err)
	}
	cfg.AdminTelegramIDs = ids

	if cfg.MigrationsEnabled, err = getBool("MIGRATIONS_ENABLED", true); err != nil {
		return nil, err
	}

	if cfg.GenerationSchedulerEnabled, err = getBool("GENERATION_SCHEDULER_ENABLED", true); err != nil {
		return nil, err
	}

	minutes, err := getInt("LESSON_LENGTH_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	if minutes <= 0 || 24*60%minutes != 0 {
		return nil, fmt.Errorf("LESSON_LENGTH_MINUTES must divide a day, got %d", minutes)
	}
	cfg.LessonLength = time.Duration(minutes) * time.Minute

	if cfg.MinBookingLead, err = getDuration("MIN_BOOKING_LEAD", 3*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CustomerRebookWindow, err = getDuration("CUSTOMER_REBOOK_WINDOW", 3*time.Hour); err != nil {
		return nil, err
	}
	if cfg.InstructorRebookWindow, err = getDuration("INSTRUCTOR_REBOOK_WINDOW", 180*24*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

// BotEnabled сообщает, нужно ли поднимать админ-бота
func (c *Config) BotEnabled() bool {
	return c.TelegramToken != ""
}

// Rules собирает бизнес-параметры движка
func (c *Config) Rules() (service.Rules, error) {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return service.Rules{}, fmt.Errorf("load business timezone: %w", err)
	}

	return service.Rules{
		Location:               loc,
		LessonLength:           c.LessonLength,
		MinBookingLead:         c.MinBookingLead,
		CustomerRebookWindow:   c.CustomerRebookWindow,
		InstructorRebookWindow: c.InstructorRebookWindow,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return v, nil
}

// parseIDs разбирает список telegram id через запятую
func parseIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

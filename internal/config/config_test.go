package config

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, values map[string]string) {
	t.Helper()
	keys := []string{
		"DB_DSN", "ENV", "LOG_LEVEL", "TELEGRAM_TOKEN", "ADMIN_TELEGRAM_IDS", "BUSINESS_TIMEZONE",
		"LESSON_LENGTH_MINUTES", "MIN_BOOKING_LEAD", "CUSTOMER_REBOOK_WINDOW", "INSTRUCTOR_REBOOK_WINDOW",
		"MIGRATIONS_ENABLED", "GENERATION_SCHEDULER_ENABLED",
	}
	for _, k := range keys {
		t.Setenv(k, values[k])
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	setEnv(t, map[string]string{"DB_DSN": "postgres://localhost/lessons"})

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "Asia/Tokyo", cfg.BusinessTimezone)
	assert.Equal(t, 30*time.Minute, cfg.LessonLength)
	assert.Equal(t, 3*time.Hour, cfg.MinBookingLead)
	assert.Equal(t, 3*time.Hour, cfg.CustomerRebookWindow)
	assert.Equal(t, 4320*time.Hour, cfg.InstructorRebookWindow)
	assert.True(t, cfg.MigrationsEnabled)
	assert.True(t, cfg.GenerationSchedulerEnabled)
	assert.False(t, cfg.BotEnabled())
	assert.Empty(t, cfg.AdminTelegramIDs)

	rules, err := cfg.Rules()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", rules.Location.String())
	assert.Equal(t, 30*time.Minute, rules.LessonLength)
}

func TestFromEnv_Overrides(t *testing.T) {
	setEnv(t, map[string]string{
		"DB_DSN":                       "postgres://localhost/lessons",
		"ENV":                          "production",
		"TELEGRAM_TOKEN":               "123:abc",
		"ADMIN_TELEGRAM_IDS":           " 42, 1001 ,",
		"BUSINESS_TIMEZONE":            "Europe/Berlin",
		"LESSON_LENGTH_MINUTES":        "60",
		"MIN_BOOKING_LEAD":             "90m",
		"CUSTOMER_REBOOK_WINDOW":       "24h",
		"INSTRUCTOR_REBOOK_WINDOW":     "720h",
		"MIGRATIONS_ENABLED":           "false",
		"GENERATION_SCHEDULER_ENABLED": "0",
	})

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.BotEnabled())
	assert.Equal(t, []int64{42, 1001}, cfg.AdminTelegramIDs)
	assert.Equal(t, time.Hour, cfg.LessonLength)
	assert.Equal(t, 90*time.Minute, cfg.MinBookingLead)
	assert.Equal(t, 24*time.Hour, cfg.CustomerRebookWindow)
	assert.Equal(t, 720*time.Hour, cfg.InstructorRebookWindow)
	assert.False(t, cfg.MigrationsEnabled)
	assert.False(t, cfg.GenerationSchedulerEnabled)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing dsn", env: map[string]string{}},
		{name: "bad timezone", env: map[string]string{"DB_DSN": "x", "BUSINESS_TIMEZONE": "Nowhere/City"}},
		{name: "bad admin id", env: map[string]string{"DB_DSN": "x", "ADMIN_TELEGRAM_IDS": "42,abc"}},
		{name: "lesson length not dividing a day", env: map[string]string{"DB_DSN": "x", "LESSON_LENGTH_MINUTES": "7"}},
		{name: "zero lesson length", env: map[string]string{"DB_DSN": "x", "LESSON_LENGTH_MINUTES": "0"}},
		{name: "bad duration", env: map[string]string{"DB_DSN": "x", "MIN_BOOKING_LEAD": "three hours"}},
		{name: "negative window", env: map[string]string{"DB_DSN": "x", "CUSTOMER_REBOOK_WINDOW": "-1h"}},
		{name: "bad bool", env: map[string]string{"DB_DSN": "x", "MIGRATIONS_ENABLED": "maybe"}},
		{name: "bad scheduler flag", env: map[string]string{"DB_DSN": "x", "GENERATION_SCHEDULER_ENABLED": "sometimes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	TelegramToken string
	DBDSN         string
	Environment   string

	// Настройки ядра уведомлений
	Timezone                string
	DefaultNotificationTime int   // минут до пары по умолчанию
	MaxRetryAttempts        int
	RetryIntervalsMinutes   []int // пауза перед 1-й, 2-й и 3-й повторной попыткой
	PlannerChunkSize        int
	CleanupRetentionDays    int
	DeliveryTimeout         time.Duration

	Location *time.Location
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	cfg := &Config{
		TelegramToken:           os.Getenv("TELEGRAM_TOKEN"),
		DBDSN:                   os.Getenv("DB_DSN"),
		Environment:             os.Getenv("ENV"),
		Timezone:                os.Getenv("TIMEZONE"),
		DefaultNotificationTime: getEnvInt("DEFAULT_NOTIFICATION_TIME", 10),
		MaxRetryAttempts:        getEnvInt("MAX_RETRY_ATTEMPTS", 3),
		PlannerChunkSize:        getEnvInt("PLANNER_CHUNK_SIZE", 50),
		CleanupRetentionDays:    getEnvInt("CLEANUP_RETENTION_DAYS", 7),
		DeliveryTimeout:         time.Duration(getEnvInt("DELIVERY_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	// Устанавливаем дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Europe/Moscow"
	}

	intervals, err := parseIntervals(os.Getenv("RETRY_INTERVALS_MINUTES"))
	if err != nil {
		return nil, fmt.Errorf("RETRY_INTERVALS_MINUTES: %w", err)
	}
	cfg.RetryIntervalsMinutes = intervals

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is required but not set")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	log.Printf("Config loaded (env=%s, tz=%s)\n", cfg.Environment, cfg.Timezone)

	return cfg, nil
}

func getEnvInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️  %s=%q is not a number, using default %d", key, raw, def)
		return def
	}
	return v
}

// parseIntervals разбирает список пауз вида "1,3,5".
func parseIntervals(raw string) ([]int, error) {
	if raw == "" {
		return []int{1, 3, 5}, nil
	}

	parts := strings.Split(raw, ",")
	intervals := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad interval %q", p)
		}
		if v <= 0 {
			return nil, fmt.Errorf("interval must be positive, got %d", v)
		}
		intervals = append(intervals, v)
	}
	return intervals, nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every knob the server reads from the environment.
type Config struct {
	Port          string
	DatabaseURL   string
	DatabaseToken string

	TelegramToken string
	PublicURL     string

	AdminUsername string
	AdminPassword string

	// ExpiryWindow is how long a pending_payment reservation survives
	// before the sweep reverts it.
	ExpiryWindow  time.Duration
	SweepInterval time.Duration

	// PrizeSplit is the fraction of the pool paid per place, first place
	// first. MaxWinners must not exceed the number of places.
	PrizeSplit []float64
	MaxWinners int

	LogLevel string
}

// Load reads the configuration from the environment, picking up a .env
// file first if one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:          envOr("PORT", "8080"),
		DatabaseURL:   envOr("DATABASE_URL", "file:lotteria.db"),
		DatabaseToken: os.Getenv("DATABASE_AUTH_TOKEN"),
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		PublicURL:     envOr("PUBLIC_URL", "http://127.0.0.1:8080"),
		AdminUsername: envOr("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
	}

	var err error
	if cfg.ExpiryWindow, err = envDuration("TICKET_EXPIRY_WINDOW", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = envDuration("EXPIRY_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ExpiryWindow <= 0 {
		return Config{}, fmt.Errorf("TICKET_EXPIRY_WINDOW must be positive, got %s", cfg.ExpiryWindow)
	}
	if cfg.PrizeSplit, err = envPrizeSplit("PRIZE_SPLIT", []float64{0.40, 0.20, 0.10}); err != nil {
		return Config{}, err
	}
	if cfg.MaxWinners, err = envInt("MAX_WINNERS", 3); err != nil {
		return Config{}, err
	}
	if cfg.MaxWinners < 1 {
		return Config{}, fmt.Errorf("MAX_WINNERS must be positive, got %d", cfg.MaxWinners)
	}
	if cfg.MaxWinners > len(cfg.PrizeSplit) {
		return Config{}, fmt.Errorf("MAX_WINNERS is %d but PRIZE_SPLIT has only %d places", cfg.MaxWinners, len(cfg.PrizeSplit))
	}
	if cfg.AdminPassword == "" {
		return Config{}, fmt.Errorf("ADMIN_PASSWORD must be set")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// envPrizeSplit parses a comma-separated list of pool percentages per
// place, e.g. "40,20,10".
func envPrizeSplit(key string, fallback []float64) ([]float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	var split []float64
	total := 0.0
	for _, part := range strings.Split(v, ",") {
		pct, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		if pct <= 0 {
			return nil, fmt.Errorf("invalid %s: percentage %v must be positive", key, pct)
		}
		total += pct
		split = append(split, pct/100)
	}
	if total > 100 {
		return nil, fmt.Errorf("invalid %s: percentages sum to %v, more than the pool", key, total)
	}
	return split, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	// Accept either a Go duration ("90m") or a plain number of hours,
	// matching the original deployment's HOURS-style variable.
	if hours, err := strconv.Atoi(v); err == nil {
		return time.Duration(hours) * time.Hour, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

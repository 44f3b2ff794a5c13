package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Port     string
	LogLevel string

	// Storage selects the record store: "postgres" or "memory".
	Storage       string
	DBConn        string
	MigrationsDir string
	StoreTimeout  time.Duration

	MaxBusinessCredits int
	// DefaultInterestRate is a yearly rate in percent.
	DefaultInterestRate decimal.Decimal

	CBREnabled bool
	CBRURL     string
	CBRMargin  decimal.Decimal

	SweepEnabled  bool
	SweepSchedule string
	SweepTimezone string

	CORSAllowedOrigins []string
}

// NewConfig loads configuration from environment variables. A .env file in
// the working directory is applied first when present.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		Storage:            strings.ToLower(getEnv("STORAGE", "postgres")),
		DBConn:             getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable"),
		MigrationsDir:      getEnv("MIGRATIONS_DIR", "file://migrations"),
		CBRURL:             getEnv("CBR_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),
		SweepSchedule:      getEnv("SWEEP_SCHEDULE", "0 1 * * *"),
		SweepTimezone:      getEnv("SWEEP_TIMEZONE", "UTC"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.StoreTimeout, err = getEnvDuration("STORE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxBusinessCredits, err = getEnvInt("MAX_BUSINESS_CREDITS", 5); err != nil {
		return nil, err
	}
	if cfg.DefaultInterestRate, err = getEnvDecimal("DEFAULT_INTEREST_RATE", "15"); err != nil {
		return nil, err
	}
	if cfg.CBRMargin, err = getEnvDecimal("CBR_MARGIN", "5"); err != nil {
		return nil, err
	}
	if cfg.CBREnabled, err = getEnvBool("CBR_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.SweepEnabled, err = getEnvBool("SWEEP_ENABLED", true); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	switch c.Storage {
	case "postgres":
		if c.DBConn == "" {
			return fmt.Errorf("DB_CONN is required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORAGE must be postgres or memory, got %q", c.Storage)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.MaxBusinessCredits <= 0 {
		return fmt.Errorf("MAX_BUSINESS_CREDITS must be positive")
	}
	if c.DefaultInterestRate.IsNegative() {
		return fmt.Errorf("DEFAULT_INTEREST_RATE must not be negative")
	}
	if c.SweepEnabled && c.SweepSchedule == "" {
		return fmt.Errorf("SWEEP_SCHEDULE is required when the sweep is enabled")
	}
	if _, err := time.LoadLocation(c.SweepTimezone); err != nil {
		return fmt.Errorf("invalid SWEEP_TIMEZONE: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvDecimal(key, defaultVal string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, defaultVal))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

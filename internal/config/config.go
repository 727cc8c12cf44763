package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Port       string
	DBConn     string
	LogLevel   string
	JWTSecret  string
	HMACSecret string

	// SMTP settings for the notification sender.
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	// Benchmark rate feed used to price loans when no rate is supplied.
	RateFeedURL string
	RateMargin  decimal.Decimal

	// Collection identity presented in payment instructions.
	CollectionVPA string

	// Defaults applied when a credit line is created on first access.
	DefaultCreditLimit decimal.Decimal
	ProcessingFeeRate  decimal.Decimal
	DailyInterestRate  decimal.Decimal

	// Annual rate for loan applications when the rate feed is unreachable.
	DefaultAnnualRate decimal.Decimal

	Fees FeeTables
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBConn:        getEnv("DB_CONN", "host=localhost port=5432 user=test password=test dbname=lending sslmode=disable"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:     getEnv("JWT_SECRET", "secret"),
		HMACSecret:    getEnv("HMAC_SECRET", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		SMTPHost:      getEnv("SMTP_HOST", "localhost"),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SenderEmail:   getEnv("SENDER_EMAIL", "no-reply@credana.example"),
		RateFeedURL:   getEnv("RATE_FEED_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),
		CollectionVPA: getEnv("COLLECTION_VPA", "credana@upi"),
		Fees:          DefaultFeeTables(),
	}

	var err error
	if cfg.RateMargin, err = decimalEnv("RATE_MARGIN", "5.0"); err != nil {
		return nil, err
	}
	if cfg.DefaultCreditLimit, err = decimalEnv("DEFAULT_CREDIT_LIMIT", "25000"); err != nil {
		return nil, err
	}
	if cfg.ProcessingFeeRate, err = decimalEnv("PROCESSING_FEE_RATE", "0.02"); err != nil {
		return nil, err
	}
	if cfg.DailyInterestRate, err = decimalEnv("DAILY_INTEREST_RATE", "0.0005"); err != nil {
		return nil, err
	}
	if cfg.DefaultAnnualRate, err = decimalEnv("DEFAULT_ANNUAL_RATE", "18"); err != nil {
		return nil, err
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.HMACSecret == "" {
		return nil, fmt.Errorf("HMAC_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func decimalEnv(key, defaultVal string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, defaultVal))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

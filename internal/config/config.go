package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	DatabaseURL string
	MaxDBConns  int32

	// AppURL is the public base URL used to build invitation links.
	AppURL string

	NotifyTimeout time.Duration
	SlackTimeout  time.Duration
	// NotifyConcurrency bounds parallel recipient sends within a campaign.
	NotifyConcurrency int

	SMTP SMTPConfig
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	notifyTimeout, err := time.ParseDuration(getEnv("NOTIFY_TIMEOUT", "10s"))
	if err != nil {
		notifyTimeout = 10 * time.Second
	}

	slackTimeout, err := time.ParseDuration(getEnv("SLACK_TIMEOUT", "5s"))
	if err != nil {
		slackTimeout = 5 * time.Second
	}

	return &Config{
		Env:         getEnv("ENV", "development"),
		DatabaseURL: getEnvOrPanic("DATABASE_URL"),
		MaxDBConns:  int32(getEnvInt("DB_MAX_CONNS", 10)),

		AppURL: getEnv("APP_URL", "http://localhost:3000"),

		NotifyTimeout:     notifyTimeout,
		SlackTimeout:      slackTimeout,
		NotifyConcurrency: getEnvInt("NOTIFY_CONCURRENCY", 4),

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
	}, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getEnvOrPanic(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		panic("required environment variable not set: " + key)
	}
	return value
}

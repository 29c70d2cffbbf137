// Package config centralises configuration parsing for the filing bot.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config captures runtime configuration values.
type Config struct {
	Store    StoreConfig
	LDA      LDAConfig
	Slack    SlackConfig
	Kafka    KafkaConfig
	HTTP     HTTPConfig
	Auth     AuthConfig
	Schedule ScheduleConfig
	Log      LogConfig

	WatchlistPath string `env:"WATCHLIST_PATH"`
}

// StoreConfig selects the filings store.
type StoreConfig struct {
	Driver      string `env:"DATABASE_DRIVER" envDefault:"sqlite" validate:"oneof=sqlite postgres memory"`
	Path        string `env:"DATABASE_PATH" envDefault:"/app/data/filings.db" validate:"required_if=Driver sqlite"`
	PostgresURL string `env:"POSTGRES_URL" validate:"required_if=Driver postgres"`
}

// LDAConfig controls the filings API client.
type LDAConfig struct {
	APIKey     string        `env:"LDA_API_KEY"`
	BaseURL    string        `env:"LDA_BASE_URL" envDefault:"https://lda.senate.gov/api/v1/filings/" validate:"url"`
	Timeout    time.Duration `env:"LDA_TIMEOUT" envDefault:"20s" validate:"gt=0"`
	MaxRetries int           `env:"LDA_MAX_RETRIES" envDefault:"3" validate:"gte=0,lte=10"`
	Backoff    time.Duration `env:"LDA_BACKOFF" envDefault:"500ms"`
	Ordering   string        `env:"LDA_ORDERING" envDefault:"-posted_at"`
	EarlyStop  bool          `env:"LDA_EARLY_STOP" envDefault:"true"`
	MaxPages   int           `env:"LDA_MAX_PAGES" envDefault:"0" validate:"gte=0"`
	UserAgent  string        `env:"LDA_USER_AGENT" envDefault:"lda-filing-bot/1.0"`
}

// SlackConfig holds chat credentials. Token empty disables Slack.
type SlackConfig struct {
	Token         string `env:"SLACK_TOKEN"`
	SigningSecret string `env:"SIGNING_SECRET" validate:"required_with=Token"`
	Channel       string `env:"SLACK_CHANNEL" envDefault:"#lda-filings"`
	PostEmpty     bool   `env:"SLACK_POST_EMPTY" envDefault:"false"`
	// APIURL points the Web API client elsewhere, e.g. at a local stand-in. Must end in "/".
	APIURL string `env:"SLACK_API_URL" validate:"omitempty,url,endswith=/"`
}

// KafkaConfig enables the event notifier and relay consumer when brokers are set.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"lda.filing.ingested"`
	GroupID string   `env:"CONSUMER_GROUP_ID" envDefault:"lda-bot-slack-relay"`
	// MetricsAddress is where cmd/consumer serves /metrics.
	MetricsAddress string `env:"CONSUMER_METRICS_ADDRESS" envDefault:":9102"`
}

// HTTPConfig configures the admin and events listener.
type HTTPConfig struct {
	Address         string        `env:"HTTP_ADDRESS" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// AuthConfig holds JWT verification parameters for the admin API.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-change-me" validate:"required"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"lda-bot"`
}

// ScheduleConfig configures the recurring sync.
type ScheduleConfig struct {
	Spec     string `env:"SCHEDULE" envDefault:"@daily"`
	Timezone string `env:"SCHEDULE_TZ" envDefault:"America/New_York"`
	Enabled  bool   `env:"SCHEDULE_ENABLED" envDefault:"true"`
}

// LogConfig configures logrus and optional file rotation.
type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format     string `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE" envDefault:"50"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"LOG_MAX_AGE" envDefault:"28"`
}

var validate = validator.New()

// Load reads optional .env files, then the environment, and validates the result.
// Missing env files are ignored; variables already set in the environment win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Kafka.Brokers = trimAll(cfg.Kafka.Brokers)
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// SlackEnabled reports whether chat delivery is configured.
func (c Config) SlackEnabled() bool { return c.Slack.Token != "" }

// KafkaEnabled reports whether event publishing is configured.
func (c Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }

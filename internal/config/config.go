package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName       = "CoderSMSRegister"
	defaultPort          = "8080"
	defaultLogLevel      = "info"
	defaultShutdownDelay = 10 * time.Second
	defaultAccountTTL    = 72 * time.Hour
	defaultSweepInterval = 5 * time.Minute
	defaultGracePeriod   = 30 * time.Second
	defaultHTTPTimeout   = 10 * time.Second
	defaultStreamKey     = "sms_stream"
	defaultConsumerGroup = "sms_consum_grp"
	defaultReadCount     = 3
	defaultBlockTimeout  = time.Second
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	Port     string
	LogLevel string

	DatabaseURL string
	RedisURL    string

	// Coder API.
	CoderAPIURL  string
	SessionToken string
	EmailDomain  string

	// Registration policy.
	Passphrase    string
	AccountTTL    time.Duration
	SweepInterval time.Duration
	GracePeriod   time.Duration

	// Durable stream.
	StreamKey     string
	ConsumerGroup string
	ReadCount     int64
	BlockTimeout  time.Duration

	// Outbound/inbound messaging.
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	WebhookURL       string

	HTTPTimeout    time.Duration
	ShutdownPeriod time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		CoderAPIURL:      os.Getenv("CODER_API_URL"),
		SessionToken:     os.Getenv("CODER_SESSION_TOKEN"),
		EmailDomain:      os.Getenv("CODER_EMAIL_DOMAIN"),
		Passphrase:       os.Getenv("REGISTRATION_PASSPHRASE"),
		AccountTTL:       defaultAccountTTL,
		SweepInterval:    defaultSweepInterval,
		GracePeriod:      defaultGracePeriod,
		StreamKey:        getEnv("STREAM_KEY", defaultStreamKey),
		ConsumerGroup:    getEnv("CONSUMER_GROUP", defaultConsumerGroup),
		ReadCount:        defaultReadCount,
		BlockTimeout:     defaultBlockTimeout,
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		WebhookURL:       os.Getenv("TWILIO_WEBHOOK_URL"),
		HTTPTimeout:      defaultHTTPTimeout,
		ShutdownPeriod:   defaultShutdownDelay,
	}

	durations := []struct {
		envVar string
		target *time.Duration
	}{
		{"ACCOUNT_TTL", &cfg.AccountTTL},
		{"SWEEP_INTERVAL", &cfg.SweepInterval},
		{"GRACE_PERIOD", &cfg.GracePeriod},
		{"BLOCK_TIMEOUT", &cfg.BlockTimeout},
		{"HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod},
	}
	for _, d := range durations {
		if v := os.Getenv(d.envVar); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.envVar, err)
			}
			*d.target = parsed
		}
	}

	if v := os.Getenv("STREAM_READ_COUNT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid STREAM_READ_COUNT: %w", err)
		}
		cfg.ReadCount = n
	}

	required := []struct {
		envVar string
		value  string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"CODER_API_URL", cfg.CoderAPIURL},
		{"CODER_SESSION_TOKEN", cfg.SessionToken},
		{"CODER_EMAIL_DOMAIN", cfg.EmailDomain},
		{"REGISTRATION_PASSPHRASE", cfg.Passphrase},
		{"TWILIO_ACCOUNT_SID", cfg.TwilioAccountSID},
		{"TWILIO_AUTH_TOKEN", cfg.TwilioAuthToken},
		{"TWILIO_FROM_NUMBER", cfg.TwilioFromNumber},
		{"TWILIO_WEBHOOK_URL", cfg.WebhookURL},
	}
	for _, r := range required {
		if r.value == "" {
			return Config{}, fmt.Errorf("%s must be set", r.envVar)
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

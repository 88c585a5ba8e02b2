package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration derived from environment variables
// and an optional YAML file. Environment values win over file values.
type Config struct {
	Server     ServerConfig
	Logging    LoggingConfig
	Classifier ClassifierConfig
	Geocoder   GeocoderConfig
	Intake     IntakeConfig
	Review     ReviewConfig
	Session    SessionConfig
	Notify     NotifyConfig
	Digest     DigestConfig
	Sentry     SentryConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// ClassifierConfig selects and tunes the image classification providers.
type ClassifierConfig struct {
	// Providers is the fallback order. Providers without credentials are skipped.
	Providers       []string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	AnthropicModel  string
	Timeout         time.Duration
	MaxRetries      int
}

// GeocoderConfig selects the reverse geocoding provider.
type GeocoderConfig struct {
	Provider string // openai, label, none
	Model    string
	Timeout  time.Duration
}

// IntakeConfig governs citizen uploads.
type IntakeConfig struct {
	MaxImageBytes int
	DeviceTimeout time.Duration
	// AllowUnlocated permits submitting with no resolved location, recording (0, 0).
	AllowUnlocated bool
}

// ReviewConfig governs authority actions.
type ReviewConfig struct {
	DispatchDelay      time.Duration
	DispatchMaxRetries int
	EvidenceBaseURL    string
}

// SessionConfig controls session tokens.
type SessionConfig struct {
	JWTSecret string
	TTL       time.Duration
}

// NotifyConfig configures outbound Slack notifications.
type NotifyConfig struct {
	SlackBotToken string
	SlackChannel  string
	SlackAPIURL   string
	// DepartmentChannels maps a suggested department to a Slack channel.
	DepartmentChannels map[string]string
}

// DigestConfig schedules the pending-report digest. An empty schedule disables it.
type DigestConfig struct {
	Schedule string
}

// SentryConfig configures error capture. An empty DSN disables it.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 90 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultOpenAIModel       = "gpt-4o-mini"
	defaultAnthropicModel    = "claude-sonnet-4-5-20250929"
	defaultClassifierTimeout = 30 * time.Second
	defaultClassifierRetries = 2

	defaultGeocoderTimeout = 10 * time.Second

	defaultMaxImageBytes = 5 << 20
	defaultDeviceTimeout = 15 * time.Second

	defaultDispatchDelay   = 1000 * time.Millisecond
	defaultDispatchRetries = 3
	defaultEvidenceBaseURL = "https://storage.googleapis.com/civic-eye/evidence/"

	defaultSessionTTL = 12 * time.Hour

	defaultDigestSchedule = "@hourly"
)

// Load reads configuration from CONFIG_PATH (if set) and environment
// variables, applying defaults when values are not provided.
func Load() (Config, error) {
	src, err := newSource(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return Config{}, err
	}
	return load(src)
}

func load(src source) (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := src.get("PORT")
	if port == "" {
		port = src.getDefault("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Classifier: ClassifierConfig{
			Providers:       []string{"openai", "anthropic"},
			OpenAIAPIKey:    src.get("OPENAI_API_KEY"),
			OpenAIModel:     src.getDefault("OPENAI_MODEL", defaultOpenAIModel),
			OpenAIBaseURL:   src.get("OPENAI_BASE_URL"),
			AnthropicAPIKey: src.get("ANTHROPIC_API_KEY"),
			AnthropicModel:  src.getDefault("ANTHROPIC_MODEL", defaultAnthropicModel),
			Timeout:         defaultClassifierTimeout,
			MaxRetries:      defaultClassifierRetries,
		},
		Geocoder: GeocoderConfig{
			Model:   src.getDefault("GEOCODER_MODEL", defaultOpenAIModel),
			Timeout: defaultGeocoderTimeout,
		},
		Intake: IntakeConfig{
			MaxImageBytes: defaultMaxImageBytes,
			DeviceTimeout: defaultDeviceTimeout,
		},
		Review: ReviewConfig{
			DispatchDelay:      defaultDispatchDelay,
			DispatchMaxRetries: defaultDispatchRetries,
			EvidenceBaseURL:    src.getDefault("EVIDENCE_BASE_URL", defaultEvidenceBaseURL),
		},
		Session: SessionConfig{
			JWTSecret: src.get("SESSION_JWT_SECRET"),
			TTL:       defaultSessionTTL,
		},
		Notify: NotifyConfig{
			SlackBotToken:      src.get("SLACK_BOT_TOKEN"),
			SlackChannel:       src.get("SLACK_CHANNEL"),
			SlackAPIURL:        src.get("SLACK_API_URL"),
			DepartmentChannels: map[string]string{},
		},
		Digest: DigestConfig{
			Schedule: defaultDigestSchedule,
		},
		Sentry: SentryConfig{
			DSN:         src.get("SENTRY_DSN"),
			Environment: src.getDefault("SENTRY_ENVIRONMENT", "development"),
			Release:     src.get("SENTRY_RELEASE"),
		},
	}

	durations := []struct {
		key    string
		target *time.Duration
		parse  func(string) (time.Duration, error)
	}{
		{"SERVER_READ_TIMEOUT_SECONDS", &cfg.Server.ReadTimeout, parseSeconds},
		{"SERVER_WRITE_TIMEOUT_SECONDS", &cfg.Server.WriteTimeout, parseSeconds},
		{"SERVER_SHUTDOWN_TIMEOUT_SECONDS", &cfg.Server.ShutdownTimeout, parseSeconds},
		{"CLASSIFIER_TIMEOUT_SECONDS", &cfg.Classifier.Timeout, parseSeconds},
		{"GEOCODER_TIMEOUT_SECONDS", &cfg.Geocoder.Timeout, parseSeconds},
		{"LOCATION_TIMEOUT_SECONDS", &cfg.Intake.DeviceTimeout, parseSeconds},
		{"REVIEW_DISPATCH_DELAY_MS", &cfg.Review.DispatchDelay, parseMillis},
		{"SESSION_TTL_MINUTES", &cfg.Session.TTL, parseMinutes},
	}
	for _, d := range durations {
		if v := src.get(d.key); v != "" {
			parsed, err := d.parse(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
			}
			*d.target = parsed
		}
	}

	ints := []struct {
		key    string
		target *int
	}{
		{"CLASSIFIER_MAX_RETRIES", &cfg.Classifier.MaxRetries},
		{"REVIEW_DISPATCH_MAX_RETRIES", &cfg.Review.DispatchMaxRetries},
		{"INTAKE_MAX_IMAGE_BYTES", &cfg.Intake.MaxImageBytes},
	}
	for _, i := range ints {
		if v := src.get(i.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return Config{}, fmt.Errorf("invalid %s: must be a non-negative integer", i.key)
			}
			*i.target = n
		}
	}

	if v := src.get("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := src.get("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := src.get("CLASSIFIER_PROVIDERS"); v != "" {
		providers, err := parseProviders(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CLASSIFIER_PROVIDERS: %w", err)
		}
		cfg.Classifier.Providers = providers
	}

	cfg.Geocoder.Provider = "label"
	if cfg.Classifier.OpenAIAPIKey != "" {
		cfg.Geocoder.Provider = "openai"
	}
	if v := src.get("GEOCODER_PROVIDER"); v != "" {
		switch v {
		case "openai", "label", "none":
			cfg.Geocoder.Provider = v
		default:
			return Config{}, fmt.Errorf("invalid GEOCODER_PROVIDER: must be one of openai, label, none")
		}
	}

	if v := src.get("INTAKE_ALLOW_UNLOCATED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid INTAKE_ALLOW_UNLOCATED: must be a boolean")
		}
		cfg.Intake.AllowUnlocated = b
	}

	if v := src.get("SLACK_DEPARTMENT_CHANNELS"); v != "" {
		channels, err := parseChannelMap(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SLACK_DEPARTMENT_CHANNELS: %w", err)
		}
		cfg.Notify.DepartmentChannels = channels
	}
	if cfg.Notify.SlackBotToken != "" && cfg.Notify.SlackChannel == "" {
		return Config{}, fmt.Errorf("invalid SLACK_CHANNEL: required when SLACK_BOT_TOKEN is set")
	}

	if v, ok := src.lookup("DIGEST_SCHEDULE"); ok {
		if v == "off" {
			v = ""
		}
		cfg.Digest.Schedule = v
	}

	return cfg, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	return parseUnits(raw, time.Second)
}

func parseMillis(raw string) (time.Duration, error) {
	return parseUnits(raw, time.Millisecond)
}

func parseMinutes(raw string) (time.Duration, error) {
	return parseUnits(raw, time.Minute)
}

func parseUnits(raw string, unit time.Duration) (time.Duration, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(n) * unit, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}

func parseProviders(raw string) ([]string, error) {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		switch p {
		case "openai", "anthropic", "mock":
			out = append(out, p)
		default:
			return nil, fmt.Errorf("unknown provider %q", p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	return out, nil
}

// parseChannelMap reads "Department=CHANNEL,Other Dept=CHANNEL2".
func parseChannelMap(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		dept, channel, ok := strings.Cut(pair, "=")
		dept, channel = strings.TrimSpace(dept), strings.TrimSpace(channel)
		if !ok || dept == "" || channel == "" {
			return nil, fmt.Errorf("expected Department=CHANNEL, got %q", pair)
		}
		out[dept] = channel
	}
	return out, nil
}

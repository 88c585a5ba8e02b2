package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"log/slog"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %q, got %q", defaultPort, cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected default read timeout %v, got %v", defaultReadTimeout, cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != defaultWriteTimeout {
		t.Errorf("expected default write timeout %v, got %v", defaultWriteTimeout, cfg.Server.WriteTimeout)
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("expected default log level %v, got %v", slog.LevelInfo, cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Errorf("expected default log format %q, got %q", defaultLogFormat, cfg.Logging.Format)
	}
	if cfg.Classifier.Timeout != defaultClassifierTimeout {
		t.Errorf("expected classifier timeout %v, got %v", defaultClassifierTimeout, cfg.Classifier.Timeout)
	}
	if len(cfg.Classifier.Providers) != 2 || cfg.Classifier.Providers[0] != "openai" {
		t.Errorf("unexpected default providers %v", cfg.Classifier.Providers)
	}
	if cfg.Geocoder.Provider != "label" {
		t.Errorf("expected label geocoder without an OpenAI key, got %q", cfg.Geocoder.Provider)
	}
	if cfg.Intake.MaxImageBytes != 5*1024*1024 {
		t.Errorf("expected 5MiB image cap, got %d", cfg.Intake.MaxImageBytes)
	}
	if cfg.Intake.AllowUnlocated {
		t.Error("expected unlocated submissions to be blocked by default")
	}
	if cfg.Review.DispatchDelay != time.Second {
		t.Errorf("expected 1s dispatch delay, got %v", cfg.Review.DispatchDelay)
	}
	if cfg.Review.EvidenceBaseURL != defaultEvidenceBaseURL {
		t.Errorf("unexpected evidence base URL %q", cfg.Review.EvidenceBaseURL)
	}
	if cfg.Digest.Schedule != defaultDigestSchedule {
		t.Errorf("expected digest schedule %q, got %q", defaultDigestSchedule, cfg.Digest.Schedule)
	}
	if cfg.Sentry.DSN != "" {
		t.Errorf("expected sentry disabled, got DSN %q", cfg.Sentry.DSN)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearConfigEnv(t)

	overrides := map[string]string{
		"SERVER_PORT":                  "9090",
		"SERVER_READ_TIMEOUT_SECONDS":  "30",
		"SERVER_WRITE_TIMEOUT_SECONDS": "45",
		"LOG_LEVEL":                    "debug",
		"LOG_FORMAT":                   "text",
		"OPENAI_API_KEY":               "sk-test",
		"CLASSIFIER_PROVIDERS":         "anthropic, mock",
		"CLASSIFIER_TIMEOUT_SECONDS":   "12",
		"LOCATION_TIMEOUT_SECONDS":     "3",
		"INTAKE_ALLOW_UNLOCATED":       "true",
		"INTAKE_MAX_IMAGE_BYTES":       "1024",
		"REVIEW_DISPATCH_DELAY_MS":     "250",
		"SESSION_TTL_MINUTES":          "90",
		"SLACK_DEPARTMENT_CHANNELS":    "Public Works=C01, Sanitation=C02",
		"DIGEST_SCHEDULE":              "off",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected overridden port, got %q", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second || cfg.Server.WriteTimeout != 45*time.Second {
		t.Errorf("unexpected timeouts %v / %v", cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	}
	if cfg.Logging.Level != slog.LevelDebug || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
	if got := cfg.Classifier.Providers; len(got) != 2 || got[0] != "anthropic" || got[1] != "mock" {
		t.Errorf("unexpected providers %v", got)
	}
	if cfg.Classifier.Timeout != 12*time.Second {
		t.Errorf("expected classifier timeout 12s, got %v", cfg.Classifier.Timeout)
	}
	if cfg.Geocoder.Provider != "openai" {
		t.Errorf("expected openai geocoder when a key is set, got %q", cfg.Geocoder.Provider)
	}
	if cfg.Intake.DeviceTimeout != 3*time.Second || !cfg.Intake.AllowUnlocated || cfg.Intake.MaxImageBytes != 1024 {
		t.Errorf("unexpected intake config %+v", cfg.Intake)
	}
	if cfg.Review.DispatchDelay != 250*time.Millisecond {
		t.Errorf("expected 250ms dispatch delay, got %v", cfg.Review.DispatchDelay)
	}
	if cfg.Session.TTL != 90*time.Minute {
		t.Errorf("expected 90m session TTL, got %v", cfg.Session.TTL)
	}
	if cfg.Notify.DepartmentChannels["Sanitation"] != "C02" {
		t.Errorf("unexpected department channels %v", cfg.Notify.DepartmentChannels)
	}
	if cfg.Digest.Schedule != "" {
		t.Errorf("expected digest disabled, got %q", cfg.Digest.Schedule)
	}
}

func TestLoadWithInvalidValues(t *testing.T) {
	tests := map[string]string{
		"SERVER_READ_TIMEOUT_SECONDS":     "-1",
		"SERVER_WRITE_TIMEOUT_SECONDS":    "abc",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS": "3.5",
		"LOG_LEVEL":                       "verbose",
		"LOG_FORMAT":                      "xml",
		"CLASSIFIER_PROVIDERS":            "gemini",
		"CLASSIFIER_MAX_RETRIES":          "-2",
		"GEOCODER_PROVIDER":               "osm",
		"INTAKE_ALLOW_UNLOCATED":          "sometimes",
		"REVIEW_DISPATCH_DELAY_MS":        "fast",
		"SLACK_DEPARTMENT_CHANNELS":       "Roads",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error when %s=%q", key, value)
			}
		})
	}
}

func TestLoadSlackTokenNeedsDefaultChannel(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-token")
	t.Setenv("SLACK_DEPARTMENT_CHANNELS", "Public Works=C01")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for SLACK_BOT_TOKEN without SLACK_CHANNEL")
	}

	t.Setenv("SLACK_CHANNEL", "C-DEFAULT")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Notify.SlackChannel != "C-DEFAULT" {
		t.Errorf("expected default channel, got %q", cfg.Notify.SlackChannel)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "civiceye.yaml")
	content := `
server_port: 7070
log_level: warn
CLASSIFIER_MAX_RETRIES: 5
intake_allow_unlocated: true
slack_channel: C-FILE
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SLACK_CHANNEL", "C-ENV")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from file, got %q", cfg.Server.Port)
	}
	if cfg.Logging.Level != slog.LevelWarn {
		t.Errorf("expected warn level from file, got %v", cfg.Logging.Level)
	}
	if cfg.Classifier.MaxRetries != 5 {
		t.Errorf("expected 5 retries from file, got %d", cfg.Classifier.MaxRetries)
	}
	if !cfg.Intake.AllowUnlocated {
		t.Error("expected boolean from file to apply")
	}
	if cfg.Notify.SlackChannel != "C-ENV" {
		t.Errorf("expected environment to win over file, got %q", cfg.Notify.SlackChannel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestParseLogLevelAliases(t *testing.T) {
	tests := map[string]slog.Level{
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
	}

	for input, expected := range tests {
		level, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) returned error: %v", input, err)
		}

		if level != expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, level, expected)
		}
	}
}

func TestParseSecondsRejectsInvalidInput(t *testing.T) {
	cases := []string{"-1", "abc"}

	for _, input := range cases {
		if _, err := parseSeconds(input); err == nil {
			t.Fatalf("expected error for input %q", input)
		}
	}
}

func TestLoadDoesNotPersistEnvBetweenRuns(t *testing.T) {
	clearConfigEnv(t)

	t.Setenv("SERVER_READ_TIMEOUT_SECONDS", "5")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.Unsetenv("SERVER_READ_TIMEOUT_SECONDS"); err != nil {
		t.Fatalf("failed to unset env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected default read timeout after reset, got %v", cfg.Server.ReadTimeout)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CONFIG_PATH",
		"PORT",
		"SERVER_PORT",
		"SERVER_READ_TIMEOUT_SECONDS",
		"SERVER_WRITE_TIMEOUT_SECONDS",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"OPENAI_API_KEY",
		"OPENAI_MODEL",
		"OPENAI_BASE_URL",
		"ANTHROPIC_API_KEY",
		"ANTHROPIC_MODEL",
		"CLASSIFIER_PROVIDERS",
		"CLASSIFIER_TIMEOUT_SECONDS",
		"CLASSIFIER_MAX_RETRIES",
		"GEOCODER_PROVIDER",
		"GEOCODER_MODEL",
		"GEOCODER_TIMEOUT_SECONDS",
		"LOCATION_TIMEOUT_SECONDS",
		"INTAKE_ALLOW_UNLOCATED",
		"INTAKE_MAX_IMAGE_BYTES",
		"REVIEW_DISPATCH_DELAY_MS",
		"REVIEW_DISPATCH_MAX_RETRIES",
		"EVIDENCE_BASE_URL",
		"SESSION_JWT_SECRET",
		"SESSION_TTL_MINUTES",
		"SLACK_BOT_TOKEN",
		"SLACK_CHANNEL",
		"SLACK_API_URL",
		"SLACK_DEPARTMENT_CHANNELS",
		"DIGEST_SCHEDULE",
		"SENTRY_DSN",
		"SENTRY_ENVIRONMENT",
		"SENTRY_RELEASE",
	}

	for _, key := range keys {
		t.Setenv(key, "")
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/civiceye/civiceye/internal/api"
	"github.com/civiceye/civiceye/internal/classifier"
	"github.com/civiceye/civiceye/internal/config"
	"github.com/civiceye/civiceye/internal/geocode"
	"github.com/civiceye/civiceye/internal/intake"
	"github.com/civiceye/civiceye/internal/logging"
	"github.com/civiceye/civiceye/internal/metrics"
	"github.com/civiceye/civiceye/internal/notify"
	"github.com/civiceye/civiceye/internal/retry"
	"github.com/civiceye/civiceye/internal/review"
	"github.com/civiceye/civiceye/internal/scheduler"
	"github.com/civiceye/civiceye/internal/server"
	"github.com/civiceye/civiceye/internal/session"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/sashabaranov/go-openai"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting CivicEye", "version", version)

	// Sentry error tracking
	sentryEnabled := false
	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			Release:          cfg.Sentry.Release,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
		}); err != nil {
			logger.Error("sentry init failed", "error", err)
		} else {
			sentryEnabled = true
			defer sentry.Flush(2 * time.Second)
		}
	}

	collector, err := metrics.NewHTTPCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	pipeline, err := metrics.NewPipeline(collector.Registry())
	if err != nil {
		logger.Error("failed to init pipeline metrics", "error", err)
		os.Exit(1)
	}

	var openaiClient *openai.Client
	if cfg.Classifier.OpenAIAPIKey != "" {
		ocfg := openai.DefaultConfig(cfg.Classifier.OpenAIAPIKey)
		if cfg.Classifier.OpenAIBaseURL != "" {
			ocfg.BaseURL = cfg.Classifier.OpenAIBaseURL
		}
		openaiClient = openai.NewClientWithConfig(ocfg)
	}

	chain := buildClassifier(cfg.Classifier, openaiClient, pipeline, logger)
	geocoder := buildGeocoder(cfg.Geocoder, openaiClient, logger)
	notifier := buildNotifier(cfg.Notify, logger)

	dispatchPolicy := retry.DefaultPolicy()
	dispatchPolicy.MaxRetries = cfg.Review.DispatchMaxRetries

	sessions, err := session.NewManager(session.Config{
		JWTSecret:     cfg.Session.JWTSecret,
		TTL:           cfg.Session.TTL,
		DeviceTimeout: cfg.Intake.DeviceTimeout,
		Intake: intake.Config{
			MaxImageBytes:  cfg.Intake.MaxImageBytes,
			AllowUnlocated: cfg.Intake.AllowUnlocated,
		},
	}, session.Deps{
		Classifier:  chain,
		Geocoder:    geocoder,
		Dispatcher:  review.NewNotifyingDispatcher(review.SimulatedDispatcher{Delay: cfg.Review.DispatchDelay}, notifier, pipeline, logger),
		RetryPolicy: dispatchPolicy,
		Recorder:    pipeline,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to init sessions", "error", err)
		os.Exit(1)
	}
	defer sessions.Close()

	// Setup HTTP routes
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Service info endpoint
	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"service":"civiceye","status":"ready","version":%q,"classifier":%q,"geocoder":%q}`,
			version, chain.Name(), geocoderName(geocoder))
	})

	mux.Handle("/metrics", collector.Handler())

	handler := api.NewHandler(sessions, cfg.Review.EvidenceBaseURL, int64(cfg.Intake.MaxImageBytes), logger)
	api.SetupRoutes(mux, handler, sessions)

	digest, err := scheduler.NewDigestScheduler(cfg.Digest.Schedule, sessions, notifier, logger)
	if err != nil {
		logger.Error("failed to init digest scheduler", "error", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go digest.Start(ctx)

	var root http.Handler = collector.InstrumentHandler(mux)
	if sentryEnabled {
		root = sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(root)
	}
	root = server.Recover(logger, root)

	// Start server
	srv := server.New(cfg.Server, logger, root)

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("CivicEye started successfully",
		"classifier", chain.Name(),
		"geocoder", geocoderName(geocoder),
		"digest_schedule", cfg.Digest.Schedule,
		"sentry_enabled", sentryEnabled)
	logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))

	waitForSignal(logger)

	logger.Info("shutting down")
	digest.Stop()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

// buildClassifier assembles the provider fallback chain. Providers without
// credentials are skipped; with none left the deterministic mock is used.
func buildClassifier(cfg config.ClassifierConfig, openaiClient *openai.Client, rec classifier.Recorder, logger *slog.Logger) *classifier.Chain {
	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries

	var providers []classifier.Classifier
	for _, name := range cfg.Providers {
		switch name {
		case "openai":
			if openaiClient == nil {
				logger.Warn("OPENAI_API_KEY not set, skipping OpenAI classifier")
				continue
			}
			providers = append(providers, classifier.NewOpenAIClassifier(openaiClient, classifier.OpenAIConfig{
				Model:   cfg.OpenAIModel,
				Timeout: cfg.Timeout,
				Retry:   policy,
			}, logger))
		case "anthropic":
			if cfg.AnthropicAPIKey == "" {
				logger.Warn("ANTHROPIC_API_KEY not set, skipping Anthropic classifier")
				continue
			}
			client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey), option.WithMaxRetries(0))
			providers = append(providers, classifier.NewAnthropicClassifier(client, classifier.AnthropicConfig{
				Model:   cfg.AnthropicModel,
				Timeout: cfg.Timeout,
				Retry:   policy,
			}, logger))
		case "mock":
			providers = append(providers, classifier.NewMock())
		}
	}

	if len(providers) == 0 {
		logger.Warn("no classifier configured, using mock classifier")
		providers = append(providers, classifier.NewMock())
	}
	return classifier.NewChain(logger, rec, providers...)
}

func buildGeocoder(cfg config.GeocoderConfig, openaiClient *openai.Client, logger *slog.Logger) geocode.Geocoder {
	switch cfg.Provider {
	case "none":
		return nil
	case "openai":
		if openaiClient != nil {
			return geocode.NewOpenAIGeocoder(openaiClient, cfg.Model, cfg.Timeout, logger)
		}
		logger.Warn("OPENAI_API_KEY not set, falling back to label geocoder")
	}
	return geocode.LabelGeocoder{}
}

func geocoderName(g geocode.Geocoder) string {
	if g == nil {
		return "none"
	}
	return g.Name()
}

func buildNotifier(cfg config.NotifyConfig, logger *slog.Logger) notify.Notifier {
	if cfg.SlackBotToken == "" {
		logger.Info("SLACK_BOT_TOKEN not set, notifications go to the log")
		return notify.NewLogNotifier(logger)
	}
	return notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackAPIURL, cfg.SlackChannel, cfg.DepartmentChannels, logger)
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}

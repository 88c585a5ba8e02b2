package classifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/civiceye/civiceye/internal/models"
)

// Chain tries each classifier in order and returns the first success.
type Chain struct {
	providers []Classifier
	recorder  Recorder
	logger    *slog.Logger
}

// NewChain builds a chain. recorder may be nil.
func NewChain(logger *slog.Logger, recorder Recorder, providers ...Classifier) *Chain {
	return &Chain{providers: providers, recorder: recorder, logger: logger}
}

func (c *Chain) Name() string {
	if len(c.providers) == 1 {
		return c.providers[0].Name()
	}
	return "chain"
}

// Providers returns the provider names in order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

func (c *Chain) Classify(ctx context.Context, img models.Image, hint string) (models.AnalysisResult, error) {
	if len(c.providers) == 0 {
		return models.AnalysisResult{}, &Error{Provider: "chain", Err: errors.New("no classifier configured")}
	}

	var lastErr error
	for i, p := range c.providers {
		start := time.Now()
		result, err := p.Classify(ctx, img, hint)
		c.observe(p.Name(), err, time.Since(start))
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, ErrNoImage) || ctx.Err() != nil {
			break
		}
		if i < len(c.providers)-1 {
			c.logger.Warn("classifier failed, trying next provider",
				"provider", p.Name(),
				"next", c.providers[i+1].Name(),
				"error", err)
		}
	}
	return models.AnalysisResult{}, lastErr
}

func (c *Chain) observe(provider string, err error, d time.Duration) {
	if c.recorder == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedResponse):
		outcome = "malformed"
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	c.recorder.ObserveClassification(provider, outcome, d)
}

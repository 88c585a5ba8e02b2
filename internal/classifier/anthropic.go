package classifier

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/civiceye/civiceye/internal/models"
	"github.com/civiceye/civiceye/internal/retry"
)

// AnthropicConfig tunes the Anthropic vision classifier.
type AnthropicConfig struct {
	Model     string
	MaxTokens int64
	Timeout   time.Duration
	Retry     retry.Policy
}

// AnthropicClassifier sends the photo as a base64 image block to the Messages API.
type AnthropicClassifier struct {
	client anthropic.Client
	config AnthropicConfig
	logger *slog.Logger
}

// NewAnthropicClassifier takes a client built with anthropic.NewClient. The
// client should be created with option.WithMaxRetries(0) so that retries are
// governed by cfg.Retry only.
func NewAnthropicClassifier(client anthropic.Client, cfg AnthropicConfig, logger *slog.Logger) *AnthropicClassifier {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	return &AnthropicClassifier{client: client, config: cfg, logger: logger}
}

func (c *AnthropicClassifier) Name() string { return "anthropic" }

func (c *AnthropicClassifier) Classify(ctx context.Context, img models.Image, hint string) (models.AnalysisResult, error) {
	if len(img.Data) == 0 {
		return models.AnalysisResult{}, ErrNoImage
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   c.config.MaxTokens,
		Temperature: anthropic.Float(0.2),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mime, base64.StdEncoding.EncodeToString(img.Data)),
				anthropic.NewTextBlock(userPrompt(hint)),
			),
		},
	}

	var result models.AnalysisResult
	attempt := 0
	err := retry.Do(ctx, c.config.Retry, func(ctx context.Context) error {
		attempt++
		callCtx := ctx
		if c.config.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
			defer cancel()
		}

		start := time.Now()
		message, err := c.client.Messages.New(callCtx, params)
		c.logger.Info("anthropic classification call complete",
			"model", c.config.Model,
			"attempt", attempt,
			"duration_ms", time.Since(start).Milliseconds(),
			"success", err == nil)
		if err != nil {
			return c.wrap(ctx, err)
		}

		for _, block := range message.Content {
			if block.Type != "text" {
				continue
			}
			parsed, err := ParseAnalysis(block.Text)
			if err != nil {
				c.logger.Warn("anthropic returned an invalid analysis", "error", err, "content", trimmed(block.Text, 300))
				return &Error{Provider: c.Name(), Err: err}
			}
			result = parsed
			return nil
		}
		return &Error{Provider: c.Name(), Err: errors.New("no text content in response")}
	})
	if err != nil {
		return models.AnalysisResult{}, asError(c.Name(), err)
	}
	return result, nil
}

func (c *AnthropicClassifier) wrap(parent context.Context, err error) error {
	transient := false

	var apiErr *anthropic.Error
	switch {
	case errors.As(err, &apiErr):
		transient = apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	case errors.Is(err, context.DeadlineExceeded):
		transient = parent.Err() == nil
	}

	if transient {
		c.logger.Warn("anthropic transient failure", "error", err)
	}
	return &Error{Provider: c.Name(), Transient: transient, Err: err}
}

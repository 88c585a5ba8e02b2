package classifier

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/civiceye/civiceye/internal/models"
	"github.com/civiceye/civiceye/internal/retry"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig tunes the OpenAI vision classifier.
type OpenAIConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	Retry       retry.Policy
}

// OpenAIClassifier sends the photo as a data URL to a vision-capable chat model.
type OpenAIClassifier struct {
	client *openai.Client
	config OpenAIConfig
	logger *slog.Logger
}

func NewOpenAIClassifier(client *openai.Client, cfg OpenAIConfig, logger *slog.Logger) *OpenAIClassifier {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 800
	}
	return &OpenAIClassifier{client: client, config: cfg, logger: logger}
}

func (c *OpenAIClassifier) Name() string { return "openai" }

func (c *OpenAIClassifier) Classify(ctx context.Context, img models.Image, hint string) (models.AnalysisResult, error) {
	if len(img.Data) == 0 {
		return models.AnalysisResult{}, ErrNoImage
	}

	request := openai.ChatCompletionRequest{
		Model:               c.config.Model,
		Temperature:         c.config.Temperature,
		MaxCompletionTokens: c.config.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: userPrompt(hint)},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL(img),
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
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
		resp, err := c.client.CreateChatCompletion(callCtx, request)
		c.logger.Info("openai classification call complete",
			"model", c.config.Model,
			"attempt", attempt,
			"duration_ms", time.Since(start).Milliseconds(),
			"success", err == nil)
		if err != nil {
			return c.wrap(ctx, err)
		}
		if len(resp.Choices) == 0 {
			return &Error{Provider: c.Name(), Err: errors.New("no choices in response")}
		}

		content := resp.Choices[0].Message.Content
		parsed, err := ParseAnalysis(content)
		if err != nil {
			c.logger.Warn("openai returned an invalid analysis", "error", err, "content", trimmed(content, 300))
			return &Error{Provider: c.Name(), Err: err}
		}
		result = parsed
		return nil
	})
	if err != nil {
		return models.AnalysisResult{}, asError(c.Name(), err)
	}
	return result, nil
}

// wrap classifies a go-openai error. Rate limits, server errors and
// per-call timeouts are transient.
func (c *OpenAIClassifier) wrap(parent context.Context, err error) error {
	transient := false

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		transient = apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	case errors.As(err, &reqErr):
		transient = reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	case errors.Is(err, context.DeadlineExceeded):
		transient = parent.Err() == nil
	}

	if transient {
		c.logger.Warn("openai transient failure", "error", err)
	}
	return &Error{Provider: c.Name(), Transient: transient, Err: err}
}

func dataURL(img models.Image) string {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// asError makes sure callers always receive an *Error, even when the retry
// loop wrapped it or the context was cancelled between attempts.
func asError(provider string, err error) error {
	var ce *Error
	if errors.As(err, &ce) {
		if error(ce) == err {
			return ce
		}
		return &Error{Provider: provider, Transient: ce.Transient, Err: err}
	}
	return &Error{Provider: provider, Err: err}
}

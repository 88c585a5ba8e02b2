package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const geocodeSystemPrompt = `You are a reverse geocoding assistant. Given coordinates, reply with a JSON object:
{"address": "<short street address or neighbourhood, city>", "maps_url": "<optional map link>"}
If you cannot identify the place, use an empty address.`

// OpenAIGeocoder asks a chat model for the address at a coordinate pair.
type OpenAIGeocoder struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAIGeocoder wraps an existing go-openai client.
func NewOpenAIGeocoder(client *openai.Client, model string, timeout time.Duration, logger *slog.Logger) *OpenAIGeocoder {
	return &OpenAIGeocoder{client: client, model: model, timeout: timeout, logger: logger}
}

func (g *OpenAIGeocoder) Name() string { return "openai" }

func (g *OpenAIGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (Address, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: geocodeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Coordinates: %.6f, %.6f", lat, lng)},
		},
	})
	g.logger.Debug("reverse geocode call complete",
		"provider", g.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
		"success", err == nil)
	if err != nil {
		return Address{}, fmt.Errorf("reverse geocode: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Address{}, fmt.Errorf("reverse geocode: empty response")
	}

	var out Address
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		// Some models ignore JSON mode; treat plain text as the address.
		out = Address{Address: content}
	}

	out.Address = strings.TrimSpace(out.Address)
	if out.Address == "" {
		out.Address = UnavailableAddress
	}
	if !strings.HasPrefix(out.MapsURL, "https://") {
		out.MapsURL = FallbackMapsURL(lat, lng)
	}
	return out, nil
}

// Package notify delivers operator-facing messages.
package notify

import (
	"context"
	"log/slog"
)

// Message is a notification. Department, when set, selects a routed channel.
type Message struct {
	Title      string
	Body       string
	Department string
}

// Notifier sends messages somewhere a human will read them.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the structured log. It is used when no
// chat integration is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("notification",
		"title", msg.Title,
		"body", msg.Body,
		"department", msg.Department)
	return nil
}

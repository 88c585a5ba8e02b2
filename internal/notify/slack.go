package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/civiceye/civiceye/internal/retry"
	"github.com/slack-go/slack"
)

// SlackNotifier posts messages to Slack. Departments are routed through
// channels; anything unrouted goes to the default channel.
type SlackNotifier struct {
	api            *slack.Client
	defaultChannel string
	channels       map[string]string
	logger         *slog.Logger
}

// NewSlackNotifier builds a notifier. apiURL overrides the Slack endpoint
// and is empty in production.
func NewSlackNotifier(token, apiURL, defaultChannel string, channels map[string]string, logger *slog.Logger) *SlackNotifier {
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &SlackNotifier{
		api:            slack.New(token, opts...),
		defaultChannel: defaultChannel,
		channels:       channels,
		logger:         logger,
	}
}

// Channel returns the channel a message for department is posted to.
func (n *SlackNotifier) Channel(department string) string {
	if ch, ok := n.channels[department]; ok {
		return ch
	}
	return n.defaultChannel
}

func (n *SlackNotifier) Notify(ctx context.Context, msg Message) error {
	channel := n.Channel(msg.Department)
	if channel == "" {
		return fmt.Errorf("no slack channel for department %q", msg.Department)
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, msg.Title, false, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, msg.Body, false, false), nil, nil),
	}

	_, ts, err := n.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(msg.Title+"\n"+msg.Body, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		var rl *slack.RateLimitedError
		if errors.As(err, &rl) {
			return retry.TemporaryAfter(fmt.Errorf("slack post: %w", err), rl.RetryAfter)
		}
		return fmt.Errorf("slack post: %w", err)
	}

	n.logger.Debug("slack message posted", "channel", channel, "ts", ts)
	return nil
}

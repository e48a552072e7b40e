package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackOpts holds parameters for creating a Slack channel.
type SlackOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// Slack posts alerts as Slack attachments.
type Slack struct {
	client    slackClient
	channelID string
}

// NewSlack creates a Slack channel.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.BotToken)
	}
	return &Slack{client: client, channelID: opts.ChannelID}, nil
}

func (s *Slack) Name() string { return "slack" }

// Post sends the alert, retrying on rate limits.
func (s *Slack) Post(ctx context.Context, a Alert) error {
	options := slackMessageOptions(a)
	err := retry(ctx, func() error {
		_, _, err := s.client.PostMessageContext(ctx, s.channelID, options...)
		return err
	}, slackRateLimit)
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func slackRateLimit(err error) (bool, time.Duration) {
	var rle *slackapi.RateLimitedError
	if errors.As(err, &rle) {
		return true, rle.RetryAfter
	}
	return false, 0
}

func slackMessageOptions(a Alert) []slackapi.MsgOption {
	att := slackapi.Attachment{
		Title:     a.Title,
		TitleLink: a.URL,
		Text:      a.Body,
		Color:     a.Color,
	}
	for _, f := range a.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: true,
		})
	}
	return []slackapi.MsgOption{
		slackapi.MsgOptionText(a.Title, false),
		slackapi.MsgOptionAttachments(att),
	}
}

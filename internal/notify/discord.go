package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordOpts holds parameters for creating a Discord channel.
type DiscordOpts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock session instead of the real Discord API.
	Session discordSession
}

// Discord posts alerts as Discord embeds over the REST API.
type Discord struct {
	sess      discordSession
	channelID string
}

// NewDiscord creates a Discord channel.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel is required")
	}
	sess := opts.Session
	if sess == nil {
		s, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		sess = s
	}
	return &Discord{sess: sess, channelID: opts.ChannelID}, nil
}

func (d *Discord) Name() string { return "discord" }

// Post sends the alert, retrying on rate limits.
func (d *Discord) Post(ctx context.Context, a Alert) error {
	data := discordMessage(a)
	err := retry(ctx, func() error {
		_, err := d.sess.ChannelMessageSendComplex(d.channelID, data, discordgo.WithContext(ctx))
		return err
	}, discordRateLimit)
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

func discordRateLimit(err error) (bool, time.Duration) {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusTooManyRequests {
		return true, 0
	}
	return false, 0
}

func discordMessage(a Alert) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title:       a.Title,
		URL:         a.URL,
		Description: a.Body,
		Color:       parseHexColor(a.Color),
	}
	for _, f := range a.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: true,
		})
	}
	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
}

// parseHexColor converts "#rrggbb" to the integer Discord expects, or 0.
func parseHexColor(hex string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

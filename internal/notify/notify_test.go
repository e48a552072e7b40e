package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"

	"github.com/zulandar/switchboard/internal/models"
)

// mockSlack records posts and fails the first failN calls with err.
type mockSlack struct {
	mu    sync.Mutex
	calls int
	failN int
	err   error
	ch    []string
}

func (m *mockSlack) PostMessageContext(_ context.Context, channelID string, _ ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failN {
		return "", "", m.err
	}
	m.ch = append(m.ch, channelID)
	return channelID, "1234.5678", nil
}

type mockDiscord struct {
	mu    sync.Mutex
	calls int
	failN int
	err   error
	sent  []*discordgo.MessageSend
}

func (m *mockDiscord) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failN {
		return nil, m.err
	}
	m.sent = append(m.sent, data)
	return &discordgo.Message{ChannelID: channelID}, nil
}

type failingChannel struct{ name string }

func (f failingChannel) Name() string                      { return f.name }
func (f failingChannel) Post(context.Context, Alert) error { return errors.New("boom") }

func waitingSession() *models.Session {
	return &models.Session{
		ID:             "s1",
		CustomerID:     "c1",
		Status:         models.StatusWaiting,
		Priority:       models.PriorityHigh,
		TransferReason: "customer_request",
		Metadata:       models.Metadata{"name": "Ada", "email": "ada@example.com"},
	}
}

func TestNewSlack_RequiresToken(t *testing.T) {
	if _, err := NewSlack(SlackOpts{ChannelID: "C1"}); err == nil {
		t.Fatal("expected error without token")
	}
	if _, err := NewSlack(SlackOpts{BotToken: "xoxb-1"}); err == nil {
		t.Fatal("expected error without channel")
	}
}

func TestNewDiscord_RequiresToken(t *testing.T) {
	if _, err := NewDiscord(DiscordOpts{ChannelID: "1"}); err == nil {
		t.Fatal("expected error without token")
	}
	if _, err := NewDiscord(DiscordOpts{BotToken: "tok"}); err == nil {
		t.Fatal("expected error without channel")
	}
}

func TestWaitingAlert(t *testing.T) {
	a := WaitingAlert(waitingSession(), 2, "https://support.example.com")
	if !strings.Contains(a.Title, "Ada") {
		t.Errorf("Title = %q, want customer name", a.Title)
	}
	if a.URL != "https://support.example.com" {
		t.Errorf("URL = %q", a.URL)
	}
	if a.Color != "#e01e5a" {
		t.Errorf("Color = %q, want high-priority color", a.Color)
	}
	want := map[string]string{
		"Priority": "high",
		"Position": "#2",
		"Reason":   "customer_request",
		"Email":    "ada@example.com",
		"Session":  "s1",
	}
	got := make(map[string]string)
	for _, f := range a.Fields {
		got[f.Name] = f.Value
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestWaitingAlert_OmitsEmptyFields(t *testing.T) {
	sess := &models.Session{ID: "s2", CustomerID: "c2", Priority: models.PriorityLow}
	a := WaitingAlert(sess, 1, "")
	for _, f := range a.Fields {
		if f.Name == "Reason" || f.Name == "Email" {
			t.Errorf("unexpected field %s", f.Name)
		}
	}
}

func TestSlack_Post(t *testing.T) {
	mock := &mockSlack{}
	s, err := NewSlack(SlackOpts{ChannelID: "C-support", Client: mock})
	if err != nil {
		t.Fatalf("NewSlack: %v", err)
	}
	if err := s.Post(context.Background(), WaitingAlert(waitingSession(), 1, "")); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(mock.ch) != 1 || mock.ch[0] != "C-support" {
		t.Errorf("posted to %v, want [C-support]", mock.ch)
	}
}

func TestSlack_RetriesRateLimit(t *testing.T) {
	mock := &mockSlack{failN: 1, err: &slackapi.RateLimitedError{RetryAfter: time.Millisecond}}
	s, _ := NewSlack(SlackOpts{ChannelID: "C1", Client: mock})
	if err := s.Post(context.Background(), Alert{Title: "t"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if mock.calls != 2 {
		t.Errorf("calls = %d, want 2", mock.calls)
	}
}

func TestSlack_NoRetryOnOtherErrors(t *testing.T) {
	mock := &mockSlack{failN: 10, err: errors.New("channel_not_found")}
	s, _ := NewSlack(SlackOpts{ChannelID: "C1", Client: mock})
	if err := s.Post(context.Background(), Alert{Title: "t"}); err == nil {
		t.Fatal("expected error")
	}
	if mock.calls != 1 {
		t.Errorf("calls = %d, want 1", mock.calls)
	}
}

func TestDiscord_PostEmbed(t *testing.T) {
	mock := &mockDiscord{}
	d, err := NewDiscord(DiscordOpts{ChannelID: "42", Session: mock})
	if err != nil {
		t.Fatalf("NewDiscord: %v", err)
	}
	if err := d.Post(context.Background(), WaitingAlert(waitingSession(), 3, "")); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(mock.sent) != 1 || len(mock.sent[0].Embeds) != 1 {
		t.Fatalf("sent = %+v, want one embed", mock.sent)
	}
	embed := mock.sent[0].Embeds[0]
	if embed.Color != 0xe01e5a {
		t.Errorf("Color = %x, want e01e5a", embed.Color)
	}
	if len(embed.Fields) != 5 {
		t.Errorf("fields = %d, want 5", len(embed.Fields))
	}
}

func TestDiscord_RetriesTooManyRequests(t *testing.T) {
	rle := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
	mock := &mockDiscord{failN: 1, err: rle}
	d, _ := NewDiscord(DiscordOpts{ChannelID: "42", Session: mock})
	if err := d.Post(context.Background(), Alert{Title: "t"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if mock.calls != 2 {
		t.Errorf("calls = %d, want 2", mock.calls)
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retry(ctx, func() error { return errors.New("limited") }, func(error) (bool, time.Duration) {
		return true, time.Hour
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestParseHexColor(t *testing.T) {
	if got := parseHexColor("#2eb67d"); got != 0x2eb67d {
		t.Errorf("parseHexColor = %x, want 2eb67d", got)
	}
	if got := parseHexColor("nope"); got != 0 {
		t.Errorf("parseHexColor(nope) = %d, want 0", got)
	}
}

func TestNotifier_FansOutAndJoinsErrors(t *testing.T) {
	slackMock := &mockSlack{}
	s, _ := NewSlack(SlackOpts{ChannelID: "C1", Client: slackMock})
	n := New(Opts{Channels: []Channel{s, failingChannel{name: "broken"}}})
	if !n.Enabled() {
		t.Fatal("Enabled = false, want true")
	}
	err := n.CustomerWaiting(context.Background(), waitingSession(), 1)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("err = %v, want broken channel error", err)
	}
	if len(slackMock.ch) != 1 {
		t.Errorf("slack posts = %d, want 1 despite other failure", len(slackMock.ch))
	}
}

func TestNotifier_Disabled(t *testing.T) {
	n := New(Opts{})
	if n.Enabled() {
		t.Error("Enabled = true with no channels")
	}
	if err := n.CustomerWaiting(context.Background(), waitingSession(), 1); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

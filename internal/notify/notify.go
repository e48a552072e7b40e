// Package notify posts alerts to chat platforms when a customer starts
// waiting for a human agent.
package notify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/zulandar/switchboard/internal/metrics"
	"github.com/zulandar/switchboard/internal/models"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff between rate-limited retries.
	baseBackoff = time.Second
)

// Field is one labelled value in an alert.
type Field struct {
	Name  string
	Value string
}

// Alert is a platform-neutral notification.
type Alert struct {
	Title  string
	Body   string
	URL    string
	Color  string // hex, e.g. "#e01e5a"
	Fields []Field
}

// Channel delivers alerts to one platform.
type Channel interface {
	Name() string
	Post(ctx context.Context, a Alert) error
}

// Opts configures a Notifier.
type Opts struct {
	Channels []Channel
	// DashboardURL is linked from every alert when set.
	DashboardURL string
	Logger       zerolog.Logger
}

// Notifier fans a waiting-customer alert out to every channel.
type Notifier struct {
	channels     []Channel
	dashboardURL string
	log          zerolog.Logger
}

// New creates a Notifier.
func New(opts Opts) *Notifier {
	return &Notifier{
		channels:     opts.Channels,
		dashboardURL: opts.DashboardURL,
		log:          opts.Logger.With().Str("component", "notify").Logger(),
	}
}

// Enabled reports whether any channel is configured.
func (n *Notifier) Enabled() bool { return len(n.channels) > 0 }

// CustomerWaiting posts an alert for a newly queued session. Every channel
// is tried; failures are joined.
func (n *Notifier) CustomerWaiting(ctx context.Context, sess *models.Session, position int) error {
	alert := WaitingAlert(sess, position, n.dashboardURL)
	var errs []error
	for _, ch := range n.channels {
		if err := ch.Post(ctx, alert); err != nil {
			metrics.NotifyFailures.WithLabelValues(ch.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		n.log.Debug().Str("channel", ch.Name()).Str("session", sess.ID).Msg("alert posted")
	}
	return errors.Join(errs...)
}

// priorityColors maps queue priority to alert color.
var priorityColors = map[models.Priority]string{
	models.PriorityHigh:   "#e01e5a",
	models.PriorityNormal: "#ecb22e",
	models.PriorityLow:    "#2eb67d",
}

// WaitingAlert formats the alert for a queued session.
func WaitingAlert(sess *models.Session, position int, dashboardURL string) Alert {
	a := Alert{
		Title: fmt.Sprintf("%s is waiting for an agent", sess.CustomerName()),
		Body:  "A customer asked to talk to a person.",
		URL:   dashboardURL,
		Color: priorityColors[sess.Priority],
		Fields: []Field{
			{Name: "Priority", Value: string(sess.Priority)},
			{Name: "Position", Value: "#" + strconv.Itoa(position)},
		},
	}
	if sess.TransferReason != "" {
		a.Fields = append(a.Fields, Field{Name: "Reason", Value: sess.TransferReason})
	}
	if email := sess.Metadata.String("email"); email != "" {
		a.Fields = append(a.Fields, Field{Name: "Email", Value: email})
	}
	a.Fields = append(a.Fields, Field{Name: "Session", Value: sess.ID})
	return a
}

// retry calls fn and retries with exponential backoff while isRateLimit
// reports the error as a rate limit. retryAfter, when positive, overrides
// the backoff.
func retry(ctx context.Context, fn func() error, isRateLimit func(error) (bool, time.Duration)) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		limited, wait := isRateLimit(err)
		if !limited || attempt == maxRetries {
			return err
		}
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * baseBackoff
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

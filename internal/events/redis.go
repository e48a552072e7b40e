package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// streamClient is the subset of the Redis client used by the mirror,
// extracted for testing.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisMirrorOpts configures a RedisMirror.
type RedisMirrorOpts struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
	Buffer   int
	Logger   zerolog.Logger

	client streamClient
}

// RedisMirror appends every published event to a Redis stream so other
// processes can follow the traffic. Recording never blocks the publisher;
// events are dropped when the buffer is full.
type RedisMirror struct {
	client streamClient
	stream string
	maxLen int64
	ch     chan Event
	log    zerolog.Logger
	now    func() time.Time
}

// NewRedisMirror creates a mirror. Call Run to start writing.
func NewRedisMirror(opts RedisMirrorOpts) (*RedisMirror, error) {
	if opts.client == nil && opts.Addr == "" {
		return nil, errors.New("events: redis mirror: addr is required")
	}
	if opts.Stream == "" {
		opts.Stream = "switchboard:events"
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	client := opts.client
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
	}
	return &RedisMirror{
		client: client,
		stream: opts.Stream,
		maxLen: opts.MaxLen,
		ch:     make(chan Event, opts.Buffer),
		log:    opts.Logger.With().Str("component", "redis-mirror").Logger(),
		now:    time.Now,
	}, nil
}

// Record queues ev for writing.
func (m *RedisMirror) Record(ev Event) {
	select {
	case m.ch <- ev:
	default:
		m.log.Warn().Str("event", ev.Name).Msg("mirror buffer full, dropping event")
	}
}

// Run writes queued events until ctx is cancelled.
func (m *RedisMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.ch:
			if err := m.write(ctx, ev); err != nil {
				m.log.Warn().Err(err).Str("event", ev.Name).Msg("mirror write failed")
			}
		}
	}
}

func (m *RedisMirror) write(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: m.stream,
		Values: map[string]any{
			"event": ev.Name,
			"data":  string(data),
			"at":    m.now().UTC().Format(time.RFC3339Nano),
		},
	}
	if m.maxLen > 0 {
		args.MaxLen = m.maxLen
		args.Approx = true
	}
	return m.client.XAdd(ctx, args).Err()
}

// Close releases the Redis connection.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}

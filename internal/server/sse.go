package server

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zulandar/switchboard/internal/events"
)

const heartbeatInterval = 15 * time.Second

// sseSub buffers hub events for one dashboard stream.
type sseSub struct {
	id  string
	out chan events.Event
}

func (s *sseSub) ID() string { return s.id }

func (s *sseSub) Send(ev events.Event) bool {
	select {
	case s.out <- ev:
		return true
	default:
		return false
	}
}

// handleSSE streams dashboard events: a connected event, the current queue
// and stats, then everything the hub publishes to dashboards.
func (s *server) handleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	sub := &sseSub{id: uuid.NewString(), out: make(chan events.Event, s.sendBuffer)}
	s.hub.Attach(sub, events.RoleDashboard)
	defer s.hub.Detach(sub.id)

	ctx := c.Request.Context()
	writeSSE(c.Writer, "connected", map[string]string{"type": "connected", "id": sub.id})
	writeSSE(c.Writer, events.QueueUpdate, events.QueueUpdateData{Sessions: s.desk.QueueView()})
	writeSSE(c.Writer, events.StatsUpdate, s.desk.Stats(ctx))
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case ev := <-sub.out:
			writeSSE(c.Writer, ev.Name, ev.Data)
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}

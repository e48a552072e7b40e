package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zulandar/switchboard/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameSize   = 64 << 10
	queryParamRole = "role"
)

// wsConn is one websocket connection. Send queues into a bounded buffer
// drained by writeLoop; a full buffer drops the event.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	out  chan events.Event
	done chan struct{}
	once sync.Once
	log  zerolog.Logger
}

func newWSConn(ws *websocket.Conn, buffer int, log zerolog.Logger) *wsConn {
	id := uuid.NewString()
	return &wsConn{
		id:   id,
		ws:   ws,
		out:  make(chan events.Event, buffer),
		done: make(chan struct{}),
		log:  log.With().Str("conn", id).Logger(),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send never blocks.
func (c *wsConn) Send(ev events.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- ev:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warn().Str("event", ev.Name).Msg("send buffer full, event dropped")
		return false
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				c.log.Debug().Err(err).Msg("ws write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseRole(raw string) (events.Role, bool) {
	switch events.Role(strings.ToLower(raw)) {
	case "", events.RoleCustomer:
		return events.RoleCustomer, true
	case events.RoleAgent:
		return events.RoleAgent, true
	case events.RoleDashboard:
		return events.RoleDashboard, true
	}
	return "", false
}

// checkOrigin allows requests with no Origin header, and otherwise
// requires an exact match or a "*" entry.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func (s *server) handleWS(c *gin.Context) {
	role, ok := parseRole(c.Query(queryParamRole))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be customer, agent or dashboard"})
		return
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(s.origins),
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.Debug().Err(err).Msg("ws upgrade failed")
		return
	}

	conn := newWSConn(ws, s.sendBuffer, s.log)
	client := s.router.Connect(conn, role)
	conn.log.Info().Str("role", string(role)).Msg("ws connected")
	go conn.writeLoop()

	defer func() {
		s.router.Disconnect(client)
		conn.close()
		conn.log.Info().Msg("ws disconnected")
	}()

	ws.SetReadLimit(maxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	ctx := c.Request.Context()
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		// Rejections are reported to the client by the router.
		_ = s.router.Handle(ctx, client, data)
	}
}

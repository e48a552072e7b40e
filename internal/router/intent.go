package router

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zulandar/switchboard/internal/models"
)

var (
	// ErrBadFrame is returned for frames that are not an event envelope.
	ErrBadFrame = errors.New("malformed event frame")
	// ErrUnknownIntent is returned for an unrecognized event name.
	ErrUnknownIntent = errors.New("unknown intent")
	// ErrForbidden is returned when a connection's role may not send an intent.
	ErrForbidden = errors.New("intent not allowed for this connection")
	// ErrNotJoined is returned for agent intents before agent:join.
	ErrNotJoined = errors.New("agent has not joined")
	// ErrNoSession is returned for customer intents before a chat is started.
	ErrNoSession = errors.New("no active chat session")
	// ErrEmptyContent is returned for a message without text.
	ErrEmptyContent = errors.New("message content is required")
)

// frame is an inbound event envelope.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func decodeFrame(raw []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if f.Event == "" {
		return f, fmt.Errorf("%w: missing event name", ErrBadFrame)
	}
	return f, nil
}

// decode unmarshals the frame payload into v. An absent payload leaves v
// at its zero value.
func (f frame) decode(v any) error {
	if len(f.Data) == 0 || string(f.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadFrame, f.Event, err)
	}
	return nil
}

type startChatData struct {
	UserID     string          `json:"userId"`
	BotContext string          `json:"botContext"`
	Metadata   models.Metadata `json:"metadata"`
}

type sessionData struct {
	SessionID string `json:"sessionId"`
}

type messageData struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}

type requestAgentData struct {
	SessionID string `json:"sessionId"`
	Priority  string `json:"priority"`
	Reason    string `json:"reason"`
}

type resumeData struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type joinData struct {
	Name    string `json:"name"`
	AgentID string `json:"agentId"`
}

type setStatusData struct {
	Status models.AgentStatus `json:"status"`
}

// Package router turns inbound intents from customer, agent and dashboard
// connections into desk operations, and reports every rejection back to
// the originating connection as a single error event.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zulandar/switchboard/internal/bot"
	"github.com/zulandar/switchboard/internal/desk"
	"github.com/zulandar/switchboard/internal/events"
	"github.com/zulandar/switchboard/internal/metrics"
	"github.com/zulandar/switchboard/internal/models"
)

const (
	defaultBotTimeout = 15 * time.Second
	botFailureReply   = "Sorry, I'm having trouble answering right now. Type \"agent\" to reach a person."
)

// Opts configures a Router.
type Opts struct {
	Desk *desk.Desk
	Hub  *events.Hub
	// Responder answers customer messages in bot status. Nil disables bot
	// replies; keyword escalation still works.
	Responder       bot.Responder
	Detector        *bot.Detector
	BotTimeout      time.Duration
	DefaultPriority models.Priority
	Logger          zerolog.Logger
}

// Router dispatches intents for all connections.
type Router struct {
	desk       *desk.Desk
	hub        *events.Hub
	responder  bot.Responder
	detector   *bot.Detector
	botTimeout time.Duration
	priority   models.Priority
	log        zerolog.Logger

	bots *mailboxes
}

// New creates a Router.
func New(opts Opts) *Router {
	r := &Router{
		desk:       opts.Desk,
		hub:        opts.Hub,
		responder:  opts.Responder,
		detector:   opts.Detector,
		botTimeout: opts.BotTimeout,
		priority:   opts.DefaultPriority,
		log:        opts.Logger.With().Str("component", "router").Logger(),
		bots:       newMailboxes(),
	}
	if r.detector == nil {
		r.detector = bot.NewDetector(nil)
	}
	if r.botTimeout <= 0 {
		r.botTimeout = defaultBotTimeout
	}
	if r.priority == "" {
		r.priority = models.PriorityNormal
	}
	return r
}

// Client is the router's view of one connection.
type Client struct {
	sub  events.Subscriber
	role events.Role

	mu        sync.Mutex
	userID    string
	sessionID string
	agentID   string
}

// ID returns the connection id.
func (c *Client) ID() string { return c.sub.ID() }

// Role returns the connection role.
func (c *Client) Role() events.Role { return c.role }

// AgentID returns the joined agent id, if any.
func (c *Client) AgentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentID
}

// SessionID returns the customer's current session id, if any.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) customer() (userID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.sessionID
}

// Connect attaches a connection to the hub.
func (r *Router) Connect(sub events.Subscriber, role events.Role) *Client {
	r.hub.Attach(sub, role)
	return &Client{sub: sub, role: role}
}

// Disconnect detaches a connection. Sessions and agents are left as they
// are; only explicit intents change them.
func (r *Router) Disconnect(c *Client) {
	r.hub.Detach(c.ID())
}

// Wait blocks until pending bot replies have been processed.
func (r *Router) Wait() {
	r.bots.wait()
}

// Handle processes one inbound frame. Any error has already been sent to
// the client as an error event when Handle returns it.
func (r *Router) Handle(ctx context.Context, c *Client, raw []byte) error {
	f, err := decodeFrame(raw)
	if err != nil {
		r.reject(c, "", err)
		return err
	}
	if err := r.dispatch(ctx, c, f); err != nil {
		r.reject(c, f.Event, err)
		return err
	}
	metrics.Intents.WithLabelValues(f.Event, "ok").Inc()
	return nil
}

func (r *Router) reject(c *Client, intent string, err error) {
	label := intent
	if !isKnown(intent) {
		label = "unknown"
	}
	metrics.Intents.WithLabelValues(label, "rejected").Inc()
	r.log.Warn().Err(err).Str("conn", c.ID()).Str("intent", intent).Msg("intent rejected")
	r.hub.Publish(events.NewError(intent, err), events.ToConn(c.ID()))
}

func isKnown(intent string) bool {
	switch intent {
	case events.CustomerStartChat, events.CustomerSendMessage, events.CustomerRequestAgent,
		events.CustomerEndChat, events.CustomerResume,
		events.AgentJoin, events.AgentLogout, events.AgentSetStatus, events.AgentPickup,
		events.AgentSendMessage, events.AgentCloseSession,
		events.AdminGetStats, events.AdminDebugQueue, events.AdminClearQueue:
		return true
	}
	return false
}

func (r *Router) dispatch(ctx context.Context, c *Client, f frame) error {
	switch {
	case strings.HasPrefix(f.Event, "customer:"):
		if c.role != events.RoleCustomer {
			return ErrForbidden
		}
		return r.customerIntent(c, f)
	case strings.HasPrefix(f.Event, "agent:"):
		if c.role != events.RoleAgent {
			return ErrForbidden
		}
		return r.agentIntent(c, f)
	case strings.HasPrefix(f.Event, "admin:"):
		if c.role == events.RoleCustomer {
			return ErrForbidden
		}
		if c.role == events.RoleAgent && c.AgentID() == "" {
			return ErrNotJoined
		}
		// Dashboards are read-only observers.
		if c.role == events.RoleDashboard && f.Event == events.AdminClearQueue {
			return ErrForbidden
		}
		return r.adminIntent(ctx, c, f)
	}
	return fmt.Errorf("%w: %q", ErrUnknownIntent, f.Event)
}

func (r *Router) customerIntent(c *Client, f frame) error {
	switch f.Event {
	case events.CustomerStartChat:
		var d startChatData
		if err := f.decode(&d); err != nil {
			return err
		}
		return r.startChat(c, d)

	case events.CustomerResume:
		var d resumeData
		if err := f.decode(&d); err != nil {
			return err
		}
		if _, err := r.desk.Resume(c.ID(), d.SessionID, d.UserID); err != nil {
			return err
		}
		c.mu.Lock()
		c.userID, c.sessionID = d.UserID, d.SessionID
		c.mu.Unlock()
		return r.hub.BindSession(c.ID(), d.SessionID)

	case events.CustomerSendMessage:
		var d messageData
		if err := f.decode(&d); err != nil {
			return err
		}
		return r.customerMessage(c, d)

	case events.CustomerRequestAgent:
		var d requestAgentData
		if err := f.decode(&d); err != nil {
			return err
		}
		id, err := r.ownSession(c, d.SessionID)
		if err != nil {
			return err
		}
		if err := r.checkOwner(c, id); err != nil {
			return err
		}
		prio := r.intakePriority(id)
		if d.Priority != "" {
			p, ok := models.ParsePriority(d.Priority)
			if !ok {
				return fmt.Errorf("%w: unknown priority %q", ErrBadFrame, d.Priority)
			}
			prio = p
		}
		reason := d.Reason
		if reason == "" {
			reason = bot.ReasonCustomerRequest
		}
		_, err = r.desk.Escalate(id, prio, reason)
		return err

	case events.CustomerEndChat:
		var d sessionData
		if err := f.decode(&d); err != nil {
			return err
		}
		id, err := r.ownSession(c, d.SessionID)
		if err != nil {
			return err
		}
		userID, _ := c.customer()
		if _, err := r.desk.Close(desk.Customer(userID), id); err != nil {
			return err
		}
		r.forget(id)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownIntent, f.Event)
}

// ownSession resolves the session a customer intent refers to, defaulting
// to the connection's current one.
func (r *Router) ownSession(c *Client, requested string) (string, error) {
	userID, current := c.customer()
	if userID == "" {
		return "", ErrNoSession
	}
	if requested != "" {
		return requested, nil
	}
	if current == "" {
		return "", ErrNoSession
	}
	return current, nil
}

// checkOwner verifies that the connection's customer owns sessionID.
func (r *Router) checkOwner(c *Client, sessionID string) error {
	sess, err := r.desk.Session(sessionID)
	if err != nil {
		return err
	}
	if userID, _ := c.customer(); sess.CustomerID != userID {
		return fmt.Errorf("%w: %s", desk.ErrNotOwner, sessionID)
	}
	return nil
}

func (r *Router) startChat(c *Client, d startChatData) error {
	userID := strings.TrimSpace(d.UserID)
	if userID == "" {
		return fmt.Errorf("%w: userId is required", ErrBadFrame)
	}
	sess, err := r.desk.StartChat(c.ID(), userID, d.BotContext, d.Metadata)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.userID, c.sessionID = userID, sess.ID
	c.mu.Unlock()
	if err := r.hub.BindSession(c.ID(), sess.ID); err != nil {
		return err
	}
	return nil
}

func (r *Router) customerMessage(c *Client, d messageData) error {
	if strings.TrimSpace(d.Content) == "" {
		return ErrEmptyContent
	}
	id, err := r.ownSession(c, d.SessionID)
	if err != nil {
		return err
	}
	userID, _ := c.customer()
	msg, status, err := r.desk.CustomerMessage(id, userID, d.Content)
	if err != nil {
		return err
	}
	if status != models.StatusBot {
		return nil
	}

	if r.detector.Wants(msg.Content) {
		prio := r.intakePriority(id)
		if _, err := r.desk.Escalate(id, prio, bot.ReasonCustomerRequest); err != nil {
			return err
		}
		return nil
	}
	if r.responder != nil {
		r.bots.submit(id, func() { r.answer(id, msg.Content) })
	}
	return nil
}

// intakePriority returns the priority recorded on the intake form, or the
// default.
func (r *Router) intakePriority(sessionID string) models.Priority {
	sess, err := r.desk.Session(sessionID)
	if err != nil {
		return r.priority
	}
	if raw := sess.Metadata.String("priority"); raw != "" {
		if p, ok := models.ParsePriority(raw); ok {
			return p
		}
	}
	return r.priority
}

// answer runs the bot for one customer message. It runs on the session's
// bot mailbox so replies keep message order.
func (r *Router) answer(sessionID, content string) {
	sess, err := r.desk.Session(sessionID)
	if err != nil || sess.Status != models.StatusBot {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.botTimeout)
	defer cancel()
	start := time.Now()
	reply, err := r.responder.Respond(ctx, bot.Request{
		SessionID:  sessionID,
		BotContext: sess.BotContext,
		Message:    content,
		History:    sess.Messages,
	})
	metrics.BotLatency.Observe(time.Since(start).Seconds())
	log := r.log.With().Str("session", sessionID).Logger()
	if err != nil {
		log.Warn().Err(err).Msg("bot responder failed")
		reply = bot.Reply{Content: botFailureReply}
	}

	if reply.Content != "" {
		if _, err := r.desk.BotReply(sessionID, reply.Content, reply.Metadata); err != nil {
			if errors.Is(err, desk.ErrBotInactive) {
				log.Debug().Msg("bot reply discarded, session left bot mode")
				return
			}
			log.Warn().Err(err).Msg("bot reply failed")
			return
		}
	}
	if reply.Escalate {
		reason := reply.Reason
		if reason == "" {
			reason = bot.ReasonBotEscalation
		}
		if _, err := r.desk.Escalate(sessionID, r.intakePriority(sessionID), reason); err != nil {
			log.Warn().Err(err).Msg("bot escalation failed")
		}
	}
}

// forgetter is implemented by responders that keep per-session state.
type forgetter interface {
	Forget(sessionID string)
}

func (r *Router) forget(sessionID string) {
	if f, ok := r.responder.(forgetter); ok {
		f.Forget(sessionID)
	}
}

func (r *Router) agentIntent(c *Client, f frame) error {
	if f.Event == events.AgentJoin {
		var d joinData
		if err := f.decode(&d); err != nil {
			return err
		}
		a, _, err := r.desk.Join(c.ID(), d.Name, d.AgentID)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.agentID = a.ID
		c.mu.Unlock()
		return r.hub.BindAgent(c.ID(), a.ID)
	}

	agentID := c.AgentID()
	if agentID == "" {
		return ErrNotJoined
	}
	switch f.Event {
	case events.AgentLogout:
		if _, err := r.desk.Logout(agentID); err != nil {
			return err
		}
		c.mu.Lock()
		c.agentID = ""
		c.mu.Unlock()
		return r.hub.BindAgent(c.ID(), "")

	case events.AgentSetStatus:
		var d setStatusData
		if err := f.decode(&d); err != nil {
			return err
		}
		_, err := r.desk.SetAvailability(agentID, d.Status)
		return err

	case events.AgentPickup:
		var d sessionData
		if err := f.decode(&d); err != nil {
			return err
		}
		_, err := r.desk.Pickup(agentID, d.SessionID)
		return err

	case events.AgentSendMessage:
		var d messageData
		if err := f.decode(&d); err != nil {
			return err
		}
		if strings.TrimSpace(d.Content) == "" {
			return ErrEmptyContent
		}
		_, err := r.desk.AgentMessage(agentID, d.SessionID, d.Content)
		return err

	case events.AgentCloseSession:
		var d sessionData
		if err := f.decode(&d); err != nil {
			return err
		}
		if _, err := r.desk.Close(desk.Agent(agentID), d.SessionID); err != nil {
			return err
		}
		r.forget(d.SessionID)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownIntent, f.Event)
}

func (r *Router) adminIntent(ctx context.Context, c *Client, f frame) error {
	switch f.Event {
	case events.AdminGetStats:
		st := r.desk.Stats(ctx)
		r.hub.Publish(events.New(events.StatsUpdate, st), events.ToConn(c.ID()))
		return nil
	case events.AdminDebugQueue:
		r.hub.Publish(events.New(events.QueueDebugInfo, r.desk.DebugQueue()), events.ToConn(c.ID()))
		return nil
	case events.AdminClearQueue:
		ids, err := r.desk.ClearQueue()
		for _, id := range ids {
			r.forget(id)
		}
		return err
	}
	return fmt.Errorf("%w: %q", ErrUnknownIntent, f.Event)
}

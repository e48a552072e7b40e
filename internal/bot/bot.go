// Package bot holds the automated responder that talks to customers while
// a session is in bot status, and the keyword detector that spots requests
// for a human.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/zulandar/switchboard/internal/kb"
	"github.com/zulandar/switchboard/internal/models"
)

// Transfer reasons recorded on escalated sessions.
const (
	ReasonCustomerRequest = "customer_request"
	ReasonBotEscalation   = "bot_escalation"
)

// Request is what the responder sees for one customer message.
type Request struct {
	SessionID  string
	BotContext string
	Message    string
	History    []models.Message
}

// Reply is the responder's answer. When Escalate is set the session is
// handed to the queue and Content, if any, is sent first.
type Reply struct {
	Content  string
	Metadata models.Metadata
	Escalate bool
	Reason   string
}

// Responder produces a bot reply.
type Responder interface {
	Respond(ctx context.Context, req Request) (Reply, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, req Request) (Reply, error)

func (f ResponderFunc) Respond(ctx context.Context, req Request) (Reply, error) { return f(ctx, req) }

// DefaultKeywords trigger an escalation when found in a customer message.
var DefaultKeywords = []string{"human", "agent", "representative", "real person", "operator"}

// Detector matches escalation keywords on word boundaries, case-insensitively.
type Detector struct {
	phrases [][]string
}

// NewDetector builds a Detector. Empty keywords fall back to DefaultKeywords.
func NewDetector(keywords []string) *Detector {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	d := &Detector{}
	for _, k := range keywords {
		if words := tokenize(k); len(words) > 0 {
			d.phrases = append(d.phrases, words)
		}
	}
	return d
}

// Wants reports whether text asks for a human.
func (d *Detector) Wants(text string) bool {
	words := tokenize(text)
	for _, p := range d.phrases {
		if containsPhrase(words, p) {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsPhrase(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, p := range phrase {
			if words[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Searcher finds documents relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]kb.Document, error)
}

// KnowledgeOpts configures a KnowledgeResponder.
type KnowledgeOpts struct {
	Searcher      Searcher
	MinSimilarity float64
	SearchLimit   int
	// MaxMisses is how many unanswered questions in a row trigger an
	// escalation. Zero disables it.
	MaxMisses int
	Fallback  string
	Logger    zerolog.Logger
}

// KnowledgeResponder answers from the best knowledge-base match.
type KnowledgeResponder struct {
	search    Searcher
	minSim    float64
	limit     int
	maxMisses int
	fallback  string
	log       zerolog.Logger

	mu     sync.Mutex
	misses map[string]int
}

// NewKnowledgeResponder creates a KnowledgeResponder.
func NewKnowledgeResponder(opts KnowledgeOpts) *KnowledgeResponder {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 3
	}
	if opts.Fallback == "" {
		opts.Fallback = "I couldn't find an answer to that. You can ask for a human agent at any time."
	}
	return &KnowledgeResponder{
		search:    opts.Searcher,
		minSim:    opts.MinSimilarity,
		limit:     opts.SearchLimit,
		maxMisses: opts.MaxMisses,
		fallback:  opts.Fallback,
		log:       opts.Logger.With().Str("component", "bot").Logger(),
		misses:    make(map[string]int),
	}
}

// Respond searches for req.Message and replies with the top document above
// the similarity threshold.
func (k *KnowledgeResponder) Respond(ctx context.Context, req Request) (Reply, error) {
	docs, err := k.search.Search(ctx, req.Message, k.limit)
	if err != nil {
		return Reply{}, fmt.Errorf("bot: %w", err)
	}

	var best *kb.Document
	for i := range docs {
		if docs[i].Similarity < k.minSim {
			continue
		}
		if best == nil || docs[i].Similarity > best.Similarity {
			best = &docs[i]
		}
	}
	if best != nil {
		k.reset(req.SessionID)
		return Reply{
			Content: best.Content,
			Metadata: models.Metadata{
				"documentId": best.ID,
				"title":      best.Title,
				"similarity": best.Similarity,
			},
		}, nil
	}

	misses := k.miss(req.SessionID)
	k.log.Debug().Str("session", req.SessionID).Int("misses", misses).Msg("no knowledge match")
	if k.maxMisses > 0 && misses >= k.maxMisses {
		k.reset(req.SessionID)
		return Reply{
			Content:  "Let me connect you with a human agent who can help.",
			Escalate: true,
			Reason:   ReasonBotEscalation,
		}, nil
	}
	return Reply{Content: k.fallback}, nil
}

func (k *KnowledgeResponder) miss(sessionID string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.misses[sessionID]++
	return k.misses[sessionID]
}

func (k *KnowledgeResponder) reset(sessionID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.misses, sessionID)
}

// Forget drops per-session state for a closed session.
func (k *KnowledgeResponder) Forget(sessionID string) {
	k.reset(sessionID)
}

// Echo is a responder for running without a knowledge base.
var Echo Responder = ResponderFunc(func(_ context.Context, req Request) (Reply, error) {
	return Reply{Content: "Thanks for your message. Type \"agent\" at any time to talk to a person."}, nil
})

// Package kb is a client for the knowledge-base document service used by
// the bot to answer customer questions.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/zulandar/switchboard/internal/models"
)

const (
	searchPath = "/api/agent-settings/documents/search"
	statsPath  = "/api/agent-settings/stats"

	defaultTimeout = 10 * time.Second
	maxBody        = 4 << 20
)

// Document is a search hit.
type Document struct {
	ID         int64          `json:"id"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata"`
}

// ClientOpts configures a Client.
type ClientOpts struct {
	BaseURL string
	// Token, when set, is sent as a bearer token on every request.
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the transport; the token is not applied to it.
	HTTPClient *http.Client
}

// Client talks to the knowledge-base HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client.
func New(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("kb: base url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
		if opts.Token != "" {
			ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
			hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
			hc.Timeout = opts.Timeout
		}
	}
	return &Client{baseURL: strings.TrimRight(opts.BaseURL, "/"), http: hc}, nil
}

// envelope is the response shape of every endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Search returns up to limit documents ranked by similarity to query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	body, err := json.Marshal(map[string]any{"query": query, "limit": limit})
	if err != nil {
		return nil, err
	}
	var docs []Document
	if err := c.do(ctx, http.MethodPost, searchPath, body, &docs); err != nil {
		return nil, fmt.Errorf("kb: search: %w", err)
	}
	return docs, nil
}

// Stats returns document counts for the stats view.
func (c *Client) Stats(ctx context.Context) (*models.KnowledgeStats, error) {
	var data struct {
		KnowledgeBase *models.KnowledgeStats `json:"knowledgeBase"`
	}
	if err := c.do(ctx, http.MethodGet, statsPath, nil, &data); err != nil {
		return nil, fmt.Errorf("kb: stats: %w", err)
	}
	if data.KnowledgeBase == nil {
		return nil, errors.New("kb: stats: response has no knowledgeBase")
	}
	return data.KnowledgeBase, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("status %d: decode response: %w", resp.StatusCode, err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.Unmarshal(env.Data, out)
}

// Package client is a Go client for a roomcast server: it posts messages,
// reads history and stats, and follows a live event stream with automatic
// reconnection.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomcast/internal/chat"
	"github.com/Tyrowin/roomcast/internal/server"
)

const (
	pathMessages = "/api/messages"
	pathWebhook  = "/api/webhook"
	pathEvents   = "/api/events"
	pathStats    = "/api/stats"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type errorBody struct {
	Error string `json:"error"`
}

// Client talks to one roomcast server.
type Client struct {
	http    *resty.Client
	backoff Backoff
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBackoff replaces the reconnect policy used by Subscribe.
func WithBackoff(b Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithLogger sets the logger used for reconnect diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithHTTPClient sets the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		base := c.http.BaseURL
		c.http = resty.NewWithClient(hc).SetBaseURL(base)
	}
}

// New creates a Client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    resty.New().SetBaseURL(baseURL),
		backoff: DefaultBackoff,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetHeader("Accept", "application/json")
	return c
}

// Send posts a user message and returns the stored copy.
func (c *Client) Send(ctx context.Context, room, author, content string) (chat.Message, error) {
	var msg chat.Message
	err := c.post(ctx, pathMessages, server.IngestRequest{Content: content, Room: room, Author: author}, &msg)
	return msg, err
}

// Webhook posts a message as an external integration. An empty author lets
// the server pick its default bot name.
func (c *Client) Webhook(ctx context.Context, room, author, content string) (server.WebhookResponse, error) {
	var out server.WebhookResponse
	err := c.post(ctx, pathWebhook, server.IngestRequest{Content: content, Room: room, Author: author}, &out)
	return out, err
}

// History returns the retained messages of room, oldest first.
func (c *Client) History(ctx context.Context, room string) ([]chat.Message, error) {
	var msgs []chat.Message
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("room", room).
		SetResult(&msgs).
		SetError(&errorBody{}).
		Get(pathMessages)
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Stats returns the server's store and connection statistics.
func (c *Client) Stats(ctx context.Context) (server.StatsResponse, error) {
	var stats server.StatsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&stats).
		SetError(&errorBody{}).
		Get(pathStats)
	if err := checkResponse(resp, err); err != nil {
		return server.StatsResponse{}, err
	}
	return stats, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(out).
		SetError(&errorBody{}).
		Post(path)
	return checkResponse(resp, err)
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		apiErr.Message = body.Error
	}
	return apiErr
}

// Backoff is the reconnect policy of Subscribe. The n-th consecutive retry
// waits min(Base*2^n, Max); after MaxAttempts consecutive failures Subscribe
// gives up.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff waits 1s, 2s, 4s, 8s and 16s before giving up.
var DefaultBackoff = Backoff{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 5}

// Delay returns the wait before retry n, counting from zero.
func (b Backoff) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := b.Base
	for i := 0; i < n && d < b.Max; i++ {
		d *= 2
	}
	return min(d, b.Max)
}

// ErrMaxReconnects is returned by Subscribe once the backoff budget is spent.
var ErrMaxReconnects = errors.New("maximum reconnect attempts reached")

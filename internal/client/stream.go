package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Tyrowin/roomcast/internal/chat"
	"github.com/Tyrowin/roomcast/internal/server"
)

const (
	maxEventSize = 1 << 20
	seenCapacity = 1024
)

// errStreamClosed is returned when the server ends an open stream.
var errStreamClosed = errors.New("event stream closed by server")

// Event is one pushed event. Data holds the raw JSON payload.
type Event struct {
	Type server.EventType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// Message decodes the payload of a message event.
func (e Event) Message() (chat.Message, error) {
	var msg chat.Message
	if e.Type != server.EventMessage {
		return msg, fmt.Errorf("event %q carries no message", e.Type)
	}
	err := json.Unmarshal(e.Data, &msg)
	return msg, err
}

// Presence decodes the payload of a presence event.
func (e Event) Presence() (server.PresenceData, error) {
	var p server.PresenceData
	if e.Type != server.EventPresence {
		return p, fmt.Errorf("event %q carries no presence", e.Type)
	}
	err := json.Unmarshal(e.Data, &p)
	return p, err
}

// SubscribeOptions selects the stream to follow.
type SubscribeOptions struct {
	// Room limits message events to one room. Empty follows every room.
	Room string
	// ClientID names the connection. Empty lets the server pick one.
	ClientID string
	// Replay delivers the room's history as message events each time the
	// stream opens. Messages already delivered are skipped.
	Replay bool
}

// Subscribe follows the live stream and calls fn for every event until ctx
// is cancelled. A dropped stream is reopened after the Backoff delay; a
// successful open resets the attempt counter. Message events are delivered
// at most once across reconnects.
func (c *Client) Subscribe(ctx context.Context, opts SubscribeOptions, fn func(Event)) error {
	seen := newSeenSet(seenCapacity)
	deliver := func(evt Event) {
		if evt.Type == server.EventMessage {
			msg, err := evt.Message()
			if err == nil && !seen.add(msg.ID) {
				return
			}
		}
		fn(evt)
	}

	attempt := 0
	for {
		err := c.stream(ctx, opts, deliver, func() { attempt = 0 })
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt >= c.backoff.MaxAttempts {
			return fmt.Errorf("%w: %w", ErrMaxReconnects, err)
		}

		delay := c.backoff.Delay(attempt)
		attempt++
		c.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("event stream lost, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// stream opens one connection and reads it until it ends.
func (c *Client) stream(ctx context.Context, opts SubscribeOptions, deliver func(Event), opened func()) error {
	req := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache")
	if opts.Room != "" {
		req.SetQueryParam("room", opts.Room)
	}
	if opts.ClientID != "" {
		req.SetQueryParam("clientId", opts.ClientID)
	}

	resp, err := req.Get(pathEvents)
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode()}
	}
	opened()
	c.log.Debug().Str("room", opts.Room).Msg("event stream open")

	if opts.Replay && opts.Room != "" {
		if err := c.replay(ctx, opts.Room, deliver); err != nil {
			c.log.Warn().Err(err).Str("room", opts.Room).Msg("loading history")
		}
	}

	return readEvents(body, deliver)
}

func (c *Client) replay(ctx context.Context, room string, deliver func(Event)) error {
	msgs, err := c.History(ctx, room)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		deliver(Event{Type: server.EventMessage, Data: data})
	}
	return nil
}

// readEvents parses Server-Sent Events from r. Each event's data lines are
// joined and decoded as an envelope; other fields are ignored.
func readEvents(r io.Reader, deliver func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(data) > 0 {
				dispatch(strings.Join(data, "\n"), deliver)
				data = data[:0]
			}
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		if field == "data" {
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return errStreamClosed
}

func dispatch(data string, deliver func(Event)) {
	var evt Event
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return
	}
	deliver(evt)
}

// seenSet remembers the most recent message identifiers.
type seenSet struct {
	ids   map[string]struct{}
	order []string
	next  int
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		ids:   make(map[string]struct{}, capacity),
		order: make([]string, 0, capacity),
	}
}

// add records id and reports whether it was new.
func (s *seenSet) add(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}

	if len(s.order) < cap(s.order) {
		s.order = append(s.order, id)
	} else {
		delete(s.ids, s.order[s.next])
		s.order[s.next] = id
		s.next = (s.next + 1) % len(s.order)
	}
	s.ids[id] = struct{}{}
	return true
}

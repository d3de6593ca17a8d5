package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomcast/internal/chat"
	"github.com/Tyrowin/roomcast/internal/server"
)

func newTestServer(t *testing.T) (*httptest.Server, *server.App) {
	t.Helper()

	app := server.NewApp(server.NewConfig(), zerolog.Nop())
	srv := httptest.NewServer(app.Router())
	t.Cleanup(func() {
		_ = app.Shutdown(nil, time.Second)
		srv.Close()
	})
	return srv, app
}

// eventLog collects events delivered on the Subscribe goroutine.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(evt Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
}

func (l *eventLog) messages() []chat.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	var msgs []chat.Message
	for _, evt := range l.events {
		if msg, err := evt.Message(); err == nil {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (l *eventLog) count(kind server.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, evt := range l.events {
		if evt.Type == kind {
			n++
		}
	}
	return n
}

func TestSendAndHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(srv.URL)
	ctx := context.Background()

	sent, err := c.Send(ctx, "general", "alice", "hello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sent.ID, "msg-"))
	assert.Equal(t, chat.SourceUser, sent.Source)

	history, err := c.History(ctx, "general")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, sent, history[0])
}

func TestSend_ValidationError(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(srv.URL)

	_, err := c.Send(context.Background(), "general", "alice", "   ")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "content")
}

func TestWebhook_DefaultAuthor(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(srv.URL)

	resp, err := c.Webhook(context.Background(), "alerts", "", "deploy finished")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Webhook Bot", resp.Message.Author)
	assert.Equal(t, chat.SourceWebhook, resp.Message.Source)
	assert.Equal(t, 1, resp.Stats.TotalMessages)
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(srv.URL)
	ctx := context.Background()

	_, err := c.Send(ctx, "general", "alice", "one")
	require.NoError(t, err)
	_, err = c.Send(ctx, "random", "bob", "two")
	require.NoError(t, err)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMessages)
	assert.Equal(t, map[string]int{"general": 1, "random": 1}, stats.MessagesByRoom)
	assert.Positive(t, stats.Timestamp)
}

func TestSubscribe_ReceivesLiveMessages(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &eventLog{}
	done := make(chan error, 1)
	go func() {
		done <- c.Subscribe(ctx, SubscribeOptions{Room: "general"}, log.add)
	}()

	require.Eventually(t, func() bool {
		return log.count(server.EventPing) > 0
	}, 2*time.Second, 10*time.Millisecond, "initial ping not received")

	_, err := c.Send(context.Background(), "random", "bob", "elsewhere")
	require.NoError(t, err)
	sent, err := c.Send(context.Background(), "general", "alice", "hi")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(log.messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, sent, log.messages()[0])

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

func TestSubscribe_ReplayDeduplicates(t *testing.T) {
	srv, app := newTestServer(t)
	c := New(srv.URL, WithBackoff(Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond, MaxAttempts: 5}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := c.Send(ctx, "general", "alice", "before")
	require.NoError(t, err)

	log := &eventLog{}
	go func() {
		_ = c.Subscribe(ctx, SubscribeOptions{Room: "general", ClientID: "tail", Replay: true}, log.add)
	}()

	require.Eventually(t, func() bool {
		return len(log.messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Closing the server side forces a reconnect and a second replay.
	pings := log.count(server.EventPing)
	app.Hub.ForEach("general", func(_ string, sink server.Sink) { sink.Close() })

	require.Eventually(t, func() bool {
		return log.count(server.EventPing) > pings
	}, 2*time.Second, 10*time.Millisecond, "stream was not reopened")

	second, err := c.Send(ctx, "general", "alice", "after")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(log.messages()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []chat.Message{first, second}, log.messages())
}

func TestSubscribe_GivesUpAfterMaxAttempts(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, WithBackoff(Backoff{Base: time.Millisecond, Max: 4 * time.Millisecond, MaxAttempts: 3}))

	err := c.Subscribe(context.Background(), SubscribeOptions{}, func(Event) {})

	require.ErrorIs(t, err, ErrMaxReconnects)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(4), requests.Load())
}

func TestBackoff_Delay(t *testing.T) {
	b := DefaultBackoff

	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 16*time.Second, b.Delay(4))
	assert.Equal(t, 30*time.Second, b.Delay(5))
	assert.Equal(t, 30*time.Second, b.Delay(20))
	assert.Equal(t, time.Second, b.Delay(-1))
}

func TestReadEvents(t *testing.T) {
	stream := "type: ping\ndata: {\"type\":\"ping\",\"data\":{\"timestamp\":1}}\n\n" +
		": comment\n\n" +
		"type: message\ndata: {\"type\":\"message\",\n" +
		"data: \"data\":{\"id\":\"m1\",\"content\":\"hi\"}}\n\n" +
		"type: presence\ndata: {\"type\":\"presence\",\"data\":{\"room\":\"general\",\"users\":[\"a\",\"b\"]}}\n\n" +
		"data: not json\n\n"

	var got []Event
	err := readEvents(strings.NewReader(stream), func(evt Event) { got = append(got, evt) })

	require.ErrorIs(t, err, errStreamClosed)
	require.Len(t, got, 3)
	assert.Equal(t, server.EventPing, got[0].Type)

	msg, err := got[1].Message()
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "hi", msg.Content)
	_, err = got[1].Presence()
	assert.Error(t, err)

	presence, err := got[2].Presence()
	require.NoError(t, err)
	assert.Equal(t, server.PresenceData{Room: "general", Users: []string{"a", "b"}}, presence)
}

func TestSeenSet_ForgetsOldest(t *testing.T) {
	s := newSeenSet(2)

	assert.True(t, s.add("a"))
	assert.True(t, s.add("b"))
	assert.False(t, s.add("a"))
	assert.True(t, s.add("c"))
	assert.True(t, s.add("a"), "a should have been forgotten")
	assert.False(t, s.add("c"))
}

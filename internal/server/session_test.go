package server

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextFrame(t *testing.T, w *fakeWriter) Frame {
	t.Helper()
	select {
	case f := <-w.frames:
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame written")
		return Frame{}
	}
}

func TestSession_ServeWritesQueuedFrames(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	w := newFakeWriter()
	s := NewSession("c1", "general", 8, w, hub, zerolog.Nop())
	assert.Equal(t, StateConnecting, s.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	assert.Equal(t, EventPing, nextFrame(t, w).Type)
	assert.Equal(t, EventPresence, nextFrame(t, w).Type)
	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, 1, hub.Count())

	require.NoError(t, s.Send(errorFrame("boom")))
	assert.Equal(t, EventError, nextFrame(t, w).Type)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, hub.Count())
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s := NewSession("c1", "general", 1, newFakeWriter(), NewHub(zerolog.Nop()), zerolog.Nop())

	s.Close()
	s.Close()

	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.Send(pingFrame(time.Now())), ErrSinkClosed)
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestSession_SendReportsFullQueue(t *testing.T) {
	s := NewSession("c1", "general", 1, newFakeWriter(), NewHub(zerolog.Nop()), zerolog.Nop())

	require.NoError(t, s.Send(pingFrame(time.Now())))
	assert.ErrorIs(t, s.Send(pingFrame(time.Now())), ErrSinkFull)
}

// TestSession_WriteFailureEndsServe verifies that a transport error closes
// the session and removes it from the hub.
func TestSession_WriteFailureEndsServe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	w := newFakeWriter()
	w.err = errBrokenPipe
	s := NewSession("c1", "general", 4, w, hub, zerolog.Nop())

	err := s.Serve(context.Background())

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "c1", derr.ConnectionID)
	assert.ErrorIs(t, err, errBrokenPipe)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, hub.Count())
}

// TestSession_StaleSessionKeepsReplacement verifies that a session replaced
// under the same identifier does not evict its replacement when it ends.
func TestSession_StaleSessionKeepsReplacement(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	old := NewSession("c1", "general", 4, newFakeWriter(), hub, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- old.Serve(ctx) }()
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	replacement := &fakeSink{}
	hub.Register("c1", "general", replacement)

	cancel()
	<-done

	assert.Equal(t, 1, hub.Count())
	var visited []Sink
	hub.ForEach("general", func(_ string, sink Sink) { visited = append(visited, sink) })
	require.Len(t, visited, 1)
	assert.Same(t, replacement, visited[0])
}

func TestSession_ServeAfterHubClosed(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.CloseAll()
	s := NewSession("c1", "general", 4, newFakeWriter(), hub, zerolog.Nop())

	assert.NoError(t, s.Serve(context.Background()))
	assert.Equal(t, StateClosed, s.State())
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", SessionState(42).String())
}

package server

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSink records frames and can be told to refuse them.
type fakeSink struct {
	mu     sync.Mutex
	frames []Frame
	err    error
	closed int
}

func (s *fakeSink) Send(frame Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}

func (s *fakeSink) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSink) received(kind EventType) []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Frame
	for _, f := range s.frames {
		if f.Type == kind {
			out = append(out, f)
		}
	}
	return out
}

// kinds returns the type of every recorded frame in arrival order.
func (s *fakeSink) kinds() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EventType, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.Type
	}
	return out
}

// presence decodes every presence frame the sink received.
func (s *fakeSink) presence(t *testing.T) []PresenceData {
	t.Helper()

	var out []PresenceData
	for _, f := range s.received(EventPresence) {
		_, data := decodeEvent(t, f.Payload)
		var p PresenceData
		require.NoError(t, json.Unmarshal(data, &p))
		out = append(out, p)
	}
	return out
}

func (s *fakeSink) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeWriter is a frameWriter that forwards frames to a channel.
type fakeWriter struct {
	frames chan Frame
	err    error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{frames: make(chan Frame, 16)}
}

func (w *fakeWriter) WriteFrame(frame Frame) error {
	if w.err != nil {
		return w.err
	}
	w.frames <- frame
	return nil
}

// decodeEvent splits a serialized envelope into its type and raw payload.
func decodeEvent(t *testing.T, payload []byte) (EventType, json.RawMessage) {
	t.Helper()

	var env struct {
		Type EventType       `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &env))
	return env.Type, env.Data
}

var errBrokenPipe = errors.New("write: broken pipe")

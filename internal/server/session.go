package server

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// SessionState is the lifecycle state of a Session.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// frameWriter writes one frame to the underlying transport, bounded by the
// transport's write deadline.
type frameWriter interface {
	WriteFrame(frame Frame) error
}

// Session is one connected live stream. The Dispatcher enqueues frames with
// Send; Serve drains the queue and writes to the transport.
type Session struct {
	id     string
	room   string
	send   chan Frame
	done   chan struct{}
	once   sync.Once
	state  atomic.Int32
	writer frameWriter
	hub    *Hub
	log    zerolog.Logger
}

// NewSession creates a session in the Connecting state with an outbound
// queue of buffer frames.
func NewSession(id, room string, buffer int, writer frameWriter, hub *Hub, log zerolog.Logger) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		id:     id,
		room:   room,
		send:   make(chan Frame, buffer),
		done:   make(chan struct{}),
		writer: writer,
		hub:    hub,
		log:    log.With().Str("connection_id", id).Str("room", room).Logger(),
	}
}

// ID returns the connection identifier.
func (s *Session) ID() string { return s.id }

// Room returns the subscribed room, AllRooms for a firehose stream.
func (s *Session) Room() string { return s.room }

// State returns the current lifecycle state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Send enqueues frame without blocking. It fails with ErrSinkClosed after
// Close and with ErrSinkFull when the queue has no room.
func (s *Session) Send(frame Frame) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrSinkClosed
	default:
		return ErrSinkFull
	}
}

// Close moves the session to Closed. It is safe to call more than once and
// from several goroutines.
func (s *Session) Close() {
	s.once.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
	})
}

// Serve registers the session with the hub and writes queued frames until
// ctx is cancelled, the session is closed or a write fails. The session is
// always unregistered and closed when Serve returns. A cancelled context
// is a normal disconnect and yields a nil error.
func (s *Session) Serve(ctx context.Context) error {
	s.hub.Register(s.id, s.room, s)
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
	defer s.shutdown()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("transport closed by client")
			return nil
		case <-s.done:
			return nil
		case frame := <-s.send:
			if err := s.writer.WriteFrame(frame); err != nil {
				derr := &DeliveryError{ConnectionID: s.id, Err: err}
				deliveryFailures.WithLabelValues(failureReason(err)).Inc()
				if !isExpectedCloseError(err) {
					s.log.Warn().Err(derr).Msg("write failed, closing stream")
				}
				return derr
			}
		}
	}
}

func (s *Session) shutdown() {
	s.hub.remove(s.id, s)
	s.Close()
}

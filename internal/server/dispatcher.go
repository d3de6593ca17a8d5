package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomcast/internal/chat"
)

// Scope selects which subscribers receive message events.
type Scope string

const (
	// ScopeRoom delivers a message only to subscribers of its room.
	ScopeRoom Scope = "room"
	// ScopeGlobal delivers every message to every subscriber.
	ScopeGlobal Scope = "global"
)

// Dispatcher turns stored messages and ping ticks into frames and enqueues
// them on every matching sink of the Hub.
type Dispatcher struct {
	hub          *Hub
	scope        Scope
	pingInterval time.Duration
	log          zerolog.Logger
	now          func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
}

// NewDispatcher creates a Dispatcher delivering through hub.
func NewDispatcher(hub *Hub, scope Scope, pingInterval time.Duration, log zerolog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	if scope != ScopeGlobal {
		scope = ScopeRoom
	}
	return &Dispatcher{
		hub:          hub,
		scope:        scope,
		pingInterval: pingInterval,
		log:          log,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// BroadcastMessage pushes msg to the subscribers of its room, or to every
// subscriber when the dispatcher runs with ScopeGlobal.
func (d *Dispatcher) BroadcastMessage(msg chat.Message) {
	frame, err := NewFrame(Event{Type: EventMessage, Data: msg})
	if err != nil {
		d.log.Error().Err(err).Str("message_id", msg.ID).Msg("encoding message event")
		return
	}

	room := msg.Room
	if d.scope == ScopeGlobal {
		room = AllRooms
	}

	delivered := d.deliver(room, frame)
	d.log.Debug().
		Str("message_id", msg.ID).
		Str("room", msg.Room).
		Int("delivered", delivered).
		Msg("message broadcast")
}

// BroadcastPing pushes a keep-alive ping to every subscriber.
func (d *Dispatcher) BroadcastPing() {
	delivered := d.deliver(AllRooms, pingFrame(d.now()))
	d.log.Debug().Int("delivered", delivered).Msg("ping broadcast")
}

// deliver enqueues frame on every sink matching room and drops the sinks
// that refuse it. It returns the number of successful enqueues.
func (d *Dispatcher) deliver(room string, frame Frame) int {
	delivered := 0
	d.hub.ForEach(room, func(id string, sink Sink) {
		if err := sink.Send(frame); err != nil {
			d.hub.drop(id, sink, err)
			return
		}
		delivered++
	})
	eventsDelivered.WithLabelValues(string(frame.Type)).Add(float64(delivered))
	return delivered
}

// Run broadcasts a ping every ping interval until Shutdown is called. It
// should be called in a separate goroutine.
func (d *Dispatcher) Run() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	defer close(d.done)

	if d.pingInterval <= 0 {
		<-d.ctx.Done()
		return
	}

	ticker := time.NewTicker(d.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.BroadcastPing()
		}
	}
}

// Shutdown stops the ping loop and waits for Run to return, or until the
// timeout is reached.
func (d *Dispatcher) Shutdown(timeout time.Duration) error {
	d.cancel()
	if !d.started.Load() {
		return nil
	}

	select {
	case <-d.done:
		d.log.Info().Msg("dispatcher stopped")
		return nil
	case <-time.After(timeout):
		d.log.Warn().Msg("dispatcher shutdown timeout reached")
		return context.DeadlineExceeded
	}
}

// Package server tracks live subscribers in the Hub, keyed by connection
// identifier and grouped by room.
package server

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// AllRooms subscribes a stream to the messages of every room.
const AllRooms = ""

// Sink accepts serialized events for one live connection. Send must not
// block: a sink that cannot take the frame right away returns an error.
type Sink interface {
	Send(frame Frame) error
	Close()
}

type subscriber struct {
	id   string
	room string
	sink Sink
}

// matches reports whether a broadcast to room reaches this subscriber.
func (s *subscriber) matches(room string) bool {
	return room == AllRooms || s.room == AllRooms || s.room == room
}

// Hub is the registry of live subscribers. A connection identifier maps to
// at most one subscriber; registering an identifier again replaces the
// previous sink without closing it.
type Hub struct {
	subscribers map[string]*subscriber
	closed      bool
	mutex       sync.RWMutex
	presence    sync.Mutex // orders presence lists across rooms
	log         zerolog.Logger
	now         func() time.Time
}

// NewHub creates an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]*subscriber),
		log:         log,
		now:         time.Now,
	}
}

// Register adds sink under id for room and enqueues a ping to it before any
// broadcast can reach it. The room's subscribers are then sent the updated
// presence list. After CloseAll the sink is closed instead of registered.
func (h *Hub) Register(id, room string, sink Sink) {
	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		sink.Close()
		return
	}
	if err := sink.Send(pingFrame(h.now())); err != nil {
		h.mutex.Unlock()
		h.logDropped(id, err)
		sink.Close()
		return
	}
	previous, replaced := h.subscribers[id]
	h.subscribers[id] = &subscriber{id: id, room: room, sink: sink}
	total := len(h.subscribers)
	h.mutex.Unlock()

	eventsDelivered.WithLabelValues(string(EventPing)).Inc()
	liveSubscribers.Set(float64(total))
	h.log.Info().
		Str("connection_id", id).
		Str("room", room).
		Bool("replaced", replaced).
		Int("total_clients", total).
		Msg("client connected")

	if replaced && previous.room != room {
		h.broadcastPresence(previous.room)
	}
	h.broadcastPresence(room)
}

// Unregister removes the subscriber registered under id. Removing an unknown
// id is a no-op.
func (h *Hub) Unregister(id string) bool {
	h.mutex.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	total := len(h.subscribers)
	h.mutex.Unlock()

	if ok {
		h.logDisconnect(id, total)
		h.broadcastPresence(sub.room)
	}
	return ok
}

// remove deletes id only while it still maps to sink, so a stale session
// cannot evict the connection that replaced it.
func (h *Hub) remove(id string, sink Sink) bool {
	h.mutex.Lock()
	current, ok := h.subscribers[id]
	ok = ok && current.sink == sink
	if ok {
		delete(h.subscribers, id)
	}
	total := len(h.subscribers)
	h.mutex.Unlock()

	if ok {
		h.logDisconnect(id, total)
		h.broadcastPresence(current.room)
	}
	return ok
}

// drop removes a sink after a failed push and closes it.
func (h *Hub) drop(id string, sink Sink, err error) {
	h.logDropped(id, err)
	h.remove(id, sink)
	sink.Close()
}

func (h *Hub) logDropped(id string, err error) {
	derr := &DeliveryError{ConnectionID: id, Err: err}
	deliveryFailures.WithLabelValues(failureReason(err)).Inc()
	h.log.Warn().Err(derr).Str("connection_id", id).Msg("dropping subscriber")
}

// broadcastPresence sends the sorted connection ids subscribed to room to
// every subscriber a broadcast to room reaches. Firehose streams receive
// presence for every room but are not listed in any.
func (h *Hub) broadcastPresence(room string) {
	if room == AllRooms {
		return
	}

	type failure struct {
		sub *subscriber
		err error
	}
	var failed []failure

	h.presence.Lock()
	subs := h.snapshot(room)
	users := lo.FilterMap(subs, func(sub *subscriber, _ int) (string, bool) {
		return sub.id, sub.room == room
	})
	slices.Sort(users)

	frame, err := NewFrame(Event{Type: EventPresence, Data: PresenceData{Room: room, Users: users}})
	if err != nil {
		h.presence.Unlock()
		h.log.Error().Err(err).Str("room", room).Msg("failed to encode presence")
		return
	}
	for _, sub := range subs {
		if err := sub.sink.Send(frame); err != nil {
			failed = append(failed, failure{sub: sub, err: err})
			continue
		}
		eventsDelivered.WithLabelValues(string(EventPresence)).Inc()
	}
	h.presence.Unlock()

	for _, f := range failed {
		h.drop(f.sub.id, f.sub.sink, f.err)
	}
}

func (h *Hub) logDisconnect(id string, total int) {
	liveSubscribers.Set(float64(total))
	h.log.Info().
		Str("connection_id", id).
		Int("total_clients", total).
		Msg("client disconnected")
}

// ForEach calls fn for every subscriber reached by a broadcast to room.
// AllRooms visits every subscriber. fn runs without the registry lock held,
// so it may register or unregister entries.
func (h *Hub) ForEach(room string, fn func(id string, sink Sink)) {
	for _, sub := range h.snapshot(room) {
		fn(sub.id, sub.sink)
	}
}

// snapshot returns a thread-safe copy of the subscribers matching room.
func (h *Hub) snapshot(room string) []*subscriber {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return lo.Filter(lo.Values(h.subscribers), func(sub *subscriber, _ int) bool {
		return sub.matches(room)
	})
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.subscribers)
}

// CloseAll unregisters and closes every subscriber and refuses later
// registrations. It is used on shutdown.
func (h *Hub) CloseAll() int {
	h.mutex.Lock()
	h.closed = true
	subs := lo.Values(h.subscribers)
	h.subscribers = make(map[string]*subscriber)
	h.mutex.Unlock()

	liveSubscribers.Set(0)
	for _, sub := range subs {
		sub.sink.Close()
	}

	h.log.Info().Int("closed", len(subs)).Msg("closed all live streams")
	return len(subs)
}

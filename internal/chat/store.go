package chat

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Publisher receives every message right after it is stored.
type Publisher interface {
	BroadcastMessage(msg Message)
}

// SubscriberCounter reports how many live subscribers exist.
type SubscriberCounter interface {
	Count() int
}

// Stats summarizes the store contents.
type Stats struct {
	TotalMessages  int            `json:"totalMessages"`
	TotalClients   int            `json:"totalClients"`
	MessagesByRoom map[string]int `json:"messagesByRoom"`
}

// Store is an in-memory, per-room bounded message history. It is safe for
// concurrent use.
type Store struct {
	mu        sync.RWMutex
	rooms     map[string]*ring[Message]
	retention int

	publisher   Publisher
	subscribers SubscriberCounter
	now         func() time.Time
	log         zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRetention overrides the per-room cap. Values below one are ignored.
func WithRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithPublisher sets the publisher notified on every append.
func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithSubscriberCounter sets the source of the live client count in Stats.
func WithSubscriberCounter(c SubscriberCounter) Option {
	return func(s *Store) { s.subscribers = c }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		rooms:     make(map[string]*ring[Message]),
		retention: DefaultRetention,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append validates msg, fills in its identifier and timestamp when absent,
// stores it and publishes it. When the room already holds the retention cap,
// the message inserted first is evicted.
func (s *Store) Append(msg Message) (Message, error) {
	msg, err := Normalize(msg)
	if err != nil {
		return Message{}, err
	}

	if msg.Timestamp == 0 {
		msg.Timestamp = s.now().UnixMilli()
	}
	if msg.ID == "" {
		msg.ID = NewID(IDPrefix(msg.Source), time.UnixMilli(msg.Timestamp))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.rooms[msg.Room]
	if !ok {
		history = newRing[Message](s.retention)
		s.rooms[msg.Room] = history
	}
	if evicted, ok := history.push(msg); ok {
		s.log.Debug().
			Str("room", msg.Room).
			Str("evicted_id", evicted.ID).
			Msg("retention cap reached, oldest message evicted")
	}

	// Published under the lock so subscribers see messages in store order.
	if s.publisher != nil {
		s.publisher.BroadcastMessage(msg)
	}

	return msg, nil
}

// Query returns the messages of room sorted by timestamp. Messages with equal
// timestamps keep their insertion order. The result is never nil.
func (s *Store) Query(room string) []Message {
	s.mu.RLock()
	history, ok := s.rooms[room]
	var messages []Message
	if ok {
		messages = history.snapshot()
	}
	s.mu.RUnlock()

	if messages == nil {
		return []Message{}
	}

	slices.SortStableFunc(messages, func(a, b Message) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		default:
			return 0
		}
	})
	return messages
}

// Stats returns message counts per room and the live client count.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	byRoom := lo.MapValues(s.rooms, func(history *ring[Message], _ string) int {
		return history.len()
	})
	s.mu.RUnlock()

	stats := Stats{
		TotalMessages:  lo.Sum(lo.Values(byRoom)),
		MessagesByRoom: byRoom,
	}
	if s.subscribers != nil {
		stats.TotalClients = s.subscribers.Count()
	}
	return stats
}

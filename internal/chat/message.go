package chat

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Source tells who authored a message.
type Source string

const (
	SourceUser    Source = "user"
	SourceWebhook Source = "webhook"
)

// DefaultRetention is the number of messages kept per room.
const DefaultRetention = 100

// Message is a single chat message. It is never mutated once stored.
type Message struct {
	ID        string `json:"id"`
	Content   string `json:"content" validate:"required"`
	Room      string `json:"room" validate:"required"`
	Timestamp int64  `json:"timestamp"`
	Author    string `json:"author" validate:"required"`
	Source    Source `json:"source" validate:"oneof=user webhook"`
}

// IDPrefix returns the identifier prefix used for messages of the given source.
func IDPrefix(source Source) string {
	if source == SourceWebhook {
		return "webhook"
	}
	return "msg"
}

// NewID builds a message identifier. The ULID part embeds the creation
// millisecond followed by a random suffix, so identifiers sort by time.
func NewID(prefix string, at time.Time) string {
	return prefix + "-" + ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}

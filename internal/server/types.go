// Package server defines the push event envelope exchanged with live clients
// and small helpers shared by the SSE and WebSocket transports.
package server

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType names the kind of a pushed event.
type EventType string

const (
	EventMessage  EventType = "message"
	EventPing     EventType = "ping"
	EventError    EventType = "error"
	EventPresence EventType = "presence"
)

// Event is the JSON envelope pushed to live clients.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// PingData is the payload of a ping event.
type PingData struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Error string `json:"error"`
}

// PresenceData lists the connections currently subscribed to a room.
type PresenceData struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

// Frame is an event serialized once and shared by every recipient.
type Frame struct {
	Type    EventType
	Payload []byte
}

// NewFrame serializes evt.
func NewFrame(evt Event) (Frame, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: evt.Type, Payload: payload}, nil
}

func pingFrame(now time.Time) Frame {
	// PingData always marshals.
	frame, _ := NewFrame(Event{Type: EventPing, Data: PingData{Timestamp: now.UnixMilli()}})
	return frame
}

func errorFrame(msg string) Frame {
	frame, _ := NewFrame(Event{Type: EventError, Data: ErrorData{Error: msg}})
	return frame
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}

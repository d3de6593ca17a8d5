// Package server carries live streams over WebSocket: outbound frames are
// written by the owning Session, inbound frames are posted as messages to the
// stream's room.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// inboundMessage is the JSON frame a WebSocket client sends to post.
type inboundMessage struct {
	Content string `json:"content"`
	Author  string `json:"author"`
	Room    string `json:"room,omitempty"`
}

// wsConn adapts a WebSocket connection to a Session transport.
type wsConn struct {
	conn           *websocket.Conn
	addr           string
	writeTimeout   time.Duration
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	log            zerolog.Logger
}

func newWSConn(conn *websocket.Conn, addr string, cfg Config, log zerolog.Logger) *wsConn {
	conn.SetReadLimit(cfg.MaxMessageSize)
	return &wsConn{
		conn:           conn,
		addr:           addr,
		writeTimeout:   cfg.WriteTimeout,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		log:            log.With().Str("remote_addr", addr).Logger(),
	}
}

// WriteFrame writes one event as a text message. Only the owning Session
// calls it, so writes never overlap.
func (c *wsConn) WriteFrame(frame Frame) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame.Payload)
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *wsConn) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug().Err(err).Msg("setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// readPump reads inbound frames until the peer goes away, then cancels the
// session context so the session unregisters.
func (c *wsConn) readPump(cancel context.CancelFunc, session *Session, post postFunc) {
	defer cancel()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			_ = session.Send(errorFrame("rate limit exceeded"))
			continue
		}

		c.processMessage(raw, session, post)
	}
}

// handleReadError logs appropriate error messages based on the error type
func (c *wsConn) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.maxMessageSize).Msg("inbound message exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseAbnormalClosure):
		c.log.Warn().Err(err).Msg("unexpected WebSocket close")
	default:
		c.log.Debug().Err(err).Msg("WebSocket read ended")
	}
}

// checkRateLimit reports whether the client may post another message.
func (c *wsConn) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn().
			Int("burst", c.rateLimit.Burst).
			Dur("interval", c.rateLimit.RefillInterval).
			Msg("rate limit exceeded, discarding message")
		return false
	}
	return true
}

// processMessage decodes a raw frame and posts it to the session's room. A
// firehose session may name the room in the frame. Rejections are reported
// to this session only.
func (c *wsConn) processMessage(raw []byte, session *Session, post postFunc) {
	var in inboundMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		c.log.Debug().Err(err).Msg("invalid inbound frame")
		_ = session.Send(errorFrame("invalid JSON frame"))
		return
	}

	room := session.Room()
	if room == AllRooms {
		room = in.Room
	}

	if _, err := post(IngestRequest{Content: in.Content, Room: room, Author: in.Author}); err != nil {
		_ = session.Send(errorFrame(err.Error()))
	}
}

// keepAlive sends control pings so dead peers are detected through the
// pong deadline. It stops when done is closed or a ping fails.
func (c *wsConn) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Debug().Err(err).Msg("writing ping")
				}
				return
			}
		}
	}
}

// close sends a close frame and releases the connection.
func (c *wsConn) close() {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug().Err(err).Msg("closing connection")
	}
}

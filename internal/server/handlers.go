// Package server exposes the HTTP handlers: message ingest and query, live
// streams over SSE and WebSocket, stats and health.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomcast/internal/chat"
)

// IngestRequest is the body accepted by the ingest endpoints.
type IngestRequest struct {
	Content string `json:"content"`
	Room    string `json:"room"`
	Author  string `json:"author"`
}

// WebhookResponse is returned by the webhook endpoint.
type WebhookResponse struct {
	Success bool         `json:"success"`
	Message chat.Message `json:"message"`
	Stats   chat.Stats   `json:"stats"`
}

// StatsResponse is returned by the stats endpoint.
type StatsResponse struct {
	chat.Stats
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Timestamp     int64   `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// postFunc ingests one message and returns the stored copy.
type postFunc func(req IngestRequest) (chat.Message, error)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store     *chat.Store
	hub       *Hub
	cfg       Config
	upgrader  websocket.Upgrader
	log       zerolog.Logger
	startedAt time.Time
	now       func() time.Time
}

// NewHandler creates a Handler serving store and hub.
func NewHandler(store *chat.Store, hub *Hub, cfg Config, origins *originPolicy, log zerolog.Logger) *Handler {
	return &Handler{
		store: store,
		hub:   hub,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		log:       log,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// PostMessage accepts a user-authored message.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg, err := h.ingest(req, chat.SourceUser)
	if err != nil {
		h.ingestError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, msg)
}

// PostWebhook accepts a message from an external integration. The author
// defaults to the configured bot name.
func (h *Handler) PostWebhook(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !h.decode(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Author) == "" {
		req.Author = h.cfg.WebhookAuthor
	}

	msg, err := h.ingest(req, chat.SourceWebhook)
	if err != nil {
		h.ingestError(w, r, err)
		return
	}

	render.JSON(w, r, WebhookResponse{
		Success: true,
		Message: msg,
		Stats:   h.store.Stats(),
	})
}

// GetMessages returns the stored messages of a room in timestamp order.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.URL.Query().Get("room"))
	if room == "" {
		h.error(w, r, http.StatusBadRequest, "room parameter is required")
		return
	}

	render.JSON(w, r, h.store.Query(room))
}

// Events opens a Server-Sent Events stream. The optional clientId query
// parameter names the connection and the optional room parameter limits
// message events to one room.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id, room := streamParams(r)

	writer, err := newSSEWriter(w, h.cfg.WriteTimeout)
	if err != nil {
		h.log.Error().Err(err).Msg("cannot open event stream")
		h.error(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	session := NewSession(id, room, h.cfg.SendBuffer, writer, h.hub, h.log)
	if err := session.Serve(r.Context()); err != nil {
		h.log.Debug().Err(err).Str("connection_id", id).Msg("event stream ended")
	}
}

// WebSocket upgrades the request and serves a live stream over it. Text
// frames received from the client are posted to the stream's room.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	id, room := streamParams(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	ws := newWSConn(conn, r.RemoteAddr, h.cfg, h.log)
	defer ws.close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := NewSession(id, room, h.cfg.SendBuffer, ws, h.hub, h.log)
	go ws.readPump(cancel, session, h.postUser)
	go ws.keepAlive(session.Done())

	if err := session.Serve(ctx); err != nil {
		h.log.Debug().Err(err).Str("connection_id", id).Msg("WebSocket stream ended")
	}
}

// Stats returns store and connection statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, StatsResponse{
		Stats:         h.store.Stats(),
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Timestamp:     h.now().UnixMilli(),
	})
}

// Health provides a simple health check endpoint that returns server status.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "roomcast server is running!")
}

func (h *Handler) ingest(req IngestRequest, source chat.Source) (chat.Message, error) {
	msg, err := h.store.Append(chat.Message{
		Content: req.Content,
		Room:    req.Room,
		Author:  req.Author,
		Source:  source,
	})
	if err != nil {
		h.log.Debug().Err(err).Str("source", string(source)).Msg("message rejected")
		return chat.Message{}, err
	}

	messagesIngested.WithLabelValues(string(source)).Inc()
	return msg, nil
}

func (h *Handler) postUser(req IngestRequest) (chat.Message, error) {
	return h.ingest(req, chat.SourceUser)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, h.cfg.MaxMessageSize)
	if err := render.DecodeJSON(body, v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.error(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.error(w, r, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) ingestError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *chat.ValidationError
	if errors.As(err, &verr) {
		h.error(w, r, http.StatusBadRequest, verr.Error())
		return
	}

	h.log.Error().Err(err).Msg("ingest failed")
	h.error(w, r, http.StatusInternalServerError, "internal error")
}

func (h *Handler) error(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: message})
}

// streamParams reads the connection identifier, generating one when the
// client did not choose it, and the optional room filter.
func streamParams(r *http.Request) (id, room string) {
	q := r.URL.Query()
	id = strings.TrimSpace(q.Get("clientId"))
	if id == "" {
		id = uuid.NewString()
	}
	return id, strings.TrimSpace(q.Get("room"))
}

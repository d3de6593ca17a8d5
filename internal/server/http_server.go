package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomcast/internal/chat"
)

// App owns the store, hub and dispatcher of one server process.
type App struct {
	Config     Config
	Store      *chat.Store
	Hub        *Hub
	Dispatcher *Dispatcher

	router *chi.Mux
	log    zerolog.Logger
}

// NewApp wires the message store to the dispatcher and the dispatcher to a
// fresh hub. Call Start to begin the ping schedule.
func NewApp(cfg *Config, log zerolog.Logger) *App {
	c := sanitizeConfig(*cfg)

	hub := NewHub(log)
	dispatcher := NewDispatcher(hub, c.BroadcastScope, c.PingInterval, log)
	store := chat.NewStore(
		chat.WithRetention(c.RetentionPerRoom),
		chat.WithPublisher(dispatcher),
		chat.WithSubscriberCounter(hub),
		chat.WithLogger(log),
	)

	origins := newOriginPolicy(c.AllowedOrigins, log)
	handler := NewHandler(store, hub, c, origins, log)

	return &App{
		Config:     c,
		Store:      store,
		Hub:        hub,
		Dispatcher: dispatcher,
		router:     NewRouter(handler, origins, log),
		log:        log,
	}
}

// Start runs the dispatcher's ping schedule in a separate goroutine.
func (a *App) Start() {
	go a.Dispatcher.Run()
	a.log.Info().
		Dur("ping_interval", a.Config.PingInterval).
		Str("scope", string(a.Config.BroadcastScope)).
		Msg("dispatcher started")
}

// Router returns the HTTP handler serving every endpoint.
func (a *App) Router() http.Handler {
	return a.router
}

// Shutdown closes every live stream, then drains the HTTP server and stops
// the ping schedule. server may be nil when the router is served elsewhere.
func (a *App) Shutdown(server *http.Server, timeout time.Duration) error {
	a.Hub.CloseAll()

	var errs []error
	if server != nil {
		if err := ShutdownServer(server, timeout, a.log); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Dispatcher.Shutdown(timeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CreateServer creates an HTTP server for port and handler. Only the request
// header read is bounded by the server; live streams set per-write deadlines
// instead of a server-wide write timeout.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer starts the HTTP server and blocks until it stops. It returns
// nil after a graceful shutdown.
func StartServer(server *http.Server, log zerolog.Logger) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration, log zerolog.Logger) error {
	log.Info().Msg("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}

	log.Info().Msg("HTTP server shutdown completed")
	return nil
}

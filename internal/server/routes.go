package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	routeEvents    = "/api/events"
	routeWebSocket = "/api/ws"
)

// NewRouter mounts every endpoint of h on a chi router.
func NewRouter(h *Handler, origins *originPolicy, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(recordMetrics)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return origins.allowOrigin(origin)
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Cache-Control"},
		MaxAge:         300,
	}))

	r.Get("/", h.DemoPage)
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/messages", h.GetMessages)
		r.Post("/messages", h.PostMessage)
		r.Post("/webhook", h.PostWebhook)
		r.Get("/events", h.Events)
		r.Get("/ws", h.WebSocket)
		r.Get("/stats", h.Stats)
	})

	return r
}

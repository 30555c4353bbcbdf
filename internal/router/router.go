package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lessonsync-backend/internal/handlers"
	"lessonsync-backend/internal/live"
	"lessonsync-backend/internal/middleware"
)

func New(
	jwtAuth *middleware.JWTAuth,
	liveSessionHandler *handlers.LiveSessionHandler,
	hub *live.Hub,
	promRegistry *prometheus.Registry,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Connection attempts are cheap to rate limit and expensive to let
	// through; 30 per minute per IP covers reconnect storms.
	wsLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Live Session Routes ────
		r.Route("/live-sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", liveSessionHandler.List)
			r.Get("/{id}", liveSessionHandler.Get)
		})

		// ──── WebSocket ────
		r.Group(func(r chi.Router) {
			r.Use(wsLimiter.Middleware)
			r.Get("/ws", hub.HandleWebSocket)
		})
	})

	return r
}

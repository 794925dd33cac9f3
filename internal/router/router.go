package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/TheScottyB/fabric-web/internal/handlers"
	"github.com/TheScottyB/fabric-web/internal/metrics"
	"github.com/TheScottyB/fabric-web/internal/middleware"
)

func New(
	chatHandler *handlers.ChatHandler,
	chatLimiter *middleware.RateLimiter,
	log *slog.Logger,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	// The original frontend posted to /chat; keep both spellings.
	r.Group(func(r chi.Router) {
		r.Use(chatLimiter.Middleware)
		r.Post("/chat", chatHandler.Chat)
		r.Post("/api/chat", chatHandler.Chat)
		r.Post("/api/youtube/transcript", chatHandler.Transcript)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/patterns/names", chatHandler.PatternNames)
		r.Get("/strategies", chatHandler.Strategies)
	})

	return r
}

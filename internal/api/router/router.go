package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medbridge/voicebook/internal/booking"
	"github.com/medbridge/voicebook/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	BookingHandler *booking.Handler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/booking", func(r chi.Router) {
		r.Get("/slots", cfg.BookingHandler.Slots)
		r.Post("/start", cfg.BookingHandler.Start)
		r.Route("/{conversationID}", func(r chi.Router) {
			r.Get("/", cfg.BookingHandler.Get)
			r.Post("/message", cfg.BookingHandler.Message)
			r.Post("/confirm", cfg.BookingHandler.Confirm)
			r.Post("/cancel", cfg.BookingHandler.Cancel)
		})
	})

	return r
}

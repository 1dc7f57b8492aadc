// Package httpserver wires the JSON API, health endpoints, and metrics
// over chi.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/jw6ventures/contactd/internal/config"
	"github.com/jw6ventures/contactd/internal/http/ratelimit"
	"github.com/jw6ventures/contactd/internal/metrics"
	"github.com/jw6ventures/contactd/internal/store"
)

// NewRouter wires all HTTP routes.
func NewRouter(cfg *config.Config, s store.Store, h *Handlers) http.Handler {
	r := chi.NewRouter()

	// API endpoints: 50 requests per second, burst of 100
	apiRateLimiter := ratelimit.New(rate.Limit(50), 100, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(apiRateLimiter.Middleware())

		r.Post("/raw-contacts", h.UpsertRawContact)
		r.Get("/raw-contacts/{id}", h.GetRawContact)
		r.Delete("/raw-contacts/{id}", h.DeleteRawContact)
		r.Put("/raw-contacts/{id}/starred", h.SetRawContactStarred)
		r.Post("/raw-contacts/{rawContactID}/data", h.UpsertDataRow)
		r.Post("/raw-contacts/{id}/photo", h.SetRawContactPhoto)

		r.Put("/data/{id}", h.UpsertDataRow)
		r.Delete("/data/{id}", h.DeleteDataRow)
		r.Post("/data/{id}/usage", h.ApplyUsageFeedback)

		r.Get("/contacts/{id}", h.GetContact)
		r.Post("/contacts/{id}/recompute", h.RecomputeContact)
		r.Put("/contacts/{id}/starred", h.SetContactStarred)
		r.Put("/contacts/{id}/send-to-voicemail", h.SetContactSendToVoicemail)
		r.Put("/contacts/{id}/ringtone", h.SetContactRingtone)

		r.Put("/aggregation-exceptions", h.SetAggregationException)

		r.Get("/lookup", h.Lookup)

		r.Get("/groups", h.ListGroups)
		r.Post("/groups", h.CreateGroup)
		r.Put("/groups/{id}", h.UpdateGroup)
		r.Delete("/groups/{id}", h.DeleteGroup)

		r.Put("/presence", h.UpdatePresence)
		r.Delete("/presence/data-row/{dataRowID}", h.DeletePresence)

		r.Get("/photos/{fileID}", h.GetPhoto)
		r.Post("/stream-items/{id}/photos", h.AttachStreamItemPhoto)

		r.Post("/accounts/sync", h.AccountsChanged)
		r.Post("/accounts/purge-deleted", h.PurgeDeleted)
	})

	return r
}

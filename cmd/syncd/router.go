package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/loci-offline-sync/internal/types"
	"github.com/FACorreiaa/loci-offline-sync/pkg/middleware"
)

// SetupRouter configures all routes and returns the HTTP handler.
func SetupRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/cities", func(w http.ResponseWriter, r *http.Request) {
		cities, err := deps.Coordinator.GetCities(r.Context())
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, cities)
	})

	mux.HandleFunc("GET /v1/cities/{id}/locations", func(w http.ResponseWriter, r *http.Request) {
		locations, err := deps.Coordinator.GetLocationsForCity(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, locations)
	})

	// Reactive read surfaced over HTTP: one JSON line per snapshot, a new
	// line whenever a refresh changes the scope.
	mux.HandleFunc("GET /v1/cities/watch", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)

		enc := json.NewEncoder(w)
		for snapshot := range deps.Coordinator.WatchCities(r.Context()) {
			if err := enc.Encode(snapshot); err != nil {
				return
			}
			flusher.Flush()
		}
	})

	mux.HandleFunc("POST /v1/cities", func(w http.ResponseWriter, r *http.Request) {
		var draft types.CityDraft
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		id, err := deps.Coordinator.AddCity(r.Context(), draft)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, map[string]string{"id": id})
	})

	mux.HandleFunc("POST /v1/cities/{id}/locations", func(w http.ResponseWriter, r *http.Request) {
		var draft types.LocationDraft
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		id, err := deps.Coordinator.AddLocation(r.Context(), r.PathValue("id"), draft)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, map[string]string{"id": id})
	})

	mux.HandleFunc("GET /v1/locations/{id}/reviews", func(w http.ResponseWriter, r *http.Request) {
		reviews, err := deps.Coordinator.ListReviews(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, reviews)
	})

	mux.HandleFunc("POST /v1/locations/{id}/reviews", func(w http.ResponseWriter, r *http.Request) {
		var review types.Review
		if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := deps.Coordinator.AddReview(r.Context(), r.PathValue("id"), review); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("POST /v1/refresh", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Coordinator.RefreshAll(r.Context()); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /v1/cities/{id}/refresh", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Coordinator.RefreshLocationsForCity(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	var handler http.Handler = mux
	if deps.Config.Server.RateLimitPerSecond > 0 && deps.Config.Server.RateLimitBurst > 0 {
		limiter := rate.NewLimiter(
			rate.Limit(float64(deps.Config.Server.RateLimitPerSecond)),
			deps.Config.Server.RateLimitBurst,
		)
		handler = rateLimit(limiter, handler)
	}

	handler = middleware.Logging(deps.Logger)(handler)
	handler = middleware.Recover(deps.Logger)(handler)
	handler = middleware.RequestID("X-Request-ID")(handler)

	if len(deps.Config.Server.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: deps.Config.Server.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
		}).Handler(handler)
	}

	return handler
}

func rateLimit(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrBadRequest),
		errors.Is(err, types.ErrEmptyCityID),
		errors.Is(err, types.ErrBadCategory),
		errors.Is(err, types.ErrBadRating):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logger.Error("request handler failed", slog.Any("error", err))
		http.Error(w, http.StatusText(status), status)
		return
	}
	http.Error(w, err.Error(), status)
}

// Package httpapi exposes the worker's operational surface: liveness,
// Prometheus scraping, and a debug endpoint listing the currently loaded
// event filters.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/docgen"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FilterSummary is one loaded filter's debug-endpoint shape.
type FilterSummary struct {
	Name        string `json:"name"`
	MatchedTopics int  `json:"matched_topics"`
}

// FilterLister is satisfied by internal/preloader/eventfilter.Hook.
type FilterLister interface {
	LoadedFilters() []FilterSummary
}

// HealthChecker reports whether the worker's dependencies (KV store, RPC
// client) are currently reachable.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// NewRouter builds the chi router serving /healthz, /metrics, and
// /debug/filters. filters and health may be nil, in which case
// /debug/filters serves an empty list and /healthz always reports ok.
func NewRouter(filters FilterLister, health HealthChecker) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health.Healthy(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("unhealthy: " + err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/debug/filters", func(w http.ResponseWriter, r *http.Request) {
		if filters == nil {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode([]FilterSummary{})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(filters.LoadedFilters())
	})

	r.Get("/debug/routes", func(w http.ResponseWriter, req *http.Request) {
		docs, err := docgen.JSONRoutesDoc(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(docs))
	})

	return r
}

// Package api is the Request Surface: three upload endpoints plus
// multipart intake, a thin adapter over the Session Coordinator.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auth-platform/file-upload/internal/coordinator"
	"github.com/auth-platform/file-upload/internal/health"
	"github.com/auth-platform/file-upload/internal/observability"
)

// Handler wires the Coordinator and ambient stack into an http.Handler.
type Handler struct {
	coordinator *coordinator.Coordinator
	health      *health.HealthChecker
	log         *observability.Logger
}

// New creates the Request Surface's router.
func New(coord *coordinator.Coordinator, hc *health.HealthChecker, logger *observability.Logger) http.Handler {
	h := &Handler{coordinator: coord, health: hc, log: logger.WithComponent("api")}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", hc.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", hc.ReadinessHandler()).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/upload").Subrouter()
	api.Use(correlationMiddleware)
	api.Use(h.loggingMiddleware)

	api.HandleFunc("/init", h.initHandler).Methods(http.MethodPost)
	api.HandleFunc("/chunk", h.chunkHandler).Methods(http.MethodPost)
	api.HandleFunc("/{uploadId}/status", h.statusHandler).Methods(http.MethodGet)

	return router
}

type correlationKey struct{}

func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = fmt.Sprintf("%d", time.Now().UnixNano())
		}
		w.Header().Set("X-Correlation-ID", id)
		ctx := context.WithValue(r.Context(), correlationKey{}, id)
		ctx = observability.WithCorrelationID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.WithContext(r.Context()).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Info("request handled")
	})
}

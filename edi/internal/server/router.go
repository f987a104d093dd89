// Package server provides HTTP server setup for the EDI service.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/edi-stack/common/middleware"
	"github.com/telhawk-systems/edi-stack/edi/internal/auth"
	"github.com/telhawk-systems/edi-stack/edi/internal/handlers"
)

// NewRouter constructs a router with the EDI API routes registered. Every
// /api route requires an actor token.
func NewRouter(h *handlers.Handler, authn *auth.Middleware, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()

	// Health and metrics
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authn.RequireActor)

	api.HandleFunc("/incoming/{documentType}", h.ReceiveIncoming).Methods(http.MethodPost)
	api.HandleFunc("/peek/{category}", h.Peek).Methods(http.MethodGet)
	api.HandleFunc("/dequeue/{bundleId}", h.Dequeue).Methods(http.MethodDelete)
	api.HandleFunc("/bundling/run", h.RunBundling).Methods(http.MethodPost)
	api.HandleFunc("/archive/messages", h.SearchArchive).Methods(http.MethodGet)
	api.HandleFunc("/actors/{actorNumber}/stats", h.ActorStats).Methods(http.MethodGet)

	return middleware.RequestID(middleware.AccessLog(logger)(r))
}

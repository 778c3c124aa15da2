package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	v1 "github.com/tinoosan/bilibatch/api/v1"
	"github.com/tinoosan/bilibatch/internal/auth"
	"github.com/tinoosan/bilibatch/internal/service"
)

// Pinger reports whether the aria2 sink is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New sets up the application routes and required middleware. pinger may be
// nil when no RPC sink is configured.
func New(logger *slog.Logger, svc service.Batch, pinger Pinger, token string) *mux.Router {
	r := mux.NewRouter()
	r.Use(v1.RequestID)
	r.Use(v1.Log(logger))
	r.Use(auth.Middleware(token))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Error("write healthz response", "err", err)
		}
	}).Methods("GET")

	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			if err := pinger.Ping(r.Context()); err != nil {
				http.Error(w, "aria2 unreachable: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	h := v1.NewBatchHandler(logger, svc)
	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/items", h.GetItems).Methods("GET")
	api.HandleFunc("/export", h.Export).Methods("POST")
	api.HandleFunc("/dispatch", h.Dispatch).Methods("POST")

	return r
}

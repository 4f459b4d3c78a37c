package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the payload of the /status endpoint.
type Status struct {
	Thermostats int  `json:"thermostats"`
	Devices     int  `json:"devices"`
	AuthOK      bool `json:"auth_ok"`
}

// StatusFunc snapshots the daemon's state for the status endpoint.
type StatusFunc func() Status

// HTTPServer serves health, status, and metrics.
type HTTPServer struct {
	server *http.Server
}

func New(addr string, registry *prometheus.Registry, status StatusFunc) *HTTPServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/status", statusHandler(status))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &HTTPServer{server: &http.Server{Addr: addr, Handler: mux}}
}

func (s *HTTPServer) ListenAndServe() error {
	return s.server.ListenAndServe()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func statusHandler(status StatusFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s := status()
		w.Header().Set("Content-Type", "application/json")
		if !s.AuthOK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(s)
	})
}

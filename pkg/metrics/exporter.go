package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the exposition endpoint for everything the Prometheus
// recorder has registered. Mount it at /metrics in whatever process hosts
// the recorder so a Prometheus instance can scrape the llm_* series.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewExpositionServer builds an HTTP server exposing the recorder's series
// at /metrics on the given address. The caller owns the server lifecycle.
func NewExpositionServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}

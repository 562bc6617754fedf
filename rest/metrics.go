package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bitbucket.org/kleinnic74/pinphotos/library"
)

// MetricsHandler exposes the prometheus registry and the counters of the
// photo cache
type MetricsHandler struct {
	handler http.Handler
	cache   *library.PhotoCache
}

func NewMetricsHandler(cache *library.PhotoCache) *MetricsHandler {
	return &MetricsHandler{
		handler: promhttp.Handler(),
		cache:   cache,
	}
}

func (m *MetricsHandler) InitRoutes(r *mux.Router) {
	r.Handle("/metrics", m.handler).Methods(http.MethodGet)
	r.HandleFunc("/stats", m.stats).Methods(http.MethodGet)
}

func (m *MetricsHandler) stats(w http.ResponseWriter, r *http.Request) {
	Respond(r).WithJSON(w, http.StatusOK, &simplePayload{Data: m.cache.Stats()})
}

package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"bitbucket.org/kleinnic74/pinphotos/logging"
)

type logsHandler struct{}

func NewLogsHandler() logsHandler {
	return logsHandler{}
}

func (l logsHandler) InitRoutes(r *mux.Router) {
	r.Handle("/logs", l).Methods(http.MethodGet)
}

// ServeHTTP dumps the in-memory logs, newest first unless ?order=asc
func (l logsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	logging.Dump(w, r.URL.Query().Get("order") != "asc")
}

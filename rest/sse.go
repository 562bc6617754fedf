package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"bitbucket.org/kleinnic74/pinphotos/events"
	"bitbucket.org/kleinnic74/pinphotos/logging"
)

// SSEHandler forwards bus events to clients as server-sent events. Clients
// may restrict the stream to some event names with ?name=pins,tasks
type SSEHandler struct {
	events *events.Stream
}

func NewSSEHandler(stream *events.Stream) *SSEHandler {
	return &SSEHandler{events: stream}
}

func (e *SSEHandler) InitRoutes(router *mux.Router) {
	router.HandleFunc("/eventstream", e.listen).Methods(http.MethodGet).Name("/eventstream")
}

type nameFilter map[string]bool

func nameFilterFrom(r *http.Request) nameFilter {
	raw := r.URL.Query().Get("name")
	if raw == "" {
		return nil
	}
	filter := nameFilter{}
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			filter[name] = true
		}
	}
	return filter
}

func (f nameFilter) accepts(e events.Event) bool {
	return len(f) == 0 || f[e.Name]
}

func (e *SSEHandler) listen(w http.ResponseWriter, r *http.Request) {
	logger := logging.From(r.Context())
	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Warn("HTTP Flusher not supported")
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	filter := nameFilterFrom(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var sent uint64
	e.events.Listen(r.Context(), func(event events.Event) {
		if !filter.accepts(event) {
			return
		}
		data, err := json.Marshal(event)
		if err != nil {
			logger.Warn("Cannot encode event", zap.String("event", event.Name), zap.Error(err))
			return
		}
		sent++
		fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", sent, event.Name, data)
		flusher.Flush()
	})
	logger.Debug("Event stream closed", zap.Uint64("events.sent", sent))
}

package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bitbucket.org/kleinnic74/pinphotos/consts"
	"bitbucket.org/kleinnic74/pinphotos/logging"
)

const requestIDHeader = "X-Request-ID"

// WithMiddleWares adds request ids, request logging and, in dev mode, CORS
// headers to handler
func WithMiddleWares(handler http.Handler, name string) http.Handler {
	return cors(addRequestID(logRequest(handler, name)))
}

type responseWrapper struct {
	writer http.ResponseWriter
	status int
	bytes  int
}

func (w *responseWrapper) Header() http.Header {
	return w.writer.Header()
}

func (w *responseWrapper) Write(data []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.writer.Write(data)
	w.bytes += n
	return n, err
}

func (w *responseWrapper) WriteHeader(status int) {
	w.status = status
	w.writer.WriteHeader(status)
}

// Flush keeps server-sent events working behind the wrapper
func (w *responseWrapper) Flush() {
	if f, ok := w.writer.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequest(f http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rid, _ := r.Context().Value(requestIDKey).(string)
		log, ctx := logging.FromWithFields(r.Context(), zap.String("request", rid))
		wrapper := responseWrapper{
			writer: w,
		}
		defer func() {
			log.Named(name).Info("HTTP Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
				zap.Int("status", wrapper.status),
				zap.Int("bytes", wrapper.bytes))
		}()
		f.ServeHTTP(&wrapper, r.WithContext(ctx))
	})
}

type requestIDKeyType int

const requestIDKey = requestIDKeyType(0)

func addRequestID(f http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if rid == "" {
			rid = uuid.New().String()
			r.Header.Set(requestIDHeader, rid)
		}
		w.Header().Set(requestIDHeader, rid)
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		f.ServeHTTP(w, r.WithContext(ctx))
	})
}

func cors(h http.Handler) http.Handler {
	if !consts.IsDevMode() {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Add("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Add("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

package rest

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"

	"go.uber.org/zap"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/failure"
	"bitbucket.org/kleinnic74/pinphotos/logging"
)

type Responder interface {
	WithJSON(http.ResponseWriter, int, interface{})
	WithError(http.ResponseWriter, error)
}

type encoderFunc func(*json.Encoder) *json.Encoder

type responder struct {
	encoderOptions encoderFunc
	logger         *zap.Logger
}

var (
	pretty = func(encoder *json.Encoder) *json.Encoder {
		encoder.SetIndent("", "  ")
		return encoder
	}
	compact = func(e *json.Encoder) *json.Encoder { return e }
)

// Respond returns a Responder for r, JSON is indented if the request asks
// for ?pretty=true
func Respond(r *http.Request) Responder {
	options := compact
	if r.URL.Query().Get("pretty") == "true" {
		options = pretty
	}
	return responder{encoderOptions: options, logger: logging.From(r.Context()).Named("http")}
}

type errorPayload struct {
	Error   string       `json:"error"`
	Kind    failure.Kind `json:"kind"`
	Message string       `json:"message,omitempty"`
}

// WithError answers with the status derived from the classification of err
func (r responder) WithError(w http.ResponseWriter, err error) {
	status := failure.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		r.logger.Warn("Request failed", zap.Int("status", status), zap.Error(err))
	}
	r.WithJSON(w, status, errorPayload{
		Error:   failure.Describe(err),
		Kind:    failure.KindOf(err),
		Message: err.Error(),
	})
}

func (r responder) WithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := r.encoderOptions(json.NewEncoder(w))
	if err := encoder.Encode(payload); err != nil {
		r.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func respondWithBinary(w http.ResponseWriter, mime string, size int64, data io.Reader) {
	w.Header().Set("Content-Type", mime)
	if size > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	}
	w.WriteHeader(http.StatusOK)
	io.Copy(w, data)
}

func respondWithImage(w http.ResponseWriter, format domain.Format, image image.Image) error {
	w.Header().Set("Content-Type", format.Mime())
	w.WriteHeader(http.StatusOK)
	return format.Encode(image, w)
}

type simplePayload struct {
	Data interface{} `json:"data,omitempty"`
}

func decodeJSON(r *http.Request, op string, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return failure.Newf(failure.Invalid, op, "malformed request body: %v", err)
	}
	return nil
}

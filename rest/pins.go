package rest

import (
	"context"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"bitbucket.org/kleinnic74/pinphotos/consts"
	"bitbucket.org/kleinnic74/pinphotos/events"
	"bitbucket.org/kleinnic74/pinphotos/failure"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"bitbucket.org/kleinnic74/pinphotos/rest/cursor"
	"bitbucket.org/kleinnic74/pinphotos/rest/views"
	"bitbucket.org/kleinnic74/pinphotos/tasks"
)

// PinsHandler serves pins and the photos found for them
type PinsHandler struct {
	cache    *library.PhotoCache
	async    *library.Async
	events   events.Publisher
	validate *validator.Validate
}

func NewPinsHandler(cache *library.PhotoCache, async *library.Async, publisher events.Publisher) *PinsHandler {
	return &PinsHandler{cache: cache, async: async, events: publisher, validate: validator.New()}
}

func (h *PinsHandler) InitRoutes(r *mux.Router) {
	r.HandleFunc("/pins", h.listPins).Methods(http.MethodGet)
	r.HandleFunc("/pins", h.createPin).Methods(http.MethodPost)
	r.HandleFunc("/pins/{id}", h.getPin).Methods(http.MethodGet)
	r.HandleFunc("/pins/{id}", h.deletePin).Methods(http.MethodDelete)
	r.HandleFunc("/pins/{id}/photos", h.getPhotos).Methods(http.MethodGet)
	r.HandleFunc("/pins/{id}/refresh", h.refresh).Methods(http.MethodPost)
	r.HandleFunc("/pins/{id}/prefetch", h.prefetch).Methods(http.MethodPost)
}

type pinInput struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

func (h *PinsHandler) listPins(w http.ResponseWriter, r *http.Request) {
	pins, err := h.cache.Pins(r.Context())
	if err != nil {
		Respond(r).WithError(w, err)
		return
	}
	pinViews := make([]views.Pin, 0, len(pins))
	for _, p := range pins {
		pinViews = append(pinViews, views.PinFrom(p))
	}
	if consts.SortOrderFromString(r.URL.Query().Get("order")) == consts.Descending {
		slices.Reverse(pinViews)
	}
	Respond(r).WithJSON(w, http.StatusOK, cursor.PageOf(pinViews, cursor.DecodeFromRequest(r)))
}

func (h *PinsHandler) createPin(w http.ResponseWriter, r *http.Request) {
	const op = "pins.create"
	var input pinInput
	if err := decodeJSON(r, op, &input); err != nil {
		Respond(r).WithError(w, err)
		return
	}
	if err := h.validate.Struct(&input); err != nil {
		Respond(r).WithError(w, failure.Newf(failure.Invalid, op, "%v", err))
		return
	}
	pin, err := h.cache.CreatePin(r.Context(), *input.Lat, *input.Lon)
	if err != nil {
		Respond(r).WithError(w, err)
		return
	}
	w.Header().Set("Location", "/pins/"+string(pin.ID))
	Respond(r).WithJSON(w, http.StatusCreated, views.PinFrom(pin))
}

func (h *PinsHandler) getPin(w http.ResponseWriter, r *http.Request) {
	pin, err := h.cache.Pin(r.Context(), pinID(r))
	if err != nil {
		Respond(r).WithError(w, err)
		return
	}
	Respond(r).WithJSON(w, http.StatusOK, views.PinFrom(pin))
}

func (h *PinsHandler) deletePin(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.DeletePin(r.Context(), pinID(r)); err != nil {
		Respond(r).WithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PinsHandler) getPhotos(w http.ResponseWriter, r *http.Request) {
	set, err := h.cache.EnsurePhotosForPin(r.Context(), pinID(r))
	if err != nil {
		Respond(r).WithError(w, err)
		return
	}
	Respond(r).WithJSON(w, http.StatusOK, views.PhotoSetFrom(set))
}

func (h *PinsHandler) refresh(w http.ResponseWriter, r *http.Request) {
	id := pinID(r)
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		logger := logging.From(r.Context())
		execution, err := h.async.Refresh(background(r), id, func(set *library.PhotoSet, err error) {
			if err != nil {
				logger.Warn("Refresh failed", zap.String("pin", string(id)), zap.Error(err))
				h.publish("pin", "refreshFailed", errorEvent(id, err))
				return
			}
			h.publish("pin", "refreshed", views.PhotoSetFrom(set))
		})
		h.respondSubmitted(w, r, execution, err)
		return
	}
	set, err := h.cache.Refresh(r.Context(), id)
	if err != nil {
		Respond(r).WithError(w, err)
		return
	}
	Respond(r).WithJSON(w, http.StatusOK, views.PhotoSetFrom(set))
}

func (h *PinsHandler) prefetch(w http.ResponseWriter, r *http.Request) {
	id := pinID(r)
	if _, err := h.cache.Pin(r.Context(), id); err != nil {
		Respond(r).WithError(w, err)
		return
	}
	execution, err := h.async.Prefetch(background(r), id, func(report *library.PrefetchReport, err error) {
		if err != nil {
			h.publish("pin", "prefetchFailed", errorEvent(id, err))
			return
		}
		h.publish("pin", "prefetchReport", struct {
			Pin library.PinID `json:"pin"`
			*library.PrefetchReport
		}{id, report})
	})
	h.respondSubmitted(w, r, execution, err)
}

// background keeps the request scoped values for jobs running after the
// response has been sent
func background(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *PinsHandler) respondSubmitted(w http.ResponseWriter, r *http.Request, execution tasks.Execution, err error) {
	if err != nil {
		Respond(r).WithError(w, failure.Wrap(failure.TransientNetwork, "tasks.submit", err))
		return
	}
	Respond(r).WithJSON(w, http.StatusAccepted, execution)
}

func (h *PinsHandler) publish(name, action string, data interface{}) {
	if h.events != nil {
		h.events.Publish(events.Event{Name: name, Action: action, Data: data})
	}
}

type pinError struct {
	Pin   library.PinID `json:"pin"`
	Error string        `json:"error"`
	Kind  failure.Kind  `json:"kind"`
}

func errorEvent(id library.PinID, err error) pinError {
	return pinError{Pin: id, Error: failure.Describe(err), Kind: failure.KindOf(err)}
}

func pinID(r *http.Request) library.PinID {
	return library.PinID(mux.Vars(r)["id"])
}

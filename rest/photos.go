package rest

import (
	"bytes"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/failure"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"bitbucket.org/kleinnic74/pinphotos/rest/views"
)

// PhotosHandler serves single photos and their content
type PhotosHandler struct {
	cache   *library.PhotoCache
	thumber domain.Thumber
}

func NewPhotosHandler(cache *library.PhotoCache) *PhotosHandler {
	return &PhotosHandler{cache: cache}
}

// EnableThumbs makes /photos/{id}/thumb available
func (h *PhotosHandler) EnableThumbs(thumber domain.Thumber) {
	h.thumber = thumber
}

func (h *PhotosHandler) InitRoutes(r *mux.Router) {
	r.HandleFunc("/photos/{id}/view", h.getPhotoImage).Methods(http.MethodGet)
	r.HandleFunc("/photos/{id}/thumb", h.getThumb).Methods(http.MethodGet)
	r.HandleFunc("/photos/{id}", h.getPhoto).Methods(http.MethodGet)
	r.HandleFunc("/photos/{id}", h.deletePhoto).Methods(http.MethodDelete)
	r.HandleFunc("/photos", h.deletePhotos).Methods(http.MethodDelete)
}

func (h *PhotosHandler) getPhoto(w http.ResponseWriter, r *http.Request) {
	photo, err := h.cache.Photo(r.Context(), photoID(r))
	if err != nil {
		Respond(r).WithError(w, err)
		return
	}
	Respond(r).WithJSON(w, http.StatusOK, views.PhotoFrom(photo))
}

func (h *PhotosHandler) getPhotoImage(w http.ResponseWriter, r *http.Request) {
	photo, data, err := h.cache.Content(r.Context(), photoID(r))
	if err != nil {
		Respond(r).WithError(w, err)
		return
	}
	contentType := photo.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	respondWithBinary(w, contentType, int64(len(data)), bytes.NewReader(data))
}

func (h *PhotosHandler) getThumb(w http.ResponseWriter, r *http.Request) {
	const op = "photos.thumb"
	log, _ := logging.SubFrom(r.Context(), "thumber")
	if h.thumber == nil {
		Respond(r).WithError(w, failure.New(failure.NotFound, op, "thumbnails are disabled"))
		return
	}
	size, err := domain.ThumbSizeFromString(r.URL.Query().Get("size"))
	if err != nil {
		Respond(r).WithError(w, failure.Wrap(failure.Invalid, op, err))
		return
	}
	photo, data, err := h.cache.Content(r.Context(), photoID(r))
	if err != nil {
		Respond(r).WithError(w, err)
		return
	}
	format, err := domain.FormatOf(data)
	if err != nil {
		log.Warn("Unsupported image format", zap.String("photo", string(photo.ID)), zap.Error(err))
		Respond(r).WithError(w, failure.Wrap(failure.Parse, op, err))
		return
	}
	thumb, err := h.thumber.CreateThumb(data, format, photo.Orientation, size)
	if err != nil {
		log.Warn("Failed to create thumb", zap.String("photo", string(photo.ID)), zap.Error(err))
		Respond(r).WithError(w, failure.Wrap(failure.Parse, op, err))
		return
	}
	if err := respondWithImage(w, domain.JPEG, thumb); err != nil {
		log.Warn("Failed to encode thumb", zap.Error(err))
	}
}

func (h *PhotosHandler) deletePhoto(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.DeletePhoto(r.Context(), photoID(r)); err != nil {
		Respond(r).WithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deleteInput struct {
	IDs []library.PhotoID `json:"ids"`
}

func (h *PhotosHandler) deletePhotos(w http.ResponseWriter, r *http.Request) {
	const op = "photos.delete"
	var input deleteInput
	if err := decodeJSON(r, op, &input); err != nil {
		Respond(r).WithError(w, err)
		return
	}
	if len(input.IDs) == 0 {
		Respond(r).WithError(w, failure.New(failure.Invalid, op, "no photo ids given"))
		return
	}
	deleted, err := h.cache.DeletePhotos(r.Context(), input.IDs)
	if err != nil {
		Respond(r).WithError(w, err)
		return
	}
	Respond(r).WithJSON(w, http.StatusOK, struct {
		Deleted int `json:"deleted"`
	}{deleted})
}

func photoID(r *http.Request) library.PhotoID {
	return library.PhotoID(mux.Vars(r)["id"])
}

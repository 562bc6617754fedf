package library

import (
	"encoding/json"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
)

const currentSchema = 1

// PinID is the unique identifier of a Pin, never reused
type PinID string

// PhotoID is the unique identifier of a Photo
type PhotoID string

// Pin is a geographic point photos are searched for. Its coordinates
// never change after creation.
type Pin struct {
	ID      PinID     `json:"id"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	Created time.Time `json:"created"`
}

func (p *Pin) Coordinates() gps.Coordinates {
	return gps.NewCoordinates(p.Lat, p.Lon)
}

// Photo is a remote photo attached to a pin. Image is only held in memory
// and stored apart from the meta-data.
type Photo struct {
	ID          PhotoID
	Pin         PinID
	Position    int
	URL         string
	RemoteID    string
	Title       string
	Width       int
	Height      int
	Created     time.Time
	Size        int64
	ContentType string
	DateTaken   time.Time
	Orientation domain.Orientation
	Image       []byte
}

// Materialized is true once the image bytes have been stored
func (p *Photo) Materialized() bool {
	return p.Size > 0
}

func (p *Photo) MarshalJSON() ([]byte, error) {
	out := struct {
		Schema      uint               `json:"schema"`
		ID          PhotoID            `json:"id"`
		Pin         PinID              `json:"pin"`
		Position    int                `json:"pos"`
		URL         string             `json:"url"`
		RemoteID    string             `json:"rid,omitempty"`
		Title       string             `json:"title,omitempty"`
		Width       int                `json:"w,omitempty"`
		Height      int                `json:"h,omitempty"`
		Created     int64              `json:"createdUN"`
		Size        int64              `json:"size,omitempty"`
		ContentType string             `json:"ct,omitempty"`
		DateTaken   int64              `json:"dateUN,omitempty"`
		Orientation domain.Orientation `json:"or,omitempty"`
	}{
		Schema:      currentSchema,
		ID:          p.ID,
		Pin:         p.Pin,
		Position:    p.Position,
		URL:         p.URL,
		RemoteID:    p.RemoteID,
		Title:       p.Title,
		Width:       p.Width,
		Height:      p.Height,
		Created:     unixNano(p.Created),
		Size:        p.Size,
		ContentType: p.ContentType,
		DateTaken:   unixNano(p.DateTaken),
		Orientation: p.Orientation,
	}
	return json.Marshal(&out)
}

func (p *Photo) UnmarshalJSON(buf []byte) error {
	var data struct {
		Schema      uint               `json:"schema"`
		ID          PhotoID            `json:"id"`
		Pin         PinID              `json:"pin"`
		Position    int                `json:"pos"`
		URL         string             `json:"url"`
		RemoteID    string             `json:"rid"`
		Title       string             `json:"title"`
		Width       int                `json:"w"`
		Height      int                `json:"h"`
		Created     int64              `json:"createdUN"`
		Size        int64              `json:"size"`
		ContentType string             `json:"ct"`
		DateTaken   int64              `json:"dateUN"`
		Orientation domain.Orientation `json:"or"`
	}
	if err := json.Unmarshal(buf, &data); err != nil {
		return err
	}
	*p = Photo{
		ID:          data.ID,
		Pin:         data.Pin,
		Position:    data.Position,
		URL:         data.URL,
		RemoteID:    data.RemoteID,
		Title:       data.Title,
		Width:       data.Width,
		Height:      data.Height,
		Created:     fromUnixNano(data.Created),
		Size:        data.Size,
		ContentType: data.ContentType,
		DateTaken:   fromUnixNano(data.DateTaken),
		Orientation: data.Orientation,
	}
	return nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// PhotoSet is the outcome of populating or reading the photos of a pin
type PhotoSet struct {
	Pin    *Pin
	Photos []*Photo
	// Skipped counts search results which could not become photos
	Skipped int
	// Cached is true when the photos were already stored
	Cached bool
}

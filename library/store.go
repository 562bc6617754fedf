package library

import "context"

// PhotoFilter selects photos in FindPhotos
type PhotoFilter struct {
	Pin PinID
	// Materialized restricts the result to photos with, or without, image
	// bytes. nil means all.
	Materialized *bool
}

func (f PhotoFilter) Matches(p *Photo) bool {
	if f.Pin != "" && p.Pin != f.Pin {
		return false
	}
	if f.Materialized != nil && p.Materialized() != *f.Materialized {
		return false
	}
	return true
}

// Tx is a store transaction. Errors are classified with the failure
// package: failure.NotFound for missing rows, failure.Invalid for rule
// violations, failure.Store for everything else.
type Tx interface {
	InsertPin(pin *Pin) error
	GetPin(id PinID) (*Pin, error)
	ListPins() ([]*Pin, error)
	// DeletePin removes the pin together with its photos and their images
	DeletePin(id PinID) error

	// InsertPhotos adds new photos; the pin of every photo must exist and
	// URLs must be non-empty and unique per pin
	InsertPhotos(photos []*Photo) error
	// FindPhotos returns the matching photos without image bytes, ordered
	// by position
	FindPhotos(filter PhotoFilter) ([]*Photo, error)
	CountPhotos(pin PinID) (int, error)
	// GetPhoto returns the photo including its image bytes, if any
	GetPhoto(id PhotoID) (*Photo, error)
	// UpdatePhoto replaces an existing photo, including its image bytes
	UpdatePhoto(photo *Photo) error
	DeletePhotos(ids []PhotoID) (int, error)
	DeletePhotosOfPin(pin PinID) (int, error)
}

// Store is the persistent storage of pins and photos. fn runs within a
// single transaction; all of its changes are discarded if it fails.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
}

package views

import (
	"time"

	"bitbucket.org/kleinnic74/pinphotos/library"
)

type Pin struct {
	ID      library.PinID `json:"id"`
	Lat     float64       `json:"lat"`
	Lon     float64       `json:"lon"`
	Created time.Time     `json:"created"`
	Links   Links         `json:"links"`
}

var pinLinks = LinkProvider{
	patterns: map[string]string{
		"self":     "/pins/%s",
		"photos":   "/pins/%s/photos",
		"refresh":  "/pins/%s/refresh",
		"prefetch": "/pins/%s/prefetch",
	},
}

func PinFrom(p *library.Pin) Pin {
	return Pin{
		ID:      p.ID,
		Lat:     p.Lat,
		Lon:     p.Lon,
		Created: p.Created,
		Links:   pinLinks.LinksFor(string(p.ID)),
	}
}

// PhotoSet is the answer to a request for the photos of a pin
type PhotoSet struct {
	Pin     Pin     `json:"pin"`
	Data    []Photo `json:"data"`
	Skipped int     `json:"skipped"`
	Cached  bool    `json:"cached"`
}

func PhotoSetFrom(set *library.PhotoSet) PhotoSet {
	return PhotoSet{
		Pin:     PinFrom(set.Pin),
		Data:    PhotosFrom(set.Photos),
		Skipped: set.Skipped,
		Cached:  set.Cached,
	}
}

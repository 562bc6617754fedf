package views

import (
	"fmt"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/library"
)

type Links map[string]string

type LinkProvider struct {
	patterns map[string]string
}

func (p LinkProvider) LinksFor(id string) Links {
	links := make(Links)
	for name, pattern := range p.patterns {
		links[name] = fmt.Sprintf(pattern, id)
	}
	return links
}

type Photo struct {
	ID           library.PhotoID `json:"id"`
	Pin          library.PinID   `json:"pin"`
	Position     int             `json:"position"`
	Title        string          `json:"title,omitempty"`
	RemoteURL    string          `json:"remoteURL"`
	Width        int             `json:"width,omitempty"`
	Height       int             `json:"height,omitempty"`
	Materialized bool            `json:"materialized"`
	Size         int64           `json:"size,omitempty"`
	ContentType  string          `json:"contentType,omitempty"`
	DateTaken    *time.Time      `json:"dateTaken,omitempty"`
	Links        Links           `json:"links"`
}

var photoLinks = LinkProvider{
	patterns: map[string]string{
		"self":  "/photos/%s",
		"view":  "/photos/%s/view",
		"thumb": "/photos/%s/thumb",
	},
}

func PhotoFrom(p *library.Photo) Photo {
	v := Photo{
		ID:           p.ID,
		Pin:          p.Pin,
		Position:     p.Position,
		Title:        p.Title,
		RemoteURL:    p.URL,
		Width:        p.Width,
		Height:       p.Height,
		Materialized: p.Materialized(),
		Size:         p.Size,
		ContentType:  p.ContentType,
		Links:        photoLinks.LinksFor(string(p.ID)),
	}
	if !p.DateTaken.IsZero() {
		taken := p.DateTaken
		v.DateTaken = &taken
	}
	return v
}

func PhotosFrom(photos []*library.Photo) []Photo {
	views := make([]Photo, len(photos))
	for i, p := range photos {
		views[i] = PhotoFrom(p)
	}
	return views
}

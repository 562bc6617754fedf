// Package search defines the geographic photo search used to populate pins
// and the page selection and de-duplication rules shared by all backends.
package search

import (
	"context"
	"fmt"

	"github.com/reusee/mmh3"

	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
)

const (
	DefaultPageSize   = 21
	DefaultMaxResults = 4000
	DefaultHalfWidth  = 1.0
	DefaultHalfHeight = 1.0
)

// Descriptor is a photo found by a search, it is never persisted as is
type Descriptor struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Result is the outcome of one search: at most one page of distinct photos
type Result struct {
	Descriptors []Descriptor
	// Skipped counts the candidates dropped for a missing or duplicate URL
	Skipped int
	Page    int
	Pages   int
}

func (r *Result) Empty() bool {
	return r == nil || len(r.Descriptors) == 0
}

type Searcher interface {
	Search(ctx context.Context, lat, lon float64, pageSize int) (*Result, error)
}

// SearcherFunc adapts a function to a Searcher
type SearcherFunc func(ctx context.Context, lat, lon float64, pageSize int) (*Result, error)

func (f SearcherFunc) Search(ctx context.Context, lat, lon float64, pageSize int) (*Result, error) {
	return f(ctx, lat, lon, pageSize)
}

// BoundingBox returns the rectangle around (lat, lon) with the given half
// extents in degrees, clamped to valid coordinates
func BoundingBox(lat, lon, halfWidth, halfHeight float64) gps.Rect {
	return gps.RectAround(gps.PointFromLatLon(lat, lon), halfWidth, halfHeight).ClampTo(gps.WorldBounds)
}

// FormatBBox renders r as "minLon,minLat,maxLon,maxLat"
func FormatBBox(r gps.Rect) string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", r.MinLon(), r.MinLat(), r.MaxLon(), r.MaxLat())
}

// MaxPage is the last page the remote service can serve for the given
// page size
func MaxPage(maxResults, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return maxResults / pageSize
}

// PickPage picks a page uniformly in [1, min(pages, maxPage)]; intn must
// behave like rand.Intn. Returns 0 when there is nothing to pick.
func PickPage(pages, maxPage int, intn func(int) int) int {
	upper := pages
	if maxPage > 0 && upper > maxPage {
		upper = maxPage
	}
	if upper <= 0 {
		return 0
	}
	return intn(upper) + 1
}

// URLKey is the hash under which a photo URL is indexed
func URLKey(url string) []byte {
	h := mmh3.New128()
	h.Write([]byte(url))
	return h.Sum(nil)
}

// Distinct drops candidates without URL and repeated URLs, preserving order
func Distinct(candidates []Descriptor) (out []Descriptor, skipped int) {
	seen := make(map[string]struct{}, len(candidates))
	out = make([]Descriptor, 0, len(candidates))
	for _, d := range candidates {
		if d.URL == "" {
			skipped++
			continue
		}
		key := string(URLKey(d.URL))
		if _, dup := seen[key]; dup {
			skipped++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return
}

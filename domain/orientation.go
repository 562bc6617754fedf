package domain

import (
	"image"

	"github.com/disintegration/gift"
)

// Orientation is the EXIF orientation of an image, values 1 to 8. The
// rotation names are the counter-clockwise rotation that displays the
// image upright.
type Orientation uint8

const (
	Normal = Orientation(iota + 1)
	FlipHorizontal
	Rotate180
	FlipVertical
	Transpose
	Rotate270
	Transverse
	Rotate90
)

var orientationFilters = map[Orientation]gift.Filter{
	FlipHorizontal: gift.FlipHorizontal(),
	Rotate180:      gift.Rotate180(),
	FlipVertical:   gift.FlipVertical(),
	Transpose:      gift.Transpose(),
	Rotate270:      gift.Rotate270(),
	Transverse:     gift.Transverse(),
	Rotate90:       gift.Rotate90(),
}

// Apply returns img rotated and flipped so that it displays upright
func (o Orientation) Apply(img image.Image) image.Image {
	filter, found := orientationFilters[o]
	if !found {
		return img
	}
	g := gift.New(filter)
	dst := image.NewRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

// SwapsAxes is true for orientations which exchange width and height
func (o Orientation) SwapsAxes() bool {
	return o >= Transpose && o <= Rotate90
}

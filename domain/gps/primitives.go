package gps

import "math"

// Rect is a bounding box in degrees, stored as {minLon, minLat, maxLon, maxLat}
type Rect [4]float64

// WorldBounds covers every valid coordinate
var WorldBounds = Rect{-180, -90, 180, 90}

func RectFrom(x0, y0, x1, y1 float64) Rect {
	return Rect{math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)}
}

// RectAround returns the box of the given half extents centered on p
func RectAround(p Point, halfWidth, halfHeight float64) Rect {
	return RectFrom(p.X()-halfWidth, p.Y()-halfHeight, p.X()+halfWidth, p.Y()+halfHeight)
}

func (r Rect) MinLon() float64 { return r[0] }
func (r Rect) MinLat() float64 { return r[1] }
func (r Rect) MaxLon() float64 { return r[2] }
func (r Rect) MaxLat() float64 { return r[3] }

// ClampTo limits every edge of r to bounds. The result may be degenerate
// when r lies entirely outside of bounds.
func (r Rect) ClampTo(bounds Rect) Rect {
	return Rect{
		math.Max(r[0], bounds[0]),
		math.Max(r[1], bounds[1]),
		math.Min(r[2], bounds[2]),
		math.Min(r[3], bounds[3]),
	}
}

// Point is a position in degrees, longitude first
type Point [2]float64

func PointFromLatLon(lat, lon float64) Point {
	return Point{lon, lat}
}

func (p Point) X() float64 {
	return p[0]
}

func (p Point) Y() float64 {
	return p[1]
}

// In reports whether p lies within r, edges included
func (p Point) In(r Rect) bool {
	return p[0] >= r[0] && p[0] <= r[2] && p[1] >= r[1] && p[1] <= r[3]
}

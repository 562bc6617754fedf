package gps

import (
	"encoding/json"
	"fmt"
)

// Coordinates is a WGS84 position in degrees
type Coordinates struct {
	lat  float64
	long float64
}

func (gps Coordinates) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Lat  float64 `json:"lat"`
		Long float64 `json:"lon"`
	}{
		Lat:  gps.lat,
		Long: gps.long,
	})
}

func (gps *Coordinates) UnmarshalJSON(buf []byte) error {
	var c struct {
		Lat  float64 `json:"lat"`
		Long float64 `json:"lon"`
	}
	if err := json.Unmarshal(buf, &c); err != nil {
		return err
	}
	gps.lat = c.Lat
	gps.long = c.Long
	return nil
}

func NewCoordinates(lat, long float64) Coordinates {
	return Coordinates{lat: lat, long: long}
}

func (c Coordinates) Lat() float64 {
	return c.lat
}

func (c Coordinates) Lon() float64 {
	return c.long
}

// Valid reports whether c lies within [-90,90] x [-180,180]
func (c Coordinates) Valid() bool {
	return c.lat >= -90 && c.lat <= 90 && c.long >= -180 && c.long <= 180
}

func (c Coordinates) String() string {
	return fmt.Sprintf("[%f;%f]", c.lat, c.long)
}

func (c Coordinates) ISO6709() string {
	return fmt.Sprintf("%+010.6f%+011.6f/", c.lat, c.long)
}

package model

import (
	"fmt"
	"math"
)

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Validate rejects NaN and out-of-range coordinates. Geodesy functions do not
// validate, so callers check here before computing distances.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return fmt.Errorf("coordinate is NaN")
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %f out of range", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("longitude %f out of range", c.Lng)
	}
	return nil
}

func (c Coordinate) String() string { return fmt.Sprintf("(%.6f,%.6f)", c.Lat, c.Lng) }

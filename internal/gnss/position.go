// Package gnss assembles decoded NMEA reports into complete position fixes.
package gnss

import (
	"math"
	"time"
)

// Position is one complete, timestamped GNSS fix in WGS84. It is built by
// the assembler once both the coordinate and accuracy reports for an epoch
// are known, and is immutable from then on.
type Position struct {
	Time            time.Time
	Latitude        float64 // decimal degrees, north positive
	Longitude       float64 // decimal degrees, east positive
	Altitude        float64 // orthometric height, meters
	EllipsoidHeight float64 // meters above the WGS84 ellipsoid

	LatitudeAccuracy  float64 // 1-sigma meters
	LongitudeAccuracy float64 // 1-sigma meters
	VerticalAccuracy  float64 // 1-sigma meters
}

// GeoidHeight is the geoid separation at the fix location.
func (p Position) GeoidHeight() float64 {
	return p.EllipsoidHeight - p.Altitude
}

// HorizontalAccuracy combines the per-axis 1-sigma errors.
func (p Position) HorizontalAccuracy() float64 {
	return math.Sqrt(p.LatitudeAccuracy*p.LatitudeAccuracy + p.LongitudeAccuracy*p.LongitudeAccuracy)
}

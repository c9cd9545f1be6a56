// Package publish fans completed position fixes out to downstream
// consumers (MQTT broker, UDP listeners) as JSON documents.
package publish

import (
	"encoding/json"

	"gnssrover/internal/gnss"
)

// Fix is the JSON wire form of a position.
type Fix struct {
	TimestampMS    int64   `json:"timestamp_ms"`
	Latitude       float64 `json:"lat"`
	Longitude      float64 `json:"lon"`
	AltitudeM      float64 `json:"alt_m"`
	EllipsoidM     float64 `json:"ellipsoid_height_m"`
	LatAccuracyM   float64 `json:"lat_acc_m"`
	LonAccuracyM   float64 `json:"lon_acc_m"`
	VertAccuracyM  float64 `json:"vert_acc_m"`
	HorizAccuracyM float64 `json:"horiz_acc_m"`
}

// Encode marshals one position as a Fix document.
func Encode(p gnss.Position) ([]byte, error) {
	return json.Marshal(Fix{
		TimestampMS:    p.Time.UnixMilli(),
		Latitude:       p.Latitude,
		Longitude:      p.Longitude,
		AltitudeM:      p.Altitude,
		EllipsoidM:     p.EllipsoidHeight,
		LatAccuracyM:   p.LatitudeAccuracy,
		LonAccuracyM:   p.LongitudeAccuracy,
		VertAccuracyM:  p.VerticalAccuracy,
		HorizAccuracyM: p.HorizontalAccuracy(),
	})
}

package gnss

import (
	"math"
	"time"
)

// Fix represents a single position fix suitable for JSON and MQTT.
type Fix struct {
	Latitude   float64   `json:"lat"`           // decimal degrees
	Longitude  float64   `json:"lon"`           // decimal degrees
	Altitude   *float64  `json:"alt,omitempty"` // meters above MSL, nil without a 3D fix
	AcquiredAt time.Time `json:"acquired_at"`   // when the source produced it
}

// Round rounds v to the given number of decimal digits.
// Rounding an already rounded value changes nothing.
func Round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}

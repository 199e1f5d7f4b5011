// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sample

import (
	"math"
	"time"
)

// MockSource generates smooth changing records around plausible outdoor
// readings. Used by the mock sampler to develop the subscriber tools
// without station hardware.
type MockSource struct {
	start    time.Time
	lat, lon float64
}

func NewMockSource(lat, lon float64) *MockSource {
	return &MockSource{start: time.Now(), lat: lat, lon: lon}
}

// Next produces the next synthetic record.
func (m *MockSource) Next() Record {
	elapsed := time.Since(m.start).Seconds()
	alt := 545.4
	temp := round2(21 + 2*math.Sin(elapsed/120))

	return Record{
		Time:              time.Now().UTC(),
		CO2:               round2(420 + 15*math.Sin(elapsed/30)),
		Temperature:       temp,
		Humidity:          round2(45 + 5*math.Cos(elapsed/90)),
		Latitude:          m.lat,
		Longitude:         m.lon,
		Altitude:          &alt,
		TemperatureOffset: 4.0,
		BaroTemperature:   temp,
		BaroPressure:      round2(1013 + 3*math.Sin(elapsed/600)),
		AmbientPressure:   1013,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gnss

import "time"

type dummySource struct {
	lat, lon, alt float64
}

// NewDummySource creates a source that reports the same configured
// coordinates on every call. Used on bench setups and indoor devices
// without a GNSS module.
func NewDummySource(lat, lon, alt float64) Source {
	return &dummySource{lat: lat, lon: lon, alt: alt}
}

func (d *dummySource) Acquire() (Fix, error) {
	alt := d.alt
	return Fix{
		Latitude:   d.lat,
		Longitude:  d.lon,
		Altitude:   &alt,
		AcquiredAt: time.Now(),
	}, nil
}

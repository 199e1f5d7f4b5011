// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gnss

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"periph.io/x/conn/v3/i2c"
)

// mtkAddr is the fixed I2C address of the MediaTek GNSS module.
const mtkAddr = 0x10

// chunkSize is the largest read the module answers in one transaction.
// When it has nothing buffered it pads the answer with newlines.
const chunkSize = 255

// maxPending caps the reassembly buffer in case the module streams
// garbage without line endings.
const maxPending = 1024

type i2cSource struct {
	dev    i2c.Dev
	digits int

	pending []byte
	gga     *nmea.GGA
	rmc     *nmea.RMC
}

// NewI2CSource configures a MediaTek GNSS module on the shared sensor bus
// and returns it as a Source. The module is told to emit RMC and GGA only,
// with an update period of twice the poll interval.
func NewI2CSource(bus i2c.Bus, pollInterval time.Duration, digits int) (Source, error) {
	s := &i2cSource{dev: i2c.Dev{Bus: bus, Addr: mtkAddr}, digits: digits}

	// RMC and GGA on, everything else off.
	if err := s.send("PMTK314,0,1,0,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0"); err != nil {
		return nil, fmt.Errorf("select nmea sentences: %w", err)
	}
	period := int(math.Round(pollInterval.Seconds() * 2 * 1000))
	if err := s.send(fmt.Sprintf("PMTK220,%d", period)); err != nil {
		return nil, fmt.Errorf("set update rate: %w", err)
	}
	return s, nil
}

// send frames a PMTK payload with the NMEA XOR checksum and writes it.
func (s *i2cSource) send(payload string) error {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum ^= payload[i]
	}
	return s.dev.Tx([]byte(fmt.Sprintf("$%s*%02X\r\n", payload, sum)), nil)
}

func (s *i2cSource) Acquire() (Fix, error) {
	if err := s.poll(); err != nil {
		return Fix{}, fmt.Errorf("read gnss module: %w", err)
	}

	fix := Fix{AcquiredAt: time.Now()}
	switch {
	case s.gga != nil && s.gga.FixQuality != "0":
		fix.Latitude = Round(s.gga.Latitude, s.digits)
		fix.Longitude = Round(s.gga.Longitude, s.digits)
		alt := s.gga.Altitude
		fix.Altitude = &alt
	case s.rmc != nil && s.rmc.Validity == "A":
		fix.Latitude = Round(s.rmc.Latitude, s.digits)
		fix.Longitude = Round(s.rmc.Longitude, s.digits)
	default:
		return Fix{}, ErrNoFix
	}
	return fix, nil
}

// poll drains the module's NMEA stream and keeps the latest RMC and GGA.
func (s *i2cSource) poll() error {
	chunk := make([]byte, chunkSize)
	if err := s.dev.Tx(nil, chunk); err != nil {
		return err
	}
	s.pending = append(s.pending, chunk...)

	for {
		i := bytes.IndexByte(s.pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(s.pending[:i]))
		s.pending = s.pending[i+1:]
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			// partial or corrupted sentence, common right after power-up
			continue
		}

		switch sentence.DataType() {
		case nmea.TypeRMC:
			m := sentence.(nmea.RMC)
			s.rmc = &m
		case nmea.TypeGGA:
			m := sentence.(nmea.GGA)
			s.gga = &m
		}
	}

	if len(s.pending) > maxPending {
		s.pending = s.pending[len(s.pending)-maxPending:]
	}
	return nil
}

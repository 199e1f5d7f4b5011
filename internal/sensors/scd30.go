// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// SCD30Addr is the fixed I2C address of the Sensirion SCD30.
const SCD30Addr = 0x61

// SCD30 command words, per the Sensirion interface description.
const (
	scd30CmdContinuousMeasurement = 0x0010
	scd30CmdStopMeasurement       = 0x0104
	scd30CmdMeasurementInterval   = 0x4600
	scd30CmdDataReady             = 0x0202
	scd30CmdReadMeasurement       = 0x0300
	scd30CmdSelfCalibration       = 0x5306
	scd30CmdTemperatureOffset     = 0x5403
	scd30CmdAltitude              = 0x5102
	scd30CmdSoftReset             = 0xD304
)

// SCD30Opts configures the sensor at startup.
type SCD30Opts struct {
	MeasurementInterval time.Duration
	AmbientPressure     int     // mbar, 0 disables pressure compensation
	TemperatureOffset   float64 // °C, subtracted by the sensor firmware
	Altitude            int     // m above sea level
	SelfCalibration     bool
	StartupDelay        time.Duration
}

// DefaultSCD30Opts matches the compensation values the sensor boards
// ship with.
var DefaultSCD30Opts = SCD30Opts{
	MeasurementInterval: 2 * time.Second,
	AmbientPressure:     1007,
	TemperatureOffset:   4.0,
	Altitude:            0,
	SelfCalibration:     true,
	StartupDelay:        time.Second,
}

// SCD30 drives the Sensirion SCD30 CO2/temperature/humidity module.
type SCD30 struct {
	dev i2c.Dev

	mu  sync.Mutex
	cal Calibration
}

// NewSCD30 configures the sensor and starts continuous measurement.
func NewSCD30(bus i2c.Bus, opts SCD30Opts) (*SCD30, error) {
	s := &SCD30{dev: i2c.Dev{Bus: bus, Addr: SCD30Addr}}

	// The sensor ignores commands sent too soon after power-up.
	if opts.StartupDelay > 0 {
		time.Sleep(opts.StartupDelay)
	}

	interval := uint16(opts.MeasurementInterval / time.Second)
	if interval < 2 {
		interval = 2
	}
	if err := s.writeCmdArg(scd30CmdMeasurementInterval, interval); err != nil {
		return nil, fmt.Errorf("scd30: set measurement interval: %w", err)
	}

	// The firmware stores the offset in hundredths of a degree.
	ticks := uint16(math.Round(opts.TemperatureOffset * 100))
	if err := s.writeCmdArg(scd30CmdTemperatureOffset, ticks); err != nil {
		return nil, fmt.Errorf("scd30: set temperature offset: %w", err)
	}

	if err := s.writeCmdArg(scd30CmdAltitude, uint16(opts.Altitude)); err != nil {
		return nil, fmt.Errorf("scd30: set altitude compensation: %w", err)
	}

	asc := uint16(0)
	if opts.SelfCalibration {
		asc = 1
	}
	if err := s.writeCmdArg(scd30CmdSelfCalibration, asc); err != nil {
		return nil, fmt.Errorf("scd30: set self-calibration: %w", err)
	}

	s.cal = Calibration{
		TemperatureOffset: opts.TemperatureOffset,
		Altitude:          opts.Altitude,
	}

	if err := s.SetAmbientPressure(opts.AmbientPressure); err != nil {
		return nil, fmt.Errorf("scd30: start continuous measurement: %w", err)
	}

	slog.Info("scd30 measuring",
		"interval", time.Duration(interval)*time.Second,
		"temp_offset", opts.TemperatureOffset,
		"ambient_pressure", opts.AmbientPressure,
		"self_calibration", opts.SelfCalibration)
	return s, nil
}

// DataAvailable reports whether a new measurement is ready to be read.
func (s *SCD30) DataAvailable() (bool, error) {
	words, err := s.readWords(scd30CmdDataReady, 1)
	if err != nil {
		return false, fmt.Errorf("scd30: data ready: %w", err)
	}
	return words[0] == 1, nil
}

// Read fetches the current measurement. Call only after DataAvailable
// reported true, otherwise the sensor repeats the previous values.
func (s *SCD30) Read() (CO2Reading, error) {
	words, err := s.readWords(scd30CmdReadMeasurement, 6)
	if err != nil {
		return CO2Reading{}, fmt.Errorf("scd30: read measurement: %w", err)
	}
	return CO2Reading{
		CO2:         toFloat(words[0], words[1]),
		Temperature: toFloat(words[2], words[3]),
		Humidity:    toFloat(words[4], words[5]),
	}, nil
}

// SetAmbientPressure pushes a new pressure compensation value and
// (re)starts continuous measurement with it. 0 disables compensation.
func (s *SCD30) SetAmbientPressure(mbar int) error {
	if mbar != 0 && (mbar < 700 || mbar > 1400) {
		return fmt.Errorf("scd30: ambient pressure %d mbar out of range (700..1400)", mbar)
	}
	if err := s.writeCmdArg(scd30CmdContinuousMeasurement, uint16(mbar)); err != nil {
		return fmt.Errorf("scd30: set ambient pressure: %w", err)
	}
	s.mu.Lock()
	s.cal.AmbientPressure = mbar
	s.mu.Unlock()
	return nil
}

// Calibration returns the compensation values currently applied.
func (s *SCD30) Calibration() Calibration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cal
}

// Reset soft-resets the sensor. Settings revert to their persisted
// values and measurement stops until restarted.
func (s *SCD30) Reset() error {
	if err := s.writeCmd(scd30CmdSoftReset); err != nil {
		return fmt.Errorf("scd30: soft reset: %w", err)
	}
	time.Sleep(2 * time.Second)
	return nil
}

// Halt stops continuous measurement.
func (s *SCD30) Halt() error {
	if err := s.writeCmd(scd30CmdStopMeasurement); err != nil {
		return fmt.Errorf("scd30: stop measurement: %w", err)
	}
	return nil
}

func (s *SCD30) writeCmd(cmd uint16) error {
	return s.dev.Tx([]byte{byte(cmd >> 8), byte(cmd)}, nil)
}

func (s *SCD30) writeCmdArg(cmd, arg uint16) error {
	buf := []byte{byte(cmd >> 8), byte(cmd), byte(arg >> 8), byte(arg)}
	buf = append(buf, crc8(buf[2:4]))
	return s.dev.Tx(buf, nil)
}

// readWords issues a read command and fetches n big-endian words, each
// followed by its CRC. The sensor needs a short pause between the
// command and the read, it NAKs back-to-back transactions.
func (s *SCD30) readWords(cmd uint16, n int) ([]uint16, error) {
	if err := s.writeCmd(cmd); err != nil {
		return nil, err
	}
	time.Sleep(4 * time.Millisecond)

	raw := make([]byte, 3*n)
	if err := s.dev.Tx(nil, raw); err != nil {
		return nil, err
	}

	words := make([]uint16, n)
	for i := range words {
		chunk := raw[3*i : 3*i+3]
		if crc8(chunk[:2]) != chunk[2] {
			return nil, fmt.Errorf("crc mismatch on word %d (got 0x%02X, want 0x%02X)", i, chunk[2], crc8(chunk[:2]))
		}
		words[i] = uint16(chunk[0])<<8 | uint16(chunk[1])
	}
	return words, nil
}

// toFloat reassembles a big-endian float32 from two measurement words.
func toFloat(hi, lo uint16) float64 {
	bits := uint32(hi)<<16 | uint32(lo)
	return float64(math.Float32frombits(bits))
}

// crc8 computes the Sensirion CRC-8 (polynomial 0x31, init 0xFF).
func crc8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

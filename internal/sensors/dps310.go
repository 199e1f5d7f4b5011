// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// DPS310DefaultAddr is the I2C address with the SDO pin pulled high.
const DPS310DefaultAddr = 0x77

const (
	dps310RegPressure  = 0x00 // 3 bytes, temperature follows at 0x03
	dps310RegPrsCfg    = 0x06
	dps310RegTmpCfg    = 0x07
	dps310RegMeasCfg   = 0x08
	dps310RegCfg       = 0x09
	dps310RegReset     = 0x0C
	dps310RegProductID = 0x0D
	dps310RegCoef      = 0x10 // 18 bytes
	dps310RegCoefSrce  = 0x28

	dps310ProductID = 0x10
	dps310CmdReset  = 0x89

	dps310CoefRdy   = 0x80 // MEAS_CFG: coefficients available
	dps310SensorRdy = 0x40 // MEAS_CFG: initialization complete
	dps310TmpExt    = 0x80 // TMP_CFG: sensor on the pressure element

	// 4 Hz rate, 64x pressure and 1x temperature oversampling. The
	// pressure result shift is required above 8x oversampling.
	dps310PrsCfg         = 0x26
	dps310TmpCfg         = 0x20
	dps310CfgPShift      = 0x04
	dps310MeasContinuous = 0x07
)

// Compensation scale factors for the configured oversampling rates
// (datasheet table 9).
const (
	dps310Scale1  = 524288
	dps310Scale64 = 1040384
)

type dps310Coefficients struct {
	c0, c1                            float64
	c00, c10, c01, c11, c20, c21, c30 float64
}

// DPS310 drives the Infineon DPS310 barometric pressure sensor.
type DPS310 struct {
	dev  i2c.Dev
	coef dps310Coefficients
}

// NewDPS310 probes the sensor, loads its calibration coefficients and
// starts continuous pressure and temperature measurement.
func NewDPS310(bus i2c.Bus, addr uint16) (*DPS310, error) {
	d := &DPS310{dev: i2c.Dev{Bus: bus, Addr: addr}}

	id, err := d.readRegs(dps310RegProductID, 1)
	if err != nil {
		return nil, fmt.Errorf("dps310: probe: %w", err)
	}
	if id[0] != dps310ProductID {
		return nil, fmt.Errorf("dps310: unexpected product id 0x%02X (want 0x%02X)", id[0], dps310ProductID)
	}

	if err := d.writeReg(dps310RegReset, dps310CmdReset); err != nil {
		return nil, fmt.Errorf("dps310: reset: %w", err)
	}
	time.Sleep(10 * time.Millisecond)

	if err := d.waitReady(dps310CoefRdy|dps310SensorRdy, 100*time.Millisecond); err != nil {
		return nil, err
	}

	raw, err := d.readRegs(dps310RegCoef, 18)
	if err != nil {
		return nil, fmt.Errorf("dps310: read coefficients: %w", err)
	}
	d.coef = unpackCoefficients(raw)

	// Temperature must be measured with the same internal sensor the
	// calibration coefficients were derived from.
	srce, err := d.readRegs(dps310RegCoefSrce, 1)
	if err != nil {
		return nil, fmt.Errorf("dps310: coefficient source: %w", err)
	}
	tmpCfg := byte(dps310TmpCfg)
	if srce[0]&dps310TmpExt != 0 {
		tmpCfg |= dps310TmpExt
	}

	if err := d.writeReg(dps310RegPrsCfg, dps310PrsCfg); err != nil {
		return nil, fmt.Errorf("dps310: pressure config: %w", err)
	}
	if err := d.writeReg(dps310RegTmpCfg, tmpCfg); err != nil {
		return nil, fmt.Errorf("dps310: temperature config: %w", err)
	}
	if err := d.writeReg(dps310RegCfg, dps310CfgPShift); err != nil {
		return nil, fmt.Errorf("dps310: result shift config: %w", err)
	}
	if err := d.writeReg(dps310RegMeasCfg, dps310MeasContinuous); err != nil {
		return nil, fmt.Errorf("dps310: start continuous measurement: %w", err)
	}

	slog.Info("dps310 measuring", "addr", fmt.Sprintf("0x%02X", addr), "external_temp", tmpCfg&dps310TmpExt != 0)
	return d, nil
}

// Read returns the compensated pressure and temperature.
func (d *DPS310) Read() (BaroReading, error) {
	raw, err := d.readRegs(dps310RegPressure, 6)
	if err != nil {
		return BaroReading{}, fmt.Errorf("dps310: read measurement: %w", err)
	}

	praw := float64(twos(uint32(raw[0])<<16|uint32(raw[1])<<8|uint32(raw[2]), 24))
	traw := float64(twos(uint32(raw[3])<<16|uint32(raw[4])<<8|uint32(raw[5]), 24))

	prawSc := praw / dps310Scale64
	trawSc := traw / dps310Scale1

	c := d.coef
	temp := c.c0/2 + c.c1*trawSc
	pa := c.c00 +
		prawSc*(c.c10+prawSc*(c.c20+prawSc*c.c30)) +
		trawSc*c.c01 +
		trawSc*prawSc*(c.c11+prawSc*c.c21)

	return BaroReading{Pressure: pa / 100, Temperature: temp}, nil
}

// Halt puts the sensor back into standby.
func (d *DPS310) Halt() error {
	if err := d.writeReg(dps310RegMeasCfg, 0x00); err != nil {
		return fmt.Errorf("dps310: standby: %w", err)
	}
	return nil
}

func (d *DPS310) waitReady(mask byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st, err := d.readRegs(dps310RegMeasCfg, 1)
		if err != nil {
			return fmt.Errorf("dps310: read status: %w", err)
		}
		if st[0]&mask == mask {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("dps310: not ready after %s (status 0x%02X)", timeout, st[0])
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (d *DPS310) readRegs(reg byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := d.dev.Tx([]byte{reg}, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *DPS310) writeReg(reg, val byte) error {
	return d.dev.Tx([]byte{reg, val}, nil)
}

// unpackCoefficients decodes the packed two's complement calibration
// block (register map section 8.11).
func unpackCoefficients(raw []byte) dps310Coefficients {
	b := func(i int) uint32 { return uint32(raw[i]) }
	return dps310Coefficients{
		c0:  float64(twos(b(0)<<4|b(1)>>4, 12)),
		c1:  float64(twos((b(1)&0x0F)<<8|b(2), 12)),
		c00: float64(twos(b(3)<<12|b(4)<<4|b(5)>>4, 20)),
		c10: float64(twos((b(5)&0x0F)<<16|b(6)<<8|b(7), 20)),
		c01: float64(twos(b(8)<<8|b(9), 16)),
		c11: float64(twos(b(10)<<8|b(11), 16)),
		c20: float64(twos(b(12)<<8|b(13), 16)),
		c21: float64(twos(b(14)<<8|b(15), 16)),
		c30: float64(twos(b(16)<<8|b(17), 16)),
	}
}

// twos sign-extends a bits-wide two's complement value.
func twos(v uint32, bits uint) int32 {
	if v&(1<<(bits-1)) != 0 {
		return int32(v) - int32(1)<<bits
	}
	return int32(v)
}

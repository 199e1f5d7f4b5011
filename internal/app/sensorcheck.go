// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/ghg_sampler/internal/config"
	"github.com/relabs-tech/ghg_sampler/internal/gnss"
	"github.com/relabs-tech/ghg_sampler/internal/sensors"
)

// How long the check waits for the first gas measurement and the first
// position fix. A cold GNSS start outdoors can take most of this.
const sensorCheckWait = 30 * time.Second

// RunSensorCheck probes each sensor on the bus once and prints what it
// finds. First thing to run on a freshly assembled station.
func RunSensorCheck(ctx context.Context, cfg *config.Config) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus %q: %w", cfg.I2CBus, err)
	}
	defer bus.Close()

	fmt.Printf("checking sensors on bus %s\n", cfg.I2CBus)

	// 1) Barometer
	baro, err := sensors.NewDPS310(bus, sensors.DPS310DefaultAddr)
	if err != nil {
		fmt.Printf("[DPS310] FAIL  %v\n", err)
	} else {
		// first background measurement at 4 Hz
		time.Sleep(500 * time.Millisecond)
		if reading, err := baro.Read(); err != nil {
			fmt.Printf("[DPS310] FAIL  %v\n", err)
		} else {
			fmt.Printf("[DPS310] OK    p=%.2fhPa t=%.2fC\n", reading.Pressure, reading.Temperature)
		}
		_ = baro.Halt()
	}

	// 2) Gas sensor
	co2, err := sensors.NewSCD30(bus, sensors.DefaultSCD30Opts)
	if err != nil {
		fmt.Printf("[SCD30 ] FAIL  %v\n", err)
	} else {
		if reading, err := waitForCO2(ctx, co2); err != nil {
			fmt.Printf("[SCD30 ] FAIL  %v\n", err)
		} else {
			fmt.Printf("[SCD30 ] OK    co2=%.1fppm t=%.2fC rh=%.1f%%\n",
				reading.CO2, reading.Temperature, reading.Humidity)
		}
		_ = co2.Halt()
	}

	// 3) Position source
	src, err := gnss.NewSource(cfg, bus)
	if err != nil {
		fmt.Printf("[GNSS  ] FAIL  %v\n", err)
		return nil
	}
	if fix, err := waitForFix(ctx, src); err != nil {
		fmt.Printf("[GNSS  ] FAIL  no fix after %s: %v\n", sensorCheckWait, err)
	} else {
		fmt.Printf("[GNSS  ] OK    lat=%.6f lon=%.6f source=%s\n", fix.Latitude, fix.Longitude, cfg.GNSSSource)
	}

	return nil
}

func waitForCO2(ctx context.Context, co2 *sensors.SCD30) (sensors.CO2Reading, error) {
	deadline := time.Now().Add(sensorCheckWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return sensors.CO2Reading{}, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
		ready, err := co2.DataAvailable()
		if err != nil {
			return sensors.CO2Reading{}, err
		}
		if ready {
			return co2.Read()
		}
	}
	return sensors.CO2Reading{}, fmt.Errorf("no data after %s", sensorCheckWait)
}

func waitForFix(ctx context.Context, src gnss.Source) (gnss.Fix, error) {
	deadline := time.Now().Add(sensorCheckWait)
	lastErr := fmt.Errorf("no acquisition attempted")
	for time.Now().Before(deadline) {
		fix, err := src.Acquire()
		if err == nil {
			return fix, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return gnss.Fix{}, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return gnss.Fix{}, lastErr
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/ghg_sampler/internal/config"
	"github.com/relabs-tech/ghg_sampler/internal/gnss"
	"github.com/relabs-tech/ghg_sampler/internal/mqtt"
	"github.com/relabs-tech/ghg_sampler/internal/sample"
	"github.com/relabs-tech/ghg_sampler/internal/sensors"
	"github.com/relabs-tech/ghg_sampler/internal/sink"
)

// sensorPrecision is the number of decimals kept on published sensor
// values. Coordinates have their own configured precision.
const sensorPrecision = 2

// Sampler is the fused measurement loop: every cycle reads the gas
// sensor once it has data, attaches the current position and hands the
// record to every sink.
type Sampler struct {
	CO2        sensors.CO2Sensor
	Baro       sensors.Barometer
	Fixes      *gnss.FixCache
	Sinks      []sink.Sink
	DeviceUUID string
	Interval   time.Duration
}

// Run blocks until ctx is cancelled. A failed cycle is logged and
// skipped, only ctx stops the loop.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	slog.Info("sampling", "interval", s.Interval, "sinks", len(s.Sinks))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		// 1) Wait until the gas sensor has a fresh measurement.
		ready, err := s.CO2.DataAvailable()
		if err != nil {
			slog.Error("data ready check failed", "error", err)
			continue
		}
		if !ready {
			continue
		}

		// 2) Position. Without one the sample is worthless, skip.
		fix, err := s.Fixes.GetFix()
		if err != nil {
			slog.Warn("no position, skipping cycle", "error", err)
			continue
		}

		// 3) Barometer, feeds the gas sensor's pressure compensation.
		baro, err := s.Baro.Read()
		if err != nil {
			slog.Error("barometer read failed", "error", err)
			continue
		}
		if baro.Pressure > 0 {
			if err := s.CO2.SetAmbientPressure(int(math.Round(baro.Pressure))); err != nil {
				slog.Warn("ambient pressure update failed", "error", err)
			}
		}

		// 4) Gas measurement.
		gas, err := s.CO2.Read()
		if err != nil {
			slog.Error("gas read failed", "error", err)
			continue
		}

		cal := s.CO2.Calibration()
		rec := sample.Record{
			DeviceUUID:        s.DeviceUUID,
			Time:              time.Now().UTC(),
			CO2:               gnss.Round(gas.CO2, sensorPrecision),
			Temperature:       gnss.Round(gas.Temperature, sensorPrecision),
			Humidity:          gnss.Round(gas.Humidity, sensorPrecision),
			Latitude:          fix.Latitude,
			Longitude:         fix.Longitude,
			Altitude:          fix.Altitude,
			TemperatureOffset: cal.TemperatureOffset,
			BaroTemperature:   gnss.Round(baro.Temperature, sensorPrecision),
			BaroPressure:      gnss.Round(baro.Pressure, sensorPrecision),
			AmbientPressure:   cal.AmbientPressure,
			AltitudeSetting:   cal.Altitude,
		}

		slog.Info("sample",
			"co2", rec.CO2, "temp", rec.Temperature, "rh", rec.Humidity,
			"lat", rec.Latitude, "lon", rec.Longitude, "pressure", rec.BaroPressure)

		// 5) Fan out. One failing sink must not starve the others.
		for _, snk := range s.Sinks {
			if err := snk.Write(ctx, rec); err != nil {
				slog.Error("sink write failed", "sink", fmt.Sprintf("%T", snk), "error", err)
			}
		}
	}
}

// RunSampler wires the real hardware and runs the sampling loop until
// ctx is cancelled.
func RunSampler(ctx context.Context, cfg *config.Config) error {
	// Checked here rather than in config so the subscriber tools can run
	// without Influx credentials.
	if cfg.EnableInflux && cfg.InfluxOrg == "" {
		return fmt.Errorf("INFLUXDB_ORG is required when ENABLE_INFLUXDB is set")
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus %q: %w", cfg.I2CBus, err)
	}
	defer bus.Close()

	co2, err := sensors.NewSCD30(bus, sensors.DefaultSCD30Opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := co2.Halt(); err != nil {
			slog.Warn("scd30 halt failed", "error", err)
		}
	}()

	baro, err := sensors.NewDPS310(bus, sensors.DPS310DefaultAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := baro.Halt(); err != nil {
			slog.Warn("dps310 halt failed", "error", err)
		}
	}()

	src, err := gnss.NewSource(cfg, bus)
	if err != nil {
		return err
	}

	client := mqtt.NewClient(cfg, "")
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	defer client.Disconnect()

	sinks := []sink.Sink{sink.NewMQTTSink(client, cfg.MQTTTopic)}
	if cfg.EnableInflux {
		sinks = append(sinks, sink.NewInfluxSink(cfg))
	}
	defer func() {
		for _, snk := range sinks {
			snk.Close()
		}
	}()

	s := &Sampler{
		CO2:        co2,
		Baro:       baro,
		Fixes:      gnss.NewFixCache(src, cfg.FixMaxAge),
		Sinks:      sinks,
		DeviceUUID: cfg.DeviceUUID,
		Interval:   cfg.PollInterval,
	}
	return s.Run(ctx)
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sink

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/relabs-tech/ghg_sampler/internal/config"
	"github.com/relabs-tech/ghg_sampler/internal/sample"
)

// influxMeasurement is the measurement name the dashboards query.
const influxMeasurement = "ghg_point"

// InfluxSink writes every record as a point into an InfluxDB 2.x
// bucket.
type InfluxSink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInfluxSink builds a sink for the configured InfluxDB instance.
// The connection is lazy, the first Write surfaces reachability
// problems.
func NewInfluxSink(cfg *config.Config) *InfluxSink {
	opts := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(uint(cfg.InfluxTimeout / time.Second))
	client := influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken, opts)
	return &InfluxSink{
		client: client,
		write:  client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
	}
}

// Write converts rec into a point tagged with the device UUID.
func (s *InfluxSink) Write(ctx context.Context, rec sample.Record) error {
	p := influxdb2.NewPointWithMeasurement(influxMeasurement).
		AddField("co2", rec.CO2).
		AddField("temperature", rec.Temperature).
		AddField("humidity", rec.Humidity).
		AddField("lat", rec.Latitude).
		AddField("lon", rec.Longitude).
		AddField("baro_pressure", rec.BaroPressure).
		AddField("baro_temperature", rec.BaroTemperature).
		AddField("scd30_pressure_mbar", rec.AmbientPressure).
		AddField("scd30_altitude_m", rec.AltitudeSetting).
		SetTime(rec.Time)
	if rec.DeviceUUID != "" {
		p.AddTag("host", rec.DeviceUUID)
	}
	if rec.Altitude != nil {
		p.AddField("alt", *rec.Altitude)
	}

	if err := s.write.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close shuts down the underlying HTTP client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

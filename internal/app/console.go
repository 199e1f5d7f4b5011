package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/relabs-tech/ghg_sampler/internal/config"
	"github.com/relabs-tech/ghg_sampler/internal/mqtt"
	"github.com/relabs-tech/ghg_sampler/internal/sample"
)

// RunConsole subscribes to the sample topic and prints one line per record.
// Useful for eyeballing a station over SSH without the web dashboard.
func RunConsole(ctx context.Context, cfg *config.Config) error {
	client := mqtt.NewClient(cfg, "ghg-console")
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("console: connect: %w", err)
	}
	defer client.Disconnect()

	err := client.Subscribe(cfg.MQTTTopic, func(payload []byte) {
		var rec sample.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			slog.Error("console: sample unmarshal error", "error", err)
			return
		}

		alt := "   n/a"
		if rec.Altitude != nil {
			alt = fmt.Sprintf("%6.1f", *rec.Altitude)
		}
		fmt.Printf(
			"[GHG ]  time=%s  co2=%7.1fppm  t=%5.1fC  rh=%5.1f%%  p=%7.1fhPa  lat=%.6f lon=%.6f alt=%sm\n",
			rec.Time.Format("15:04:05"), rec.CO2, rec.Temperature, rec.Humidity,
			rec.BaroPressure, rec.Latitude, rec.Longitude, alt,
		)
	})
	if err != nil {
		return fmt.Errorf("console: subscribe: %w", err)
	}
	slog.Info("console: subscribed", "topic", cfg.MQTTTopic)

	<-ctx.Done()
	return ctx.Err()
}

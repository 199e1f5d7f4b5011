package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/ghg_sampler/internal/config"
	"github.com/relabs-tech/ghg_sampler/internal/logging"
	"github.com/relabs-tech/ghg_sampler/internal/mqtt"
	"github.com/relabs-tech/ghg_sampler/internal/sample"
)

var version = "dev"
var appName = "ghg-mock-sampler"

// Publishes synthetic records to the sample topic so the web, console and
// display tools can be developed without station hardware.
func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := mqtt.NewClient(cfg, appName)
	if err := client.Connect(ctx); err != nil {
		slog.Error("mqtt connect failed", "err", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	src := sample.NewMockSource(cfg.DummyLatitude, cfg.DummyLongitude)
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	slog.Info("publishing mock samples", "topic", cfg.MQTTTopic, "interval", cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rec := src.Next()
			payload, err := json.Marshal(rec)
			if err != nil {
				slog.Error("marshal mock sample", "err", err)
				continue
			}
			if err := client.Publish(cfg.MQTTTopic, true, payload); err != nil {
				slog.Error("publish mock sample", "err", err)
				continue
			}
			slog.Debug("published", "co2", rec.CO2, "pressure", rec.BaroPressure)
		}
	}
}

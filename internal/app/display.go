package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/ghg_sampler/internal/config"
	"github.com/relabs-tech/ghg_sampler/internal/mqtt"
	"github.com/relabs-tech/ghg_sampler/internal/sample"
)

const displayRefresh = 2 * time.Second

// displayState holds the latest sample for the render loop.
type displayState struct {
	mu         sync.RWMutex
	rec        sample.Record
	receivedAt time.Time
	have       bool
}

func (d *displayState) set(rec sample.Record) {
	d.mu.Lock()
	d.rec = rec
	d.receivedAt = time.Now()
	d.have = true
	d.mu.Unlock()
}

func (d *displayState) snapshot() (sample.Record, time.Duration, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rec, time.Since(d.receivedAt), d.have
}

// RunDisplay drives the station's SSD1306 OLED with the latest sample.
func RunDisplay(ctx context.Context, cfg *config.Config) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("display: init periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("display: open i2c bus: %w", err)
	}
	defer bus.Close()

	// The driver owns the controller's fixed 0x3C address.
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("display: init ssd1306: %w", err)
	}
	slog.Info("display initialized", "bus", cfg.I2CBus)

	if err := showSplash(dev); err != nil {
		slog.Warn("display: splash failed", "error", err)
	}

	state := &displayState{}

	client := mqtt.NewClient(cfg, "ghg-display")
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("display: connect: %w", err)
	}
	defer client.Disconnect()

	err = client.Subscribe(cfg.MQTTTopic, func(payload []byte) {
		var rec sample.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			slog.Error("display: sample unmarshal error", "error", err)
			return
		}
		state.set(rec)
	})
	if err != nil {
		return fmt.Errorf("display: subscribe: %w", err)
	}
	slog.Info("display: subscribed", "topic", cfg.MQTTTopic)

	ticker := time.NewTicker(displayRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Blank the panel so a dead process is visible at a glance.
			if err := drawLines(dev, nil); err != nil {
				slog.Warn("display: blank failed", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			rec, age, have := state.snapshot()
			if err := renderSample(dev, rec, age, have); err != nil {
				slog.Warn("display: update failed", "error", err)
			}
		}
	}
}

// textLine is one row of glyphs at a fixed dot position.
type textLine struct {
	x, y int
	text string
}

func renderSample(dev *ssd1306.Dev, rec sample.Record, age time.Duration, have bool) error {
	if !have {
		return drawLines(dev, []textLine{
			{0, 26, "GHG Sampler"},
			{0, 39, "Waiting..."},
		})
	}

	lat, latDir := rec.Latitude, "N"
	if lat < 0 {
		lat, latDir = -lat, "S"
	}
	lon, lonDir := rec.Longitude, "E"
	if lon < 0 {
		lon, lonDir = -lon, "W"
	}

	return drawLines(dev, []textLine{
		{0, 13, fmt.Sprintf("CO2 %6.1f ppm", rec.CO2)},
		{0, 26, fmt.Sprintf("%5.1fC  %4.1f%%", rec.Temperature, rec.Humidity)},
		{0, 39, fmt.Sprintf("%7.1fhPa %3ds", rec.BaroPressure, int(age.Seconds()))},
		{0, 52, fmt.Sprintf("%.4f%s %.4f%s", lat, latDir, lon, lonDir)},
	})
}

func showSplash(dev *ssd1306.Dev) error {
	return drawLines(dev, []textLine{
		{10, 26, "GHG Sampler"},
		{5, 43, "Warming up"},
		{25, 56, "sensors"},
	})
}

func drawLines(dev *ssd1306.Dev, lines []textLine) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	for _, l := range lines {
		drawer.Dot = fixed.P(l.x, l.y)
		drawer.DrawBytes([]byte(l.text))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

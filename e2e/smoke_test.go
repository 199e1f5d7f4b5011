//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relabs-tech/ghg_sampler/internal/app"
	"github.com/relabs-tech/ghg_sampler/internal/config"
	"github.com/relabs-tech/ghg_sampler/internal/gnss"
	"github.com/relabs-tech/ghg_sampler/internal/mqtt"
	"github.com/relabs-tech/ghg_sampler/internal/sample"
	"github.com/relabs-tech/ghg_sampler/internal/sensors"
	"github.com/relabs-tech/ghg_sampler/internal/sink"
)

const sampleTopic = "ghg/sample"

type benchCO2 struct{}

func (benchCO2) DataAvailable() (bool, error) { return true, nil }
func (benchCO2) Read() (sensors.CO2Reading, error) {
	return sensors.CO2Reading{CO2: 428.1, Temperature: 24.5, Humidity: 37.5}, nil
}
func (benchCO2) SetAmbientPressure(int) error { return nil }
func (benchCO2) Calibration() sensors.Calibration {
	return sensors.Calibration{TemperatureOffset: 4.0, AmbientPressure: 1007}
}
func (benchCO2) Halt() error { return nil }

type benchBaro struct{}

func (benchBaro) Read() (sensors.BaroReading, error) {
	return sensors.BaroReading{Pressure: 1007.25, Temperature: 23.8}, nil
}

// TestSmoke_SampleReachesBroker runs the sampling loop against a real
// mosquitto broker and checks that a fused record comes out the other end.
func TestSmoke_SampleReachesBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	host, port := startMosquitto(t, ctx)

	cfg := &config.Config{
		MQTTBroker:   host,
		MQTTPort:     port,
		MQTTClientID: "ghg-e2e",
		MQTTTopic:    sampleTopic,
	}

	// Subscriber first so the sampler's publish cannot race past it.
	subscriber := mqtt.NewClient(cfg, "ghg-e2e-subscriber")
	if err := subscriber.Connect(ctx); err != nil {
		t.Fatalf("subscriber connect: %v", err)
	}
	t.Cleanup(subscriber.Disconnect)

	received := make(chan sample.Record, 1)
	err := subscriber.Subscribe(sampleTopic, func(payload []byte) {
		var rec sample.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			t.Errorf("unmarshal sample: %v", err)
			return
		}
		select {
		case received <- rec:
		default:
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	publisher := mqtt.NewClient(cfg, "ghg-e2e-sampler")
	if err := publisher.Connect(ctx); err != nil {
		t.Fatalf("publisher connect: %v", err)
	}
	t.Cleanup(publisher.Disconnect)

	s := &app.Sampler{
		CO2:        benchCO2{},
		Baro:       benchBaro{},
		Fixes:      gnss.NewFixCache(gnss.NewDummySource(48.12, 11.52, 545.4), time.Minute),
		Sinks:      []sink.Sink{sink.NewMQTTSink(publisher, sampleTopic)},
		DeviceUUID: "e2e-device",
		Interval:   100 * time.Millisecond,
	}

	runCtx, stopSampler := context.WithCancel(ctx)
	defer stopSampler()
	go func() { _ = s.Run(runCtx) }()

	select {
	case rec := <-received:
		if rec.CO2 != 428.1 {
			t.Errorf("co2: got %v, want 428.1", rec.CO2)
		}
		if rec.Latitude != 48.12 || rec.Longitude != 11.52 {
			t.Errorf("position: got %v/%v, want 48.12/11.52", rec.Latitude, rec.Longitude)
		}
		if rec.DeviceUUID != "e2e-device" {
			t.Errorf("device uuid: got %q, want e2e-device", rec.DeviceUUID)
		}
		if rec.BaroPressure != 1007.25 {
			t.Errorf("pressure: got %v, want 1007.25", rec.BaroPressure)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("no sample arrived on the broker")
	}
}

func startMosquitto(t *testing.T, ctx context.Context) (string, int) {
	t.Helper()

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2",
		ExposedPorts: []string{"1883/tcp"},
		// The stock config only accepts connections from inside the container.
		Cmd:        []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor: wait.ForListeningPort(nat.Port("1883/tcp")).WithStartupTimeout(30 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, nat.Port("1883/tcp"))
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}

	return host, port.Int()
}

package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/ghg_sampler/internal/config"
	"github.com/relabs-tech/ghg_sampler/internal/gnss"
	"github.com/relabs-tech/ghg_sampler/internal/sample"
	"github.com/relabs-tech/ghg_sampler/internal/sensors"
	"github.com/relabs-tech/ghg_sampler/internal/sink"
)

type fakeCO2 struct {
	mu      sync.Mutex
	ready   bool
	reading sensors.CO2Reading
	readErr error
	cal     sensors.Calibration
	pushed  []int
	reads   int
}

func (f *fakeCO2) DataAvailable() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready, nil
}

func (f *fakeCO2) Read() (sensors.CO2Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.reading, f.readErr
}

func (f *fakeCO2) SetAmbientPressure(mbar int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, mbar)
	f.cal.AmbientPressure = mbar
	return nil
}

func (f *fakeCO2) Calibration() sensors.Calibration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cal
}

func (f *fakeCO2) Halt() error { return nil }

func (f *fakeCO2) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeCO2) pushedValues() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.pushed...)
}

type fakeBaro struct {
	reading sensors.BaroReading
	err     error
}

func (f *fakeBaro) Read() (sensors.BaroReading, error) { return f.reading, f.err }

type noFixSource struct{}

func (noFixSource) Acquire() (gnss.Fix, error) { return gnss.Fix{}, errors.New("no carrier") }

type captureSink struct {
	mu   sync.Mutex
	recs []sample.Record
	err  error
}

func (c *captureSink) Write(_ context.Context, rec sample.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.recs = append(c.recs, rec)
	return nil
}

func (c *captureSink) Close() {}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recs)
}

func (c *captureSink) last() sample.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recs[len(c.recs)-1]
}

// startSampler runs s until stop is called.
func startSampler(t *testing.T, s *Sampler) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Run: %v", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// settle lets a few cycles pass for tests asserting nothing happens.
func settle() { time.Sleep(30 * time.Millisecond) }

func TestSampler_PublishesFusedRecord(t *testing.T) {
	co2 := &fakeCO2{
		ready:   true,
		reading: sensors.CO2Reading{CO2: 428.123456, Temperature: 24.5049, Humidity: 37.5},
		cal:     sensors.Calibration{TemperatureOffset: 4.0, Altitude: 0},
	}
	baro := &fakeBaro{reading: sensors.BaroReading{Pressure: 1007.256, Temperature: 23.904}}
	snk := &captureSink{}
	s := &Sampler{
		CO2:        co2,
		Baro:       baro,
		Fixes:      gnss.NewFixCache(gnss.NewDummySource(48.12, 11.52, 545.4), 600*time.Second),
		Sinks:      []sink.Sink{snk},
		DeviceUUID: "f3b9c2",
		Interval:   time.Millisecond,
	}

	stop := startSampler(t, s)
	waitFor(t, func() bool { return snk.count() >= 1 })
	stop()

	rec := snk.last()
	if rec.CO2 != 428.12 {
		t.Errorf("CO2: got %v, want 428.12", rec.CO2)
	}
	if rec.Temperature != 24.5 {
		t.Errorf("Temperature: got %v, want 24.5", rec.Temperature)
	}
	if rec.BaroPressure != 1007.26 {
		t.Errorf("BaroPressure: got %v, want 1007.26", rec.BaroPressure)
	}
	if rec.Latitude != 48.12 || rec.Longitude != 11.52 {
		t.Errorf("position: got %v,%v, want 48.12,11.52", rec.Latitude, rec.Longitude)
	}
	if rec.Altitude == nil || *rec.Altitude != 545.4 {
		t.Errorf("Altitude: got %v, want 545.4", rec.Altitude)
	}
	if rec.DeviceUUID != "f3b9c2" {
		t.Errorf("DeviceUUID: got %q", rec.DeviceUUID)
	}
	if rec.Time.IsZero() {
		t.Error("Time: zero")
	}
	if rec.TemperatureOffset != 4.0 {
		t.Errorf("TemperatureOffset: got %v, want 4.0", rec.TemperatureOffset)
	}

	pushed := co2.pushedValues()
	if len(pushed) == 0 || pushed[0] != 1007 {
		t.Errorf("ambient pressure pushed: got %v, want [1007 ...]", pushed)
	}
	if rec.AmbientPressure != 1007 {
		t.Errorf("AmbientPressure: got %v, want 1007", rec.AmbientPressure)
	}
}

func TestSampler_WaitsForDataReady(t *testing.T) {
	co2 := &fakeCO2{ready: false}
	snk := &captureSink{}
	s := &Sampler{
		CO2:      co2,
		Baro:     &fakeBaro{reading: sensors.BaroReading{Pressure: 1000}},
		Fixes:    gnss.NewFixCache(gnss.NewDummySource(0, 0, 0), 600*time.Second),
		Sinks:    []sink.Sink{snk},
		Interval: time.Millisecond,
	}

	stop := startSampler(t, s)
	settle()
	stop()

	if got := snk.count(); got != 0 {
		t.Errorf("records: got %d, want 0 while sensor not ready", got)
	}
	if got := co2.readCount(); got != 0 {
		t.Errorf("gas reads: got %d, want 0 while sensor not ready", got)
	}
}

func TestSampler_SkipsCycleWithoutPosition(t *testing.T) {
	co2 := &fakeCO2{ready: true, reading: sensors.CO2Reading{CO2: 420}}
	snk := &captureSink{}
	s := &Sampler{
		CO2:      co2,
		Baro:     &fakeBaro{reading: sensors.BaroReading{Pressure: 1000}},
		Fixes:    gnss.NewFixCache(noFixSource{}, 600*time.Second),
		Sinks:    []sink.Sink{snk},
		Interval: time.Millisecond,
	}

	stop := startSampler(t, s)
	settle()
	stop()

	if got := snk.count(); got != 0 {
		t.Errorf("records: got %d, want 0 without a position", got)
	}
	if got := co2.readCount(); got != 0 {
		t.Errorf("gas reads: got %d, want 0 without a position", got)
	}
}

func TestSampler_ZeroPressureNotPushed(t *testing.T) {
	co2 := &fakeCO2{ready: true, reading: sensors.CO2Reading{CO2: 420}}
	snk := &captureSink{}
	s := &Sampler{
		CO2:      co2,
		Baro:     &fakeBaro{}, // reads back 0 hPa
		Fixes:    gnss.NewFixCache(gnss.NewDummySource(0, 0, 0), 600*time.Second),
		Sinks:    []sink.Sink{snk},
		Interval: time.Millisecond,
	}

	stop := startSampler(t, s)
	waitFor(t, func() bool { return snk.count() >= 1 })
	stop()

	if got := co2.pushedValues(); len(got) != 0 {
		t.Errorf("ambient pressure pushed: got %v, want none for 0 hPa", got)
	}
}

func TestSampler_BarometerFailureSkipsCycle(t *testing.T) {
	co2 := &fakeCO2{ready: true, reading: sensors.CO2Reading{CO2: 420}}
	snk := &captureSink{}
	s := &Sampler{
		CO2:      co2,
		Baro:     &fakeBaro{err: errors.New("bus stuck")},
		Fixes:    gnss.NewFixCache(gnss.NewDummySource(0, 0, 0), 600*time.Second),
		Sinks:    []sink.Sink{snk},
		Interval: time.Millisecond,
	}

	stop := startSampler(t, s)
	settle()
	stop()

	if got := snk.count(); got != 0 {
		t.Errorf("records: got %d, want 0 with a failing barometer", got)
	}
	if got := co2.readCount(); got != 0 {
		t.Errorf("gas reads: got %d, want 0 with a failing barometer", got)
	}
}

func TestSampler_SinkErrorDoesNotStarveOthers(t *testing.T) {
	broken := &captureSink{err: errors.New("connection refused")}
	healthy := &captureSink{}
	s := &Sampler{
		CO2:      &fakeCO2{ready: true, reading: sensors.CO2Reading{CO2: 420}},
		Baro:     &fakeBaro{reading: sensors.BaroReading{Pressure: 1000}},
		Fixes:    gnss.NewFixCache(gnss.NewDummySource(0, 0, 0), 600*time.Second),
		Sinks:    []sink.Sink{broken, healthy},
		Interval: time.Millisecond,
	}

	stop := startSampler(t, s)
	waitFor(t, func() bool { return healthy.count() >= 2 })
	stop()

	if got := broken.count(); got != 0 {
		t.Errorf("broken sink stored records: %d", got)
	}
}

func TestRunSampler_RequiresInfluxOrg(t *testing.T) {
	cfg := &config.Config{EnableInflux: true}

	err := RunSampler(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "INFLUXDB_ORG") {
		t.Fatalf("RunSampler: got %v, want INFLUXDB_ORG error", err)
	}
}

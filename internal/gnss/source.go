package gnss

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/ghg_sampler/internal/config"
)

// Source is anything that can produce position fixes on demand.
// The concrete implementation is chosen once at startup and never
// switched while the sampler runs.
type Source interface {
	Acquire() (Fix, error)
}

// NewSource builds the position source selected in the configuration.
// The i2c variant shares the sensor bus; the other variants ignore it.
func NewSource(cfg *config.Config, bus i2c.Bus) (Source, error) {
	switch cfg.GNSSSource {
	case "dummy":
		return NewDummySource(cfg.DummyLatitude, cfg.DummyLongitude, cfg.DummyAltitude), nil
	case "gpsd":
		return NewGPSDSource(cfg.GPSDAddress, cfg.GNSSPrecision), nil
	case "i2c":
		return NewI2CSource(bus, cfg.PollInterval, cfg.GNSSPrecision)
	default:
		return nil, fmt.Errorf("unknown gnss source %q", cfg.GNSSSource)
	}
}

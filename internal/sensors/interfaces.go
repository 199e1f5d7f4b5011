package sensors

// CO2Reading holds one gas sensor measurement triplet.
type CO2Reading struct {
	CO2         float64 // ppm
	Temperature float64 // °C
	Humidity    float64 // %RH
}

// BaroReading holds one barometer measurement.
type BaroReading struct {
	Pressure    float64 // hPa
	Temperature float64 // °C
}

// Calibration mirrors the compensation values currently applied to the
// CO2 sensor.
type Calibration struct {
	TemperatureOffset float64 // °C
	AmbientPressure   int     // mbar, 0 when compensation is off
	Altitude          int     // m above sea level
}

// CO2Sensor is implemented by gas sensors that measure on their own
// schedule and expose a data-ready flag.
type CO2Sensor interface {
	DataAvailable() (bool, error)
	Read() (CO2Reading, error)
	SetAmbientPressure(mbar int) error
	Calibration() Calibration
	Halt() error
}

// Barometer is implemented by ambient pressure sensors.
type Barometer interface {
	Read() (BaroReading, error)
}

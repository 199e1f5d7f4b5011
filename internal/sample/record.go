package sample

import "time"

// Record is one fused measurement cycle: the gas reading, the barometer
// reading and the position both were taken at. Field names follow the
// established wire format, consumers key on them.
type Record struct {
	DeviceUUID string    `json:"device_uuid,omitempty"`
	Time       time.Time `json:"time"`

	CO2         float64 `json:"CO2"`               // ppm
	Temperature float64 `json:"Temperature"`       // °C
	Humidity    float64 `json:"Relative_Humidity"` // %RH

	Latitude  float64  `json:"Latitude"`
	Longitude float64  `json:"Longitude"`
	Altitude  *float64 `json:"Altitude"` // m, null without a 3D fix

	TemperatureOffset float64 `json:"scd_temp_offset"`     // °C
	BaroTemperature   float64 `json:"baro_temp"`           // °C
	BaroPressure      float64 `json:"baro_pressure_hpa"`   // hPa
	AmbientPressure   int     `json:"scd30_pressure_mbar"` // mbar pushed to the gas sensor
	AltitudeSetting   int     `json:"scd30_alt_m"`         // m pushed to the gas sensor
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Per-device-type defaults for fleets that run the same image on
// different boards. Anything not listed falls back to the generic value.
var (
	defaultGNSSSource = map[string]string{
		"beaglebone-green-gateway": "i2c",
		"raspberrypicm4-ioboard":   "i2c",
	}
	defaultI2CBus = map[string]string{
		"beaglebone-green-gateway": "2",
	}
)

// Config holds all application configuration values. It is built once at
// startup from the environment and passed around read-only.
type Config struct {
	AppEnv   string
	LogLevel slog.Level

	// Device identity, injected by the fleet supervisor
	DeviceUUID string
	DeviceType string

	// Sampling
	PollInterval time.Duration
	I2CBus       string

	// Positioning
	GNSSSource     string // "dummy", "gpsd" or "i2c"
	GNSSPrecision  int    // coordinate rounding digits
	FixMaxAge      time.Duration
	GPSDAddress    string
	DummyLatitude  float64
	DummyLongitude float64
	DummyAltitude  float64

	// InfluxDB sink
	EnableInflux  bool
	InfluxURL     string
	InfluxOrg     string
	InfluxToken   string
	InfluxBucket  string
	InfluxTimeout time.Duration

	// Local MQTT bus
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	// Companion tools
	HTTPAddr string
}

// LoadFromEnv reads the configuration from the process environment,
// applying defaults and failing fast on anything malformed.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}

	cfg.AppEnv = getenv("APP_ENV", "dev")
	switch cfg.AppEnv {
	case "dev", "prod":
	default:
		return nil, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", cfg.AppEnv)
	}

	level, err := parseLogLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	cfg.DeviceUUID = getenv("BALENA_DEVICE_UUID", "")
	cfg.DeviceType = getenv("RESIN_DEVICE_TYPE", "")

	pollStr := getenv("POLL_INTERVAL_SECONDS", "0.5")
	pollSec, err := strconv.ParseFloat(pollStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL_SECONDS %q: %w", pollStr, err)
	}
	if pollSec <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be positive, got %v", pollSec)
	}
	cfg.PollInterval = time.Duration(pollSec * float64(time.Second))

	cfg.I2CBus = getenv("I2C_BUS_ID", deviceDefault(defaultI2CBus, cfg.DeviceType, "11"))

	cfg.GNSSSource = getenv("GPS_SOURCE", deviceDefault(defaultGNSSSource, cfg.DeviceType, "gpsd"))
	switch cfg.GNSSSource {
	case "dummy", "gpsd", "i2c":
	default:
		return nil, fmt.Errorf("invalid GPS_SOURCE %q (allowed: dummy, gpsd, i2c)", cfg.GNSSSource)
	}

	precStr := getenv("GPS_DIGITS_PRECISION", "2")
	prec, err := strconv.Atoi(precStr)
	if err != nil {
		return nil, fmt.Errorf("invalid GPS_DIGITS_PRECISION %q: %w", precStr, err)
	}
	if prec < 0 {
		return nil, fmt.Errorf("GPS_DIGITS_PRECISION must be >= 0, got %d", prec)
	}
	cfg.GNSSPrecision = prec

	maxAgeStr := getenv("GPS_FIX_MAX_AGE_SECONDS", "600")
	maxAgeSec, err := strconv.Atoi(maxAgeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid GPS_FIX_MAX_AGE_SECONDS %q: %w", maxAgeStr, err)
	}
	if maxAgeSec <= 0 {
		return nil, fmt.Errorf("GPS_FIX_MAX_AGE_SECONDS must be positive, got %d", maxAgeSec)
	}
	cfg.FixMaxAge = time.Duration(maxAgeSec) * time.Second

	cfg.GPSDAddress = getenv("GPSD_ADDRESS", "localhost:2947")

	if cfg.DummyLatitude, err = parseFloat("DUMMY_GPS_LATITUDE", "0"); err != nil {
		return nil, err
	}
	if cfg.DummyLongitude, err = parseFloat("DUMMY_GPS_LONGITUDE", "0"); err != nil {
		return nil, err
	}
	if cfg.DummyAltitude, err = parseFloat("DUMMY_GPS_ALTITUDE", "0"); err != nil {
		return nil, err
	}

	cfg.EnableInflux = isTruthy(getenv("ENABLE_INFLUXDB", "true"))
	cfg.InfluxURL = getenv("INFLUXDB_URL", "http://localhost:8086")
	cfg.InfluxOrg = getenv("INFLUXDB_ORG", "")
	cfg.InfluxToken = getenv("INFLUXDB_TOKEN", "")
	cfg.InfluxBucket = getenv("INFLUXDB_BUCKET", "co2")

	timeoutStr := getenv("INFLUXDB_TIMEOUT", "6s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid INFLUXDB_TIMEOUT %q: %w", timeoutStr, err)
	}
	cfg.InfluxTimeout = timeout

	cfg.MQTTBroker = getenv("MQTT_BROKER", "localhost")

	portStr := getenv("MQTT_PORT", "1883")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT_PORT %q: %w", portStr, err)
	}
	cfg.MQTTPort = port

	cfg.MQTTClientID = getenv("MQTT_CLIENT_ID", "ghg-sampler")
	cfg.MQTTTopic = getenv("MQTT_TOPIC", "ghg/sample")

	cfg.HTTPAddr = getenv("HTTP_ADDR", ":8080")

	return cfg, nil
}

func getenv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func deviceDefault(m map[string]string, deviceType, fallback string) string {
	if v, ok := m[deviceType]; ok {
		return v
	}
	return fallback
}

func parseFloat(key, fallback string) (float64, error) {
	s := getenv(key, fallback)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

// isTruthy accepts the enable-flag spellings fleet operators actually set.
func isTruthy(s string) bool {
	switch s {
	case "true", "True", "1", "yes", "Yes":
		return true
	}
	return false
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

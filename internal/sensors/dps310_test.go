package sensors

import (
	"math"
	"strings"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
)

// Synthetic calibration block: c0=40, c1=-9, c00=100000, c10=-1000,
// c01=-1000, every second-order term zero. Chosen so the compensation
// arithmetic works out to round numbers.
var dps310TestCoef = []byte{
	0x02, 0x8F, 0xF7,
	0x18, 0x6A, 0x0F, 0xFC, 0x18,
	0xFC, 0x18,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

func dps310InitOps(coefSrce, tmpCfg byte) []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: DPS310DefaultAddr, W: []byte{0x0D}, R: []byte{0x10}},
		{Addr: DPS310DefaultAddr, W: []byte{0x0C, 0x89}},
		{Addr: DPS310DefaultAddr, W: []byte{0x08}, R: []byte{0xC0}},
		{Addr: DPS310DefaultAddr, W: []byte{0x10}, R: dps310TestCoef},
		{Addr: DPS310DefaultAddr, W: []byte{0x28}, R: []byte{coefSrce}},
		{Addr: DPS310DefaultAddr, W: []byte{0x06, 0x26}},
		{Addr: DPS310DefaultAddr, W: []byte{0x07, tmpCfg}},
		{Addr: DPS310DefaultAddr, W: []byte{0x09, 0x04}},
		{Addr: DPS310DefaultAddr, W: []byte{0x08, 0x07}},
	}
}

func TestDPS310_InitAndRead(t *testing.T) {
	ops := append(dps310InitOps(0x80, 0xA0),
		// praw=520192 (scaled 0.5), traw=-262144 (scaled -0.5)
		i2ctest.IO{Addr: DPS310DefaultAddr, W: []byte{0x00}, R: []byte{0x07, 0xF0, 0x00, 0xFC, 0x00, 0x00}},
		i2ctest.IO{Addr: DPS310DefaultAddr, W: []byte{0x08, 0x00}},
	)
	p := &i2ctest.Playback{Ops: ops, DontPanic: true}

	d, err := NewDPS310(p, DPS310DefaultAddr)
	if err != nil {
		t.Fatalf("NewDPS310: %v", err)
	}

	got, err := d.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if math.Abs(got.Pressure-1000.0) > 1e-6 {
		t.Errorf("Pressure: got %v hPa, want 1000.0", got.Pressure)
	}
	if math.Abs(got.Temperature-24.5) > 1e-6 {
		t.Errorf("Temperature: got %v, want 24.5", got.Temperature)
	}

	if err := d.Halt(); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	assertPlaybackDone(t, p)
}

func TestDPS310_InternalTemperatureSensor(t *testing.T) {
	// COEF_SRCE bit 7 clear: TMP_CFG must not select the external element.
	p := &i2ctest.Playback{Ops: dps310InitOps(0x00, 0x20), DontPanic: true}

	if _, err := NewDPS310(p, DPS310DefaultAddr); err != nil {
		t.Fatalf("NewDPS310: %v", err)
	}
	assertPlaybackDone(t, p)
}

func TestDPS310_RejectsWrongProductID(t *testing.T) {
	p := &i2ctest.Playback{
		Ops:       []i2ctest.IO{{Addr: DPS310DefaultAddr, W: []byte{0x0D}, R: []byte{0x61}}},
		DontPanic: true,
	}

	if _, err := NewDPS310(p, DPS310DefaultAddr); err == nil || !strings.Contains(err.Error(), "product id") {
		t.Fatalf("NewDPS310: got %v, want product id error", err)
	}
	assertPlaybackDone(t, p)
}

func TestDPS310_WaitsForReadyStatus(t *testing.T) {
	ops := []i2ctest.IO{
		{Addr: DPS310DefaultAddr, W: []byte{0x0D}, R: []byte{0x10}},
		{Addr: DPS310DefaultAddr, W: []byte{0x0C, 0x89}},
		// Coefficients not ready on the first poll.
		{Addr: DPS310DefaultAddr, W: []byte{0x08}, R: []byte{0x40}},
		{Addr: DPS310DefaultAddr, W: []byte{0x08}, R: []byte{0xC0}},
		{Addr: DPS310DefaultAddr, W: []byte{0x10}, R: dps310TestCoef},
		{Addr: DPS310DefaultAddr, W: []byte{0x28}, R: []byte{0x80}},
		{Addr: DPS310DefaultAddr, W: []byte{0x06, 0x26}},
		{Addr: DPS310DefaultAddr, W: []byte{0x07, 0xA0}},
		{Addr: DPS310DefaultAddr, W: []byte{0x09, 0x04}},
		{Addr: DPS310DefaultAddr, W: []byte{0x08, 0x07}},
	}
	p := &i2ctest.Playback{Ops: ops, DontPanic: true}

	if _, err := NewDPS310(p, DPS310DefaultAddr); err != nil {
		t.Fatalf("NewDPS310: %v", err)
	}
	assertPlaybackDone(t, p)
}

func TestUnpackCoefficients(t *testing.T) {
	got := unpackCoefficients(dps310TestCoef)

	want := dps310Coefficients{c0: 40, c1: -9, c00: 100000, c10: -1000, c01: -1000}
	if got != want {
		t.Errorf("unpackCoefficients: got %+v, want %+v", got, want)
	}
}

func TestTwos(t *testing.T) {
	cases := []struct {
		v    uint32
		bits uint
		want int32
	}{
		{0x000, 12, 0},
		{0x7FF, 12, 2047},
		{0x800, 12, -2048},
		{0xFFF, 12, -1},
		{0xFFC18, 20, -1000},
		{0x7FFFF, 20, 524287},
		{0xFC18, 16, -1000},
		{0xFC0000, 24, -262144},
	}
	for _, tc := range cases {
		if got := twos(tc.v, tc.bits); got != tc.want {
			t.Errorf("twos(0x%X, %d): got %d, want %d", tc.v, tc.bits, got, tc.want)
		}
	}
}

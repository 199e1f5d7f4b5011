// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/ghg_sampler/internal/config"
)

// gnssDebugAddr is the I2C address of the MediaTek GNSS module.
const gnssDebugAddr = 0x10

// RunGNSSDebug dumps raw NMEA traffic from the positioning module and prints
// parsed RMC/GGA fields alongside each sentence. Handy when a station reports
// no fix and you need to see what the antenna actually delivers. With a port
// argument it reads a serial GNSS receiver, otherwise it polls the I2C module
// on the shared sensor bus.
func RunGNSSDebug(ctx context.Context, cfg *config.Config, port string, baud uint) error {
	if port != "" {
		return debugSerial(ctx, port, baud)
	}
	return debugI2C(ctx, cfg.I2CBus)
}

func debugSerial(ctx context.Context, port string, baud uint) error {
	opts := serial.OpenOptions{
		PortName:        port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	conn, err := serial.Open(opts)
	if err != nil {
		return fmt.Errorf("gnss debug: open %s: %w", port, err)
	}
	slog.Info("gnss debug: serial port open", "port", port, "baud", baud)

	// Closing the port is the only way to unblock a pending read.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gnss debug: serial read: %w", err)
		}
		if line = strings.TrimSpace(line); line != "" {
			printSentence(line)
		}
	}
}

func debugI2C(ctx context.Context, busName string) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("gnss debug: init periph: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return fmt.Errorf("gnss debug: open i2c bus: %w", err)
	}
	defer bus.Close()

	dev := i2c.Dev{Bus: bus, Addr: gnssDebugAddr}
	slog.Info("gnss debug: polling i2c module", "bus", busName, "addr", fmt.Sprintf("0x%02X", gnssDebugAddr))

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var pending []byte
	chunk := make([]byte, 255)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := dev.Tx(nil, chunk); err != nil {
				return fmt.Errorf("gnss debug: read module: %w", err)
			}
			pending = append(pending, chunk...)

			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := strings.TrimSpace(string(pending[:i]))
				pending = pending[i+1:]
				// The module pads idle reads with newlines.
				if line != "" && strings.HasPrefix(line, "$") {
					printSentence(line)
				}
			}
			if len(pending) > 1024 {
				pending = pending[len(pending)-1024:]
			}
		}
	}
}

// printSentence echoes the raw sentence plus a parsed summary for the
// sentence types the sampler actually consumes.
func printSentence(line string) {
	fmt.Println(line)

	sentence, err := nmea.Parse(line)
	if err != nil {
		return
	}
	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		fmt.Printf("        RMC validity=%s lat=%.6f lon=%.6f speed=%.1fkn\n",
			m.Validity, m.Latitude, m.Longitude, m.Speed)
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		fmt.Printf("        GGA quality=%s sats=%d lat=%.6f lon=%.6f alt=%.1fm\n",
			m.FixQuality, m.NumSatellites, m.Latitude, m.Longitude, m.Altitude)
	}
}

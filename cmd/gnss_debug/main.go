// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/ghg_sampler/internal/app"
	"github.com/relabs-tech/ghg_sampler/internal/config"
	"github.com/relabs-tech/ghg_sampler/internal/logging"
)

var version = "dev"
var appName = "ghg-gnss-debug"

func main() {
	port := flag.String("port", "", "serial port of the receiver (e.g. /dev/ttyUSB0); empty polls the I2C module")
	baud := flag.Uint("baud", 9600, "serial baud rate")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunGNSSDebug(ctx, cfg, *port, *baud); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
}

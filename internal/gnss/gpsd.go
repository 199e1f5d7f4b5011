// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gnss

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gpsd "github.com/stratoberry/go-gpsd"
)

// ErrDaemonConnect is returned while the gpsd daemon cannot be reached.
var ErrDaemonConnect = errors.New("gpsd daemon unreachable")

// ErrNoFix is returned when the receiver is alive but has not produced a
// usable satellite fix.
var ErrNoFix = errors.New("no gnss fix")

// A cached TPV report older than this means the watch has gone quiet;
// treated like any other fetch failure.
const gpsdReportMaxAge = 5 * time.Second

// gpsdSession is the slice of gpsd.Session the source uses, split out so
// tests can stand in for the daemon.
type gpsdSession interface {
	AddFilter(class string, f gpsd.Filter)
	Watch() chan bool
	Close() error
}

type gpsdSource struct {
	addr   string
	digits int
	dial   func(addr string) (gpsdSession, error)

	sess gpsdSession

	mu         sync.Mutex
	report     *gpsd.TPVReport
	reportTime time.Time
}

// NewGPSDSource creates a source backed by a gpsd daemon. The connection
// is established lazily on the first Acquire; after any failure the next
// Acquire dials again.
func NewGPSDSource(addr string, digits int) Source {
	return &gpsdSource{
		addr:   addr,
		digits: digits,
		dial: func(addr string) (gpsdSession, error) {
			return gpsd.Dial(addr)
		},
	}
}

func (g *gpsdSource) connect() error {
	sess, err := g.dial(g.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonConnect, err)
	}
	sess.AddFilter("TPV", g.onTPV)
	sess.Watch()
	g.sess = sess
	slog.Info("connected to gpsd", "addr", g.addr)
	return nil
}

// onTPV runs on the session's watch goroutine.
func (g *gpsdSource) onTPV(r interface{}) {
	tpv, ok := r.(*gpsd.TPVReport)
	if !ok {
		return
	}
	g.mu.Lock()
	g.report = tpv
	g.reportTime = time.Now()
	g.mu.Unlock()
}

// disconnect drops the session so the next Acquire reconnects.
func (g *gpsdSource) disconnect() {
	if g.sess != nil {
		_ = g.sess.Close()
		g.sess = nil
	}
	g.mu.Lock()
	g.report = nil
	g.reportTime = time.Time{}
	g.mu.Unlock()
}

func (g *gpsdSource) Acquire() (Fix, error) {
	if g.sess == nil {
		if err := g.connect(); err != nil {
			return Fix{}, err
		}
	}

	g.mu.Lock()
	report := g.report
	reportTime := g.reportTime
	g.mu.Unlock()

	if report == nil || time.Since(reportTime) > gpsdReportMaxAge {
		g.disconnect()
		return Fix{}, fmt.Errorf("no position report from gpsd: %w", ErrNoFix)
	}
	if report.Mode < gpsd.Mode2D {
		g.disconnect()
		return Fix{}, ErrNoFix
	}

	fix := Fix{
		Latitude:   Round(report.Lat, g.digits),
		Longitude:  Round(report.Lon, g.digits),
		AcquiredAt: time.Now(),
	}
	if report.Mode >= gpsd.Mode3D {
		alt := report.Alt
		fix.Altitude = &alt
	}
	return fix, nil
}

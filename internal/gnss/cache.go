// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gnss

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoFixAvailable is returned by GetFix while the source has never
// delivered a single fix since startup.
var ErrNoFixAvailable = errors.New("waiting for first fix")

// StaleFixError is returned by GetFix when acquisition keeps failing and
// the last good fix has grown older than the configured maximum age.
type StaleFixError struct {
	Age    time.Duration
	MaxAge time.Duration
	Err    error // the acquisition failure that triggered the check
}

func (e *StaleFixError) Error() string {
	return fmt.Sprintf("last fix is too old (age %s, max %s)", e.Age.Round(time.Second), e.MaxAge)
}

func (e *StaleFixError) Unwrap() error { return e.Err }

// FixCache keeps the most recent fix from a Source and decides what
// happens when acquisition fails: fall back to the last fix while it is
// younger than maxAge, error out otherwise.
//
// It is driven by the single sampling goroutine and needs no locking.
type FixCache struct {
	src    Source
	maxAge time.Duration

	last *Fix
	now  func() time.Time
}

func NewFixCache(src Source, maxAge time.Duration) *FixCache {
	return &FixCache{src: src, maxAge: maxAge, now: time.Now}
}

// GetFix returns a fresh fix when the source delivers one, the previous
// fix while the outage is younger than maxAge, and an error otherwise.
// A fallback fix is returned as stored: AcquiredAt keeps the original
// acquisition time, so its age keeps growing across calls.
func (c *FixCache) GetFix() (Fix, error) {
	fix, err := c.src.Acquire()
	if err == nil {
		f := fix
		c.last = &f
		return fix, nil
	}

	if c.last == nil {
		return Fix{}, fmt.Errorf("%w (acquire: %v)", ErrNoFixAvailable, err)
	}

	age := c.now().Sub(c.last.AcquiredAt)
	if age >= c.maxAge {
		return Fix{}, &StaleFixError{Age: age, MaxAge: c.maxAge, Err: err}
	}

	slog.Warn("position acquisition failed, using last known fix",
		"error", err,
		"fix_age", age.Round(time.Millisecond),
	)
	return *c.last, nil
}

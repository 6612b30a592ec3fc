// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mockable

import "time"

// Clock acts as a thin wrapper around global time that allows for easy testing
type Clock struct {
	faked bool
	time  time.Time
}

// Set the time on the clock
func (c *Clock) Set(time time.Time) {
	c.faked = true
	c.time = time
}

// Advance moves a faked clock forward by [d]. A real clock is frozen at the
// current time first.
func (c *Clock) Advance(d time.Duration) {
	c.Set(c.Time().Add(d))
}

// Sync this clock with global time
func (c *Clock) Sync() {
	c.faked = false
}

// Time returns the time on this clock
func (c *Clock) Time() time.Time {
	if c.faked {
		return c.time
	}
	return time.Now()
}

// Unix returns the unix timestamp on this clock, clamped at zero.
func (c *Clock) Unix() uint64 {
	unix := c.Time().Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix)
}

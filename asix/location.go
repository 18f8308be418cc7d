// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import "fmt"

// location is a position in the sample memory.
//
// raw is the position as reported by the hardware, counted in 16-bit
// units of a row; the first slot of each cluster holds its timestamp,
// so only 7*64 of the 512 slots of a row address events.
// line, cluster and event are its broken-down form, which is the one
// iterated over during decoding.
type location struct {
	raw     uint32
	line    uint32
	cluster uint32
	event   uint32
}

func newLocation(raw uint32) location {
	loc := location{raw: raw}
	loc.breakDown()
	return loc
}

func (loc *location) breakDown() {
	loc.line = (loc.raw/rowLengthU16 + rowCount) % rowCount
	c := loc.raw % rowLengthU16
	loc.event = c % eventsPerCluster
	loc.cluster = c / eventsPerCluster
}

func (loc location) equal(o location, withEvent bool) bool {
	if loc.line != o.line || loc.cluster != o.cluster {
		return false
	}
	if withEvent && loc.event != o.event {
		return false
	}
	return true
}

// decrement moves the broken-down fields one event (or one cluster)
// backwards, wrapping around the memory. raw is left as is.
func (loc *location) decrement(withEvent bool) {
	if withEvent {
		if loc.event > 0 {
			loc.event--
			return
		}
		loc.event = eventsPerCluster - 1
	}

	if loc.cluster > 0 {
		loc.cluster--
		return
	}
	loc.cluster = clustersPerRow - 1

	if loc.line > 0 {
		loc.line--
		return
	}
	loc.line = rowCount - 1
}

// increment moves the broken-down fields one event forward,
// wrapping around the memory. raw is left as is.
func (loc *location) increment() {
	loc.event++
	if loc.event < eventsPerCluster {
		return
	}
	loc.event = 0

	loc.cluster++
	if loc.cluster < clustersPerRow {
		return
	}
	loc.cluster = 0

	loc.line++
	if loc.line < rowCount {
		return
	}
	loc.line = 0
}

func (loc location) String() string {
	return fmt.Sprintf("%d:%d:%d", loc.line, loc.cluster, loc.event)
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"time"
)

// Limits bounds an acquisition. A zero value means no limit.
type Limits struct {
	Samples uint64 // number of samples
	Msec    uint64 // acquisition time, in milliseconds
}

// swLimits tracks a running acquisition against its limits.
type swLimits struct {
	lim     Limits
	read    uint64
	start   time.Time
	started bool

	now func() time.Time
}

func newSWLimits(lim Limits, now func() time.Time) swLimits {
	if now == nil {
		now = time.Now
	}
	return swLimits{lim: lim, now: now}
}

// startAcq resets the sample count and starts the clock.
func (sw *swLimits) startAcq() {
	sw.read = 0
	sw.start = sw.now()
	sw.started = true
}

func (sw *swLimits) update(n uint64) { sw.read += n }

// reached reports whether any of the limits has been reached.
func (sw *swLimits) reached() bool {
	if sw.lim.Samples != 0 && sw.read >= sw.lim.Samples {
		return true
	}
	if sw.lim.Msec != 0 && sw.started {
		elapsed := sw.now().Sub(sw.start)
		if elapsed > time.Duration(sw.lim.Msec)*time.Millisecond {
			return true
		}
	}
	return false
}

// worstClusterSamples is the number of samples a single cluster
// timestamp can span before it wraps around.
const worstClusterSamples = 65536

// acquireTimeout converts the user limits into an acquisition timeout
// in milliseconds. Only the share of the limits after the trigger
// counts when triggers are used. It returns 0 when no limit is set.
func acquireTimeout(lim Limits, rate uint64, ratio uint64, triggers bool) uint64 {
	var (
		count = lim.Samples
		msec  = lim.Msec
	)
	if triggers {
		count = count * (100 - ratio) / 100
		msec = msec * (100 - ratio) / 100
	}

	var countMsec uint64
	if count != 0 {
		countMsec = 1000*count/rate + 1
	}

	var timeout uint64
	switch {
	case count != 0 && msec != 0:
		timeout = countMsec
		if msec < timeout {
			timeout = msec
		}
	case count != 0:
		timeout = countMsec
	case msec != 0:
		timeout = msec
	default:
		return 0
	}

	worst := 1000 * worstClusterSamples / rate
	return timeout + 2*worst
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"fmt"
	"strconv"
	"strings"
)

// Frequency units, in Hz.
const (
	KHz = 1000
	MHz = 1000 * KHz
)

var samplerates = []uint64{
	200 * KHz,
	500 * KHz,
	1 * MHz,
	2 * MHz,
	5 * MHz,
	10 * MHz,
	25 * MHz,
	50 * MHz,
	100 * MHz,
	200 * MHz,
}

// Samplerates returns the list of samplerates supported by SIGMA devices.
func Samplerates() []uint64 {
	o := make([]uint64, len(samplerates))
	copy(o, samplerates)
	return o
}

// NormalizeSamplerate maps a requested samplerate to one the hardware supports.
//
// 100 and 200MHz are only accepted as exact matches.
// Rates in the 200kHz to 50MHz range are mapped to the closest
// integer divider of 50MHz, rounding up.
func NormalizeSamplerate(want uint64) (uint64, error) {
	switch {
	case want == 200*MHz, want == 100*MHz:
		return want, nil
	case want >= 200*KHz && want <= 50*MHz:
		div := 50 * MHz / want
		return 50 * MHz / div, nil
	}
	return 0, configErrorf("unsupported samplerate %s", FormatSamplerate(want))
}

// FormatSamplerate returns a human readable form of a samplerate.
func FormatSamplerate(rate uint64) string {
	switch {
	case rate >= MHz && rate%MHz == 0:
		return fmt.Sprintf("%dMHz", rate/MHz)
	case rate >= KHz && rate%KHz == 0:
		return fmt.Sprintf("%dkHz", rate/KHz)
	}
	return fmt.Sprintf("%dHz", rate)
}

// ParseSamplerate parses a samplerate such as "200kHz", "50MHz" or "1000000".
func ParseSamplerate(txt string) (uint64, error) {
	var (
		s    = strings.TrimSpace(strings.ToLower(txt))
		unit = uint64(1)
	)
	switch {
	case strings.HasSuffix(s, "mhz"):
		unit = MHz
		s = strings.TrimSuffix(s, "mhz")
	case strings.HasSuffix(s, "khz"):
		unit = KHz
		s = strings.TrimSuffix(s, "khz")
	case strings.HasSuffix(s, "hz"):
		s = strings.TrimSuffix(s, "hz")
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, configErrorf("invalid samplerate %q: %v", txt, err)
	}
	return v * unit, nil
}

// firmwareFor returns the netlist needed for a normalized samplerate
// together with the number of usable channels.
func firmwareFor(rate uint64) (Firmware, int, error) {
	switch {
	case rate <= 50*MHz:
		return Firmware50MHz, 16, nil
	case rate == 100*MHz:
		return Firmware100MHz, 8, nil
	case rate == 200*MHz:
		return Firmware200MHz, 4, nil
	}
	return firmwareNone, 0, configErrorf("no firmware for samplerate %s", FormatSamplerate(rate))
}

// setSamplerate uploads the netlist matching the configured samplerate,
// and derives the channel layout from it.
func (acq *Device) setSamplerate() error {
	rate, err := NormalizeSamplerate(acq.clock.Samplerate)
	if err != nil {
		return err
	}
	if rate != acq.clock.Samplerate {
		acq.msg.Infof("adjusted samplerate from %s to %s",
			FormatSamplerate(acq.clock.Samplerate), FormatSamplerate(rate),
		)
		acq.clock.Samplerate = rate
	}

	fw, nchans, err := firmwareFor(rate)
	if err != nil {
		return err
	}

	err = acq.uploadFirmware(fw)
	if err != nil {
		return err
	}

	acq.channels = nchans
	acq.interp.spe = NumChannels / nchans
	return nil
}

// channelMask returns the mask of the first n channels.
func channelMask(n int) uint16 {
	if n >= 16 {
		return 0xffff
	}
	return 1<<uint(n) - 1
}

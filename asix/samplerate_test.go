// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"errors"
	"testing"
)

func TestNormalizeSamplerate(t *testing.T) {
	for _, tc := range []struct {
		want uint64
		rate uint64
		err  bool
	}{
		{want: 200 * KHz, rate: 200 * KHz},
		{want: 250 * KHz, rate: 250 * KHz},
		{want: 300 * KHz, rate: 50 * MHz / 166},
		{want: MHz, rate: MHz},
		{want: 3 * MHz, rate: 50 * MHz / 16},
		{want: 25 * MHz, rate: 25 * MHz},
		{want: 30 * MHz, rate: 50 * MHz},
		{want: 50 * MHz, rate: 50 * MHz},
		{want: 100 * MHz, rate: 100 * MHz},
		{want: 200 * MHz, rate: 200 * MHz},
		{want: 0, err: true},
		{want: 199 * KHz, err: true},
		{want: 75 * MHz, err: true},
		{want: 150 * MHz, err: true},
		{want: 400 * MHz, err: true},
	} {
		t.Run(FormatSamplerate(tc.want), func(t *testing.T) {
			got, err := NormalizeSamplerate(tc.want)
			switch {
			case err != nil && tc.err:
				if !errors.Is(err, ErrConfig) {
					t.Fatalf("invalid error kind: %+v", err)
				}
				return
			case err != nil:
				t.Fatalf("could not normalize: %+v", err)
			case tc.err:
				t.Fatalf("expected an error (got=%d)", got)
			}
			if got != tc.rate {
				t.Fatalf("invalid rate: got=%d, want=%d", got, tc.rate)
			}
		})
	}
}

func TestFormatSamplerate(t *testing.T) {
	for _, tc := range []struct {
		rate uint64
		want string
	}{
		{0, "0Hz"},
		{999, "999Hz"},
		{200 * KHz, "200kHz"},
		{1500 * KHz, "1500kHz"},
		{50 * MHz / 3, "16666666Hz"},
		{100 * MHz, "100MHz"},
	} {
		if got := FormatSamplerate(tc.rate); got != tc.want {
			t.Fatalf("invalid format for %d: got=%q, want=%q", tc.rate, got, tc.want)
		}
	}
}

func TestSamplerates(t *testing.T) {
	rates := Samplerates()
	rates[0] = 42
	if Samplerates()[0] == 42 {
		t.Fatalf("samplerates list should be a copy")
	}
	for _, rate := range Samplerates() {
		got, err := NormalizeSamplerate(rate)
		if err != nil {
			t.Fatalf("could not normalize %d: %+v", rate, err)
		}
		if got != rate {
			t.Fatalf("supported rate %d should be kept as is (got=%d)", rate, got)
		}
	}
}

func TestFirmwareFor(t *testing.T) {
	for _, tc := range []struct {
		rate   uint64
		fw     Firmware
		nchans int
	}{
		{MHz, Firmware50MHz, 16},
		{50 * MHz, Firmware50MHz, 16},
		{100 * MHz, Firmware100MHz, 8},
		{200 * MHz, Firmware200MHz, 4},
	} {
		fw, nchans, err := firmwareFor(tc.rate)
		if err != nil {
			t.Fatalf("could not find firmware for %d: %+v", tc.rate, err)
		}
		if fw != tc.fw || nchans != tc.nchans {
			t.Fatalf("invalid firmware for %d: got=(%v, %d), want=(%v, %d)", tc.rate, fw, nchans, tc.fw, tc.nchans)
		}
	}

	_, _, err := firmwareFor(150 * MHz)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestChannelMask(t *testing.T) {
	for _, tc := range []struct {
		n    int
		want uint16
	}{
		{4, 0x000f},
		{8, 0x00ff},
		{16, 0xffff},
	} {
		if got := channelMask(tc.n); got != tc.want {
			t.Fatalf("invalid mask for %d channels: got=0x%04x, want=0x%04x", tc.n, got, tc.want)
		}
	}
}

func TestParseSamplerate(t *testing.T) {
	for _, tc := range []struct {
		txt  string
		want uint64
		err  bool
	}{
		{txt: "200kHz", want: 200 * KHz},
		{txt: "50MHz", want: 50 * MHz},
		{txt: "50 mhz", want: 50 * MHz},
		{txt: "1000000", want: 1 * MHz},
		{txt: "500Hz", want: 500},
		{txt: "fast", err: true},
		{txt: "-1MHz", err: true},
	} {
		t.Run(tc.txt, func(t *testing.T) {
			got, err := ParseSamplerate(tc.txt)
			switch {
			case err != nil && !tc.err:
				t.Fatalf("could not parse samplerate: %+v", err)
			case err == nil && tc.err:
				t.Fatalf("expected an error")
			}
			if got != tc.want {
				t.Fatalf("invalid samplerate: got=%d, want=%d", got, tc.want)
			}
		})
	}
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"testing"
	"time"
)

func TestAcquireTimeout(t *testing.T) {
	for _, tc := range []struct {
		name     string
		lim      Limits
		rate     uint64
		ratio    uint64
		triggers bool
		want     uint64
	}{
		{
			name: "none",
			rate: MHz,
			want: 0,
		},
		{
			name: "samples-1MHz",
			lim:  Limits{Samples: 1000000},
			rate: MHz,
			want: 1001 + 2*65,
		},
		{
			name: "msec-1MHz",
			lim:  Limits{Msec: 500},
			rate: MHz,
			want: 500 + 2*65,
		},
		{
			name: "both-1MHz",
			lim:  Limits{Samples: 1000000, Msec: 500},
			rate: MHz,
			want: 500 + 2*65,
		},
		{
			name: "samples-50MHz",
			lim:  Limits{Samples: 50000000},
			rate: 50 * MHz,
			want: 1001 + 2*1,
		},
		{
			name:     "triggers",
			lim:      Limits{Samples: 1000000, Msec: 2000},
			rate:     MHz,
			ratio:    25,
			triggers: true,
			want:     751 + 2*65,
		},
		{
			name:  "ratio-without-triggers",
			lim:   Limits{Msec: 2000},
			rate:  MHz,
			ratio: 25,
			want:  2000 + 2*65,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := acquireTimeout(tc.lim, tc.rate, tc.ratio, tc.triggers)
			if got != tc.want {
				t.Fatalf("invalid timeout: got=%d, want=%d", got, tc.want)
			}
		})
	}
}

func TestSWLimits(t *testing.T) {
	t0 := time.Date(2020, 4, 1, 12, 0, 0, 0, time.UTC)

	sw := newSWLimits(Limits{Samples: 10}, nil)
	if sw.reached() {
		t.Fatalf("limit reached too early")
	}
	sw.update(9)
	if sw.reached() {
		t.Fatalf("limit reached too early")
	}
	sw.update(1)
	if !sw.reached() {
		t.Fatalf("sample limit not reached")
	}
	sw.startAcq()
	if sw.reached() {
		t.Fatalf("start should reset the sample count")
	}

	sw = newSWLimits(Limits{Msec: 100}, fixedClock(t0, 60*time.Millisecond))
	if sw.reached() {
		t.Fatalf("time limit should not be checked before start")
	}
	sw.startAcq()
	if sw.reached() {
		t.Fatalf("time limit reached too early")
	}
	if !sw.reached() {
		t.Fatalf("time limit not reached")
	}

	sw = newSWLimits(Limits{}, nil)
	sw.startAcq()
	sw.update(1 << 40)
	if sw.reached() {
		t.Fatalf("no limit should never be reached")
	}
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/sigma/rundb"
)

type fakeDB struct {
	cfg  rundb.RunConfig
	runs []rundb.Run
	err  error
}

func (db *fakeDB) LastRunConfig(ctx context.Context, serial string) (rundb.RunConfig, error) {
	return db.cfg, db.err
}

func (db *fakeDB) Runs(ctx context.Context, serial string, n int) ([]rundb.Run, error) {
	if n < len(db.runs) {
		return db.runs[:n], nil
	}
	return db.runs, nil
}

func TestDoQuery(t *testing.T) {
	t0 := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{
		cfg: rundb.RunConfig{
			Serial:     "a6010001",
			Samplerate: 50000000,
			Samples:    1024,
			Ratio:      50,
			Trigger:    "1=r",
			ExtClock:   true,
			ClockPin:   "2",
			ClockEdge:  "falling",
		},
		runs: []rundb.Run{
			{
				ID: 2, Serial: "a6010001", Start: t0, Stop: t0.Add(2 * time.Second),
				Samplerate: 50000000, Samples: 1024, Trigger: "1=r", Status: rundb.StatusOK,
			},
			{
				ID: 1, Serial: "a6010001", Start: t0, Stop: t0,
				Samplerate: 50000000, Status: rundb.StatusFailed,
			},
		},
	}

	out := new(strings.Builder)
	err := doQuery(out, db, "a6010001", 1)
	if err != nil {
		t.Fatalf("could not run query: %+v", err)
	}

	want := `device:  a6010001
rate:    50000000 Hz
limits:  samples=1024, msec=0
ratio:   50%
trigger: "1=r"
clock:   external (pin=2, edge=falling)
runs:    1
  run=2      start=2020-06-01T12:00:00Z dt=2s rate=50000000 samples=1024 status=ok trigger="1=r"
`
	if got := out.String(); got != want {
		t.Fatalf("invalid output:\ngot:\n%s\nwant:\n%s\n", got, want)
	}
}

func TestDoQueryError(t *testing.T) {
	db := &fakeDB{err: sql.ErrNoRows}
	err := doQuery(new(strings.Builder), db, "a6010001", 1)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("invalid error: got=%v, want=%v", err, sql.ErrNoRows)
	}
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rundb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/sigma/asix"
	"github.com/go-lpc/sigma/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open rundb: %+v", err)
	}
	defer db.Close()
}

func TestLastRunConfig(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open rundb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{
			"serial", "samplerate", "samples", "msec", "ratio",
			"trigger", "ext_clock", "clock_pin", "clock_edge",
		},
		Values: [][]driver.Value{
			{"a6010001", int64(1000000), int64(0), int64(500), int64(25), "1=r", false, "", ""},
		},
	}, func(ctx context.Context) error {
		cfg, err := db.LastRunConfig(ctx, "a6010001")
		if err != nil {
			t.Fatalf("could not retrieve last run cfg: %+v", err)
		}

		want := RunConfig{
			Serial:     "a6010001",
			Samplerate: 1000000,
			Msec:       500,
			Ratio:      25,
			Trigger:    "1=r",
		}
		if got := cfg; got != want {
			t.Fatalf("invalid run cfg:\ngot= %+v\nwant=%+v", got, want)
		}
		return nil
	})
}

func TestLastRunConfigMissing(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open rundb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"serial"},
	}, func(ctx context.Context) error {
		_, err := db.LastRunConfig(ctx, "a6010002")
		if !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("invalid error: got=%+v, want=%+v", err, sql.ErrNoRows)
		}
		return nil
	})
}

func TestQueryError(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open rundb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		fakedb.Fail(errors.New("boom"))

		_, err := db.LastRunConfig(ctx, "a6010001")
		if err == nil || !strings.Contains(err.Error(), "rundb: could not query run cfg") {
			t.Fatalf("invalid error: %+v", err)
		}

		_, err = db.RecordRun(ctx, Run{Serial: "a6010001"})
		if err == nil || !strings.Contains(err.Error(), "rundb: could not record run") {
			t.Fatalf("invalid error: %+v", err)
		}
		return nil
	})
}

func TestRuns(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open rundb: %+v", err)
	}
	defer db.Close()

	var (
		t0 = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
		t1 = t0.Add(2 * time.Second)
	)

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{
			"identifier", "serial", "start", "stop",
			"samplerate", "samples", "trigger", "status",
		},
		Values: [][]driver.Value{
			{int64(2), "a6010001", t1, t1.Add(time.Second), int64(50000000), int64(1024), "", "stopped"},
			{int64(1), "a6010001", t0, t0.Add(time.Second), int64(1000000), int64(4096), "1=r", "ok"},
		},
	}, func(ctx context.Context) error {
		runs, err := db.Runs(ctx, "a6010001", 2)
		if err != nil {
			t.Fatalf("could not retrieve runs: %+v", err)
		}

		want := []Run{
			{
				ID: 2, Serial: "a6010001",
				Start: t1, Stop: t1.Add(time.Second),
				Samplerate: 50000000, Samples: 1024,
				Status: StatusStopped,
			},
			{
				ID: 1, Serial: "a6010001",
				Start: t0, Stop: t0.Add(time.Second),
				Samplerate: 1000000, Samples: 4096, Trigger: "1=r",
				Status: StatusOK,
			},
		}
		if got := runs; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid runs:\ngot= %+v\nwant=%+v", got, want)
		}
		return nil
	})
}

func TestRecordRun(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open rundb: %+v", err)
	}
	defer db.Close()

	var (
		t0 = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
		t1 = t0.Add(time.Second)
	)

	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		id, err := db.RecordRun(ctx, Run{
			Serial:     "a6010001",
			Start:      t0,
			Stop:       t1,
			Samplerate: 200000,
			Samples:    1000,
			Trigger:    "2=f",
			Status:     StatusOK,
		})
		if err != nil {
			t.Fatalf("could not record run: %+v", err)
		}
		if got, want := id, int64(1); got != want {
			t.Fatalf("invalid run id: got=%d, want=%d", got, want)
		}

		execs := fakedb.Execs()
		if got, want := len(execs), 1; got != want {
			t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
		}
		if !strings.Contains(execs[0].Query, "INSERT INTO runs") {
			t.Fatalf("invalid statement: %q", execs[0].Query)
		}
		want := []driver.Value{
			"a6010001", t0, t1, int64(200000), int64(1000), "2=f", "ok",
		}
		if got := execs[0].Args; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid arguments:\ngot= %v\nwant=%v", got, want)
		}
		return nil
	})
}

func TestRunConfigClock(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  RunConfig
		want asix.Clock
		err  string
	}{
		{
			name: "internal",
			cfg:  RunConfig{Samplerate: 50000000, ClockPin: "junk"},
			want: asix.Clock{Samplerate: 50000000},
		},
		{
			name: "external",
			cfg:  RunConfig{ExtClock: true, ClockPin: "3", ClockEdge: "falling"},
			want: asix.Clock{External: true, Pin: 2, Edge: asix.EdgeFalling},
		},
		{
			name: "bad-pin",
			cfg:  RunConfig{ExtClock: true, ClockPin: "17", ClockEdge: "rising"},
			err:  "rundb: invalid clock pin: asix: invalid channel name \"17\"",
		},
		{
			name: "bad-edge",
			cfg:  RunConfig{ExtClock: true, ClockPin: "1", ClockEdge: "up"},
			err:  "rundb: invalid clock edge: asix: invalid clock edge \"up\"",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clk, err := tc.cfg.Clock()
			switch {
			case tc.err != "":
				if err == nil {
					t.Fatalf("expected an error")
				}
				if got, want := err.Error(), tc.err; got != want {
					t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
				}
				if !errors.Is(err, asix.ErrConfig) {
					t.Fatalf("invalid error kind: %+v", err)
				}
				return
			case err != nil:
				t.Fatalf("could not create clock: %+v", err)
			}
			if got, want := clk, tc.want; got != want {
				t.Fatalf("invalid clock: got=%+v, want=%+v", got, want)
			}
		})
	}
}

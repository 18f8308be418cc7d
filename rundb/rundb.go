// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rundb holds types to describe the run database of the
// SIGMA acquisition setups: acquisition configurations per device and
// records of past runs.
package rundb // import "github.com/go-lpc/sigma/rundb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-lpc/sigma/asix"
	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to retrieve acquisition configurations
// and to record runs.
type DB struct {
	db   *sql.DB
	name string // name of the run database
}

// Open opens a connection to the run database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("rundb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("rundb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// RunConfig is the acquisition configuration of a device.
type RunConfig struct {
	Serial     string
	Samplerate uint64
	Samples    uint64 // sample limit, 0 for none
	Msec       uint64 // time limit in milliseconds, 0 for none
	Ratio      uint64 // capture ratio, in percent
	Trigger    string // textual trigger, see asix.ParseTrigger
	ExtClock   bool
	ClockPin   string // channel name of the external clock
	ClockEdge  string
}

// Clock returns the sampling clock described by the configuration.
func (cfg RunConfig) Clock() (asix.Clock, error) {
	clk := asix.Clock{
		Samplerate: cfg.Samplerate,
		External:   cfg.ExtClock,
	}
	if !clk.External {
		return clk, nil
	}

	pin, err := asix.ChannelIndex(cfg.ClockPin)
	if err != nil {
		return clk, fmt.Errorf("rundb: invalid clock pin: %w", err)
	}
	clk.Pin = pin

	edge, err := asix.ParseClockEdge(cfg.ClockEdge)
	if err != nil {
		return clk, fmt.Errorf("rundb: invalid clock edge: %w", err)
	}
	clk.Edge = edge

	return clk, nil
}

// Apply configures dev with cfg.
func (cfg RunConfig) Apply(dev *asix.Device) error {
	clk, err := cfg.Clock()
	if err != nil {
		return err
	}
	trg, err := asix.ParseTrigger(cfg.Trigger)
	if err != nil {
		return fmt.Errorf("rundb: invalid trigger: %w", err)
	}

	for _, f := range []func() error{
		func() error { return dev.Configure(clk) },
		func() error { return dev.SetLimits(asix.Limits{Samples: cfg.Samples, Msec: cfg.Msec}) },
		func() error { return dev.SetCaptureRatio(cfg.Ratio) },
		func() error { return dev.SetTrigger(trg) },
	} {
		err := f()
		if err != nil {
			return fmt.Errorf("rundb: could not apply run configuration: %w", err)
		}
	}
	return nil
}

// LastRunConfig returns the most recent acquisition configuration of
// the device with the given serial number.
func (db *DB) LastRunConfig(ctx context.Context, serial string) (RunConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		cfg   RunConfig
		found = false
	)
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT serial, samplerate, samples, msec, ratio, trigger, ext_clock, clock_pin, clock_edge
FROM configs
WHERE serial=?
ORDER BY datetime DESC LIMIT 1
`,
		serial,
	)
	if err != nil {
		return cfg, fmt.Errorf("rundb: could not query run cfg: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(
			&cfg.Serial, &cfg.Samplerate, &cfg.Samples, &cfg.Msec,
			&cfg.Ratio, &cfg.Trigger,
			&cfg.ExtClock, &cfg.ClockPin, &cfg.ClockEdge,
		)
		if err != nil {
			return cfg, fmt.Errorf("rundb: could not get run cfg value: %w", err)
		}
		found = true
	}

	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("rundb: could not scan db for run cfg: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return cfg, fmt.Errorf("rundb: context error while retrieving run cfg: %w", err)
	}

	if !found {
		return cfg, fmt.Errorf("rundb: no run cfg for device %q: %w", serial, sql.ErrNoRows)
	}

	return cfg, nil
}

// Status is the outcome of a run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
)

// Run is the record of an acquisition.
type Run struct {
	ID         int64
	Serial     string
	Start      time.Time
	Stop       time.Time
	Samplerate uint64
	Samples    uint64 // number of samples received
	Trigger    string
	Status     Status
}

// Runs returns the last n runs of the device with the given serial
// number, most recent first.
func (db *DB) Runs(ctx context.Context, serial string, n int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var runs []Run
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT identifier, serial, start, stop, samplerate, samples, trigger, status
FROM runs
WHERE serial=?
ORDER BY start DESC LIMIT ?
`,
		serial, n,
	)
	if err != nil {
		return runs, fmt.Errorf("rundb: could not run runs query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			run    Run
			status string
		)
		err = rows.Scan(
			&run.ID, &run.Serial, &run.Start, &run.Stop,
			&run.Samplerate, &run.Samples, &run.Trigger, &status,
		)
		if err != nil {
			return runs, fmt.Errorf("rundb: could not scan run %d: %w", len(runs), err)
		}
		run.Status = Status(status)
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return runs, fmt.Errorf("rundb: could not scan db for runs: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return runs, fmt.Errorf("rundb: context error while retrieving runs: %w", err)
	}

	return runs, nil
}

// RecordRun inserts a run record and returns its identifier.
func (db *DB) RecordRun(ctx context.Context, run Run) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := db.db.ExecContext(
		ctx,
		`
INSERT INTO runs (serial, start, stop, samplerate, samples, trigger, status)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		run.Serial, run.Start, run.Stop,
		run.Samplerate, run.Samples, run.Trigger, string(run.Status),
	)
	if err != nil {
		return 0, fmt.Errorf("rundb: could not record run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("rundb: could not retrieve run identifier: %w", err)
	}

	return id, nil
}

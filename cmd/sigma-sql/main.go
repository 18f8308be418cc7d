// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sigma-sql inspects the run database of a SIGMA device.
package main // import "github.com/go-lpc/sigma/cmd/sigma-sql"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/sigma/rundb"
)

type runDB interface {
	LastRunConfig(ctx context.Context, serial string) (rundb.RunConfig, error)
	Runs(ctx context.Context, serial string, n int) ([]rundb.Run, error)
}

func main() {
	log.SetPrefix("sigma-sql: ")
	log.SetFlags(0)

	var (
		dbname = flag.String("db", "sigmadb", "name of the run database")
		serial = flag.String("serial", "", "serial number of the device to inspect")
		nruns  = flag.Int("n", 10, "number of runs to display")
	)

	flag.Parse()

	if *serial == "" {
		flag.Usage()
		log.Fatalf("missing device serial number")
	}

	db, err := rundb.Open(*dbname)
	if err != nil {
		log.Fatalf("could not open run db: %+v", err)
	}
	defer db.Close()

	err = doQuery(os.Stdout, db, *serial, *nruns)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

func doQuery(w io.Writer, db runDB, serial string, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := db.LastRunConfig(ctx, serial)
	if err != nil {
		return fmt.Errorf("could not get last run cfg of %q: %w", serial, err)
	}

	fmt.Fprintf(w, "device:  %s\n", cfg.Serial)
	fmt.Fprintf(w, "rate:    %d Hz\n", cfg.Samplerate)
	fmt.Fprintf(w, "limits:  samples=%d, msec=%d\n", cfg.Samples, cfg.Msec)
	fmt.Fprintf(w, "ratio:   %d%%\n", cfg.Ratio)
	fmt.Fprintf(w, "trigger: %q\n", cfg.Trigger)
	if cfg.ExtClock {
		fmt.Fprintf(w, "clock:   external (pin=%s, edge=%s)\n", cfg.ClockPin, cfg.ClockEdge)
	} else {
		fmt.Fprintf(w, "clock:   internal\n")
	}

	runs, err := db.Runs(ctx, serial, n)
	if err != nil {
		return fmt.Errorf("could not get runs of %q: %w", serial, err)
	}
	fmt.Fprintf(w, "runs:    %d\n", len(runs))
	for _, run := range runs {
		fmt.Fprintf(w, "  run=%-6d start=%s dt=%v rate=%d samples=%d status=%s trigger=%q\n",
			run.ID, run.Start.UTC().Format(time.RFC3339), run.Stop.Sub(run.Start),
			run.Samplerate, run.Samples, run.Status, run.Trigger,
		)
	}

	return nil
}

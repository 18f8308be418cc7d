// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sigma-acq runs an acquisition on an ASIX SIGMA logic analyzer
// and writes the samples to a session file.
//
// Usage: sigma-acq [OPTIONS]
//
// Example:
//
//	$> sigma-acq -rate 50MHz -n 100000 -trig "1=r" -o out.sigma
//	$> sigma-acq -cfg run.yaml -db sigmadb
//
// The configuration file may hold the keys device.serial, acq.samplerate,
// acq.samples, acq.time, acq.ratio, acq.trigger, clock.external,
// clock.pin and clock.edge. Flags override the configuration file.
package main // import "github.com/go-lpc/sigma/cmd/sigma-acq"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/go-lpc/sigma/asix"
	"github.com/go-lpc/sigma/rundb"
	"github.com/spf13/viper"
)

type options struct {
	serial  string
	rate    string
	samples uint64
	msec    uint64
	ratio   uint64
	trig    string
	extClk  bool
	clkPin  string
	clkEdge string

	cfg    string // configuration file
	oname  string // output file
	dbname string // run database
	chunks int
}

func newFlagSet(opts *options) *flag.FlagSet {
	fset := flag.NewFlagSet("sigma-acq", flag.ExitOnError)
	fset.StringVar(&opts.serial, "serial", "", "serial number of the device (default: first device found)")
	fset.StringVar(&opts.rate, "rate", "1MHz", "samplerate (e.g. 200kHz, 50MHz)")
	fset.Uint64Var(&opts.samples, "n", 0, "number of samples to acquire (0: no limit)")
	fset.Uint64Var(&opts.msec, "t", 0, "acquisition time in milliseconds (0: no limit)")
	fset.Uint64Var(&opts.ratio, "ratio", 50, "percentage of samples to keep before the trigger")
	fset.StringVar(&opts.trig, "trig", "", "trigger (e.g. \"1=r,2=0\", \"bits=xxxx-xxxx-xxxx-xxr1\")")
	fset.BoolVar(&opts.extClk, "ext-clk", false, "use an external clock")
	fset.StringVar(&opts.clkPin, "clk-pin", "1", "channel of the external clock")
	fset.StringVar(&opts.clkEdge, "clk-edge", "rising", "edge of the external clock (rising, falling, either)")
	fset.StringVar(&opts.cfg, "cfg", "", "path to a configuration file")
	fset.StringVar(&opts.oname, "o", "out.sigma", "path to the output session file")
	fset.StringVar(&opts.dbname, "db", "", "name of the run database to record the run into")
	fset.IntVar(&opts.chunks, "chunks", 50, "DRAM fetches per poll")
	return fset
}

func main() {
	log.SetPrefix("sigma-acq: ")
	log.SetFlags(0)

	var opts options
	fset := newFlagSet(&opts)
	_ = fset.Parse(os.Args[1:])

	cfg, err := loadConfig(fset, &opts)
	if err != nil {
		log.Fatalf("could not load configuration: %+v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err = run(ctx, cfg, opts)
	if err != nil {
		log.Fatalf("could not run acquisition: %+v", err)
	}
}

// loadConfig builds the run configuration from the optional configuration
// file, overridden by the flags set on the command line.
func loadConfig(fset *flag.FlagSet, opts *options) (rundb.RunConfig, error) {
	var (
		cfg rundb.RunConfig
		err error
	)

	if opts.cfg != "" {
		err = readConfigFile(opts.cfg, opts, fset)
		if err != nil {
			return cfg, err
		}
	}

	rate, err := asix.ParseSamplerate(opts.rate)
	if err != nil {
		return cfg, err
	}

	cfg = rundb.RunConfig{
		Serial:     opts.serial,
		Samplerate: rate,
		Samples:    opts.samples,
		Msec:       opts.msec,
		Ratio:      opts.ratio,
		Trigger:    opts.trig,
		ExtClock:   opts.extClk,
		ClockPin:   opts.clkPin,
		ClockEdge:  opts.clkEdge,
	}
	return cfg, nil
}

func readConfigFile(fname string, opts *options, fset *flag.FlagSet) error {
	v := viper.New()
	v.SetConfigFile(fname)
	err := v.ReadInConfig()
	if err != nil {
		return fmt.Errorf("could not read configuration file %q: %w", fname, err)
	}

	set := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { set[f.Name] = true })

	str := func(flag, key string, dst *string) {
		if set[flag] || !v.IsSet(key) {
			return
		}
		*dst = v.GetString(key)
	}
	u64 := func(flag, key string, dst *uint64) {
		if set[flag] || !v.IsSet(key) {
			return
		}
		*dst = uint64(v.GetInt64(key))
	}

	str("serial", "device.serial", &opts.serial)
	str("rate", "acq.samplerate", &opts.rate)
	u64("n", "acq.samples", &opts.samples)
	u64("t", "acq.time", &opts.msec)
	u64("ratio", "acq.ratio", &opts.ratio)
	str("trig", "acq.trigger", &opts.trig)
	if !set["ext-clk"] && v.IsSet("clock.external") {
		opts.extClk = v.GetBool("clock.external")
	}
	str("clk-pin", "clock.pin", &opts.clkPin)
	str("clk-edge", "clock.edge", &opts.clkEdge)

	return nil
}

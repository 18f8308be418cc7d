// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sigma-daq starts a TDAQ server driving an ASIX SIGMA logic analyzer.
//
// The acquisition is configured by the /config command, whose body holds
// the tdaq-encoded run configuration:
//
//	serial     string
//	samplerate u64
//	samples    u64
//	msec       u64
//	ratio      u64
//	trigger    string
//	ext-clock  u8
//	clock-pin  string
//	clock-edge string
//
// An empty body selects the first connected device with the default
// configuration. Samples are streamed on the /samples output as
// session packets.
package main // import "github.com/go-lpc/sigma/cmd/sigma-daq"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/sigma/internal/alert"
)

func main() {
	cmd := flags.New()

	srv := newServer(cmd.Name, alert.NewMailer(cmd.Name))

	run := tdaq.New(cmd, os.Stdout)
	run.CmdHandle("/config", srv.OnConfig)
	run.CmdHandle("/init", srv.OnInit)
	run.CmdHandle("/reset", srv.OnReset)
	run.CmdHandle("/start", srv.OnStart)
	run.CmdHandle("/stop", srv.OnStop)
	run.CmdHandle("/quit", srv.OnQuit)

	run.OutputHandle("/samples", srv.samples)

	run.RunHandle(srv.run)

	err := run.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

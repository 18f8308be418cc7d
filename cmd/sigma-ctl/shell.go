// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/sigma/asix"
	"github.com/go-lpc/sigma/internal/sformat"
)

var errQuit = errors.New("quit")

const pollFreq = 10 * time.Millisecond

var (
	scanDevices = asix.Scan
	openDevice  = asix.Open
)

type command struct {
	help string
	run  func(sh *shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"scan":    {"scan: list connected devices", (*shell).cmdScan},
		"open":    {"open [serial]: open a device (default: first device found)", (*shell).cmdOpen},
		"close":   {"close: close the current device", (*shell).cmdClose},
		"rate":    {"rate <samplerate>: set the samplerate (e.g. 50MHz)", (*shell).cmdRate},
		"limit":   {"limit <samples> <msec>: set the acquisition limits (0: none)", (*shell).cmdLimit},
		"ratio":   {"ratio <percent>: set the capture ratio", (*shell).cmdRatio},
		"trigger": {"trigger [spec]: set the trigger (e.g. 1=r,2=0), empty to clear", (*shell).cmdTrigger},
		"clock":   {"clock internal | clock external <pin> <edge>: select the sampling clock", (*shell).cmdClock},
		"acq":     {"acq <file>: run an acquisition and write the session to file", (*shell).cmdAcq},
		"status":  {"status: display the configuration of the current device", (*shell).cmdStatus},
		"help":    {"help: display this help message", (*shell).cmdHelp},
		"quit":    {"quit: close the device and exit", (*shell).cmdQuit},
	}
}

// shell executes commands on a SIGMA device.
type shell struct {
	w   io.Writer
	msg tlog.MsgStream
	dev *asix.Device
}

func newShell(w io.Writer) *shell {
	return &shell{
		w:   w,
		msg: tlog.NewMsgStream("sigma-ctl", tlog.LvlInfo, w),
	}
}

func (sh *shell) close() {
	if sh.dev == nil {
		return
	}
	_ = sh.dev.Close()
	sh.dev = nil
}

func (sh *shell) exec(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q (try \"help\")", args[0])
	}
	return cmd.run(sh, args[1:])
}

func (sh *shell) complete(line string) []string {
	var o []string
	for name := range commands {
		if strings.HasPrefix(name, line) {
			o = append(o, name)
		}
	}
	sort.Strings(o)
	return o
}

func (sh *shell) device() (*asix.Device, error) {
	if sh.dev == nil {
		return nil, fmt.Errorf("no device opened (try \"open\")")
	}
	return sh.dev, nil
}

func (sh *shell) cmdScan(args []string) error {
	devs, err := scanDevices(sh.msg)
	if err != nil {
		return err
	}
	for _, dev := range devs {
		fmt.Fprintf(sh.w, "%s %v\n", dev.Serial.Text, dev.Serial.Model)
	}
	return nil
}

func (sh *shell) cmdOpen(args []string) error {
	serial := ""
	switch len(args) {
	case 0:
		devs, err := scanDevices(sh.msg)
		if err != nil {
			return err
		}
		if len(devs) == 0 {
			return fmt.Errorf("no SIGMA device connected")
		}
		serial = devs[0].Serial.Text
	case 1:
		serial = args[0]
	default:
		return fmt.Errorf("usage: %s", commands["open"].help)
	}

	sh.close()
	dev, err := openDevice(serial, asix.WithLogger(sh.msg))
	if err != nil {
		return err
	}
	sh.dev = dev
	return nil
}

func (sh *shell) cmdClose(args []string) error {
	sh.close()
	return nil
}

func (sh *shell) cmdRate(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", commands["rate"].help)
	}
	dev, err := sh.device()
	if err != nil {
		return err
	}
	rate, err := asix.ParseSamplerate(args[0])
	if err != nil {
		return err
	}
	return dev.SetSamplerate(rate)
}

func (sh *shell) cmdLimit(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: %s", commands["limit"].help)
	}
	dev, err := sh.device()
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid samples limit %q: %w", args[0], err)
	}
	ms, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid time limit %q: %w", args[1], err)
	}
	return dev.SetLimits(asix.Limits{Samples: n, Msec: ms})
}

func (sh *shell) cmdRatio(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", commands["ratio"].help)
	}
	dev, err := sh.device()
	if err != nil {
		return err
	}
	ratio, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid capture ratio %q: %w", args[0], err)
	}
	return dev.SetCaptureRatio(ratio)
}

func (sh *shell) cmdTrigger(args []string) error {
	dev, err := sh.device()
	if err != nil {
		return err
	}
	trg, err := asix.ParseTrigger(strings.Join(args, " "))
	if err != nil {
		return err
	}
	return dev.SetTrigger(trg)
}

func (sh *shell) cmdClock(args []string) error {
	dev, err := sh.device()
	if err != nil {
		return err
	}
	clk := dev.Clock()
	switch {
	case len(args) == 1 && args[0] == "internal":
		clk.External = false
	case len(args) == 3 && args[0] == "external":
		pin, err := asix.ChannelIndex(args[1])
		if err != nil {
			return err
		}
		edge, err := asix.ParseClockEdge(args[2])
		if err != nil {
			return err
		}
		clk.External = true
		clk.Pin = pin
		clk.Edge = edge
	default:
		return fmt.Errorf("usage: %s", commands["clock"].help)
	}
	return dev.Configure(clk)
}

func (sh *shell) cmdAcq(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", commands["acq"].help)
	}
	dev, err := sh.device()
	if err != nil {
		return err
	}

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	defer f.Close()

	var (
		bw   = bufio.NewWriter(f)
		sink = &countSink{Encoder: sformat.NewEncoder(bw)}
	)
	err = dev.Start(sink)
	if err != nil {
		return err
	}
	for {
		more, err := dev.Poll()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		if dev.State() == asix.StateCapture {
			time.Sleep(pollFreq)
		}
	}

	err = bw.Flush()
	if err != nil {
		return fmt.Errorf("could not flush output file: %w", err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close output file: %w", err)
	}

	fmt.Fprintf(sh.w, "acquired %d samples (triggers: %d)\n", sink.samples, sink.triggers)
	return nil
}

func (sh *shell) cmdStatus(args []string) error {
	dev, err := sh.device()
	if err != nil {
		return err
	}
	clk := dev.Clock()
	fmt.Fprintf(sh.w, "device:   %s (%v)\n", dev.Serial().Text, dev.Serial().Model)
	fmt.Fprintf(sh.w, "state:    %v\n", dev.State())
	fmt.Fprintf(sh.w, "rate:     %s\n", asix.FormatSamplerate(clk.Samplerate))
	if clk.External {
		fmt.Fprintf(sh.w, "clock:    external (pin=%s, edge=%v)\n", asix.ChannelNames[clk.Pin], clk.Edge)
	}
	fmt.Fprintf(sh.w, "limits:   %+v\n", dev.Limits())
	fmt.Fprintf(sh.w, "ratio:    %d%%\n", dev.CaptureRatio())
	fmt.Fprintf(sh.w, "trigger:  %q\n", dev.Trigger())
	return nil
}

func (sh *shell) cmdHelp(args []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(sh.w, "  %s\n", commands[name].help)
	}
	return nil
}

func (sh *shell) cmdQuit(args []string) error {
	sh.close()
	return errQuit
}

// countSink encodes a session and counts samples and trigger markers.
type countSink struct {
	*sformat.Encoder
	samples  uint64
	triggers int
}

func (sink *countSink) Logic(unit int, data []byte) error {
	sink.samples += uint64(len(data) / unit)
	return sink.Encoder.Logic(unit, data)
}

func (sink *countSink) Trigger() error {
	sink.triggers++
	return sink.Encoder.Trigger()
}

var _ asix.Sink = (*countSink)(nil)

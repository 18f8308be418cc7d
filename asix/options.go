// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"os"
	"time"

	"github.com/go-daq/tdaq/log"
)

type config struct {
	msg    log.MsgStream
	loader FirmwareLoader
	limits Limits
	ratio  uint64
	chunks int // DRAM fetches per poll

	now func() time.Time
}

func newConfig() config {
	return config{
		msg:    log.NewMsgStream("asix", log.LvlInfo, os.Stdout),
		ratio:  50,
		chunks: chunksPerPoll,
		now:    time.Now,
	}
}

// Option configures a Device.
type Option func(*config)

// WithLogger sets the message stream of the device.
func WithLogger(msg log.MsgStream) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithFirmwareLoader sets the loader used to retrieve FPGA netlists.
// By default, netlists are searched in DefaultFirmwareDirs.
func WithFirmwareLoader(ld FirmwareLoader) Option {
	return func(cfg *config) {
		cfg.loader = ld
	}
}

// WithLimitSamples sets the number of samples to acquire.
func WithLimitSamples(n uint64) Option {
	return func(cfg *config) {
		cfg.limits.Samples = n
	}
}

// WithLimitMsec sets the acquisition time, in milliseconds.
func WithLimitMsec(ms uint64) Option {
	return func(cfg *config) {
		cfg.limits.Msec = ms
	}
}

// WithCaptureRatio sets the percentage of samples to keep before the trigger.
func WithCaptureRatio(ratio uint64) Option {
	return func(cfg *config) {
		cfg.ratio = ratio
	}
}

// WithPollChunks sets the number of DRAM fetches done per Poll call
// during a download.
func WithPollChunks(n int) Option {
	return func(cfg *config) {
		cfg.chunks = n
	}
}

func withClock(now func() time.Time) Option {
	return func(cfg *config) {
		cfg.now = now
	}
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/sigma/asix"
	"github.com/go-lpc/sigma/internal/alert"
	"github.com/go-lpc/sigma/internal/sformat"
	"github.com/go-lpc/sigma/rundb"
	"golang.org/x/sync/semaphore"
)

const (
	pollFreq = 10 * time.Millisecond

	maxFrames      = 1024     // frames waiting for a /samples reader
	maxQueuedBytes = 64 << 20 // bytes waiting for a /samples reader
)

var (
	scanDevices = asix.Scan
	openDevice  = asix.Open
)

type server struct {
	name  string
	alert *alert.Mailer

	mu      sync.Mutex
	cfg     rundb.RunConfig
	dev     *asix.Device
	sink    *frameSink
	running bool

	hmu    sync.Mutex
	cancel context.CancelFunc // cancels the delivery of frames
	stop   bool               // stop requested, applied by the next poll

	queue *frameQueue
}

func newServer(name string, mailer *alert.Mailer) *server {
	return &server{
		name:  name,
		alert: mailer,
		cfg:   defaultConfig(),
		queue: newFrameQueue(maxFrames, maxQueuedBytes),
	}
}

func defaultConfig() rundb.RunConfig {
	return rundb.RunConfig{
		Samplerate: 1 * asix.MHz,
		Ratio:      50,
	}
}

// decodeConfig decodes the run configuration carried by a /config request.
func decodeConfig(body []byte) (rundb.RunConfig, error) {
	cfg := defaultConfig()
	if len(body) == 0 {
		return cfg, nil
	}

	dec := tdaq.NewDecoder(bytes.NewReader(body))
	cfg.Serial = dec.ReadStr()
	cfg.Samplerate = dec.ReadU64()
	cfg.Samples = dec.ReadU64()
	cfg.Msec = dec.ReadU64()
	cfg.Ratio = dec.ReadU64()
	cfg.Trigger = dec.ReadStr()
	cfg.ExtClock = dec.ReadU8() != 0
	cfg.ClockPin = dec.ReadStr()
	cfg.ClockEdge = dec.ReadStr()
	if err := dec.Err(); err != nil {
		return cfg, fmt.Errorf("could not decode run configuration: %w", err)
	}
	return cfg, nil
}

func (srv *server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	cfg, err := decodeConfig(req.Body)
	if err != nil {
		ctx.Msg.Errorf("could not decode /config request: %+v", err)
		return err
	}

	devs, err := scanDevices(ctx.Msg)
	if err != nil {
		ctx.Msg.Errorf("could not scan devices: %+v", err)
		return fmt.Errorf("could not scan devices: %w", err)
	}
	for _, dev := range devs {
		ctx.Msg.Infof("found %v device %q", dev.Serial.Model, dev.Serial.Text)
	}

	if cfg.Serial == "" {
		if len(devs) == 0 {
			ctx.Msg.Errorf("no SIGMA device connected")
			return fmt.Errorf("no SIGMA device connected")
		}
		cfg.Serial = devs[0].Serial.Text
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.dev != nil {
		if srv.dev.Serial().Text != cfg.Serial {
			_ = srv.dev.Close()
			srv.dev = nil
		}
	}

	if srv.dev == nil {
		dev, err := openDevice(cfg.Serial, asix.WithLogger(ctx.Msg))
		if err != nil {
			ctx.Msg.Errorf("could not open device %q: %+v", cfg.Serial, err)
			return fmt.Errorf("could not open device %q: %w", cfg.Serial, err)
		}
		srv.dev = dev
	}
	srv.cfg = cfg

	return nil
}

func (srv *server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.dev == nil {
		return fmt.Errorf("no device configured")
	}

	err := srv.cfg.Apply(srv.dev)
	if err != nil {
		ctx.Msg.Errorf("could not initialize device %q: %+v", srv.cfg.Serial, err)
		return fmt.Errorf("could not initialize device %q: %w", srv.cfg.Serial, err)
	}
	ctx.Msg.Infof(
		"device %q: rate=%s, limits=%+v, ratio=%d%%, trigger=%q",
		srv.cfg.Serial, asix.FormatSamplerate(srv.dev.Clock().Samplerate),
		srv.dev.Limits(), srv.dev.CaptureRatio(), srv.dev.Trigger(),
	)

	return nil
}

func (srv *server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")

	srv.halt()

	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.running = false
	if srv.dev != nil {
		_ = srv.dev.Stop()
		err := srv.dev.Close()
		if err != nil {
			ctx.Msg.Warnf("could not close device: %+v", err)
		}
		srv.dev = nil
	}
	srv.cfg = defaultConfig()
	srv.drain()

	return nil
}

func (srv *server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")

	srv.halt()

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.dev == nil {
		return fmt.Errorf("no device configured")
	}

	sctx, cancel := context.WithCancel(context.Background())
	srv.hmu.Lock()
	srv.cancel = cancel
	srv.stop = false
	srv.hmu.Unlock()
	srv.sink = newFrameSink(sctx, srv.queue)
	err := srv.dev.Start(srv.sink)
	if err != nil {
		ctx.Msg.Errorf("could not start acquisition: %+v", err)
		srv.notify(ctx.Msg, "could not start acquisition", err)
		return fmt.Errorf("could not start acquisition: %w", err)
	}
	srv.running = true

	return nil
}

// OnStop requests the running acquisition to stop.
// The poll loop may be blocked on a slow /samples reader: the request is
// only recorded here, and applied by the next poll.
func (srv *server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")

	srv.hmu.Lock()
	srv.stop = true
	srv.hmu.Unlock()

	return nil
}

func (srv *server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")

	srv.halt()

	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.running = false
	if srv.dev != nil {
		_ = srv.dev.Stop()
		err := srv.dev.Close()
		srv.dev = nil
		if err != nil {
			return fmt.Errorf("could not close device: %w", err)
		}
	}
	return nil
}

func (srv *server) samples(ctx tdaq.Context, dst *tdaq.Frame) error {
	dst.Body = srv.queue.pop(ctx.Ctx)
	return nil
}

func (srv *server) run(ctx tdaq.Context) error {
	tick := time.NewTicker(pollFreq)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-tick.C:
			srv.poll(ctx)
		}
	}
}

// poll makes progress on the running acquisition, if any.
func (srv *server) poll(ctx tdaq.Context) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if !srv.running || srv.dev == nil {
		return
	}

	if srv.stopRequested() {
		ctx.Msg.Infof("stopping acquisition: %d samples", srv.sink.samples)
		err := srv.dev.Stop()
		if err != nil {
			ctx.Msg.Errorf("could not stop acquisition: %+v", err)
		}
	}

	more, err := srv.dev.Poll()
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		ctx.Msg.Infof("acquisition halted")
	default:
		ctx.Msg.Errorf("could not poll device %q: %+v", srv.cfg.Serial, err)
		srv.notify(ctx.Msg, "acquisition failed", err)
	}
	if !more {
		srv.running = false
		ctx.Msg.Infof("acquisition done: %d samples", srv.sink.samples)
	}
}

// notify sends an alert about a failed acquisition.
func (srv *server) notify(msg log.MsgStream, subject string, err error) {
	body := fmt.Sprintf("device: %q\nconfig: %+v\nerror: %+v", srv.cfg.Serial, srv.cfg, err)
	_, aerr := srv.alert.Send(subject, body)
	switch {
	case aerr == nil:
	case errors.Is(aerr, alert.ErrNoConfig):
		msg.Debugf("could not send mail alert: %+v", aerr)
	default:
		msg.Warnf("could not send mail alert: %+v", aerr)
	}
}

// stopRequested reports and clears a pending /stop request.
func (srv *server) stopRequested() bool {
	srv.hmu.Lock()
	defer srv.hmu.Unlock()
	stop := srv.stop
	srv.stop = false
	return stop
}

// halt stops the delivery of frames of the previous acquisition.
func (srv *server) halt() {
	srv.hmu.Lock()
	defer srv.hmu.Unlock()
	if srv.cancel != nil {
		srv.cancel()
		srv.cancel = nil
	}
}

func (srv *server) drain() { srv.queue.drain() }

// frameQueue holds the encoded frames waiting for a /samples reader,
// bounded in number of frames and in bytes.
type frameQueue struct {
	max  int64
	sem  *semaphore.Weighted
	data chan []byte
}

func newFrameQueue(n int, limit int64) *frameQueue {
	return &frameQueue{
		max:  limit,
		sem:  semaphore.NewWeighted(limit),
		data: make(chan []byte, n),
	}
}

// weight returns the share of the byte budget held by frame.
// Frames larger than the whole budget hold all of it.
func (q *frameQueue) weight(frame []byte) int64 {
	n := int64(len(frame))
	if n > q.max {
		n = q.max
	}
	return n
}

// push queues frame, waiting for room or for ctx to be done.
func (q *frameQueue) push(ctx context.Context, frame []byte) error {
	w := q.weight(frame)
	err := q.sem.Acquire(ctx, w)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		q.sem.Release(w)
		return ctx.Err()
	case q.data <- frame:
		return nil
	}
}

// pop returns the next frame, or nil once ctx is done.
func (q *frameQueue) pop(ctx context.Context) []byte {
	select {
	case <-ctx.Done():
		return nil
	case frame := <-q.data:
		q.sem.Release(q.weight(frame))
		return frame
	}
}

func (q *frameQueue) drain() {
	for {
		select {
		case frame := <-q.data:
			q.sem.Release(q.weight(frame))
		default:
			return
		}
	}
}

// frameSink encodes the acquired data as session packets, one output
// frame per packet.
type frameSink struct {
	ctx context.Context
	buf bytes.Buffer
	enc *sformat.Encoder
	out *frameQueue

	samples uint64
}

func newFrameSink(ctx context.Context, out *frameQueue) *frameSink {
	sink := &frameSink{ctx: ctx, out: out}
	sink.enc = sformat.NewEncoder(&sink.buf)
	return sink
}

func (sink *frameSink) Header(hdr asix.Header) error {
	return sink.flush(sink.enc.Header(hdr))
}

func (sink *frameSink) Logic(unit int, data []byte) error {
	sink.samples += uint64(len(data) / unit)
	return sink.flush(sink.enc.Logic(unit, data))
}

func (sink *frameSink) Trigger() error {
	return sink.flush(sink.enc.Trigger())
}

func (sink *frameSink) End() error {
	return sink.flush(sink.enc.End())
}

func (sink *frameSink) flush(err error) error {
	if err != nil {
		sink.buf.Reset()
		return err
	}
	frame := append([]byte(nil), sink.buf.Bytes()...)
	sink.buf.Reset()

	return sink.out.push(sink.ctx, frame)
}

var _ asix.Sink = (*frameSink)(nil)

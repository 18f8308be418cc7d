// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"time"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/sigma/asix"
	"github.com/go-lpc/sigma/internal/sformat"
	"github.com/go-lpc/sigma/rundb"
	"golang.org/x/sync/errgroup"
)

const pollFreq = 10 * time.Millisecond

var (
	scanDevices = asix.Scan
	openDevice  = asix.Open
	openDB      = openRunDB
)

type runRecorder interface {
	RecordRun(ctx context.Context, run rundb.Run) (int64, error)
	Close() error
}

func openRunDB(name string) (runRecorder, error) {
	return rundb.Open(name)
}

func run(ctx context.Context, cfg rundb.RunConfig, opts options) error {
	msg := tlog.NewMsgStream("sigma-acq", tlog.LvlInfo, os.Stderr)

	if cfg.Serial == "" {
		devs, err := scanDevices(msg)
		if err != nil {
			return fmt.Errorf("could not scan devices: %w", err)
		}
		if len(devs) == 0 {
			return fmt.Errorf("no SIGMA device connected")
		}
		cfg.Serial = devs[0].Serial.Text
	}

	dev, err := openDevice(cfg.Serial, asix.WithLogger(msg), asix.WithPollChunks(opts.chunks))
	if err != nil {
		return fmt.Errorf("could not open device %q: %w", cfg.Serial, err)
	}
	defer dev.Close()

	err = cfg.Apply(dev)
	if err != nil {
		return err
	}

	f, err := os.Create(opts.oname)
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	defer f.Close()

	rec := rundb.Run{
		Serial:     cfg.Serial,
		Start:      time.Now().UTC(),
		Samplerate: dev.Clock().Samplerate,
		Trigger:    dev.Trigger().String(),
	}

	n, stopped, err := acquire(ctx, dev, f)
	rec.Stop = time.Now().UTC()
	rec.Samples = n
	switch {
	case err != nil:
		rec.Status = rundb.StatusFailed
	case stopped:
		rec.Status = rundb.StatusStopped
	default:
		rec.Status = rundb.StatusOK
	}
	log.Printf("acquired %d samples in %v (status=%s)", n, rec.Stop.Sub(rec.Start), rec.Status)

	if opts.dbname != "" {
		rerr := record(opts.dbname, rec)
		if rerr != nil {
			log.Printf("could not record run: %+v", rerr)
		}
	}

	if err != nil {
		return err
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close output file: %w", err)
	}

	return nil
}

// acquire runs an acquisition on dev and writes the session to w.
// The acquisition is stopped when ctx is done.
// acquire returns the number of samples written and whether the
// acquisition was stopped.
func acquire(ctx context.Context, dev *asix.Device, w *os.File) (uint64, bool, error) {
	var (
		grp, gctx = errgroup.WithContext(context.Background())
		pkts      = make(chan *sformat.Packet, 64)
		samples   uint64
		stopped   bool
	)

	grp.Go(func() error {
		defer close(pkts)

		err := dev.Start(&chanSink{ctx: gctx, out: pkts})
		if err != nil {
			return fmt.Errorf("could not start acquisition: %w", err)
		}

		for {
			if !stopped && ctx.Err() != nil {
				log.Printf("stopping acquisition...")
				stopped = true
				err := dev.Stop()
				if err != nil {
					return fmt.Errorf("could not stop acquisition: %w", err)
				}
			}

			more, err := dev.Poll()
			if err != nil {
				return fmt.Errorf("could not poll device: %w", err)
			}
			if !more {
				return nil
			}
			if dev.State() == asix.StateCapture {
				time.Sleep(pollFreq)
			}
		}
	})

	grp.Go(func() error {
		var (
			bw  = bufio.NewWriter(w)
			enc = sformat.NewEncoder(bw)
		)
		for p := range pkts {
			err := enc.Encode(p)
			if err != nil {
				return err
			}
			if p.Kind == sformat.LogicKind {
				samples += uint64(len(p.Data) / p.UnitSize)
			}
		}
		err := bw.Flush()
		if err != nil {
			return fmt.Errorf("could not flush output file: %w", err)
		}
		return nil
	})

	err := grp.Wait()
	return samples, stopped, err
}

func record(dbname string, run rundb.Run) error {
	db, err := openDB(dbname)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := db.RecordRun(ctx, run)
	if err != nil {
		return err
	}
	log.Printf("recorded run %d", id)
	return nil
}

// chanSink forwards the acquired data as packets.
type chanSink struct {
	ctx context.Context
	out chan<- *sformat.Packet
}

func (sink *chanSink) send(p *sformat.Packet) error {
	select {
	case <-sink.ctx.Done():
		return sink.ctx.Err()
	case sink.out <- p:
		return nil
	}
}

func (sink *chanSink) Header(hdr asix.Header) error {
	return sink.send(&sformat.Packet{Kind: sformat.HeaderKind, Header: hdr})
}

func (sink *chanSink) Logic(unit int, data []byte) error {
	return sink.send(&sformat.Packet{
		Kind:     sformat.LogicKind,
		UnitSize: unit,
		Data:     append([]byte(nil), data...),
	})
}

func (sink *chanSink) Trigger() error {
	return sink.send(&sformat.Packet{Kind: sformat.TriggerKind})
}

func (sink *chanSink) End() error {
	return sink.send(&sformat.Packet{Kind: sformat.EndKind})
}

var _ asix.Sink = (*chanSink)(nil)

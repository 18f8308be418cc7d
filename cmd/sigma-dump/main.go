// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// sigma-dump decodes and displays SIGMA session files.
//
// Usage: sigma-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> sigma-dump ./out.sigma
//	=== session ===
//	start:    2020-06-01T12:00:00Z
//	rate:     1MHz
//	channels: 16
//	unit:     2
//	logic:    4096 samples
//	trigger @ 2048
//	logic:    4096 samples
//	end:      8192 samples
//
//	$> sigma-dump -hist out.yoda ./out.sigma
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/sigma/asix"
	"github.com/go-lpc/sigma/internal/sformat"
	"go-hep.org/x/hep/hbook"
)

func main() {
	log.SetPrefix("sigma-dump: ")
	log.SetFlags(0)

	err := xmain(os.Stdout, os.Args[1:])
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type options struct {
	samples bool   // print sample values
	hist    string // output YODA file
}

func xmain(w io.Writer, args []string) error {
	var (
		fset = flag.NewFlagSet("sigma-dump", flag.ContinueOnError)
		opts options
	)
	fset.BoolVar(&opts.samples, "samples", false, "print sample values")
	fset.StringVar(&opts.hist, "hist", "", "path to a YODA file for per-channel activity histograms")
	fset.Usage = func() {
		fmt.Fprintf(fset.Output(), `sigma-dump decodes and displays SIGMA session files.

Usage: sigma-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		return err
	}

	if fset.NArg() == 0 {
		fset.Usage()
		return fmt.Errorf("missing path to input session file")
	}

	hs := newHists()
	for _, fname := range fset.Args() {
		err := process(w, fname, opts, hs)
		if err != nil {
			return fmt.Errorf("could not dump file %q: %w", fname, err)
		}
	}

	if opts.hist != "" {
		err := hs.save(opts.hist)
		if err != nil {
			return fmt.Errorf("could not save histograms: %w", err)
		}
	}

	return nil
}

func process(w io.Writer, fname string, opts options, hs *hists) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	var (
		dec  = sformat.NewDecoder(bufio.NewReader(f))
		p    sformat.Packet
		n    uint64 // number of samples
		prev uint64
	)
loop:
	for {
		err := dec.Decode(&p)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode packet: %w", err)
		}

		switch p.Kind {
		case sformat.HeaderKind:
			hdr := p.Header
			fmt.Fprintf(wbuf, "=== session ===\n")
			fmt.Fprintf(wbuf, "start:    %s\n", hdr.Start.UTC().Format(time.RFC3339Nano))
			fmt.Fprintf(wbuf, "rate:     %s\n", asix.FormatSamplerate(hdr.Samplerate))
			fmt.Fprintf(wbuf, "channels: %d\n", hdr.Channels)
			fmt.Fprintf(wbuf, "unit:     %d\n", hdr.UnitSize)
			n = 0
			hs.nchans = hdr.Channels

		case sformat.LogicKind:
			samples := p.Samples()
			fmt.Fprintf(wbuf, "logic:    %d samples\n", len(samples))
			for i, v := range samples {
				if opts.samples {
					fmt.Fprintf(wbuf, "  %8d 0x%04x\n", n+uint64(i), v)
				}
				hs.level(v)
				if n > 0 || i > 0 {
					hs.toggle(prev, v)
				}
				prev = v
			}
			n += uint64(len(samples))

		case sformat.TriggerKind:
			fmt.Fprintf(wbuf, "trigger @ %d\n", n)

		case sformat.EndKind:
			fmt.Fprintf(wbuf, "end:      %d samples\n", n)
		}
	}

	return nil
}

// hists holds per-channel activity histograms.
type hists struct {
	nchans  int
	toggles *hbook.H1D // number of level changes per channel
	highs   *hbook.H1D // number of samples at high level per channel
}

func newHists() *hists {
	hs := &hists{
		nchans:  asix.NumChannels,
		toggles: hbook.NewH1D(asix.NumChannels, 0, asix.NumChannels),
		highs:   hbook.NewH1D(asix.NumChannels, 0, asix.NumChannels),
	}
	hs.toggles.Annotation()["name"] = "toggles"
	hs.toggles.Annotation()["title"] = "level changes per channel"
	hs.highs.Annotation()["name"] = "highs"
	hs.highs.Annotation()["title"] = "samples at high level per channel"
	return hs
}

func (hs *hists) toggle(prev, cur uint64) {
	fill(hs.toggles, prev^cur, hs.nchans)
}

func (hs *hists) level(cur uint64) {
	fill(hs.highs, cur, hs.nchans)
}

// fill fills h with the channels set in bits.
func fill(h *hbook.H1D, bits uint64, nchans int) {
	for ch := 0; ch < nchans; ch++ {
		if bits&(1<<uint(ch)) != 0 {
			h.Fill(float64(ch)+0.5, 1)
		}
	}
}

func (hs *hists) save(fname string) error {
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create YODA file: %w", err)
	}
	defer f.Close()

	for _, h := range []*hbook.H1D{hs.toggles, hs.highs} {
		raw, err := h.MarshalYODA()
		if err != nil {
			return fmt.Errorf("could not marshal histogram %q: %w", h.Name(), err)
		}
		_, err = f.Write(raw)
		if err != nil {
			return fmt.Errorf("could not write histogram %q: %w", h.Name(), err)
		}
	}

	return f.Close()
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/sigma/asix"
	"github.com/go-lpc/sigma/internal/sformat"
)

func writeSession(t *testing.T, fname string) {
	t.Helper()

	f, err := os.Create(fname)
	if err != nil {
		t.Fatalf("could not create session file: %+v", err)
	}
	defer f.Close()

	enc := sformat.NewEncoder(f)
	for i, fct := range []func() error{
		func() error {
			return enc.Header(asix.Header{
				Start:      time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC),
				Samplerate: asix.MHz,
				Channels:   16,
				UnitSize:   2,
			})
		},
		func() error { return enc.Logic(2, []byte{0x00, 0x00, 0x01, 0x00}) },
		func() error { return enc.Trigger() },
		func() error { return enc.Logic(2, []byte{0x03, 0x80}) },
		func() error { return enc.End() },
	} {
		err := fct()
		if err != nil {
			t.Fatalf("could not encode packet %d: %+v", i, err)
		}
	}

	err = f.Close()
	if err != nil {
		t.Fatalf("could not close session file: %+v", err)
	}
}

func TestProcess(t *testing.T) {
	tmp := t.TempDir()
	fname := filepath.Join(tmp, "run.sigma")
	writeSession(t, fname)

	for _, tc := range []struct {
		name string
		opts options
		want string
	}{
		{
			name: "default",
			want: `=== session ===
start:    2020-06-01T12:00:00Z
rate:     1MHz
channels: 16
unit:     2
logic:    2 samples
trigger @ 2
logic:    1 samples
end:      3 samples
`,
		},
		{
			name: "samples",
			opts: options{samples: true},
			want: `=== session ===
start:    2020-06-01T12:00:00Z
rate:     1MHz
channels: 16
unit:     2
logic:    2 samples
         0 0x0000
         1 0x0001
trigger @ 2
logic:    1 samples
         2 0x8003
end:      3 samples
`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out := new(strings.Builder)
			err := process(out, fname, tc.opts, newHists())
			if err != nil {
				t.Fatalf("could not process file: %+v", err)
			}
			if got, want := out.String(), tc.want; got != want {
				t.Fatalf("invalid output:\ngot:\n%s\nwant:\n%s\n", got, want)
			}
		})
	}
}

func TestProcessInvalid(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "bad.sigma")
	err := os.WriteFile(fname, []byte{0xb4, 0x02}, 0644)
	if err != nil {
		t.Fatalf("could not create file: %+v", err)
	}

	err = process(io.Discard, fname, options{}, newHists())
	if err == nil {
		t.Fatalf("expected an error")
	}
	want := "could not decode packet: sformat: could not read logic packet: unexpected EOF"
	if got := err.Error(); got != want {
		t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
	}
}

func TestHists(t *testing.T) {
	tmp := t.TempDir()
	fname := filepath.Join(tmp, "run.sigma")
	writeSession(t, fname)

	hs := newHists()
	err := process(io.Discard, fname, options{}, hs)
	if err != nil {
		t.Fatalf("could not process file: %+v", err)
	}

	// samples: 0x0000, 0x0001, 0x8003
	for _, tc := range []struct {
		ch      int
		toggles float64
		highs   float64
	}{
		{ch: 0, toggles: 1, highs: 2},
		{ch: 1, toggles: 1, highs: 1},
		{ch: 2, toggles: 0, highs: 0},
		{ch: 15, toggles: 1, highs: 1},
	} {
		if got, want := hs.toggles.Value(tc.ch), tc.toggles; got != want {
			t.Fatalf("channel %d: invalid toggles: got=%v, want=%v", tc.ch, got, want)
		}
		if got, want := hs.highs.Value(tc.ch), tc.highs; got != want {
			t.Fatalf("channel %d: invalid highs: got=%v, want=%v", tc.ch, got, want)
		}
	}

	oname := filepath.Join(tmp, "hist.yoda")
	err = xmain(io.Discard, []string{"-hist", oname, fname})
	if err != nil {
		t.Fatalf("could not run sigma-dump: %+v", err)
	}
	raw, err := os.ReadFile(oname)
	if err != nil {
		t.Fatalf("could not read YODA file: %+v", err)
	}
	for _, want := range []string{"/toggles", "/highs"} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("missing histogram %q in YODA file", want)
		}
	}
}

func TestMissingArgs(t *testing.T) {
	err := xmain(io.Discard, nil)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"time"
)

// Header describes the stream of samples of an acquisition.
type Header struct {
	Start      time.Time // acquisition start time
	Samplerate uint64    // samplerate in Hz
	Channels   int       // number of logic channels
	UnitSize   int       // size in bytes of a sample
}

// Sink consumes the data of an acquisition.
//
// Header is sent once before any sample. Logic carries a buffer of
// little-endian samples of unitSize bytes; the buffer is only valid
// for the duration of the call. Trigger marks the trigger position
// between two Logic calls. End is sent once after the last sample.
type Sink interface {
	Header(hdr Header) error
	Logic(unitSize int, data []byte) error
	Trigger() error
	End() error
}

// discard is a sink dropping everything.
type discard struct{}

func (discard) Header(Header) error     { return nil }
func (discard) Logic(int, []byte) error { return nil }
func (discard) Trigger() error          { return nil }
func (discard) End() error              { return nil }

// Discard is a Sink on which all calls succeed without doing anything.
var Discard Sink = discard{}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"encoding/binary"
)

const (
	chunkSize      = 4 * 1024 * 1024 // size of a submit buffer in bytes
	sampleUnitSize = 2               // size of a sample in bytes
)

// submitBuffer accumulates decoded samples before they are handed
// to the sink. It also enforces the sample count limit.
type submitBuffer struct {
	sink Sink
	p    []byte
	c    int // number of bytes queued

	limit   swLimits
	enforce bool // whether the sample count limit is applied
}

func newSubmitBuffer(sink Sink, size int, limit swLimits, enforce bool) *submitBuffer {
	size -= size % sampleUnitSize
	return &submitBuffer{
		sink:    sink,
		p:       make([]byte, size),
		limit:   limit,
		enforce: enforce,
	}
}

// add queues count copies of sample, flushing whenever the buffer is full.
func (buf *submitBuffer) add(sample uint16, count int) error {
	if buf.enforce && buf.limit.reached() {
		return nil
	}

	for ; count > 0; count-- {
		binary.LittleEndian.PutUint16(buf.p[buf.c:], sample)
		buf.c += sampleUnitSize
		if buf.c == len(buf.p) {
			err := buf.flush()
			if err != nil {
				return err
			}
		}
		buf.limit.update(1)
		if buf.enforce && buf.limit.reached() {
			break
		}
	}
	return nil
}

// flush hands the queued samples to the sink.
func (buf *submitBuffer) flush() error {
	if buf.c == 0 {
		return nil
	}
	err := buf.sink.Logic(sampleUnitSize, buf.p[:buf.c])
	if err != nil {
		return ioErrorf(err, "could not send %d samples", buf.c/sampleUnitSize)
	}
	buf.c = 0
	return nil
}

func (buf *submitBuffer) samples() uint64 { return buf.limit.read }

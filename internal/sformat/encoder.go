// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sformat

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-lpc/sigma/asix"
	"github.com/go-lpc/sigma/internal/crc16"
)

// Encoder writes session packets to an output stream.
// Encoder computes the CRC-16 checksum of each packet on the fly and
// appends it at the end of the packet.
//
// Encoder implements asix.Sink.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
	crc crc16.Hash16
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

// Header writes a session header packet.
func (enc *Encoder) Header(hdr asix.Header) error {
	switch {
	case hdr.Channels < 0 || hdr.Channels > math.MaxUint8:
		return fmt.Errorf("sformat: invalid number of channels %d", hdr.Channels)
	case hdr.UnitSize <= 0 || hdr.UnitSize > math.MaxUint8:
		return fmt.Errorf("sformat: invalid unit size %d", hdr.UnitSize)
	}

	enc.begin(hdrMarker)
	enc.writeU8(curVersion)
	enc.writeU64(uint64(hdr.Start.UnixNano()))
	enc.writeU64(hdr.Samplerate)
	enc.writeU8(uint8(hdr.Channels))
	enc.writeU8(uint8(hdr.UnitSize))
	return enc.end("header")
}

// Logic writes a logic data packet.
func (enc *Encoder) Logic(unitSize int, data []byte) error {
	switch {
	case unitSize <= 0 || unitSize > math.MaxUint8:
		return fmt.Errorf("sformat: invalid unit size %d", unitSize)
	case len(data)%unitSize != 0:
		return fmt.Errorf("sformat: logic data length %d not a multiple of unit size %d", len(data), unitSize)
	case uint64(len(data)) > math.MaxUint32:
		return fmt.Errorf("sformat: logic data too large (%d bytes)", len(data))
	}

	enc.begin(lgcMarker)
	enc.writeU8(uint8(unitSize))
	enc.writeU32(uint32(len(data)))
	enc.write(data)
	return enc.end("logic")
}

// Trigger writes a trigger marker packet.
func (enc *Encoder) Trigger() error {
	enc.begin(trgMarker)
	return enc.end("trigger")
}

// End writes the end of session packet.
func (enc *Encoder) End() error {
	enc.begin(endMarker)
	return enc.end("end")
}

// Encode writes a decoded packet back to the stream.
func (enc *Encoder) Encode(p *Packet) error {
	switch p.Kind {
	case HeaderKind:
		return enc.Header(p.Header)
	case LogicKind:
		return enc.Logic(p.UnitSize, p.Data)
	case TriggerKind:
		return enc.Trigger()
	case EndKind:
		return enc.End()
	}
	return fmt.Errorf("sformat: invalid packet kind %v", p.Kind)
}

func (enc *Encoder) begin(marker uint8) {
	enc.crc.Reset()
	enc.writeU8(marker)
}

func (enc *Encoder) end(name string) error {
	enc.writeU16(enc.crc.Sum16())
	if enc.err != nil {
		return fmt.Errorf("sformat: could not write %s packet: %w", name, enc.err)
	}
	return nil
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
	_, _ = enc.crc.Write(p) // can not fail.
}

func (enc *Encoder) writeU8(v uint8) {
	enc.buf[0] = v
	enc.write(enc.buf[:1])
}

func (enc *Encoder) writeU16(v uint16) {
	binary.BigEndian.PutUint16(enc.buf[:2], v)
	enc.write(enc.buf[:2])
}

func (enc *Encoder) writeU32(v uint32) {
	binary.BigEndian.PutUint32(enc.buf[:4], v)
	enc.write(enc.buf[:4])
}

func (enc *Encoder) writeU64(v uint64) {
	binary.BigEndian.PutUint64(enc.buf[:8], v)
	enc.write(enc.buf[:8])
}

var _ asix.Sink = (*Encoder)(nil)

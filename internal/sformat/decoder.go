// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sformat

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/go-lpc/sigma/internal/crc16"
	"golang.org/x/xerrors"
)

// maxLogicSize is the largest logic payload accepted by the decoder.
const maxLogicSize = 64 << 20

// Decoder reads (and validates) session packets from an underlying
// data source.
type Decoder struct {
	r io.Reader

	buf []byte
	err error
	crc crc16.Hash16
}

// NewDecoder creates a decoder that reads and validates data from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

// Decode reads the next packet from the stream.
// Decode returns io.EOF when the stream ends cleanly on a packet boundary.
// The Data buffer of a logic packet is reused by subsequent calls.
func (dec *Decoder) Decode(p *Packet) error {
	dec.crc.Reset()

	v := dec.readU8()
	if dec.err != nil {
		if xerrors.Is(dec.err, io.EOF) {
			return io.EOF
		}
		return xerrors.Errorf("sformat: could not read packet marker: %w", dec.err)
	}

	p.Kind = Kind(v)
	switch p.Kind {
	case HeaderKind:
		dec.readHeader(p)
	case LogicKind:
		dec.readLogic(p)
	case TriggerKind, EndKind:
		// no payload.
	default:
		return xerrors.Errorf("sformat: invalid packet marker (got=0x%02x)", v)
	}

	dec.eof()
	if dec.err != nil {
		return xerrors.Errorf("sformat: could not read %v packet: %w", p.Kind, dec.err)
	}

	var (
		compCRC = dec.crc.Sum16()
		recvCRC = dec.readU16()
	)
	if dec.err != nil {
		return xerrors.Errorf("sformat: could not receive CRC-16 of %v packet: %w", p.Kind, dec.err)
	}
	if compCRC != recvCRC {
		return xerrors.Errorf(
			"sformat: inconsistent CRC for %v packet: recv=0x%04x comp=0x%04x",
			p.Kind, recvCRC, compCRC,
		)
	}

	return nil
}

func (dec *Decoder) readHeader(p *Packet) {
	vers := dec.readU8()
	if dec.err == nil && vers != curVersion {
		dec.err = xerrors.Errorf("invalid version (got=%d, want=%d)", vers, curVersion)
		return
	}
	start := dec.readU64()
	rate := dec.readU64()
	nchans := dec.readU8()
	unit := dec.readU8()
	if dec.err != nil {
		return
	}
	p.Header.Start = time.Unix(0, int64(start))
	p.Header.Samplerate = rate
	p.Header.Channels = int(nchans)
	p.Header.UnitSize = int(unit)
}

func (dec *Decoder) readLogic(p *Packet) {
	unit := dec.readU8()
	size := dec.readU32()
	if dec.err != nil {
		return
	}
	switch {
	case unit == 0:
		dec.err = xerrors.Errorf("invalid unit size 0")
		return
	case size%uint32(unit) != 0:
		dec.err = xerrors.Errorf("data length %d not a multiple of unit size %d", size, unit)
		return
	case size > maxLogicSize:
		dec.err = xerrors.Errorf("data length %d too large", size)
		return
	}
	if cap(p.Data) < int(size) {
		p.Data = make([]byte, size)
	}
	p.Data = p.Data[:size]
	p.UnitSize = int(unit)
	dec.read(p.Data)
}

func (dec *Decoder) read(p []byte) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, p)
	if dec.err == nil {
		_, _ = dec.crc.Write(p) // can not fail.
	}
}

func (dec *Decoder) readU8() uint8 {
	dec.read(dec.buf[:1])
	return dec.buf[0]
}

func (dec *Decoder) readU16() uint16 {
	if dec.err != nil {
		return 0
	}
	// the checksum is not part of itself.
	_, dec.err = io.ReadFull(dec.r, dec.buf[:2])
	dec.eof()
	return binary.BigEndian.Uint16(dec.buf[:2])
}

func (dec *Decoder) readU32() uint32 {
	dec.read(dec.buf[:4])
	dec.eof()
	return binary.BigEndian.Uint32(dec.buf[:4])
}

func (dec *Decoder) readU64() uint64 {
	dec.read(dec.buf[:8])
	dec.eof()
	return binary.BigEndian.Uint64(dec.buf[:8])
}

// eof turns an end of stream in the middle of a packet into io.ErrUnexpectedEOF.
func (dec *Decoder) eof() {
	if dec.err == io.EOF {
		dec.err = io.ErrUnexpectedEOF
	}
}

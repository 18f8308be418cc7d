// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sformat describes and handles acquisition sessions as a
// stream of packets.
//
// Each packet starts with a marker byte, followed by a payload and the
// CRC-16 checksum (big endian) of the marker and the payload.
package sformat // import "github.com/go-lpc/sigma/internal/sformat"

import (
	"fmt"
	"time"

	"github.com/go-lpc/sigma/asix"
)

const (
	hdrMarker  = 0xb0 // session header marker
	lgcMarker  = 0xb4 // logic data marker
	trgMarker  = 0xc3 // trigger marker
	endMarker  = 0xa0 // end of session marker
	curVersion = 1

	hdrSize = 1 + 8 + 8 + 1 + 1
)

// Kind is the type of a packet.
type Kind uint8

const (
	HeaderKind  Kind = hdrMarker
	LogicKind   Kind = lgcMarker
	TriggerKind Kind = trgMarker
	EndKind     Kind = endMarker
)

func (k Kind) String() string {
	switch k {
	case HeaderKind:
		return "header"
	case LogicKind:
		return "logic"
	case TriggerKind:
		return "trigger"
	case EndKind:
		return "end"
	}
	return fmt.Sprintf("Kind(0x%02x)", uint8(k))
}

// Packet is a decoded element of a session.
type Packet struct {
	Kind Kind

	Header   asix.Header // header packets
	UnitSize int         // logic packets
	Data     []byte      // logic packets
}

// Samples returns the little-endian samples of a logic packet.
func (p *Packet) Samples() []uint64 {
	if p.Kind != LogicKind || p.UnitSize <= 0 {
		return nil
	}
	n := len(p.Data) / p.UnitSize
	o := make([]uint64, n)
	for i := range o {
		var v uint64
		beg := i * p.UnitSize
		for j := p.UnitSize - 1; j >= 0; j-- {
			v = v<<8 | uint64(p.Data[beg+j])
		}
		o[i] = v
	}
	return o
}

func (p *Packet) String() string {
	switch p.Kind {
	case HeaderKind:
		return fmt.Sprintf(
			"header{start=%s, rate=%d, channels=%d, unit=%d}",
			p.Header.Start.UTC().Format(time.RFC3339Nano),
			p.Header.Samplerate, p.Header.Channels, p.Header.UnitSize,
		)
	case LogicKind:
		n := 0
		if p.UnitSize > 0 {
			n = len(p.Data) / p.UnitSize
		}
		return fmt.Sprintf("logic{unit=%d, samples=%d}", p.UnitSize, n)
	}
	return p.Kind.String()
}

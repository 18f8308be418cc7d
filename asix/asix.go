// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asix drives ASIX SIGMA and SIGMA2 logic analyzers.
//
// The device is an FPGA behind an FTDI FT245 USB bridge. Package asix
// uploads the FPGA netlist matching the requested samplerate, programs the
// hardware trigger, runs an acquisition and decodes the compressed sample
// memory into a flat stream of 16-bit samples handed to a Sink.
//
// All the work happens from Device.Poll, which the caller invokes
// periodically until it returns false.
package asix // import "github.com/go-lpc/sigma/asix"

import (
	"fmt"
	"strconv"
	"strings"
)

// USB identifiers of ASIX logic analyzers.
const (
	VendorID       = 0xa600
	ProductID      = 0xa000 // SIGMA and SIGMA2
	ProductIDOmega = 0xa004 // OMEGA
)

// Model identifies a member of the ASIX logic analyzer family.
type Model uint8

const (
	ModelUnknown Model = iota
	ModelSigma
	ModelSigma2
	ModelOmega
)

func (m Model) String() string {
	switch m {
	case ModelSigma:
		return "SIGMA"
	case ModelSigma2:
		return "SIGMA2"
	case ModelOmega:
		return "OMEGA"
	}
	return fmt.Sprintf("Model(%d)", uint8(m))
}

// Supported reports whether the model can be driven by this package.
func (m Model) Supported() bool {
	return m == ModelSigma || m == ModelSigma2
}

// NumChannels is the number of logic channels of a SIGMA device.
const NumChannels = 16

// ChannelNames lists the names of the logic channels.
var ChannelNames = [NumChannels]string{
	"1", "2", "3", "4", "5", "6", "7", "8",
	"9", "10", "11", "12", "13", "14", "15", "16",
}

// ChannelIndex returns the zero-based index of the named channel.
func ChannelIndex(name string) (int, error) {
	name = strings.TrimSpace(name)
	for i, v := range ChannelNames {
		if v == name {
			return i, nil
		}
	}
	return -1, configErrorf("invalid channel name %q", name)
}

// Serial is the decoded serial number of an ASIX device.
type Serial struct {
	Text   string // serial number, as reported by USB
	Num    uint32 // serial number, as a hex number
	Prefix uint16 // upper 16 bits of the serial number
	Model  Model
}

// ParseSerial decodes the hexadecimal serial number of an ASIX device
// and derives the device model from its prefix.
func ParseSerial(txt string) (Serial, error) {
	v, err := strconv.ParseUint(txt, 16, 32)
	if err != nil {
		return Serial{}, configErrorf("could not interpret serial number %q: %v", txt, err)
	}
	ser := Serial{
		Text:   txt,
		Num:    uint32(v),
		Prefix: uint16(v >> 16),
	}
	switch ser.Prefix {
	case 0xa601:
		ser.Model = ModelSigma
	case 0xa602:
		ser.Model = ModelSigma2
	case 0xa603:
		ser.Model = ModelOmega
	default:
		return ser, configErrorf("unknown serial number prefix 0x%04x (serial=%q)", ser.Prefix, txt)
	}
	return ser, nil
}

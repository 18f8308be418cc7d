// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

// FPGA command opcodes.
const (
	regAddrLow       = 0x0 << 4
	regAddrHigh      = 0x1 << 4
	regDataLow       = 0x2 << 4
	regDataHighWrite = 0x3 << 4
	regReadAddr      = 0x4 << 4
	regDRAMWaitAck   = 0x5 << 4

	// Bit (1 << 4) can be low or high (double buffer / cache).
	regDRAMBlock     = 0x6 << 4
	regDRAMBlockBeg  = 0x8 << 4
	regDRAMBlockData = 0xa << 4
	regDRAMSelN      = 0x1 << 4

	regAddrInc = 1 << 0
	regAddrDec = 1<<0 | 1<<1
)

func regDRAMSel(sel bool) uint8 {
	if sel {
		return regDRAMSelN
	}
	return 0
}

// write registers.
const (
	wregClockSelect   = 0
	wregTriggerSelect = 1
	wregTriggerSel2   = 2
	wregMode          = 3
	wregMemRow        = 4
	wregPostTrigger   = 5
	wregTriggerOption = 6
	wregPinView       = 7
	wregTest          = 15
)

// read registers.
const (
	rregID           = 0
	rregTriggerPosLo = 1
	rregTriggerPosHi = 2
	rregTriggerPosUp = 3
	rregStopPosLo    = 4
	rregStopPosHi    = 5
	rregStopPosUp    = 6
	rregMode         = 7
	rregPinChangeLo  = 8
	rregPinChangeHi  = 9
	rregBlockLastTSL = 10
	rregBlockLastTSH = 11
	rregTSOverrun    = 12
	rregPinView      = 13
	rregTest         = 15
)

// fpgaID is the content of the ID register of a configured SIGMA FPGA.
const fpgaID = 0xa6

// CLOCK_SELECT register.
const (
	clkselClksel8 = 1 << 0
	clkselPinMask = 0xf
	clkselRising  = 1 << 4
	clkselFalling = 1 << 5
)

// TRIGGER_SELECT register.
const (
	trgselSelincMask    = 0x3
	trgselSelincShift   = 0
	trgselSelresMask    = 0x3
	trgselSelresShift   = 2
	trgselSelaMask      = 0x3
	trgselSelaShift     = 4
	trgselSelbMask      = 0x3
	trgselSelbShift     = 6
	trgselSelcMask      = 0x3
	trgselSelcShift     = 8
	trgselSelprescMask  = 0xf
	trgselSelprescShift = 12
)

// trigger selection codes.
const (
	trgselCodeLevel = 0
	trgselCodeFall  = 1
	trgselCodeRise  = 2
	trgselCodeEvent = 3
	trgselCodeNever = 3
)

// TRIGGER_SELECT2 register.
const (
	trgsel2PinsMask    = 0x7
	trgsel2PinpolRise  = 1 << 3
	trgsel2LUTAddrMask = 0xf
	trgsel2LUTWrite    = 1 << 4
	trgsel2Reset       = 1 << 5
	trgsel2LEDSel0     = 1 << 6
	trgsel2LEDSel1     = 1 << 7
)

// WRITE_MODE register.
const (
	wmrSDRAMWriteEn = 1 << 0
	wmrSDRAMReadEn  = 1 << 1
	wmrTrgRes       = 1 << 2
	wmrTrgEn        = 1 << 3
	wmrForceStop    = 1 << 4
	wmrTrgSW        = 1 << 5
	wmrSDRAMInit    = 1 << 7
)

// READ_MODE register.
const (
	rmrSDRAMWriteEn  = 1 << 0
	rmrSDRAMReadEn   = 1 << 1
	rmrTrgEn         = 1 << 3
	rmrRound         = 1 << 4
	rmrTriggered     = 1 << 5
	rmrPostTriggered = 1 << 6
)

// TRIGGER_OPTION register.
const (
	trgoptTrgIEn     = 1 << 7
	trgoptTrgOEn     = 1 << 6
	trgoptTrgOInEn   = 1 << 5
	trgoptTrgOEvntEn = 1 << 4
	trgoptTrgOOutEn  = 1 << 3
	trgoptClearMask  = trgoptTrgOInEn | trgoptTrgOEvntEn | trgoptTrgOOutEn
)

// Sample memory layout.
//
// The DRAM holds 32768 rows of 1024 bytes. A row holds 64 clusters,
// a cluster is one 16-bit timestamp followed by 7 16-bit events.
const (
	rowCount         = 32768
	rowLengthBytes   = 1024
	rowLengthU16     = rowLengthBytes / 2
	rowShift         = 9
	rowMask          = 1<<rowShift - 1
	eventsPerCluster = 7
	clustersPerRow   = 64
	eventsPerRow     = clustersPerRow * eventsPerCluster
	clusterSize      = 2 * (1 + eventsPerCluster)
)

const (
	maxRegDepth = 32  // maximum number of bytes written to a register in one go
	maxRegCount = 16  // maximum number of registers read in one go
	maxDRAMCmd  = 128 // maximum size of a DRAM read command sequence
)

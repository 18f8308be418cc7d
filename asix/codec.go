// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"encoding/binary"
)

func lo4(v uint8) uint8 { return v & 0xf }
func hi4(v uint8) uint8 { return v >> 4 }

// appendAddr appends the command selecting register reg.
func appendAddr(p []byte, reg uint8) []byte {
	return append(p, regAddrLow|lo4(reg), regAddrHigh|hi4(reg))
}

// appendData appends the command writing v to the selected register.
func appendData(p []byte, v uint8) []byte {
	return append(p, regDataLow|lo4(v), regDataHighWrite|hi4(v))
}

// encodeWrite encodes the write of data to register reg.
// The register is selected once, each byte is then strobed in.
func encodeWrite(reg uint8, data []byte) ([]byte, error) {
	if len(data) > maxRegDepth {
		return nil, protocolErrorf("short write buffer for %d bytes to reg %d", len(data), reg)
	}
	p := make([]byte, 0, 2+2*len(data))
	p = appendAddr(p, reg)
	for _, v := range data {
		p = appendData(p, v)
	}
	return p, nil
}

// encodeRead encodes the read of the single register reg.
func encodeRead(reg uint8) []byte {
	p := make([]byte, 0, 3)
	p = appendAddr(p, reg)
	return append(p, regReadAddr)
}

// encodeMultiRead encodes the read of n consecutive registers,
// starting at reg.
func encodeMultiRead(reg uint8, n int) ([]byte, error) {
	if n > maxRegCount {
		return nil, protocolErrorf("short command buffer for %d reg reads at %d", n, reg)
	}
	p := make([]byte, 0, 2+n)
	p = appendAddr(p, reg)
	for i := 0; i < n; i++ {
		p = append(p, regReadAddr|regAddrInc)
	}
	return p, nil
}

// encodeDRAMRead encodes the retrieval of n consecutive DRAM rows.
// FPGA internal buffers 0 and 1 are used alternately, so that the DRAM
// access of a row overlaps with the USB transfer of the previous one.
func encodeDRAMRead(n int) ([]byte, error) {
	if 2+3*n > maxDRAMCmd {
		return nil, protocolErrorf("short write buffer for %d DRAM row reads", n)
	}
	p := make([]byte, 0, 2+3*n)
	p = append(p, regDRAMBlock, regDRAMWaitAck)
	for i := 0; i < n; i++ {
		var (
			sel  = i%2 == 1
			last = i == n-1
		)
		if !last {
			p = append(p, regDRAMBlock|regDRAMSel(!sel))
		}
		p = append(p, regDRAMBlockData|regDRAMSel(sel))
		if !last {
			p = append(p, regDRAMWaitAck)
		}
	}
	return p, nil
}

// positions is the content of the trigger/stop position registers.
type positions struct {
	trig uint32
	stop uint32
	mode uint8
}

const positionsLen = 7

// decodePositions decodes the 7 registers starting at TRIGGER_POS_LOW.
//
// The raw positions point to after the captured event: they are
// decremented, skipping the timestamp slots of a row when the decrement
// crosses a row boundary.
func decodePositions(p []byte) (positions, error) {
	if len(p) != positionsLen {
		return positions{}, protocolErrorf("invalid position registers length (got=%d, want=%d)", len(p), positionsLen)
	}
	pos := positions{
		trig: u24le(p[0:3]),
		stop: u24le(p[3:6]),
		mode: p[6],
	}
	pos.trig = adjustPos(pos.trig)
	pos.stop = adjustPos(pos.stop)
	return pos, nil
}

func adjustPos(v uint32) uint32 {
	v--
	if v&rowMask == rowMask {
		v -= clustersPerRow
	}
	return v
}

func u24le(p []byte) uint32 {
	_ = p[2]
	return uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16
}

func u16be(v uint16) []byte {
	p := make([]byte, 2)
	binary.BigEndian.PutUint16(p, v)
	return p
}

func (dev *device) writeRegister(reg uint8, data ...byte) error {
	p, err := encodeWrite(reg, data)
	if err != nil {
		return err
	}
	err = dev.write(p)
	if err != nil {
		return wrapf(err, "could not write register %d", reg)
	}
	return nil
}

func (dev *device) setRegister(reg, v uint8) error {
	return dev.writeRegister(reg, v)
}

func (dev *device) getRegister(reg uint8) (uint8, error) {
	err := dev.write(encodeRead(reg))
	if err != nil {
		return 0, wrapf(err, "could not request register %d", reg)
	}
	var p [1]byte
	err = dev.read(p[:])
	if err != nil {
		return 0, wrapf(err, "could not read register %d", reg)
	}
	return p[0], nil
}

func (dev *device) getRegisters(reg uint8, n int) ([]byte, error) {
	cmd, err := encodeMultiRead(reg, n)
	if err != nil {
		return nil, err
	}
	err = dev.write(cmd)
	if err != nil {
		return nil, wrapf(err, "could not request %d registers at %d", n, reg)
	}
	p := make([]byte, n)
	err = dev.read(p)
	if err != nil {
		return nil, wrapf(err, "could not read %d registers at %d", n, reg)
	}
	return p, nil
}

func (dev *device) readPos() (positions, error) {
	p, err := dev.getRegisters(rregTriggerPosLo, positionsLen)
	if err != nil {
		return positions{}, wrapf(err, "could not query capture positions")
	}
	return decodePositions(p)
}

// readDRAM reads n DRAM rows starting at row into dst.
func (dev *device) readDRAM(row, n int, dst []byte) error {
	if len(dst) < n*rowLengthBytes {
		return protocolErrorf("short DRAM buffer (len=%d, rows=%d)", len(dst), n)
	}
	cmd, err := encodeDRAMRead(n)
	if err != nil {
		return err
	}

	err = dev.writeRegister(wregMemRow, u16be(uint16(row))...)
	if err != nil {
		return wrapf(err, "could not select DRAM row %d", row)
	}

	err = dev.write(cmd)
	if err != nil {
		return wrapf(err, "could not request DRAM rows [%d, %d)", row, row+n)
	}

	err = dev.read(dst[:n*rowLengthBytes])
	if err != nil {
		return wrapf(err, "could not read DRAM rows [%d, %d)", row, row+n)
	}
	return nil
}

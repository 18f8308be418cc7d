// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/ziutek/ftdi"
)

func init() {
	fpgaDelay = 0
}

// fakeFTDI emulates the FTDI cable and the FPGA of a SIGMA.
//
// In bitbang mode, written bytes are recorded and reads report the
// INIT pin. Otherwise, written bytes are interpreted as register and
// DRAM commands, and responses are queued for reading.
type fakeFTDI struct {
	bitbang bool
	mask    byte
	baud    int
	purges  int
	closed  bool

	bb       []byte // bytes written in bitbang mode
	initAt   int    // number of INIT reads before INIT is asserted, -1 for never
	initRead int

	addr  uint8
	dlow  uint8
	wregs map[uint8][]byte // values written, per register
	rregs [16]uint8        // content of read registers
	out   []byte           // pending response bytes

	dram   [][]byte // rows of the sample memory
	row    int      // next DRAM row to send
	memrow []byte

	onMode func(ft *fakeFTDI, v uint8)

	werr error // error returned by Write, if any
	serr error // error returned once by Write, after executing its commands
	rerr error // error returned by Read, if any
}

func newFakeFTDI() *fakeFTDI {
	ft := &fakeFTDI{
		wregs: make(map[uint8][]byte),
	}
	ft.rregs[rregID] = fpgaID
	return ft
}

func (ft *fakeFTDI) Reset() error { return nil }

func (ft *fakeFTDI) SetBitmode(mask byte, mode ftdi.Mode) error {
	ft.mask = mask
	ft.bitbang = mode == ftdi.ModeBitbang
	return nil
}

func (ft *fakeFTDI) SetBaudrate(br int) error       { ft.baud = br; return nil }
func (ft *fakeFTDI) SetLatencyTimer(lt int) error   { return nil }
func (ft *fakeFTDI) SetWriteChunkSize(cs int) error { return nil }
func (ft *fakeFTDI) SetReadChunkSize(cs int) error  { return nil }
func (ft *fakeFTDI) Close() error                   { ft.closed = true; return nil }

func (ft *fakeFTDI) PurgeBuffers() error {
	ft.purges++
	ft.out = ft.out[:0]
	return nil
}

func (ft *fakeFTDI) Write(p []byte) (int, error) {
	if ft.werr != nil {
		return 0, ft.werr
	}
	if ft.bitbang {
		ft.bb = append(ft.bb, p...)
		return len(p), nil
	}
	for _, b := range p {
		ft.exec(b)
	}
	if err := ft.serr; err != nil {
		ft.serr = nil
		return 0, err
	}
	return len(p), nil
}

func (ft *fakeFTDI) Read(p []byte) (int, error) {
	if ft.rerr != nil {
		return 0, ft.rerr
	}
	if ft.bitbang {
		if len(p) == 0 {
			return 0, nil
		}
		ft.initRead++
		if ft.initAt < 0 || ft.initRead <= ft.initAt {
			return 0, nil
		}
		p[0] = bbPinINIT
		return 1, nil
	}
	n := copy(p, ft.out)
	ft.out = ft.out[n:]
	return n, nil
}

func (ft *fakeFTDI) exec(b byte) {
	switch op := b & 0xf0; op {
	case regAddrLow:
		ft.addr = b & 0xf
	case regAddrHigh:
		ft.addr |= (b & 0xf) << 4
	case regDataLow:
		ft.dlow = b & 0xf
	case regDataHighWrite:
		ft.writeReg(ft.addr, ft.dlow|(b&0xf)<<4)
	case regReadAddr:
		ft.out = append(ft.out, ft.rregs[ft.addr&0xf])
		switch b & 0x3 {
		case regAddrInc:
			ft.addr++
		case regAddrDec:
			ft.addr--
		}
	case regDRAMWaitAck, regDRAMBlock, regDRAMBlock | regDRAMSelN:
		// no-op.
	case regDRAMBlockData, regDRAMBlockData | regDRAMSelN:
		var row []byte
		if ft.row < len(ft.dram) {
			row = ft.dram[ft.row]
		}
		buf := make([]byte, rowLengthBytes)
		copy(buf, row)
		ft.out = append(ft.out, buf...)
		ft.row++
	default:
		panic(fmt.Errorf("invalid opcode 0x%02x", b))
	}
}

func (ft *fakeFTDI) writeReg(reg, v uint8) {
	ft.wregs[reg] = append(ft.wregs[reg], v)
	switch reg {
	case wregTest:
		ft.rregs[rregTest] = v
	case wregMemRow:
		ft.memrow = append(ft.memrow, v)
		if len(ft.memrow) == 2 {
			ft.row = int(binary.BigEndian.Uint16(ft.memrow))
			ft.memrow = ft.memrow[:0]
		}
	case wregMode:
		if ft.onMode != nil {
			ft.onMode(ft, v)
			return
		}
		if v&wmrForceStop != 0 {
			ft.rregs[rregMode] |= rmrPostTriggered
		}
	}
}

// setPositions sets the raw content of the position registers.
func (ft *fakeFTDI) setPositions(trig, stop uint32, mode uint8) {
	ft.rregs[rregTriggerPosLo] = uint8(trig)
	ft.rregs[rregTriggerPosHi] = uint8(trig >> 8)
	ft.rregs[rregTriggerPosUp] = uint8(trig >> 16)
	ft.rregs[rregStopPosLo] = uint8(stop)
	ft.rregs[rregStopPosHi] = uint8(stop >> 8)
	ft.rregs[rregStopPosUp] = uint8(stop >> 16)
	ft.rregs[rregMode] = mode
}

var _ ftdiDevice = (*fakeFTDI)(nil)

// withFakeFTDI swaps the FTDI transport for ft until the returned
// function is called.
func withFakeFTDI(ft *fakeFTDI) func() {
	ftdiOpen = func(vid, pid uint16, serial string) (ftdiDevice, error) {
		return ft, nil
	}
	return func() {
		ftdiOpen = ftdiOpenImpl
	}
}

func newTestDevice(ft *fakeFTDI) *device {
	return &device{vid: VendorID, pid: ProductID, ser: "a6010001", ft: ft}
}

// memLoader serves netlist images from memory.
type memLoader map[string][]byte

func (ld memLoader) Load(name string) (Netlist, error) {
	raw, ok := ld[name]
	if !ok {
		return nil, fmt.Errorf("no such firmware %q: %w", name, os.ErrNotExist)
	}
	return Image(raw), nil
}

func testFirmwares() memLoader {
	ld := make(memLoader)
	for i, name := range firmwareFiles {
		ld[name] = []byte{byte(i), 0x01, 0x02, 0x03}
	}
	return ld
}

// event records what a sink received.
type event struct {
	kind    string
	samples []uint16
}

type recSink struct {
	hdr    *Header
	events []event
	ends   int
	err    error
}

func (sink *recSink) Header(hdr Header) error {
	sink.hdr = &hdr
	return sink.err
}

func (sink *recSink) Logic(unit int, data []byte) error {
	if unit != sampleUnitSize {
		return fmt.Errorf("invalid unit size %d", unit)
	}
	samples := make([]uint16, len(data)/unit)
	for i := range samples {
		samples[i] = binary.LittleEndian.Uint16(data[unit*i:])
	}
	sink.events = append(sink.events, event{kind: "logic", samples: samples})
	return sink.err
}

func (sink *recSink) Trigger() error {
	sink.events = append(sink.events, event{kind: "trigger"})
	return sink.err
}

func (sink *recSink) End() error {
	sink.ends++
	return sink.err
}

// samples returns all the samples received.
func (sink *recSink) samples() []uint16 {
	var o []uint16
	for _, evt := range sink.events {
		o = append(o, evt.samples...)
	}
	return o
}

// triggerAt returns the number of samples received before each trigger marker.
func (sink *recSink) triggerAt() []int {
	var (
		o []int
		n = 0
	)
	for _, evt := range sink.events {
		switch evt.kind {
		case "logic":
			n += len(evt.samples)
		case "trigger":
			o = append(o, n)
		}
	}
	return o
}

func newTestLogger() log.MsgStream {
	return log.NewMsgStream("asix-test", log.LvlError, io.Discard)
}

// mkCluster builds a DRAM cluster with the given timestamp and events.
func mkCluster(ts uint16, evts ...uint16) []byte {
	if len(evts) > eventsPerCluster {
		panic("too many events")
	}
	p := make([]byte, clusterSize)
	binary.LittleEndian.PutUint16(p[0:], ts)
	for i, v := range evts {
		binary.LittleEndian.PutUint16(p[2+2*i:], v)
	}
	return p
}

// mkRow builds a DRAM row out of clusters.
func mkRow(clusters ...[]byte) []byte {
	if len(clusters) > clustersPerRow {
		panic("too many clusters")
	}
	p := make([]byte, 0, rowLengthBytes)
	for _, cl := range clusters {
		p = append(p, cl...)
	}
	return append(p, make([]byte, rowLengthBytes-len(p))...)
}

// fixedClock returns successive times, dt apart.
func fixedClock(t0 time.Time, dt time.Duration) func() time.Time {
	cur := t0
	return func() time.Time {
		now := cur
		cur = cur.Add(dt)
		return now
	}
}

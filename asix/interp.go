// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"encoding/binary"
)

const (
	linesPerRead  = 32                   // DRAM rows fetched per USB request
	trigArmEvents = 4 * eventsPerCluster // distance from the hardware trigger position
	trigChkEvents = 8 * eventsPerCluster // width of the software trigger check window
	chunksPerPoll = 50                   // DRAM fetches per poll
)

// interp is the state of the sample memory interpretation.
//
// It walks the DRAM from start to stop, expands the timestamp gaps
// between clusters, de-interleaves the sub-samples of an event and
// refines the hardware trigger position with a software match.
type interp struct {
	spe int // samples per event

	last struct {
		ts     uint16
		sample uint16
	}

	start   location
	stop    location
	trig    location
	trigArm location
	iter    location

	trigChk struct {
		armed   bool
		matched bool
		remain  int // events left in the check window
	}

	fetch struct {
		total   int    // number of rows to retrieve
		done    int    // number of rows retrieved and decoded
		perRead int    // rows per DRAM request, 0 when no download is set up
		rows    []byte // received rows
	}

	spec        triggerSpec
	useTriggers bool

	sink Sink
	buf  *submitBuffer
}

func (ip *interp) active() bool { return ip.fetch.perRead > 0 }

// setup computes the memory range of a download from the stop and
// trigger positions, and the status of the acquisition.
//
// When the write pointer wrapped around the top of the memory, the
// range starts after the most recently written row and ends before it.
// That row is of unknown state and is not retrieved.
func (ip *interp) setup(stopPos, trigPos uint32, mode uint8) {
	var (
		start = uint32(0)
		stop  = stopPos
	)
	if mode&rmrRound != 0 {
		start = ((stopPos >> rowShift) + 1) << rowShift
		stop = ((stopPos >> rowShift) - 1) << rowShift
	}

	ip.start = newLocation(start)
	ip.stop = newLocation(stop)
	ip.trig = newLocation(trigPos)
	ip.iter = newLocation(0)

	ip.rewindTrigArm(trigArmEvents)
	ip.trigChk.armed = false
	ip.trigChk.matched = false
	ip.trigChk.remain = 0

	ip.fetch.total = int((ip.stop.line + 1 + rowCount - ip.start.line) % rowCount)
	ip.fetch.done = 0
	ip.fetch.perRead = linesPerRead
	ip.fetch.rows = make([]byte, linesPerRead*rowLengthBytes)
}

// release drops the download buffers.
func (ip *interp) release() {
	ip.fetch.rows = nil
	ip.fetch.perRead = 0
	ip.buf = nil
}

// rewindTrigArm positions the start of the software trigger check window
// n events before the hardware trigger position, but not before start.
// Without triggers, the window is never opened.
func (ip *interp) rewindTrigArm(n int) {
	if !ip.useTriggers {
		ip.trigArm = newLocation(^uint32(0))
		return
	}

	ip.trigArm = ip.trig
	for i := 0; i < n; i++ {
		if ip.trigArm.equal(ip.start, true) {
			break
		}
		ip.trigArm.decrement(true)
	}
}

// next returns the number of rows to request next, and the row to start at.
func (ip *interp) next() (row, n int) {
	if ip.fetch.done == 0 {
		ip.iter = ip.start
	}
	n = ip.fetch.total - ip.fetch.done
	if n > ip.fetch.perRead {
		n = ip.fetch.perRead
	}
	return int(ip.iter.line), n
}

// seed initializes the last timestamp and sample from the first row
// of the download. The trigger check window may open at the very
// first event.
func (ip *interp) seed(row []byte) error {
	ip.last.ts = binary.LittleEndian.Uint16(row[0:2])
	ip.last.sample = deinterlace(binary.LittleEndian.Uint16(row[2:4]), ip.spe, 0)
	return ip.checkLocation()
}

// decodeRows interprets n received rows.
func (ip *interp) decodeRows(rows []byte, n int) error {
	for i := 0; i < n; i++ {
		events := eventsPerRow
		if ip.iter.line == ip.stop.line {
			events = int(ip.stop.raw & rowMask)
			if events > eventsPerRow {
				events = eventsPerRow
			}
		}
		row := rows[i*rowLengthBytes : (i+1)*rowLengthBytes]
		err := ip.decodeRow(row, events)
		if err != nil {
			return err
		}
		ip.fetch.done++
	}
	return nil
}

// decodeRow interprets the first events events of a row.
// The last cluster of the row may be partially filled.
func (ip *interp) decodeRow(row []byte, events int) error {
	clusters := (events + eventsPerCluster - 1) / eventsPerCluster
	for i := 0; i < clusters; i++ {
		n := eventsPerCluster
		if i == clusters-1 && events%eventsPerCluster != 0 {
			n = events % eventsPerCluster
		}
		cl := row[i*clusterSize : (i+1)*clusterSize]
		err := ip.decodeCluster(cl, n)
		if err != nil {
			return err
		}
	}
	return nil
}

// decodeCluster interprets the first events events of a cluster.
//
// Clusters are only stored when pins change: a gap between the end of
// the previous cluster and the timestamp of this one is filled with
// the last sample. These repeated samples cannot match a level or edge
// trigger.
func (ip *interp) decodeCluster(cl []byte, events int) error {
	ts := binary.LittleEndian.Uint16(cl[0:2])
	if gap := ts - ip.last.ts; gap > 0 {
		err := ip.checkAndSubmit(ip.last.sample, int(gap)*ip.spe)
		if err != nil {
			return err
		}
	}
	ip.last.ts = ts + eventsPerCluster

	for evt := 0; evt < events; evt++ {
		raw := binary.LittleEndian.Uint16(cl[2+2*evt:])
		for idx := 0; idx < ip.spe; idx++ {
			sample := deinterlace(raw, ip.spe, idx)
			err := ip.checkAndSubmit(sample, 1)
			if err != nil {
				return err
			}
			ip.last.sample = sample
		}
		ip.iter.increment()
		err := ip.checkLocation()
		if err != nil {
			return err
		}
	}
	return nil
}

func (ip *interp) checkAndSubmit(sample uint16, count int) error {
	if ip.trigChk.armed && ip.useTriggers && ip.spec.matches(ip.last.sample, sample) {
		err := ip.sendTrigger()
		if err != nil {
			return err
		}
		ip.trigChk.matched = true
	}
	return ip.buf.add(sample, count)
}

func (ip *interp) sendTrigger() error {
	err := ip.buf.flush()
	if err != nil {
		return err
	}
	err = ip.sink.Trigger()
	if err != nil {
		return ioErrorf(err, "could not send trigger marker")
	}
	return nil
}

// checkLocation manages the software trigger check window.
//
// The window opens at the arm position, and closes after a fixed
// number of events or once a match was found. A marker is forced at
// the hardware trigger position when no match was found by then.
func (ip *interp) checkLocation() error {
	if ip.trigChk.armed {
		ip.trigChk.remain--
		if ip.trigChk.remain <= 0 || ip.trigChk.matched {
			ip.trigChk.armed = false
		}
	}

	if !ip.trigChk.armed && !ip.trigChk.matched {
		if ip.iter.equal(ip.trigArm, true) {
			ip.trigChk.armed = true
			ip.trigChk.matched = false
			ip.trigChk.remain = trigChkEvents
		}
	}

	if ip.trigChk.armed && ip.iter.equal(ip.trig, true) {
		err := ip.sendTrigger()
		if err != nil {
			return err
		}
		ip.trigChk.matched = true
	}
	return nil
}

// deinterlace extracts sub-sample idx of a stored event word.
func deinterlace(v uint16, spe, idx int) uint16 {
	switch spe {
	case 4:
		return deinterlace4x4(v, idx)
	case 2:
		return deinterlace2x8(v, idx)
	}
	return v
}

// deinterlace2x8 extracts one of the two 8-bit samples of a 100MHz event:
// bit i of sample idx is bit 2*i+idx of v.
func deinterlace2x8(v uint16, idx int) uint16 {
	v >>= uint(idx)
	var o uint16
	for i := 0; i < 8; i++ {
		o |= (v >> uint(i)) & (1 << uint(i))
	}
	return o
}

// deinterlace4x4 extracts one of the four 4-bit samples of a 200MHz event:
// bit i of sample idx is bit 4*i+idx of v.
func deinterlace4x4(v uint16, idx int) uint16 {
	v >>= uint(idx)
	var o uint16
	for i := 0; i < 4; i++ {
		o |= (v >> uint(3*i)) & (1 << uint(i))
	}
	return o
}

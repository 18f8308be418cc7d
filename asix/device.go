// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"fmt"
	"io"

	"github.com/ziutek/ftdi"
)

type ftdiDevice interface {
	Reset() error

	SetBitmode(iomask byte, mode ftdi.Mode) error
	SetBaudrate(br int) error
	SetLatencyTimer(lt int) error
	SetWriteChunkSize(cs int) error
	SetReadChunkSize(cs int) error
	PurgeBuffers() error

	io.Writer
	io.Reader
	io.Closer
}

var (
	ftdiOpen = ftdiOpenImpl
)

func ftdiOpenImpl(vid, pid uint16, serial string) (ftdiDevice, error) {
	dev, err := ftdi.Open(int(vid), int(pid), "", serial, 0, ftdi.ChannelAny)
	return dev, err
}

// maxEmptyReads bounds the number of consecutive empty transfers
// tolerated while waiting for a response.
const maxEmptyReads = 16

// device is the USB transport to the FPGA of a SIGMA.
type device struct {
	vid uint16     // vendor ID
	pid uint16     // product ID
	ser string     // serial number
	ft  ftdiDevice // handle to the FTDI device
}

func newDevice(vid, pid uint16, serial string) (*device, error) {
	ft, err := ftdiOpen(vid, pid, serial)
	if err != nil {
		return nil, ioErrorf(err, "could not open FTDI device (vid=0x%x, pid=0x%x, serial=%q)", vid, pid, serial)
	}

	dev := &device{vid: vid, pid: pid, ser: serial, ft: ft}
	err = dev.init()
	if err != nil {
		ft.Close()
		return nil, wrapf(err, "could not initialize FTDI device (serial=%q)", serial)
	}

	return dev, nil
}

func (dev *device) init() error {
	var err error

	err = dev.ft.SetBitmode(0, ftdi.ModeReset)
	if err != nil {
		return ioErrorf(err, "could not reset bit mode")
	}

	err = dev.ft.SetLatencyTimer(2)
	if err != nil {
		return ioErrorf(err, "could not set latency timer to 2")
	}

	err = dev.ft.SetWriteChunkSize(0xffff)
	if err != nil {
		return ioErrorf(err, "could not set write chunk-size to 0xffff")
	}

	err = dev.ft.SetReadChunkSize(0xffff)
	if err != nil {
		return ioErrorf(err, "could not set read chunk-size to 0xffff")
	}

	err = dev.ft.PurgeBuffers()
	if err != nil {
		return ioErrorf(err, "could not purge USB buffers")
	}

	return nil
}

func (dev *device) close() error {
	err := dev.ft.Close()
	if err != nil {
		return ioErrorf(err, "could not close FTDI device (serial=%q)", dev.ser)
	}
	return nil
}

// write sends p to the device, in full.
func (dev *device) write(p []byte) error {
	n, err := dev.ft.Write(p)
	switch {
	case err != nil:
		return ioErrorf(err, "could not write %d bytes", len(p))
	case n != len(p):
		return ioErrorf(io.ErrShortWrite, "could not write %d bytes (n=%d)", len(p), n)
	}
	return nil
}

// read fills p with data from the device.
func (dev *device) read(p []byte) error {
	var (
		o     = 0
		empty = 0
	)
	for o < len(p) {
		n, err := dev.ft.Read(p[o:])
		o += n
		if err != nil && o < len(p) {
			return ioErrorf(err, "could not read %d bytes (n=%d)", len(p), o)
		}
		if n > 0 {
			empty = 0
			continue
		}
		empty++
		if empty >= maxEmptyReads {
			return ioErrorf(io.ErrUnexpectedEOF, "could not read %d bytes (n=%d)", len(p), o)
		}
	}
	return nil
}

// readAvail reads whatever the device has available, without waiting.
func (dev *device) readAvail(p []byte) (int, error) {
	n, err := dev.ft.Read(p)
	if err != nil && n == 0 {
		return 0, ioErrorf(err, "could not read from device")
	}
	return n, nil
}

// drain discards any pending input.
func (dev *device) drain() error {
	var p [64]byte
	for i := 0; i < maxEmptyReads; i++ {
		n, err := dev.readAvail(p[:])
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

func (dev *device) purge() error {
	err := dev.ft.PurgeBuffers()
	if err != nil {
		return ioErrorf(err, "could not purge USB buffers")
	}
	return nil
}

func (dev *device) setBitbang(mask byte, baud int) error {
	err := dev.ft.SetBitmode(mask, ftdi.ModeBitbang)
	if err != nil {
		return ioErrorf(err, "could not setup cable bitbang mode (mask=0x%x)", mask)
	}

	err = dev.ft.SetBaudrate(baud)
	if err != nil {
		return ioErrorf(err, "could not setup bitrate %d", baud)
	}
	return nil
}

func (dev *device) setFIFO() error {
	err := dev.ft.SetBitmode(0, ftdi.ModeReset)
	if err != nil {
		return ioErrorf(err, "could not reset cable mode")
	}
	return nil
}

func (dev *device) String() string {
	return fmt.Sprintf("%04x:%04x[%s]", dev.vid, dev.pid, dev.ser)
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"errors"
	"time"
)

// Cable pins in bitbang mode.
// The FPGA is configured in slave serial mode, all pins but INIT are outputs.
const (
	bbPinCCLK = 1 << 0 // D0, CCLK
	bbPinPROG = 1 << 1 // D1, PROG
	bbPinD2   = 1 << 2 // D2, suicide
	bbPinD3   = 1 << 3 // D3, suicide
	bbPinD4   = 1 << 4 // D4, suicide
	bbPinINIT = 1 << 5 // D5, INIT, input
	bbPinDIN  = 1 << 6 // D6, DIN
	bbPinD7   = 1 << 7 // D7, suicide

	bbBitrate = 750 * 1000
	bbPinMask = 0xff &^ bbPinINIT
)

var (
	// fpgaSuicide ends the regular FPGA operation so the shared pins
	// can be used for reconfiguration.
	fpgaSuicide = []byte{
		bbPinD7 | bbPinD2,
		bbPinD7 | bbPinD2,
		bbPinD7 | bbPinD3,
		bbPinD7 | bbPinD2,
		bbPinD7 | bbPinD3,
		bbPinD7 | bbPinD2,
		bbPinD7 | bbPinD3,
		bbPinD7 | bbPinD2,
	}

	// fpgaProgram pulses PROG while CCLK stays idle.
	fpgaProgram = []byte{
		bbPinCCLK,
		bbPinCCLK | bbPinPROG,
		bbPinCCLK | bbPinPROG,
		bbPinCCLK,
		bbPinCCLK,
		bbPinCCLK,
		bbPinCCLK,
		bbPinCCLK,
		bbPinCCLK,
		bbPinCCLK,
	}
)

const (
	fpgaSuicideReps = 4
	fpgaInitRetries = 10 // init-done poll rounds
	fpgaInitRuns    = 10 // runs of the whole initiation sequence
)

var fpgaDelay = 10 * time.Millisecond

// initBitbangOnce runs the suicide sequence, pulses PROG and waits for
// the FPGA to assert INIT.
func (dev *device) initBitbangOnce() error {
	for i := 0; i < fpgaSuicideReps; i++ {
		err := dev.write(fpgaSuicide)
		if err != nil {
			return wrapf(err, "could not send FPGA suicide sequence")
		}
	}
	time.Sleep(fpgaDelay)

	err := dev.write(fpgaProgram)
	if err != nil {
		return wrapf(err, "could not pulse PROG")
	}
	time.Sleep(fpgaDelay)

	err = dev.purge()
	if err != nil {
		return err
	}

	var pin [1]byte
	for i := 0; i < fpgaInitRetries; i++ {
		for {
			n, err := dev.readAvail(pin[:])
			if err != nil {
				return wrapf(err, "could not sense INIT")
			}
			if n != len(pin) {
				break
			}
			if pin[0]&bbPinINIT != 0 {
				return nil
			}
		}
		if i+1 < fpgaInitRetries {
			time.Sleep(fpgaDelay)
		}
	}

	return timeoutErrorf("FPGA did not assert INIT")
}

// initBitbang re-runs the initiation sequence should it time out.
func (dev *device) initBitbang() error {
	var err error
	for i := 0; i < fpgaInitRuns; i++ {
		err = dev.initBitbangOnce()
		if err == nil || !errors.Is(err, ErrTimeout) {
			return err
		}
	}
	return err
}

// initLA checks the freshly configured logic analyzer netlist:
// the ID register and two scratch register round-trips.
// It also requests the SDRAM initialization.
func (dev *device) initLA() error {
	const (
		data55 = 0x55
		dataAA = 0xaa
	)

	cmd := make([]byte, 0, 20)
	cmd = append(cmd, encodeRead(rregID)...)

	cmd = appendAddr(cmd, wregTest)
	cmd = appendData(cmd, data55)
	cmd = append(cmd, regReadAddr)

	cmd = appendAddr(cmd, wregTest)
	cmd = appendData(cmd, dataAA)
	cmd = append(cmd, regReadAddr)

	cmd = appendAddr(cmd, wregMode)
	cmd = appendData(cmd, wmrSDRAMInit)

	err := dev.write(cmd)
	if err != nil {
		return wrapf(err, "could not request LA start response")
	}

	var p [3]byte
	err = dev.read(p[:])
	if err != nil {
		return wrapf(err, "could not receive LA start response")
	}

	switch {
	case p[0] != fpgaID:
		return protocolErrorf("unexpected ID response (got=0x%02x, want=0x%02x)", p[0], fpgaID)
	case p[1] != data55:
		return protocolErrorf("unexpected scratch read-back (got=0x%02x, want=0x%02x)", p[1], data55)
	case p[2] != dataAA:
		return protocolErrorf("unexpected scratch read-back (got=0x%02x, want=0x%02x)", p[2], dataAA)
	}

	return nil
}

// uploadFirmware configures the FPGA with the requested netlist,
// unless it is already the active one.
func (acq *Device) uploadFirmware(fw Firmware) error {
	if fw.File() == "" {
		return configErrorf("invalid firmware %v", fw)
	}

	if acq.firmware == fw {
		acq.msg.Infof("not uploading firmware file %q again", fw.File())
		return nil
	}

	acq.state = StateConfig
	defer func() {
		if acq.state == StateConfig {
			acq.state = StateIdle
		}
	}()

	// the active netlist is unknown until the upload fully succeeds.
	acq.firmware = firmwareNone

	dev := acq.dev
	err := dev.setBitbang(bbPinMask, bbBitrate)
	if err != nil {
		return wrapf(err, "could not setup cable for upload")
	}

	err = dev.initBitbang()
	if err != nil {
		return wrapf(err, "could not initiate firmware upload")
	}

	bb, err := loadFirmware(acq.cfg.loader, fw)
	if err != nil {
		return wrapf(err, "could not prepare file %q for upload", fw.File())
	}

	acq.msg.Infof("uploading firmware file %q (%d bytes)...", fw.File(), len(bb)/16)
	err = dev.write(bb)
	if err != nil {
		return wrapf(err, "could not upload firmware file %q", fw.File())
	}

	err = dev.setFIFO()
	if err != nil {
		return wrapf(err, "could not setup cable after upload")
	}

	err = dev.purge()
	if err != nil {
		return err
	}

	err = dev.drain()
	if err != nil {
		return err
	}

	err = dev.initLA()
	if err != nil {
		return wrapf(err, "hardware response after firmware upload failed")
	}

	acq.state = StateIdle
	acq.firmware = fw
	acq.msg.Infof("firmware %q uploaded", fw.File())

	return nil
}

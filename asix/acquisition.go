// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"fmt"
	"strings"

	"github.com/go-daq/tdaq/log"
)

// State is the state of the acquisition controller.
type State uint8

const (
	StateIdle     State = iota // no acquisition running
	StateConfig                // uploading firmware
	StateCapture               // acquisition running
	StateStopping              // stop requested, download pending
	StateDownload              // retrieving sample memory
)

func (st State) String() string {
	switch st {
	case StateIdle:
		return "idle"
	case StateConfig:
		return "config"
	case StateCapture:
		return "capture"
	case StateStopping:
		return "stopping"
	case StateDownload:
		return "download"
	}
	return fmt.Sprintf("State(%d)", uint8(st))
}

// ClockEdge selects the edges of an external clock that sample the channels.
type ClockEdge uint8

const (
	EdgeRising ClockEdge = iota
	EdgeFalling
	EdgeEither
)

func (e ClockEdge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeEither:
		return "either"
	}
	return fmt.Sprintf("ClockEdge(%d)", uint8(e))
}

// ParseClockEdge parses the name of a clock edge.
func ParseClockEdge(name string) (ClockEdge, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "rising", "r":
		return EdgeRising, nil
	case "falling", "f":
		return EdgeFalling, nil
	case "either", "e":
		return EdgeEither, nil
	}
	return 0, configErrorf("invalid clock edge %q", name)
}

// Clock describes the sampling clock of an acquisition.
type Clock struct {
	Samplerate uint64    // samplerate in Hz, for the internal clock
	External   bool      // whether an external clock is used
	Pin        int       // zero-based channel of the external clock
	Edge       ClockEdge // edges of the external clock
}

// Device is an ASIX SIGMA logic analyzer.
//
// A Device is not safe for concurrent use: Start, Stop and Poll are
// expected to be called from a single event loop.
type Device struct {
	msg log.MsgStream
	cfg config
	dev *device
	ser Serial

	state    State
	firmware Firmware // active netlist
	clock    Clock
	channels int // number of usable channels
	limits   Limits
	ratio    uint64
	trigger  Trigger

	useTriggers bool
	acquire     swLimits // acquisition timeout
	lateTimeout bool     // whether the timeout starts on trigger

	interp interp
	sink   Sink
}

// Open opens the SIGMA device with the given serial number.
func Open(serial string, opts ...Option) (*Device, error) {
	ser, err := ParseSerial(serial)
	if err != nil {
		return nil, err
	}
	if !ser.Model.Supported() {
		return nil, configErrorf("unsupported device model %v (serial=%q)", ser.Model, serial)
	}

	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}

	dev, err := newDevice(VendorID, ProductID, ser.Text)
	if err != nil {
		return nil, err
	}

	acq := newAcquisition(dev, ser, cfg)
	acq.msg.Infof("opened %v device %v", ser.Model, dev)
	return acq, nil
}

func buildConfig(opts []Option) (config, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ratio > 100 {
		return cfg, configErrorf("invalid capture ratio %d", cfg.ratio)
	}
	if cfg.chunks <= 0 {
		cfg.chunks = chunksPerPoll
	}
	if cfg.loader == nil {
		cfg.loader = NewDirLoader()
	}
	return cfg, nil
}

func newAcquisition(dev *device, ser Serial, cfg config) *Device {
	acq := &Device{
		msg:      cfg.msg,
		cfg:      cfg,
		dev:      dev,
		ser:      ser,
		state:    StateIdle,
		firmware: firmwareNone,
		clock:    Clock{Samplerate: samplerates[0]},
		channels: NumChannels,
		limits:   cfg.limits,
		ratio:    cfg.ratio,
		acquire:  newSWLimits(Limits{}, cfg.now),
	}
	acq.interp.spe = 1
	return acq
}

// Close releases the resources of the device.
func (acq *Device) Close() error {
	acq.interp.release()
	acq.state = StateIdle
	return acq.dev.close()
}

func (acq *Device) Serial() Serial        { return acq.ser }
func (acq *Device) State() State          { return acq.state }
func (acq *Device) Clock() Clock          { return acq.clock }
func (acq *Device) Limits() Limits        { return acq.limits }
func (acq *Device) CaptureRatio() uint64  { return acq.ratio }
func (acq *Device) Trigger() Trigger      { return acq.trigger }
func (acq *Device) Firmware() Firmware    { return acq.firmware }
func (acq *Device) Channels() int         { return acq.channels }
func (acq *Device) Logger() log.MsgStream { return acq.msg }

func (acq *Device) checkIdle() error {
	if acq.state != StateIdle {
		return configErrorf("device is busy (state=%v)", acq.state)
	}
	return nil
}

// Configure sets the sampling clock.
func (acq *Device) Configure(clk Clock) error {
	err := acq.checkIdle()
	if err != nil {
		return err
	}
	if clk.External {
		if clk.Pin < 0 || clk.Pin >= NumChannels {
			return configErrorf("invalid external clock pin %d", clk.Pin)
		}
		if clk.Edge > EdgeEither {
			return configErrorf("invalid external clock edge %v", clk.Edge)
		}
		if clk.Samplerate == 0 {
			clk.Samplerate = 50 * MHz
		}
	}
	_, err = NormalizeSamplerate(clk.Samplerate)
	if err != nil {
		return err
	}
	acq.clock = clk
	return nil
}

// SetSamplerate sets the samplerate of the internal clock.
func (acq *Device) SetSamplerate(rate uint64) error {
	clk := acq.clock
	clk.Samplerate = rate
	return acq.Configure(clk)
}

// SetLimits sets the sample count and time limits of acquisitions.
func (acq *Device) SetLimits(lim Limits) error {
	err := acq.checkIdle()
	if err != nil {
		return err
	}
	acq.limits = lim
	return nil
}

// SetCaptureRatio sets the percentage of samples to keep before the trigger.
func (acq *Device) SetCaptureRatio(ratio uint64) error {
	err := acq.checkIdle()
	if err != nil {
		return err
	}
	if ratio > 100 {
		return configErrorf("invalid capture ratio %d", ratio)
	}
	acq.ratio = ratio
	return nil
}

// SetTrigger sets the trigger of acquisitions.
// Constraints depending on the samplerate are checked by Start.
func (acq *Device) SetTrigger(trg Trigger) error {
	err := acq.checkIdle()
	if err != nil {
		return err
	}
	for _, m := range trg.Matches {
		if m.Channel < 0 || m.Channel >= NumChannels {
			return configErrorf("invalid trigger channel %d", m.Channel)
		}
		if m.Cond > CondFalling {
			return configErrorf("invalid trigger condition %v", m.Cond)
		}
	}
	acq.trigger = Trigger{Matches: append([]Match(nil), trg.Matches...)}
	return nil
}

// Start programs the device and starts an acquisition.
// Samples are sent to sink as they are retrieved by Poll.
func (acq *Device) Start(sink Sink) error {
	err := acq.checkIdle()
	if err != nil {
		return err
	}
	if sink == nil {
		sink = Discard
	}

	if acq.clock.External && acq.clock.Samplerate != 50*MHz {
		acq.msg.Infof("external clock, forcing 50MHz samplerate")
		acq.clock.Samplerate = 50 * MHz
	}

	rate, err := NormalizeSamplerate(acq.clock.Samplerate)
	if err != nil {
		return err
	}
	_, nchans, err := firmwareFor(rate)
	if err != nil {
		return err
	}
	spec, use, err := convertTrigger(acq.trigger, rate, nchans)
	if err != nil {
		return wrapf(err, "could not configure trigger")
	}

	err = acq.setSamplerate()
	if err != nil {
		return err
	}
	acq.useTriggers = use
	acq.interp.spec = spec
	acq.interp.useTriggers = use
	acq.setAcquireTimeout()

	err = acq.writeTrigger(spec, use)
	if err != nil {
		return err
	}

	err = acq.writeClock()
	if err != nil {
		return err
	}

	err = acq.dev.setRegister(wregPostTrigger, uint8(acq.ratio*255/100))
	if err != nil {
		return wrapf(err, "could not setup post-trigger time")
	}

	// the session header goes out before the hardware is armed.
	err = sink.Header(Header{
		Start:      acq.cfg.now(),
		Samplerate: acq.clock.Samplerate,
		Channels:   acq.channels,
		UnitSize:   sampleUnitSize,
	})
	if err != nil {
		return ioErrorf(err, "could not send session header")
	}

	mode := uint8(wmrTrgRes | wmrSDRAMWriteEn)
	if use {
		mode |= wmrTrgEn
	}
	err = acq.dev.setRegister(wregMode, mode)
	if err != nil {
		err = wrapf(err, "could not start acquisition")
		if eerr := sink.End(); eerr != nil {
			acq.msg.Warnf("could not send end of session: %+v", eerr)
		}
		return err
	}

	acq.sink = sink
	acq.state = StateCapture
	acq.msg.Debugf("acquisition started (rate=%s, trigger=%q)",
		FormatSamplerate(acq.clock.Samplerate), acq.trigger,
	)

	return nil
}

func (acq *Device) setAcquireTimeout() {
	acq.lateTimeout = false
	ms := acquireTimeout(acq.limits, acq.clock.Samplerate, acq.ratio, acq.useTriggers)
	acq.acquire = newSWLimits(Limits{Msec: ms}, acq.cfg.now)
	if ms == 0 {
		return
	}

	// the time from acquisition start to trigger match is unknown.
	if acq.useTriggers {
		acq.lateTimeout = true
		return
	}
	acq.acquire.startAcq()
}

// writeTrigger programs the hardware trigger.
func (acq *Device) writeTrigger(spec triggerSpec, use bool) error {
	dev := acq.dev

	err := dev.setRegister(wregTriggerSel2, trgsel2Reset)
	if err != nil {
		return wrapf(err, "could not enter trigger programming mode")
	}

	var trgsel2 uint8
	switch {
	case acq.clock.Samplerate >= 100*MHz:
		// magic value of the 100 and 200MHz netlists.
		err = dev.setRegister(wregTriggerSel2, 0x81)
		if err != nil {
			return wrapf(err, "could not setup fast trigger")
		}

		pin := 0
		for ; pin < 8; pin++ {
			bit := uint16(1) << uint(pin)
			if spec.edgeMask()&bit != 0 {
				break
			}
		}
		trgsel2 = uint8(pin)&trgsel2PinsMask | trgsel2LEDSel1
		if spec.fallingMask != 0 {
			trgsel2 |= trgsel2PinpolRise
		}

	default:
		lut := buildBasicTrigger(spec, use)
		err = dev.writeTriggerLUT(&lut)
		if err != nil {
			return err
		}
		trgsel2 = trgsel2LEDSel1 | trgsel2LEDSel0
	}

	// trigger out pin follows the trigger.
	opt := uint8(trgoptTrgOOutEn)
	err = dev.writeRegister(wregTriggerOption, opt, opt&^trgoptClearMask|trgoptTrgOEn)
	if err != nil {
		return wrapf(err, "could not setup trigger in/out pins")
	}

	err = dev.setRegister(wregTriggerSel2, trgsel2)
	if err != nil {
		return wrapf(err, "could not leave trigger programming mode")
	}
	return nil
}

// writeClock programs the clock source and disables unavailable channels.
func (acq *Device) writeClock() error {
	pindis := ^channelMask(acq.channels)
	if acq.clock.Samplerate > 50*MHz {
		err := acq.dev.setRegister(wregClockSelect, uint8(pindis))
		if err != nil {
			return wrapf(err, "could not setup clock")
		}
		return nil
	}

	var (
		async = uint8(0)
		div   = uint8(50*MHz/acq.clock.Samplerate - 1)
	)
	if clk := acq.clock; clk.External {
		async = clkselClksel8
		div = uint8(clk.Pin + 1)
		switch clk.Edge {
		case EdgeRising:
			div |= clkselRising
		case EdgeFalling:
			div |= clkselFalling
		case EdgeEither:
			div |= clkselRising | clkselFalling
		}
	}

	err := acq.dev.writeRegister(wregClockSelect, async, div, uint8(pindis>>8), uint8(pindis))
	if err != nil {
		return wrapf(err, "could not setup clock")
	}
	return nil
}

// Stop requests the end of the acquisition.
// A running capture is downloaded by the next calls to Poll.
// An ongoing download is abandoned.
func (acq *Device) Stop() error {
	switch acq.state {
	case StateCapture:
		acq.state = StateStopping
		return nil
	case StateStopping:
		return nil
	case StateDownload:
		var err error
		if buf := acq.interp.buf; buf != nil {
			err = buf.flush()
		}
		acq.interp.release()
		acq.state = StateIdle
		if eerr := acq.end(); err == nil {
			err = eerr
		}
		return err
	}
	acq.state = StateIdle
	return nil
}

// Poll makes progress on the acquisition. It reports whether Poll should
// be called again: false is returned once the acquisition has completed
// and the end of the stream has been sent to the sink, or on error.
// An error leaves the device in the idle state.
func (acq *Device) Poll() (bool, error) {
	var (
		more bool
		err  error
	)
	switch acq.state {
	case StateIdle, StateConfig:
		return false, nil
	case StateStopping, StateDownload:
		more, err = acq.download()
	case StateCapture:
		more, err = acq.capture()
	default:
		return false, protocolErrorf("invalid state %v", acq.state)
	}

	if err != nil {
		acq.interp.release()
		acq.state = StateIdle
		return false, err
	}
	return more, nil
}

// capture checks the status of a running acquisition, and starts the
// download once the acquisition has completed.
func (acq *Device) capture() (bool, error) {
	pos, err := acq.dev.readPos()
	if err != nil {
		return false, err
	}

	switch {
	case pos.mode&rmrPostTriggered != 0:
		return acq.download()
	case acq.acquire.reached():
		return acq.download()
	}

	if acq.lateTimeout && pos.mode&rmrTriggered != 0 {
		acq.acquire.startAcq()
		acq.lateTimeout = false
	}

	// without trigger, the acquisition would keep going once the memory
	// has been filled.
	if !acq.useTriggers && pos.mode&rmrRound != 0 {
		return acq.download()
	}

	return true, nil
}

// maxStopPolls bounds the number of mode register reads while waiting
// for a forced stop to complete.
const maxStopPolls = 1000

// download retrieves and interprets the sample memory, a bounded number
// of DRAM fetches at a time.
func (acq *Device) download() (bool, error) {
	dev := acq.dev

	mode, err := dev.getRegister(rregMode)
	if err != nil {
		return false, wrapf(err, "could not determine current device state")
	}
	if mode&rmrPostTriggered == 0 {
		acq.msg.Infof("downloading sample data")
		acq.state = StateDownload

		// the hardware stores clusters regardless of pin changes from
		// now on, and raises POSTTRIGGERED.
		err = dev.setRegister(wregMode, wmrForceStop|wmrSDRAMWriteEn)
		if err != nil {
			return false, wrapf(err, "could not stop acquisition")
		}
		for i := 0; mode&rmrPostTriggered == 0; i++ {
			if i >= maxStopPolls {
				return false, timeoutErrorf("device did not reach post-trigger state")
			}
			mode, err = dev.getRegister(rregMode)
			if err != nil {
				return false, wrapf(err, "could not poll for post-trigger state")
			}
		}
	}
	acq.state = StateDownload

	ip := &acq.interp
	if !ip.active() {
		err = dev.setRegister(wregMode, wmrSDRAMReadEn)
		if err != nil {
			return false, wrapf(err, "could not switch to DRAM read mode")
		}

		pos, err := dev.readPos()
		if err != nil {
			return false, wrapf(err, "could not query capture positions/state")
		}

		trig := pos.trig
		if !acq.useTriggers || pos.mode&rmrTriggered == 0 {
			trig = ^uint32(0)
		}

		ip.setup(pos.stop, trig, pos.mode)
		limit := newSWLimits(Limits{Samples: acq.limits.Samples}, acq.cfg.now)
		limit.startAcq()
		ip.buf = newSubmitBuffer(acq.sink, chunkSize, limit, !acq.useTriggers)
		ip.sink = acq.sink
		acq.msg.Debugf("download %d rows from %v to %v (trigger=%v)",
			ip.fetch.total, ip.start, ip.stop, ip.trig,
		)
	}

	for chunks := acq.cfg.chunks; ip.fetch.done < ip.fetch.total; {
		row, n := ip.next()
		rows := ip.fetch.rows[:n*rowLengthBytes]
		err = dev.readDRAM(row, n, rows)
		if err != nil {
			return false, err
		}
		if ip.fetch.done == 0 {
			err = ip.seed(rows)
			if err != nil {
				return false, err
			}
		}

		err = ip.decodeRows(rows, n)
		if err != nil {
			return false, err
		}

		chunks--
		if chunks == 0 {
			err = ip.buf.flush()
			if err != nil {
				return false, err
			}
			break
		}
	}

	if ip.fetch.done < ip.fetch.total {
		return true, nil
	}

	err = ip.buf.flush()
	if err != nil {
		return false, err
	}
	n := ip.buf.samples()
	ip.release()
	acq.state = StateIdle

	err = acq.end()
	if err != nil {
		return false, err
	}
	acq.msg.Infof("acquisition completed: %d samples", n)

	return false, nil
}

func (acq *Device) end() error {
	sink := acq.sink
	acq.sink = nil
	if sink == nil {
		return nil
	}
	err := sink.End()
	if err != nil {
		return ioErrorf(err, "could not send end of session")
	}
	return nil
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"sort"

	"github.com/go-daq/tdaq/log"
	"github.com/ziutek/ftdi"
)

// DeviceInfo describes a connected ASIX device.
type DeviceInfo struct {
	VendorID  uint16
	ProductID uint16
	Serial    Serial
	Desc      string // USB product description
}

type usbInfo struct {
	desc   string
	serial string
}

var (
	ftdiFindAll = ftdiFindAllImpl
)

func ftdiFindAllImpl(vid, pid uint16) ([]usbInfo, error) {
	lst, err := ftdi.FindAll(int(vid), int(pid))
	if err != nil {
		return nil, err
	}
	o := make([]usbInfo, 0, len(lst))
	for _, dev := range lst {
		o = append(o, usbInfo{desc: dev.Description, serial: dev.Serial})
		dev.Close()
	}
	return o, nil
}

// Scan lists the connected SIGMA and SIGMA2 devices.
// Devices with an unexpected serial number and unsupported models
// are reported to msg and skipped. msg may be nil.
func Scan(msg log.MsgStream) ([]DeviceInfo, error) {
	var devs []DeviceInfo
	for _, pid := range []uint16{ProductID, ProductIDOmega} {
		lst, err := ftdiFindAll(VendorID, pid)
		if err != nil {
			return nil, ioErrorf(err, "could not list USB devices (vid=0x%x, pid=0x%x)", VendorID, pid)
		}
		for _, usb := range lst {
			ser, err := ParseSerial(usb.serial)
			if err != nil {
				if msg != nil {
					msg.Warnf("skipping device with serial %q: %+v", usb.serial, err)
				}
				continue
			}
			if !ser.Model.Supported() {
				if msg != nil {
					msg.Warnf("skipping unsupported %v device (serial=%q)", ser.Model, usb.serial)
				}
				continue
			}
			devs = append(devs, DeviceInfo{
				VendorID:  VendorID,
				ProductID: pid,
				Serial:    ser,
				Desc:      usb.desc,
			})
		}
	}

	sort.Slice(devs, func(i, j int) bool {
		return devs[i].Serial.Num < devs[j].Serial.Num
	})

	return devs, nil
}

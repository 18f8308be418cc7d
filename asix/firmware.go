// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-lpc/sigma/internal/mmap"
)

// Firmware identifies one of the FPGA netlists of a SIGMA.
type Firmware int

const (
	Firmware50MHz  Firmware = iota // 50MHz, 8bit divider
	Firmware100MHz                 // 100MHz, fixed
	Firmware200MHz                 // 200MHz, fixed
	FirmwareSync                   // sync from external pin
	FirmwareFreq                   // frequency counter

	firmwareNone Firmware = -1
)

var firmwareFiles = [...]string{
	Firmware50MHz:  "asix-sigma-50.fw",
	Firmware100MHz: "asix-sigma-100.fw",
	Firmware200MHz: "asix-sigma-200.fw",
	FirmwareSync:   "asix-sigma-50sync.fw",
	FirmwareFreq:   "asix-sigma-phasor.fw",
}

// File returns the name of the netlist file.
func (fw Firmware) File() string {
	if fw < 0 || int(fw) >= len(firmwareFiles) {
		return ""
	}
	return firmwareFiles[fw]
}

func (fw Firmware) String() string {
	if name := fw.File(); name != "" {
		return name
	}
	return fmt.Sprintf("Firmware(%d)", int(fw))
}

// FirmwareSizeLimit is the maximum size of a netlist file.
const FirmwareSizeLimit = 256 * 1024

// FirmwareLoader retrieves netlist files.
type FirmwareLoader interface {
	Load(name string) (Netlist, error)
}

// Netlist is a read-only netlist image, valid until closed.
type Netlist interface {
	Len() int
	At(i int) byte
	Close() error
}

// Image is an in-memory netlist image.
type Image []byte

func (img Image) Len() int      { return len(img) }
func (img Image) At(i int) byte { return img[i] }
func (Image) Close() error      { return nil }

// DirLoader loads netlist files from a list of directories.
// The first directory holding the requested file wins.
type DirLoader struct {
	Dirs []string
	Max  int64 // maximum file size. Zero means FirmwareSizeLimit.
}

// NewDirLoader returns a loader searching dirs, or the default
// firmware directories if dirs is empty.
func NewDirLoader(dirs ...string) *DirLoader {
	if len(dirs) == 0 {
		dirs = DefaultFirmwareDirs()
	}
	return &DirLoader{Dirs: dirs}
}

// DefaultFirmwareDirs returns the directories searched for netlist files.
func DefaultFirmwareDirs() []string {
	var dirs []string
	if dir := os.Getenv("SIGROK_FIRMWARE_DIR"); dir != "" {
		dirs = append(dirs, dir)
	}
	switch dir := os.Getenv("XDG_DATA_HOME"); dir {
	case "":
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, filepath.Join(home, ".local", "share", "sigrok-firmware"))
		}
	default:
		dirs = append(dirs, filepath.Join(dir, "sigrok-firmware"))
	}
	return append(dirs,
		"/usr/local/share/sigrok-firmware",
		"/usr/share/sigrok-firmware",
	)
}

// Load maps the named netlist file in memory.
// The mapping is released when the returned netlist is closed.
func (ld *DirLoader) Load(name string) (Netlist, error) {
	max := ld.Max
	if max <= 0 {
		max = FirmwareSizeLimit
	}

	for _, dir := range ld.Dirs {
		fname := filepath.Join(dir, name)
		h, err := mmap.Open(fname, max)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if errors.Is(err, mmap.ErrTooLarge) {
				return nil, configErrorf("firmware file %q exceeds %d bytes", fname, max)
			}
			return nil, ioErrorf(err, "could not load firmware file %q", fname)
		}
		return h, nil
	}

	return nil, ioErrorf(fs.ErrNotExist, "could not find firmware file %q in %q", name, ld.Dirs)
}

// scrambler generates the vendor's pseudo-random sequence netlist
// images are XORed with.
type scrambler uint32

func newScrambler() scrambler { return 0x3f6df2ab }

func (key *scrambler) next() byte {
	v := uint32(*key)
	v = (v+0xa853753)%177 + v*0x8034052
	*key = scrambler(v)
	return byte(v)
}

// appendBitbang expands a netlist byte into bitbang samples for slave
// serial configuration: two samples per bit, MSB first.
// CCLK is inverted by the cable, DIN is stable across the rising edge.
func appendBitbang(out []byte, b byte) []byte {
	for mask := uint8(0x80); mask != 0; mask >>= 1 {
		var v uint8
		if b&mask != 0 {
			v = bbPinDIN
		}
		out = append(out, v|bbPinCCLK, v)
	}
	return out
}

// loadFirmware retrieves a netlist and transforms it into its bitbang
// wire format, descrambling it on the fly.
func loadFirmware(ld FirmwareLoader, fw Firmware) ([]byte, error) {
	name := fw.File()
	if name == "" {
		return nil, configErrorf("invalid firmware %v", fw)
	}
	nl, err := ld.Load(name)
	if err != nil {
		return nil, wrapf(err, "could not load firmware %q", name)
	}
	defer nl.Close()

	n := nl.Len()
	if n > FirmwareSizeLimit {
		return nil, configErrorf("firmware file %q exceeds %d bytes", name, FirmwareSizeLimit)
	}

	var (
		key = newScrambler()
		out = make([]byte, 0, n*8*2)
	)
	for i := 0; i < n; i++ {
		out = appendBitbang(out, nl.At(i)^key.next())
	}

	err = nl.Close()
	if err != nil {
		return nil, ioErrorf(err, "could not release firmware %q", name)
	}
	return out, nil
}

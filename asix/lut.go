// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

// triggerOp is a 2x2 edge/level primitive of the trigger glue logic.
type triggerOp uint8

const (
	opLevel triggerOp = iota
	opNot
	opRise
	opFall
	opRiseFall
	opNotRise
	opNotFall
	opNotRiseFall
)

// triggerFunc combines a primitive with an existing LUT mask.
type triggerFunc uint8

const (
	funcAnd triggerFunc = iota
	funcNand
	funcOr
	funcNor
	funcXor
	funcNxor
)

// triggerParams holds the selector/comparator parameters of the trigger.
type triggerParams struct {
	selc    uint8
	selpres uint8
	selinc  uint8
	selres  uint8
	sela    uint8
	selb    uint8
	cmpb    uint16
	cmpa    uint16
}

func (p triggerParams) selreg() uint16 {
	var v uint16
	v |= uint16(p.selinc&trgselSelincMask) << trgselSelincShift
	v |= uint16(p.selres&trgselSelresMask) << trgselSelresShift
	v |= uint16(p.sela&trgselSelaMask) << trgselSelaShift
	v |= uint16(p.selb&trgselSelbMask) << trgselSelbShift
	v |= uint16(p.selc&trgselSelcMask) << trgselSelcShift
	v |= uint16(p.selpres&trgselSelprescMask) << trgselSelprescShift
	return v
}

// triggerLUT is the hardware form of a trigger.
// m0d, m1d and m2d hold one 16-entry truth table per quad of channels,
// m3q, m3s and m4 are the glue logic masks.
type triggerLUT struct {
	m2d [4]uint16
	m1d [4]uint16
	m0d [4]uint16
	m3q uint16
	m3s uint16
	m4  uint16

	params triggerParams
}

// buildLUTEntry fills one truth table per quad so that entry i of quad q
// is set iff the channels of q selected by mask have the levels of value,
// when the channels of q read as the 4-bit pattern i.
func buildLUTEntry(entry *[4]uint16, value, mask uint16) {
	for quad := 0; quad < 4; quad++ {
		entry[quad] = 0xffff
		for idx := 0; idx < 16; idx++ {
			for ch := 0; ch < 4; ch++ {
				qmask := uint16(1) << uint(ch)
				bit := qmask << uint(quad*4)
				if mask&bit == 0 {
					continue
				}
				var (
					valueLow = value&bit == 0
					idxLow   = uint16(idx)&qmask == 0
				)
				if valueLow == idxLow {
					continue
				}
				entry[quad] &^= 1 << uint(idx)
			}
		}
	}
}

// opTable returns the truth table x[b][a] of a primitive,
// a being the current level and b the previous one.
func opTable(op triggerOp) [2][2]uint8 {
	var x [2][2]uint8
	switch op {
	case opLevel:
		x[0][1] = 1
		x[1][1] = 1
	case opNot:
		x[0][0] = 1
		x[1][0] = 1
	case opRise:
		x[0][1] = 1
	case opFall:
		x[1][0] = 1
	case opRiseFall:
		x[0][1] = 1
		x[1][0] = 1
	case opNotRise:
		x[1][1] = 1
		x[0][0] = 1
		x[1][0] = 1
	case opNotFall:
		x[1][1] = 1
		x[0][0] = 1
		x[0][1] = 1
	case opNotRiseFall:
		x[1][1] = 1
		x[0][0] = 1
	}
	return x
}

// addTriggerFunction folds the primitive op on the index-th pair of
// LUT address bits into mask, with the combinator fct.
// Negation point-reflects the truth table.
func addTriggerFunction(op triggerOp, fct triggerFunc, index int, neg bool, mask *uint16) {
	x := opTable(op)
	if neg {
		x[0][0], x[1][1] = x[1][1], x[0][0]
		x[0][1], x[1][0] = x[1][0], x[0][1]
	}

	for idx := 0; idx < 16; idx++ {
		var (
			a    = uint8(idx>>uint(2*index)) & 1
			b    = uint8(idx>>uint(2*index+1)) & 1
			aset = uint8(*mask>>uint(idx)) & 1
			bset = x[b][a]
			rset uint8
		)

		switch fct {
		case funcAnd, funcNand:
			rset = aset & bset
		case funcOr, funcNor:
			rset = aset | bset
		case funcXor, funcNxor:
			rset = aset ^ bset
		}

		switch fct {
		case funcNand, funcNor, funcNxor:
			rset = 1 - rset
		}

		if rset != 0 {
			*mask |= 1 << uint(idx)
		} else {
			*mask &^= 1 << uint(idx)
		}
	}
}

// buildBasicTrigger compiles a trigger for the 50MHz netlist.
// Any value/mask pattern is supported, together with up to two edges.
// Without triggers, the LUT never matches.
func buildBasicTrigger(spec triggerSpec, use bool) triggerLUT {
	var lut triggerLUT
	if !use {
		return lut
	}

	lut.m4 = 0xa000
	lut.m3q = 0xffff

	buildLUTEntry(&lut.m2d, spec.simpleValue, spec.simpleMask)

	var (
		masks [maxEdges]uint16
		n     = 0
		edges = spec.edgeMask()
	)
	for i := 0; i < 16 && n < len(masks); i++ {
		bit := uint16(1) << uint(i)
		if edges&bit == 0 {
			continue
		}
		switch n {
		case 0:
			buildLUTEntry(&lut.m0d, bit, bit)
		case 1:
			buildLUTEntry(&lut.m1d, bit, bit)
		}
		masks[n] = bit
		n++
	}

	if masks[0] != 0 || masks[1] != 0 {
		lut.m3q = 0
		for i, m := range masks {
			if m&spec.risingMask != 0 {
				addTriggerFunction(opRise, funcOr, i, false, &lut.m3q)
			}
			if m&spec.fallingMask != 0 {
				addTriggerFunction(opFall, funcOr, i, false, &lut.m3q)
			}
		}
	}

	// trigger type: event.
	lut.params.selres = trgselCodeNever
	lut.params.selinc = trgselCodeLevel
	lut.params.sela = 0 // counter >= cmpa && level
	lut.params.cmpa = 0 // count 0 -> 1 already triggers

	return lut
}

// lutReg returns the TRIGGER_SELECT value of LUT address addr.
func (lut *triggerLUT) lutReg(addr int) uint16 {
	bit := uint16(1) << uint(addr)
	nibble := func(v *[4]uint16) uint16 {
		var o uint16
		for i := range v {
			if v[i]&bit != 0 {
				o |= 1 << uint(i)
			}
		}
		return o
	}

	var m3d uint16
	if lut.m4&bit != 0 {
		m3d |= 1 << 2
	}
	if lut.m3s&bit != 0 {
		m3d |= 1 << 1
	}
	if lut.m3q&bit != 0 {
		m3d |= 1 << 0
	}

	return m3d<<12 | nibble(&lut.m2d)<<8 | nibble(&lut.m1d)<<4 | nibble(&lut.m0d)
}

// writeTriggerLUT sends the LUT and its parameters to the device.
// RESET is held during the whole LUT programming.
func (dev *device) writeTriggerLUT(lut *triggerLUT) error {
	for addr := 0; addr < 16; addr++ {
		err := dev.writeRegister(wregTriggerSelect, u16be(lut.lutReg(addr))...)
		if err != nil {
			return wrapf(err, "could not write trigger LUT entry %d", addr)
		}
		err = dev.setRegister(wregTriggerSel2, trgsel2Reset|trgsel2LUTWrite|uint8(addr)&trgsel2LUTAddrMask)
		if err != nil {
			return wrapf(err, "could not strobe trigger LUT entry %d", addr)
		}
	}

	buf := make([]byte, 0, 6)
	buf = append(buf, u16be(lut.params.selreg())...)
	buf = append(buf, u16be(lut.params.cmpb)...)
	buf = append(buf, u16be(lut.params.cmpa)...)
	err := dev.writeRegister(wregTriggerSelect, buf...)
	if err != nil {
		return wrapf(err, "could not write trigger parameters")
	}
	return nil
}

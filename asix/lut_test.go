// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"testing"
)

func TestBuildLUTEntry(t *testing.T) {
	for _, tc := range []struct {
		value, mask uint16
	}{
		{0x0000, 0x0000},
		{0x0001, 0x0001},
		{0x0000, 0x0001},
		{0xa5c3, 0xffff},
		{0x1234, 0xf0f0},
		{0x8001, 0x8421},
		{0xffff, 0x0f00},
	} {
		var entry [4]uint16
		buildLUTEntry(&entry, tc.value, tc.mask)
		for quad := 0; quad < 4; quad++ {
			for idx := 0; idx < 16; idx++ {
				want := true
				for ch := 0; ch < 4; ch++ {
					bit := uint16(1) << uint(4*quad+ch)
					if tc.mask&bit == 0 {
						continue
					}
					lvl := (idx>>uint(ch))&1 == 1
					if lvl != (tc.value&bit != 0) {
						want = false
					}
				}
				got := entry[quad]&(1<<uint(idx)) != 0
				if got != want {
					t.Fatalf(
						"invalid entry (value=0x%04x, mask=0x%04x, quad=%d, idx=%d): got=%v, want=%v",
						tc.value, tc.mask, quad, idx, got, want,
					)
				}
			}
		}
	}
}

func TestAddTriggerFunction(t *testing.T) {
	for _, tc := range []struct {
		name  string
		op    triggerOp
		fct   triggerFunc
		index int
		neg   bool
		mask  uint16
		want  uint16
	}{
		{"rise-0", opRise, funcOr, 0, false, 0x0000, 0x2222},
		{"fall-0", opFall, funcOr, 0, false, 0x0000, 0x4444},
		{"rise-1", opRise, funcOr, 1, false, 0x0000, 0x00f0},
		{"fall-1", opFall, funcOr, 1, false, 0x0000, 0x0f00},
		{"rise-or-fall", opFall, funcOr, 0, false, 0x2222, 0x6666},
		{"risefall", opRiseFall, funcOr, 0, false, 0x0000, 0x6666},
		{"level-and", opLevel, funcAnd, 0, false, 0xffff, 0xaaaa},
		{"level-nand", opLevel, funcNand, 0, false, 0xffff, 0x5555},
		{"level-xor", opLevel, funcXor, 0, false, 0xffff, 0x5555},
		{"level-nxor", opLevel, funcNxor, 0, false, 0xffff, 0xaaaa},
		{"level-nor", opLevel, funcNor, 0, false, 0x0000, 0x5555},
		{"not", opNot, funcOr, 0, false, 0x0000, 0x5555},
		{"neg-level", opLevel, funcOr, 0, true, 0x0000, 0x5555},
		{"neg-rise", opRise, funcOr, 0, true, 0x0000, 0x4444},
		{"not-rise", opNotRise, funcOr, 0, false, 0x0000, 0xdddd},
		{"not-fall", opNotFall, funcOr, 0, false, 0x0000, 0xbbbb},
		{"not-risefall", opNotRiseFall, funcOr, 0, false, 0x0000, 0x9999},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mask := tc.mask
			addTriggerFunction(tc.op, tc.fct, tc.index, tc.neg, &mask)
			if mask != tc.want {
				t.Fatalf("invalid mask: got=0x%04x, want=0x%04x", mask, tc.want)
			}
		})
	}
}

func TestBuildBasicTrigger(t *testing.T) {
	lut := buildBasicTrigger(triggerSpec{risingMask: 0x4}, false)
	if lut != (triggerLUT{}) {
		t.Fatalf("unused trigger should give an empty LUT: %+v", lut)
	}

	lut = buildBasicTrigger(triggerSpec{
		simpleValue: 0x1,
		simpleMask:  0x1,
		risingMask:  0x4,
	}, true)

	if got, want := lut.m4, uint16(0xa000); got != want {
		t.Fatalf("invalid m4: got=0x%04x, want=0x%04x", got, want)
	}
	if got, want := lut.m3q, uint16(0x2222); got != want {
		t.Fatalf("invalid m3q: got=0x%04x, want=0x%04x", got, want)
	}
	if got, want := lut.m2d, [4]uint16{0xaaaa, 0xffff, 0xffff, 0xffff}; got != want {
		t.Fatalf("invalid m2d: got=%04x, want=%04x", got, want)
	}
	if got, want := lut.m1d, [4]uint16{}; got != want {
		t.Fatalf("invalid m1d: got=%04x, want=%04x", got, want)
	}
	if got, want := lut.m0d, [4]uint16{0xf0f0, 0xffff, 0xffff, 0xffff}; got != want {
		t.Fatalf("invalid m0d: got=%04x, want=%04x", got, want)
	}
	if got, want := lut.params.selreg(), uint16(0x000c); got != want {
		t.Fatalf("invalid selreg: got=0x%04x, want=0x%04x", got, want)
	}

	for _, tc := range []struct {
		addr int
		want uint16
	}{
		{0, 0x0e0e},
		{13, 0x5f0f},
	} {
		if got := lut.lutReg(tc.addr); got != tc.want {
			t.Fatalf("invalid LUT register %d: got=0x%04x, want=0x%04x", tc.addr, got, tc.want)
		}
	}
}

func TestBuildBasicTriggerTwoEdges(t *testing.T) {
	lut := buildBasicTrigger(triggerSpec{
		risingMask:  0x0100,
		fallingMask: 0x0002,
	}, true)

	// the lowest edge channel goes to m0d, the next one to m1d.
	if got, want := lut.m0d, [4]uint16{0xcccc, 0xffff, 0xffff, 0xffff}; got != want {
		t.Fatalf("invalid m0d: got=%04x, want=%04x", got, want)
	}
	if got, want := lut.m1d, [4]uint16{0xffff, 0xffff, 0xaaaa, 0xffff}; got != want {
		t.Fatalf("invalid m1d: got=%04x, want=%04x", got, want)
	}
	if got, want := lut.m3q, uint16(0x4444|0x00f0); got != want {
		t.Fatalf("invalid m3q: got=0x%04x, want=0x%04x", got, want)
	}
}

func TestWriteTriggerLUT(t *testing.T) {
	ft := newFakeFTDI()
	dev := newTestDevice(ft)

	lut := buildBasicTrigger(triggerSpec{simpleValue: 0x1, simpleMask: 0x1}, true)
	err := dev.writeTriggerLUT(&lut)
	if err != nil {
		t.Fatalf("could not write trigger LUT: %+v", err)
	}

	sel := ft.wregs[wregTriggerSelect]
	if got, want := len(sel), 16*2+6; got != want {
		t.Fatalf("invalid number of TRIGGER_SELECT writes: got=%d, want=%d", got, want)
	}
	for addr := 0; addr < 16; addr++ {
		got := uint16(sel[2*addr])<<8 | uint16(sel[2*addr+1])
		if want := lut.lutReg(addr); got != want {
			t.Fatalf("invalid LUT entry %d: got=0x%04x, want=0x%04x", addr, got, want)
		}
	}
	if got, want := sel[32:], []byte{0x00, 0x0c, 0, 0, 0, 0}; string(got) != string(want) {
		t.Fatalf("invalid trigger parameters: got=%x, want=%x", got, want)
	}

	sel2 := ft.wregs[wregTriggerSel2]
	if got, want := len(sel2), 16; got != want {
		t.Fatalf("invalid number of TRIGGER_SELECT2 writes: got=%d, want=%d", got, want)
	}
	for addr, v := range sel2 {
		if want := uint8(trgsel2Reset | trgsel2LUTWrite | addr); v != want {
			t.Fatalf("invalid LUT strobe %d: got=0x%02x, want=0x%02x", addr, v, want)
		}
	}
}

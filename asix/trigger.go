// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is the state of a channel a trigger waits for.
type Condition uint8

const (
	CondZero    Condition = iota // low level
	CondOne                      // high level
	CondRising                   // rising edge
	CondFalling                  // falling edge
)

func (c Condition) String() string {
	switch c {
	case CondZero:
		return "0"
	case CondOne:
		return "1"
	case CondRising:
		return "r"
	case CondFalling:
		return "f"
	}
	return fmt.Sprintf("Condition(%d)", uint8(c))
}

// Match is the trigger condition of a single channel.
type Match struct {
	Channel int // zero-based channel index
	Cond    Condition
}

// Trigger is a set of channel conditions that must all hold for
// the acquisition to trigger.
type Trigger struct {
	Matches []Match
}

func (trg Trigger) String() string {
	if len(trg.Matches) == 0 {
		return ""
	}
	o := new(strings.Builder)
	for i, m := range trg.Matches {
		if i > 0 {
			o.WriteString(",")
		}
		fmt.Fprintf(o, "%s=%v", ChannelNames[m.Channel], m.Cond)
	}
	return o.String()
}

// ParseTrigger parses the textual form of a trigger.
//
// Accepted forms are:
//   - a list of channel conditions: "1=1,2=0,5=r"
//   - a bit pattern, MSB first: "bits=1r10-xxxx-1111-xxxx"
//   - a value/mask pair: "value=0xa0f0,mask=0xf0f0"
//
// Conditions are 0, 1, r (rising) or f (falling).
// An empty string yields an empty trigger.
func ParseTrigger(txt string) (Trigger, error) {
	txt = strings.TrimSpace(txt)
	switch {
	case txt == "":
		return Trigger{}, nil
	case strings.HasPrefix(txt, "bits="):
		return parseTriggerBits(strings.TrimPrefix(txt, "bits="))
	case strings.HasPrefix(txt, "value="), strings.HasPrefix(txt, "mask="):
		return parseTriggerValue(txt)
	case strings.Contains(txt, "="):
		return parseTriggerList(txt)
	default:
		return parseTriggerBits(txt)
	}
}

func parseCondition(c string) (Condition, error) {
	switch strings.ToLower(c) {
	case "0":
		return CondZero, nil
	case "1":
		return CondOne, nil
	case "r":
		return CondRising, nil
	case "f":
		return CondFalling, nil
	}
	return 0, configErrorf("invalid trigger condition %q", c)
}

func parseTriggerList(txt string) (Trigger, error) {
	var trg Trigger
	for _, tok := range strings.Split(txt, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		i := strings.Index(tok, "=")
		if i < 0 {
			return trg, configErrorf("invalid trigger match %q", tok)
		}
		ch, err := ChannelIndex(tok[:i])
		if err != nil {
			return trg, wrapf(err, "invalid trigger match %q", tok)
		}
		cond, err := parseCondition(strings.TrimSpace(tok[i+1:]))
		if err != nil {
			return trg, wrapf(err, "invalid trigger match %q", tok)
		}
		trg.Matches = append(trg.Matches, Match{Channel: ch, Cond: cond})
	}
	return trg, nil
}

func parseTriggerBits(txt string) (Trigger, error) {
	var digits []rune
	for _, r := range txt {
		switch r {
		case '-', ' ', '_':
			continue
		}
		digits = append(digits, r)
	}
	if len(digits) > NumChannels {
		return Trigger{}, configErrorf("too many bits in trigger pattern %q", txt)
	}

	var trg Trigger
	for i, r := range digits {
		ch := len(digits) - 1 - i
		switch r {
		case 'x', 'X':
			continue
		}
		cond, err := parseCondition(string(r))
		if err != nil {
			return Trigger{}, wrapf(err, "invalid trigger pattern %q", txt)
		}
		trg.Matches = append(trg.Matches, Match{Channel: ch, Cond: cond})
	}
	return trg, nil
}

func parseTriggerValue(txt string) (Trigger, error) {
	var (
		value uint64
		mask  uint64 = 0xffff // all channels, unless told otherwise
	)
	for _, tok := range strings.Split(txt, ",") {
		tok = strings.TrimSpace(tok)
		i := strings.Index(tok, "=")
		if i < 0 {
			return Trigger{}, configErrorf("invalid trigger pattern %q", txt)
		}
		v, err := strconv.ParseUint(strings.TrimSpace(tok[i+1:]), 0, 16)
		if err != nil {
			return Trigger{}, configErrorf("invalid trigger pattern %q: %v", txt, err)
		}
		switch key := tok[:i]; key {
		case "value":
			value = v
		case "mask":
			mask = v
		default:
			return Trigger{}, configErrorf("invalid trigger pattern key %q", key)
		}
	}

	var trg Trigger
	for ch := NumChannels - 1; ch >= 0; ch-- {
		bit := uint64(1) << uint(ch)
		if mask&bit == 0 {
			continue
		}
		cond := CondZero
		if value&bit != 0 {
			cond = CondOne
		}
		trg.Matches = append(trg.Matches, Match{Channel: ch, Cond: cond})
	}
	return trg, nil
}

// triggerSpec is the mask/value form of a trigger.
type triggerSpec struct {
	simpleValue uint16
	simpleMask  uint16
	risingMask  uint16
	fallingMask uint16
}

func (spec triggerSpec) edgeMask() uint16 { return spec.risingMask | spec.fallingMask }

// maxEdges is the number of edge conditions the trigger LUT
// can hold below 100MHz.
const maxEdges = 2

// convertTrigger validates a trigger against the hardware constraints
// of the given samplerate and converts it into its mask/value form.
// It reports whether triggers are in use.
func convertTrigger(trg Trigger, rate uint64, nchans int) (triggerSpec, bool, error) {
	var spec triggerSpec
	if len(trg.Matches) == 0 {
		return spec, false, nil
	}

	edges := 0
	for _, m := range trg.Matches {
		if m.Channel < 0 || m.Channel >= nchans {
			return spec, false, configErrorf(
				"trigger channel %d not available at %s",
				m.Channel+1, FormatSamplerate(rate),
			)
		}
		bit := uint16(1) << uint(m.Channel)
		if rate >= 100*MHz {
			if edges > 0 {
				return spec, false, configErrorf("100/200MHz modes limited to single trigger pin")
			}
			switch m.Cond {
			case CondRising:
				spec.risingMask |= bit
			case CondFalling:
				spec.fallingMask |= bit
			default:
				return spec, false, configErrorf("100/200MHz modes limited to edge trigger")
			}
			edges++
			continue
		}

		switch m.Cond {
		case CondOne:
			spec.simpleValue |= bit
			spec.simpleMask |= bit
		case CondZero:
			spec.simpleValue &^= bit
			spec.simpleMask |= bit
		case CondRising:
			spec.risingMask |= bit
			edges++
		case CondFalling:
			spec.fallingMask |= bit
			edges++
		default:
			return spec, false, configErrorf("invalid trigger condition %v on channel %d", m.Cond, m.Channel+1)
		}
		if edges > maxEdges {
			return spec, false, configErrorf("limited to %d edge triggers", maxEdges)
		}
	}

	return spec, true, nil
}

// matches reports whether sample and its transition from last satisfy
// the trigger: all level conditions hold, and at least one of the edge
// conditions occurred, as the LUT glue logic computes it.
// Without edge conditions, only levels are checked.
func (spec triggerSpec) matches(last, sample uint16) bool {
	if sample&spec.simpleMask != spec.simpleValue {
		return false
	}
	edges := spec.edgeMask()
	if edges == 0 {
		return true
	}
	var (
		rise = ^last & sample
		fall = last &^ sample
	)
	return (rise&spec.risingMask)|(fall&spec.fallingMask) != 0
}

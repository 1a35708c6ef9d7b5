// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hardware

import "fmt"

const (
	wordWrite = 0x50000
	wordRead  = 0x51000

	// legacy TRB3 slow-control register, used by trbcmd scripts.
	RegLegacyComm = 0xa000

	// RegScalers is the first scaler register of a TDC board.
	RegScalers = 0xc001
)

var asicOffsets = [...]uint32{0x2000, 0x4000}

// MaxASICs is the maximal number of ASICs on a single cable.
const MaxASICs = len(asicOffsets)

func asicOffset(asic uint8) uint32 {
	if int(asic) >= len(asicOffsets) {
		panic(fmt.Errorf("hardware: invalid asic index %d", asic))
	}
	return asicOffsets[asic]
}

// WriteWord returns the SPI word writing val into register reg of an ASIC.
func WriteWord(asic, reg, val uint8) uint32 {
	return wordWrite | asicOffset(asic) | uint32(reg)<<8 | uint32(val)
}

// ReadWord returns the SPI word requesting the content of register reg.
func ReadWord(asic, reg uint8) uint32 {
	return wordRead | asicOffset(asic) | uint32(reg)<<8
}

// ConfigWords returns the SPI words writing a full configuration.
func ConfigWords(asic uint8, cfg ASIC) []uint32 {
	ws := cfg.Words()
	out := make([]uint32, len(ws))
	for i, v := range ws {
		out[i] = WriteWord(asic, uint8(i), uint8(v))
	}
	return out
}

// BaselineWords returns the SPI words setting all baseline registers to v.
func BaselineWords(asic, v uint8) []uint32 {
	out := make([]uint32, NumChannels)
	for i := range out {
		out[i] = WriteWord(asic, uint8(RegBL0+i), v)
	}
	return out
}

// LegacyWord returns the word written to RegLegacyComm by TRB3 scripts.
func LegacyWord(cable, asic, reg, val uint8) uint32 {
	return uint32(cable)<<19 | WriteWord(asic, reg, val)
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hardware

import (
	"fmt"
)

// Registers of a PASTTREC ASIC.
const (
	RegConfig = 0 // bg_int, gain, peaking
	RegTC1    = 1
	RegTC2    = 2
	RegVth    = 3
	RegBL0    = 4 // first of the 8 baseline registers

	NumRegs     = 12
	NumChannels = 8

	BaselineSteps  = 32  // domain of a baseline scan
	ThresholdSteps = 128 // domain of a threshold scan
	MaxRegValue    = 127
)

// ASIC holds the configuration of a PASTTREC ASIC.
type ASIC struct {
	BgInt   uint8              `json:"bg_int"`
	Gain    uint8              `json:"gain"`
	Peaking uint8              `json:"peaking"`
	TC1C    uint8              `json:"tc1c"`
	TC1R    uint8              `json:"tc1r"`
	TC2C    uint8              `json:"tc2c"`
	TC2R    uint8              `json:"tc2r"`
	Vth     uint8              `json:"vth"`
	BL      [NumChannels]uint8 `json:"bl"`
}

// DefaultASIC returns the power-on configuration of an ASIC.
func DefaultASIC() ASIC {
	return ASIC{BgInt: 1}
}

// ScanASIC returns the configuration used by default during scans.
func ScanASIC() ASIC {
	return ASIC{
		BgInt:   1,
		Gain:    0,
		Peaking: 3,
		TC1C:    3,
		TC1R:    2,
		TC2C:    6,
		TC2R:    5,
	}
}

// Validate checks every field fits in its register.
func (cfg ASIC) Validate() error {
	for _, f := range []struct {
		name string
		v    uint8
		max  uint8
	}{
		{"bg_int", cfg.BgInt, 1},
		{"gain", cfg.Gain, 3},
		{"peaking", cfg.Peaking, 3},
		{"tc1c", cfg.TC1C, 7},
		{"tc1r", cfg.TC1R, 7},
		{"tc2c", cfg.TC2C, 7},
		{"tc2r", cfg.TC2R, 7},
		{"vth", cfg.Vth, MaxRegValue},
	} {
		if f.v > f.max {
			return fmt.Errorf("hardware: invalid %s=%d (max=%d)", f.name, f.v, f.max)
		}
	}
	for i, v := range cfg.BL {
		if v > MaxRegValue {
			return fmt.Errorf("hardware: invalid bl[%d]=%d (max=%d)", i, v, MaxRegValue)
		}
	}
	return nil
}

// Words returns the register block of the configuration.
func (cfg ASIC) Words() [NumRegs]uint32 {
	var ws [NumRegs]uint32
	ws[RegConfig] = uint32(cfg.BgInt&0x1)<<4 | uint32(cfg.Gain&0x3)<<2 | uint32(cfg.Peaking&0x3)
	ws[RegTC1] = uint32(cfg.TC1C&0x7)<<3 | uint32(cfg.TC1R&0x7)
	ws[RegTC2] = uint32(cfg.TC2C&0x7)<<3 | uint32(cfg.TC2R&0x7)
	ws[RegVth] = uint32(cfg.Vth & 0x7f)
	for i, v := range cfg.BL {
		ws[RegBL0+i] = uint32(v & 0x7f)
	}
	return ws
}

// FromWords decodes a register block.
func (cfg *ASIC) FromWords(ws []uint32) error {
	if len(ws) != NumRegs {
		return fmt.Errorf("hardware: invalid register block size %d (want=%d)", len(ws), NumRegs)
	}

	cfg.BgInt = uint8(ws[RegConfig]>>4) & 0x1
	cfg.Gain = uint8(ws[RegConfig]>>2) & 0x3
	cfg.Peaking = uint8(ws[RegConfig]) & 0x3
	cfg.TC1C = uint8(ws[RegTC1]>>3) & 0x7
	cfg.TC1R = uint8(ws[RegTC1]) & 0x7
	cfg.TC2C = uint8(ws[RegTC2]>>3) & 0x7
	cfg.TC2R = uint8(ws[RegTC2]) & 0x7
	cfg.Vth = uint8(ws[RegVth]) & 0x7f
	for i := range cfg.BL {
		cfg.BL[i] = uint8(ws[RegBL0+i]) & 0x7f
	}
	return nil
}

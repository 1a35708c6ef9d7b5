// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conn

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-lpc/pasttrec/etrbid"
	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/spi"
)

// TestValues are the patterns written during a communication scan.
var TestValues = []uint8{0x00, 0xff, 0x0f, 0xf0, 0x55, 0x99, 0x95, 0x59}

// Reg is a (register, value) pair.
type Reg struct {
	Addr  uint8
	Value uint8
}

// Dump holds the registers read from an ASIC.
// ID.Board is the address of the responding board.
type Dump struct {
	ID   etrbid.ETrbID
	Regs []Reg
}

// Check is the outcome of a verified register write.
type Check struct {
	ID   etrbid.ETrbID
	Reg  uint8
	Want uint8
	Got  uint8
}

func (c Check) OK() bool { return c.Want == c.Got }

func (c Check) String() string {
	return fmt.Sprintf("%v reg=%2d sent=0x%02x recv=0x%02x", c.ID, c.Reg, c.Want, c.Got)
}

// ResetASICs resets the ASICs of each cable.
func ResetASICs(cables []*Cable) error {
	for _, c := range cables {
		err := c.Reset()
		if err != nil {
			return fmt.Errorf("conn: could not reset %v: %w", c, err)
		}
	}
	return nil
}

// ReadASICs reads the given registers of each ASIC.
// Dumps are sorted by responder, cable then asic.
func ReadASICs(asics []*ASIC, regs []uint8) ([]Dump, error) {
	var (
		idx   = make(map[etrbid.ETrbID]int)
		dumps []Dump
	)
	for _, a := range asics {
		for _, reg := range regs {
			rs, err := a.ReadReg(reg)
			if err != nil {
				return nil, fmt.Errorf("conn: could not read reg %d of %v: %w", reg, a, err)
			}
			for _, r := range rs {
				id := etrbid.ETrbID{Board: r.Board, Cable: a.Cable.Cable, ASIC: a.ASIC}
				i, ok := idx[id]
				if !ok {
					i = len(dumps)
					idx[id] = i
					dumps = append(dumps, Dump{ID: id})
				}
				dumps[i].Regs = append(dumps[i].Regs, Reg{Addr: reg, Value: uint8(r.Value)})
			}
		}
	}

	ids := make([]etrbid.ETrbID, len(dumps))
	for i, d := range dumps {
		ids[i] = d.ID
	}
	etrbid.SortByBoard(ids)
	out := make([]Dump, len(dumps))
	for i, id := range ids {
		out[i] = dumps[idx[id]]
	}
	return out, nil
}

// WriteASICs writes each (register, value) pair to each ASIC.
// When verify is set, every write is read back and reported.
func WriteASICs(asics []*ASIC, pairs []Reg, verify bool) ([]Check, error) {
	var out []Check
	for _, a := range asics {
		for _, p := range pairs {
			err := a.WriteReg(p.Addr, p.Value)
			if err != nil {
				return out, fmt.Errorf(
					"conn: could not write reg %d of %v: %w", p.Addr, a, err,
				)
			}
			if !verify {
				continue
			}
			rs, err := a.ReadReg(p.Addr)
			if err != nil {
				return out, fmt.Errorf(
					"conn: could not read back reg %d of %v: %w", p.Addr, a, err,
				)
			}
			for _, r := range rs {
				out = append(out, Check{
					ID:   etrbid.ETrbID{Board: r.Board, Cable: a.Cable.Cable, ASIC: a.ASIC},
					Reg:  p.Addr,
					Want: p.Value,
					Got:  uint8(r.Value),
				})
			}
		}
	}
	return out, nil
}

// ScanCommunication writes and reads back every test value into every
// register of each ASIC.
func ScanCommunication(asics []*ASIC) ([]Check, error) {
	pairs := make([]Reg, 0, hardware.NumRegs*len(TestValues))
	for reg := 0; reg < hardware.NumRegs; reg++ {
		for _, v := range TestValues {
			pairs = append(pairs, Reg{Addr: uint8(reg), Value: v})
		}
	}
	return WriteASICs(asics, pairs, true)
}

// PushConfig writes the configuration to each ASIC.
func PushConfig(asics []*ASIC, cfg hardware.ASIC) error {
	err := cfg.Validate()
	if err != nil {
		return fmt.Errorf("conn: invalid configuration: %w", err)
	}
	for _, a := range asics {
		err := a.Push(cfg)
		if err != nil {
			return fmt.Errorf("conn: could not configure %v: %w", a, err)
		}
	}
	return nil
}

// Wire holds the 1-wire readings of a card.
// ID.Board is the address of the responding board.
type Wire struct {
	ID   etrbid.CTrbID
	Temp uint32 // raw temperature, see spi.Celsius
	UID  uint64
}

// ReadOneWire reads the temperature and the identifier of the cards.
// When neither temp nor uid is set, both are read.
// Cables sharing the same index are activated together, then read after
// spi.WireSettle. A nil wait defaults to time.Sleep.
func ReadOneWire(cables []*Cable, temp, uid bool, wait func(time.Duration)) ([]Wire, error) {
	if wait == nil {
		wait = time.Sleep
	}
	if !temp && !uid {
		temp, uid = true, true
	}

	var out []Wire
	for _, grp := range GroupCables(cables) {
		for _, c := range grp {
			err := c.ActivateWire()
			if err != nil {
				return nil, fmt.Errorf("conn: could not activate 1-wire of %v: %w", c, err)
			}
		}
		wait(spi.WireSettle)

		for _, c := range grp {
			var (
				ws  = make(map[uint16]*Wire)
				ord []uint16
			)
			get := func(board uint16) *Wire {
				w, ok := ws[board]
				if !ok {
					w = &Wire{ID: etrbid.CTrbID{Board: board, Cable: c.Cable}}
					ws[board] = w
					ord = append(ord, board)
				}
				return w
			}
			if temp {
				rs, err := c.Temperature()
				if err != nil {
					return nil, fmt.Errorf("conn: could not read temperature of %v: %w", c, err)
				}
				for _, r := range rs {
					get(r.Board).Temp = r.Value
				}
			}
			if uid {
				ids, err := c.WireID()
				if err != nil {
					return nil, fmt.Errorf("conn: could not read 1-wire id of %v: %w", c, err)
				}
				boards := make([]uint16, 0, len(ids))
				for board := range ids {
					boards = append(boards, board)
				}
				sort.Slice(boards, func(i, j int) bool { return boards[i] < boards[j] })
				for _, board := range boards {
					get(board).UID = ids[board]
				}
			}
			for _, board := range ord {
				out = append(out, *ws[board])
			}
		}
	}
	return out, nil
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakebus holds an in-memory TrbNet bus emulating TDC boards with
// PASTTREC front-end cards.
package fakebus // import "github.com/go-lpc/pasttrec/internal/fakebus"

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"sync"

	"github.com/go-lpc/pasttrec/trbnet"
)

const (
	MaxCables = 4
	NumASICs  = 2
	NumRegs   = 12
	NumChans  = 8

	regHWType  = 0x42
	regFeatLo  = 0x43
	regFeatHi  = 0x44
	regScalers = 0xc001

	regSPIData   = 0xd400
	regSPISelect = 0xd410
	regSPILen    = 0xd411
	regSPIRead   = 0xd412
	regSPISDO    = 0xd415
	regSPISCK    = 0xd416
	regSPICS     = 0xd417

	regWireCtl  = 0xd420
	regWireTemp = 0xd421
	regWireIDLo = 0xd422
	regWireIDHi = 0xd423
)

var ErrClosed = errors.New("fakebus: bus closed")

// Op is a recorded bus transaction.
type Op struct {
	Kind  string // r, w, wm or rm
	Board uint16
	Reg   uint16
	Data  []uint32
}

func (op Op) String() string {
	return fmt.Sprintf("%s 0x%04x 0x%04x %x", op.Kind, op.Board, op.Reg, op.Data)
}

// RateFunc returns how much a scaler channel advances between two reads,
// given the registers of the ASIC it belongs to.
type RateFunc func(cable, asic, ch int, regs [NumRegs]uint8) uint32

// Board is an emulated TDC endpoint.
type Board struct {
	HWType   uint32
	Features uint64

	Cables int // number of cables wired to scalers
	Rate   RateFunc
	Flag   bool // set the top bit of scaler words, as the hardware does

	Temp [MaxCables]uint32
	UID  [MaxCables]uint64

	Regs  map[uint16]uint32
	ASICs [MaxCables][NumASICs][NumRegs]uint8

	Resets      [MaxCables]int
	Activations [MaxCables]int

	cable   int
	buf     [16]uint32
	last    uint32
	scalers []uint32
}

// NewBoard returns a board with power-on ASIC registers.
func NewBoard(hwtype uint32, features uint64, cables int) *Board {
	b := &Board{
		HWType:   hwtype,
		Features: features,
		Cables:   cables,
		Regs:     make(map[uint16]uint32),
	}
	for c := range b.ASICs {
		b.resetCable(c)
	}
	return b
}

func (b *Board) resetCable(c int) {
	for a := range b.ASICs[c] {
		b.ASICs[c][a] = [NumRegs]uint8{0: 0x10}
	}
}

// Bus is an in-memory trbnet.Bus.
type Bus struct {
	mu      sync.Mutex
	boards  map[uint16]*Board
	groups  map[uint16][]uint16
	fail    map[uint16]error
	journal []Op
	closed  bool
}

var _ trbnet.Bus = (*Bus)(nil)

func New() *Bus {
	return &Bus{
		boards: make(map[uint16]*Board),
		groups: make(map[uint16][]uint16),
		fail:   make(map[uint16]error),
	}
}

// Add registers a board at the given address.
func (bus *Bus) Add(addr uint16, b *Board) *Board {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.boards[addr] = b
	return b
}

// Board returns the board at the given address.
func (bus *Bus) Board(addr uint16) *Board {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.boards[addr]
}

// Group declares a broadcast address answered by the given boards.
func (bus *Bus) Group(addr uint16, members ...uint16) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	ms := append([]uint16(nil), members...)
	sort.Slice(ms, func(i, j int) bool { return ms[i] < ms[j] })
	bus.groups[addr] = ms
}

// Fail makes every transaction addressed to addr fail with err.
// A nil error clears the failure.
func (bus *Bus) Fail(addr uint16, err error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if err == nil {
		delete(bus.fail, addr)
		return
	}
	bus.fail[addr] = err
}

// Journal returns a copy of the recorded transactions.
func (bus *Bus) Journal() []Op {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return append([]Op(nil), bus.journal...)
}

// Reset clears the journal.
func (bus *Bus) Reset() {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.journal = nil
}

// Count returns the number of recorded transactions of a given kind
// on a given register.
func (bus *Bus) Count(kind string, reg uint16) int {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	n := 0
	for _, op := range bus.journal {
		if op.Kind == kind && op.Reg == reg {
			n++
		}
	}
	return n
}

func (bus *Bus) targets(addr uint16) ([]uint16, error) {
	if bus.closed {
		return nil, ErrClosed
	}
	if err, ok := bus.fail[addr]; ok {
		return nil, err
	}
	if ms, ok := bus.groups[addr]; ok {
		return ms, nil
	}
	if _, ok := bus.boards[addr]; ok {
		return []uint16{addr}, nil
	}
	return nil, nil
}

func (bus *Bus) Read(board, reg uint16) ([]trbnet.Reply, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.journal = append(bus.journal, Op{Kind: "r", Board: board, Reg: reg})
	addrs, err := bus.targets(board)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, trbnet.ErrNoResponse
	}

	out := make([]trbnet.Reply, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, trbnet.Reply{
			Board: addr,
			Value: bus.boards[addr].read(reg),
		})
	}
	return out, nil
}

func (bus *Bus) Write(board, reg uint16, v uint32) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.journal = append(bus.journal, Op{Kind: "w", Board: board, Reg: reg, Data: []uint32{v}})
	addrs, err := bus.targets(board)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		bus.boards[addr].write(reg, v)
	}
	return nil
}

func (bus *Bus) WriteMem(board, reg uint16, data []uint32, mode uint8) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.journal = append(bus.journal, Op{
		Kind: "wm", Board: board, Reg: reg,
		Data: append([]uint32(nil), data...),
	})
	addrs, err := bus.targets(board)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		b := bus.boards[addr]
		for i, v := range data {
			r := reg
			if mode == 0 {
				r += uint16(i)
			}
			b.write(r, v)
		}
	}
	return nil
}

func (bus *Bus) ReadMem(board, reg uint16, n int, mode uint8) (map[uint16][]uint32, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.journal = append(bus.journal, Op{Kind: "rm", Board: board, Reg: reg, Data: []uint32{uint32(n)}})
	addrs, err := bus.targets(board)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, trbnet.ErrNoResponse
	}

	out := make(map[uint16][]uint32, len(addrs))
	for _, addr := range addrs {
		b := bus.boards[addr]
		if reg == regScalers {
			b.tick()
		}
		vs := make([]uint32, n)
		for i := range vs {
			r := reg
			if mode == 0 {
				r += uint16(i)
			}
			vs[i] = b.read(r)
		}
		out[addr] = vs
	}
	return out, nil
}

func (bus *Bus) Close() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.closed = true
	return nil
}

func (b *Board) nscalers() int {
	return b.Cables * NumASICs * NumChans
}

func (b *Board) tick() {
	n := b.nscalers()
	if len(b.scalers) != n {
		b.scalers = make([]uint32, n)
	}
	if b.Rate == nil {
		return
	}
	for i := range b.scalers {
		var (
			c  = i / (NumASICs * NumChans)
			a  = (i / NumChans) % NumASICs
			ch = i % NumChans
		)
		b.scalers[i] = (b.scalers[i] + b.Rate(c, a, ch, b.ASICs[c][a])) & 0x7fffffff
	}
}

// SetScaler forces the value of a scaler counter.
func (b *Board) SetScaler(i int, v uint32) {
	if len(b.scalers) != b.nscalers() {
		b.scalers = make([]uint32, b.nscalers())
	}
	b.scalers[i] = v & 0x7fffffff
}

func (b *Board) read(reg uint16) uint32 {
	switch {
	case reg == regHWType:
		return b.HWType
	case reg == regFeatLo:
		return uint32(b.Features)
	case reg == regFeatHi:
		return uint32(b.Features >> 32)
	case reg == regSPIRead:
		return b.last
	case reg == regWireTemp:
		return b.Temp[b.cable]
	case reg == regWireIDLo:
		return uint32(b.UID[b.cable])
	case reg == regWireIDHi:
		return uint32(b.UID[b.cable] >> 32)
	case reg >= regScalers && int(reg-regScalers) < b.nscalers():
		if len(b.scalers) != b.nscalers() {
			b.scalers = make([]uint32, b.nscalers())
		}
		v := b.scalers[reg-regScalers]
		if b.Flag {
			v |= 0x80000000
		}
		return v
	}
	return b.Regs[reg]
}

func (b *Board) write(reg uint16, v uint32) {
	b.Regs[reg] = v
	switch {
	case reg >= regSPIData && reg < regSPIData+uint16(len(b.buf)):
		b.buf[reg-regSPIData] = v
	case reg == regSPISelect:
		if v != 0 {
			b.cable = bits.TrailingZeros32(v)
		}
	case reg == regSPILen:
		for _, w := range b.buf[:min(int(v), len(b.buf))] {
			b.spi(w)
		}
	case reg == regSPICS:
		if v&0xffff0000 != 0 {
			c := bits.TrailingZeros32(v >> 16)
			if c < MaxCables {
				b.Resets[c]++
				b.resetCable(c)
			}
		}
	case reg == regWireCtl:
		b.Activations[b.cable]++
	}
}

// spi decodes a PASTTREC data word sent to the selected cable.
func (b *Board) spi(w uint32) {
	if b.cable >= MaxCables {
		return
	}
	switch {
	case w&1 == 0 && (w>>1)&0xf1000 == 0x51000:
		raw := w >> 1
		a, reg := asicOf(raw), int(raw>>8)&0xf
		if a < 0 || reg >= NumRegs {
			return
		}
		b.last = uint32(b.ASICs[b.cable][a][reg])
	case w&0xf1000 == 0x50000:
		a, reg := asicOf(w), int(w>>8)&0xf
		if a < 0 || reg >= NumRegs {
			return
		}
		b.ASICs[b.cable][a][reg] = uint8(w)
	}
}

func asicOf(w uint32) int {
	switch w & 0x6000 {
	case 0x2000:
		return 0
	case 0x4000:
		return 1
	}
	return -1
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

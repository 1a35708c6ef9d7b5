// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spi drives the SPI master and the 1-wire bus of TRB TDC boards.
package spi // import "github.com/go-lpc/pasttrec/spi"

import (
	"fmt"
	"time"

	"github.com/go-lpc/pasttrec/trbnet"
)

// SPI master registers.
const (
	RegData   = 0xd400 // first word of the 16-words data buffer
	RegSelect = 0xd410 // chip-select output
	RegLength = 0xd411 // number of words to send, triggers the transfer
	RegRead   = 0xd412 // last word read back
	RegSDO    = 0xd415 // SDO outputs disable mask
	RegSCK    = 0xd416 // SCK outputs disable mask
	RegCS     = 0xd417 // CS lines

	// ChunkSize is the capacity of the data buffer.
	ChunkSize = 16

	resetCycles = 25
)

// 1-wire registers.
const (
	RegWireCtl  = 0xd420
	RegWireTemp = 0xd421
	RegWireIDLo = 0xd422
	RegWireIDHi = 0xd423

	// WireSettle is the minimal time between a 1-wire activation and a read.
	WireSettle = 500 * time.Millisecond
)

// Driver sends SPI transactions to the front-end cards of a board.
type Driver struct {
	bus   trbnet.Bus
	board uint16
	delay time.Duration
	sleep func(time.Duration)
}

// Option configures a Driver.
type Option func(*Driver)

// WithDelay sets a pause applied after each SPI transaction.
func WithDelay(d time.Duration) Option {
	return func(drv *Driver) {
		drv.delay = d
	}
}

// WithSleep replaces the function used to pause.
func WithSleep(f func(time.Duration)) Option {
	return func(drv *Driver) {
		drv.sleep = f
	}
}

// New returns a driver for the given board address.
func New(bus trbnet.Bus, board uint16, opts ...Option) *Driver {
	drv := &Driver{
		bus:   bus,
		board: board,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(drv)
	}
	return drv
}

// Board returns the address the driver talks to.
func (drv *Driver) Board() uint16 { return drv.board }

// Delay returns the pause applied after each SPI transaction.
func (drv *Driver) Delay() time.Duration { return drv.delay }

func (drv *Driver) pause() {
	if drv.delay > 0 {
		drv.sleep(drv.delay)
	}
}

func (drv *Driver) write(reg uint16, v uint32) error {
	err := drv.bus.Write(drv.board, reg, v)
	if err != nil {
		return fmt.Errorf(
			"spi: could not write 0x%08x to %s/0x%04x: %w",
			v, trbnet.Addr(drv.board), reg, err,
		)
	}
	return nil
}

func (drv *Driver) prepare(cable uint8) error {
	mask := uint32(1) << cable
	for _, w := range []struct {
		reg uint16
		v   uint32
	}{
		{RegCS, 0xffff},
		{RegSelect, mask},
		{RegSDO, 0xffff &^ mask},
		{RegSCK, 0xffff &^ mask},
	} {
		err := drv.write(w.reg, w.v)
		if err != nil {
			return err
		}
	}
	return nil
}

// Write sends each word to the selected cable, one transfer per word.
func (drv *Driver) Write(cable uint8, words ...uint32) error {
	err := drv.prepare(cable)
	if err != nil {
		return err
	}
	defer drv.pause()

	for _, w := range words {
		err = drv.write(RegData, w)
		if err != nil {
			return err
		}
		err = drv.write(RegLength, 1)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteChunk sends words to the selected cable, filling the data buffer
// with up to ChunkSize words per transfer.
func (drv *Driver) WriteChunk(cable uint8, words []uint32) error {
	err := drv.prepare(cable)
	if err != nil {
		return err
	}
	defer drv.pause()

	for beg := 0; beg < len(words); beg += ChunkSize {
		end := beg + ChunkSize
		if end > len(words) {
			end = len(words)
		}
		chunk := words[beg:end]
		err = drv.bus.WriteMem(drv.board, RegData, chunk, 0)
		if err != nil {
			return fmt.Errorf(
				"spi: could not fill data buffer of %s: %w",
				trbnet.Addr(drv.board), err,
			)
		}
		err = drv.write(RegLength, uint32(len(chunk)))
		if err != nil {
			return err
		}
	}
	return nil
}

// Read returns the last word read back, for each responder.
func (drv *Driver) Read() ([]trbnet.Reply, error) {
	rs, err := drv.bus.Read(drv.board, RegRead)
	if err != nil {
		return nil, fmt.Errorf("spi: could not read %s: %w", trbnet.Addr(drv.board), err)
	}
	return rs, nil
}

// Reset pulses the reset line of a cable, bringing its ASICs back to
// their power-on registers.
func (drv *Driver) Reset(cable uint8) error {
	defer drv.pause()

	line := uint32(0x10000) << cable
	err := drv.write(RegCS, 0xffff)
	if err != nil {
		return err
	}
	err = drv.write(RegCS, line)
	if err != nil {
		return err
	}
	for i := 0; i < resetCycles; i++ {
		err = drv.write(RegSCK, line)
		if err != nil {
			return err
		}
		err = drv.write(RegSCK, 0)
		if err != nil {
			return err
		}
	}
	return drv.write(RegCS, 0xffff)
}

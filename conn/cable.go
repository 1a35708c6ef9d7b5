// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conn

import (
	"fmt"

	"github.com/go-lpc/pasttrec/etrbid"
	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/spi"
	"github.com/go-lpc/pasttrec/trbnet"
)

// Cable is a connection to the front-end card plugged on a board cable.
type Cable struct {
	Board  uint16
	Cable  uint8
	Design hardware.Design

	drv *spi.Driver
	reg *hardware.Registry
}

func (c *Cable) ID() etrbid.CTrbID {
	return etrbid.CTrbID{Board: c.Board, Cable: c.Cable}
}

func (c *Cable) String() string {
	return fmt.Sprintf("%s cable=%d", trbnet.Addr(c.Board), c.Cable)
}

// Driver returns the SPI driver shared by all connections of the board.
func (c *Cable) Driver() *spi.Driver { return c.drv }

// Responders returns the boards answering to the connection's address.
func (c *Cable) Responders() []uint16 {
	id, err := c.reg.Identity(c.Board)
	if err != nil || len(id.Responders) == 0 {
		return []uint16{c.Board}
	}
	return id.Responders
}

// Reset resets both ASICs of the card.
func (c *Cable) Reset() error {
	return c.drv.Reset(c.Cable)
}

// ActivateWire starts a 1-wire conversion on the card.
func (c *Cable) ActivateWire() error {
	return c.drv.Activate(c.Cable)
}

// Temperature returns the raw 1-wire temperature, per responder.
func (c *Cable) Temperature() ([]trbnet.Reply, error) {
	return c.drv.Temperature(c.Cable)
}

// WireID returns the 1-wire identifier of the card, per responder.
func (c *Cable) WireID() (map[uint16]uint64, error) {
	return c.drv.ID(c.Cable)
}

// ASIC is a connection to a single PASTTREC.
type ASIC struct {
	*Cable
	ASIC uint8
}

func (a *ASIC) ID() etrbid.ETrbID {
	return etrbid.ETrbID{Board: a.Board, Cable: a.Cable.Cable, ASIC: a.ASIC}
}

func (a *ASIC) String() string {
	return fmt.Sprintf("%s cable=%d asic=%d", trbnet.Addr(a.Board), a.Cable.Cable, a.ASIC)
}

// WriteReg writes val into register reg.
func (a *ASIC) WriteReg(reg, val uint8) error {
	return a.drv.Write(a.Cable.Cable, hardware.WriteWord(a.ASIC, reg, val))
}

// ReadReg reads register reg back, per responder.
func (a *ASIC) ReadReg(reg uint8) ([]trbnet.Reply, error) {
	err := a.drv.Write(a.Cable.Cable, hardware.ReadWord(a.ASIC, reg)<<1)
	if err != nil {
		return nil, err
	}
	rs, err := a.drv.Read()
	if err != nil {
		return nil, err
	}
	for i := range rs {
		rs[i].Value &= 0xff
	}
	return rs, nil
}

// WriteChunk sends already encoded words in as few transfers as possible.
func (a *ASIC) WriteChunk(words []uint32) error {
	return a.drv.WriteChunk(a.Cable.Cable, words)
}

// Push writes a full configuration.
func (a *ASIC) Push(cfg hardware.ASIC) error {
	return a.WriteChunk(hardware.ConfigWords(a.ASIC, cfg))
}

// SetBaselines sets all baseline registers to v.
func (a *ASIC) SetBaselines(v uint8) error {
	return a.WriteChunk(hardware.BaselineWords(a.ASIC, v))
}

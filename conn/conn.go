// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conn turns PASTTREC address patterns into ordered connections
// to the cables and ASICs of TrbNet boards.
package conn // import "github.com/go-lpc/pasttrec/conn"

import (
	"fmt"
	"io"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/pasttrec/etrbid"
	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/spi"
	"github.com/go-lpc/pasttrec/trbnet"
)

// Factory creates connections to cables and ASICs.
// SPI drivers are shared by all the connections of a board.
type Factory struct {
	bus  trbnet.Bus
	reg  *hardware.Registry
	msg  log.MsgStream
	opts []spi.Option

	drvs map[uint16]*spi.Driver
}

// Option configures a Factory.
type Option func(*Factory)

// WithMsgStream sets the message stream of the factory.
func WithMsgStream(msg log.MsgStream) Option {
	return func(f *Factory) {
		f.msg = msg
	}
}

// WithRegistry shares an existing design registry.
func WithRegistry(reg *hardware.Registry) Option {
	return func(f *Factory) {
		f.reg = reg
	}
}

// WithSPI sets the options of the SPI drivers created by the factory.
func WithSPI(opts ...spi.Option) Option {
	return func(f *Factory) {
		f.opts = append(f.opts, opts...)
	}
}

func NewFactory(bus trbnet.Bus, opts ...Option) *Factory {
	f := &Factory{
		bus:  bus,
		drvs: make(map[uint16]*spi.Driver),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.msg == nil {
		f.msg = log.NewMsgStream("conn", log.LvlError, io.Discard)
	}
	if f.reg == nil {
		f.reg = hardware.NewRegistry(bus, f.msg)
	}
	return f
}

func (f *Factory) Bus() trbnet.Bus              { return f.bus }
func (f *Factory) Registry() *hardware.Registry { return f.reg }

// Driver returns the SPI driver of a board, creating it on first use.
func (f *Factory) Driver(board uint16) *spi.Driver {
	drv, ok := f.drvs[board]
	if !ok {
		drv = spi.New(f.bus, board, f.opts...)
		f.drvs[board] = drv
	}
	return drv
}

// Decode parses and expands address patterns against the design of their
// board. All patterns are validated before any board is queried.
// Boards that can not be resolved are skipped when ignoreMissing is set.
// The result is not deduplicated.
func (f *Factory) Decode(patterns []string, ignoreMissing bool) ([]etrbid.ETrbID, error) {
	ps, err := etrbid.ParseAll(patterns)
	if err != nil {
		return nil, err
	}

	var out []etrbid.ETrbID
	for _, p := range ps {
		d, ok, err := f.reg.Resolve(p.Board, ignoreMissing)
		if err != nil {
			return nil, fmt.Errorf("conn: could not decode %q: %w", p, err)
		}
		if !ok {
			continue
		}
		out = append(out, p.Expand(d.Cables, d.ASICs)...)
	}
	return out, nil
}

func (f *Factory) design(board uint16, ignoreMissing bool) (hardware.Design, bool, error) {
	d, ok, err := f.reg.Resolve(board, ignoreMissing)
	if err != nil {
		return d, false, fmt.Errorf("conn: could not resolve %s: %w", trbnet.Addr(board), err)
	}
	return d, ok, nil
}

// Cables returns one connection per distinct (board, cable) pair, sorted
// by cable then board.
func (f *Factory) Cables(ids []etrbid.ETrbID, ignoreMissing bool) ([]*Cable, error) {
	pairs := etrbid.Cables(ids)
	etrbid.SortByCable(pairs)

	out := make([]*Cable, 0, len(pairs))
	for _, p := range pairs {
		d, ok, err := f.design(p.Board, ignoreMissing)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, f.cable(p.Board, p.Cable, d))
	}
	return out, nil
}

// ASICs returns one connection per distinct (board, cable, asic) triple,
// sorted by cable, board then asic.
func (f *Factory) ASICs(ids []etrbid.ETrbID, ignoreMissing bool) ([]*ASIC, error) {
	ids = etrbid.Unique(ids)
	etrbid.SortByCable(ids)

	out := make([]*ASIC, 0, len(ids))
	for _, id := range ids {
		d, ok, err := f.design(id.Board, ignoreMissing)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, &ASIC{
			Cable: f.cable(id.Board, id.Cable, d),
			ASIC:  id.ASIC,
		})
	}
	return out, nil
}

func (f *Factory) cable(board uint16, cable uint8, d hardware.Design) *Cable {
	return &Cable{
		Board:  board,
		Cable:  cable,
		Design: d,
		drv:    f.Driver(board),
		reg:    f.reg,
	}
}

// GroupCables partitions sorted connections into per-cable buckets.
func GroupCables(cs []*Cable) [][]*Cable {
	return group(cs, func(c *Cable) uint8 { return c.Cable })
}

// GroupASICs partitions sorted connections into per-cable buckets.
func GroupASICs(as []*ASIC) [][]*ASIC {
	return group(as, func(a *ASIC) uint8 { return a.Cable.Cable })
}

func group[T any](vs []T, key func(T) uint8) [][]T {
	var out [][]T
	for i, v := range vs {
		if i == 0 || key(v) != key(vs[i-1]) {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], v)
	}
	return out
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi

import (
	"fmt"

	"github.com/go-lpc/pasttrec/trbnet"
)

// Activate starts a 1-wire conversion on the given cable.
// Results are available after WireSettle.
func (drv *Driver) Activate(cable uint8) error {
	err := drv.write(RegSelect, uint32(1)<<cable)
	if err != nil {
		return err
	}
	return drv.write(RegWireCtl, 1)
}

// Temperature returns the raw 1-wire temperature of a cable, per responder.
func (drv *Driver) Temperature(cable uint8) ([]trbnet.Reply, error) {
	err := drv.write(RegSelect, uint32(1)<<cable)
	if err != nil {
		return nil, err
	}
	rs, err := drv.bus.Read(drv.board, RegWireTemp)
	if err != nil {
		return nil, fmt.Errorf(
			"spi: could not read temperature of %s cable %d: %w",
			trbnet.Addr(drv.board), cable, err,
		)
	}
	return rs, nil
}

// ID returns the 1-wire identifier of the card on a cable, per responder.
func (drv *Driver) ID(cable uint8) (map[uint16]uint64, error) {
	err := drv.write(RegSelect, uint32(1)<<cable)
	if err != nil {
		return nil, err
	}

	ids := make(map[uint16]uint64)
	for _, r := range []struct {
		reg   uint16
		shift uint
	}{
		{RegWireIDLo, 0},
		{RegWireIDHi, 32},
	} {
		rs, err := drv.bus.Read(drv.board, r.reg)
		if err != nil {
			return nil, fmt.Errorf(
				"spi: could not read 1-wire id of %s cable %d: %w",
				trbnet.Addr(drv.board), cable, err,
			)
		}
		for _, v := range rs {
			ids[v.Board] |= uint64(v.Value) << r.shift
		}
	}
	return ids, nil
}

// Celsius converts a raw 1-wire temperature, in 1/16 degrees.
func Celsius(raw uint32) float64 {
	return float64(int16(raw&0xffff)) / 16
}

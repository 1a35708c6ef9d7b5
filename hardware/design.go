// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hardware describes the TrbNet boards hosting PASTTREC ASICs and
// discovers which design a board implements.
package hardware // import "github.com/go-lpc/pasttrec/hardware"

import "fmt"

// Protocol identifies how a design talks to its front-end cards.
type Protocol uint8

const (
	// TrbTdcSPI is the SPI master of the TRB TDC designs.
	TrbTdcSPI Protocol = iota + 1
)

func (p Protocol) String() string {
	switch p {
	case TrbTdcSPI:
		return "trb-tdc-spi"
	default:
		return fmt.Sprintf("Protocol(%d)", uint8(p))
	}
}

// Design describes a hardware variant of a board.
type Design struct {
	Name      string
	Cables    int    // number of front-end cables
	ASICs     int    // number of ASICs per cable
	Channels  int    // number of channels per ASIC
	Broadcast uint16 // broadcast address of all boards of that design
	Protocol  Protocol
}

// Scalers returns the number of scaler registers exposed by a board.
func (d Design) Scalers() int {
	return d.Cables * d.ASICs * d.Channels
}

// Channel returns the index of the scaler register associated with a
// (cable, asic, channel) triple.
func (d Design) Channel(cable, asic, ch int) int {
	return ch + d.Channels*asic + d.Channels*d.ASICs*cable
}

func (d Design) String() string { return d.Name }

var (
	TRB3 = Design{
		Name:      "TRB3",
		Cables:    3,
		ASICs:     2,
		Channels:  8,
		Broadcast: 0xfe4c,
		Protocol:  TrbTdcSPI,
	}

	TRB5SC16CH = Design{
		Name:      "TRB5SC_16CH",
		Cables:    2,
		ASICs:     2,
		Channels:  8,
		Broadcast: 0xfe81,
		Protocol:  TrbTdcSPI,
	}
)

// features -> design
var byFeatures = map[uint64]Design{
	0x02010c000000f301: TRB5SC16CH,
}

// hardware type (upper 16 bits) -> design
var byHWType = map[uint32]Design{
	0x91000000: TRB3,
}

// Lookup returns the design matching a (hwtype, features) signature.
// Feature bits take precedence over the hardware type.
func Lookup(hwtype uint32, features uint64) (Design, bool) {
	if d, ok := byFeatures[features]; ok {
		return d, true
	}
	d, ok := byHWType[hwtype&0xffff0000]
	return d, ok
}

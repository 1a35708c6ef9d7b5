// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package baseline

import (
	"fmt"
	"io"

	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/spi"
	"github.com/go-lpc/pasttrec/trbnet"
)

// Format selects the registers and the layout of a dump.
type Format uint8

const (
	BaselineTable  Format = iota // baseline registers, one line per ASIC
	FullTable                    // all registers, one line per ASIC
	BaselineScript               // baseline registers, as trbcmd commands
	FullScript                   // all registers, as trbcmd commands
)

func (f Format) full() bool   { return f == FullTable || f == FullScript }
func (f Format) script() bool { return f == BaselineScript || f == FullScript }

// Dump writes the configurations of out to w.
func Dump(w io.Writer, out Output, f Format) error {
	if f.script() {
		return dumpScript(w, out, f.full())
	}
	return dumpTable(w, out, f.full())
}

func dumpTable(w io.Writer, out Output, full bool) error {
	for _, key := range out.Keys() {
		card := out[key]
		for a, cfg := range card.ASICs {
			ws := cfg.Words()
			var err error
			switch {
			case full:
				_, err = fmt.Fprintf(w,
					"%s  %d  %d    0x%02x  0x%02x  0x%02x    %3d    %s\n",
					card.TrbID, card.Cable, a,
					ws[hardware.RegConfig], ws[hardware.RegTC1], ws[hardware.RegTC2],
					ws[hardware.RegVth], baselines(ws),
				)
			default:
				_, err = fmt.Fprintf(w,
					"  %s  %d  %d    %s\n",
					card.TrbID, card.Cable, a, baselines(ws),
				)
			}
			if err != nil {
				return fmt.Errorf("baseline: could not dump %s asic=%d: %w", key, a, err)
			}
		}
	}
	return nil
}

func baselines(ws [hardware.NumRegs]uint32) string {
	o := make([]byte, 0, 4*hardware.NumChannels)
	for i, v := range ws[hardware.RegBL0:] {
		if i > 0 {
			o = append(o, "  "...)
		}
		o = append(o, fmt.Sprintf("%2d", v)...)
	}
	return string(o)
}

// dumpScript records the SPI transactions configuring each ASIC.
func dumpScript(w io.Writer, out Output, full bool) error {
	bus := trbnet.NewFile(w)
	for _, key := range out.Keys() {
		card := out[key]
		board, err := card.Board()
		if err != nil {
			return err
		}
		drv := spi.New(bus, board)
		if len(card.ASICs) > hardware.MaxASICs {
			return fmt.Errorf("baseline: card %s has too many asics (%d)", key, len(card.ASICs))
		}
		for a, cfg := range card.ASICs {
			words := hardware.ConfigWords(uint8(a), cfg)
			if !full {
				words = words[hardware.RegBL0:]
			}
			err = drv.WriteChunk(uint8(card.Cable), words)
			if err != nil {
				return fmt.Errorf("baseline: could not dump %s asic=%d: %w", key, a, err)
			}
		}
	}
	return bus.Close()
}
